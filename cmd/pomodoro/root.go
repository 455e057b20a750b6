package main

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"paralello/backend/internal/config"
	"paralello/backend/internal/db"
	apperrors "paralello/backend/internal/errors"
	"paralello/backend/internal/notify"
	"paralello/backend/internal/repository"
	"paralello/backend/internal/service"
	"paralello/backend/internal/timer"
)

// localOwner is the slot owner used for the terminal session.
const localOwner = "local"

type app struct {
	fs       afero.Fs
	dbPath   string
	migDir   string
	verbose  bool
	database *sql.DB
	logger   *slog.Logger
	hub      *notify.Hub
	timer    *service.TimerService
}

func newRootCmd() *cobra.Command {
	a := &app{fs: afero.NewOsFs()}

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Config{DBPath: "./data/paralello.db", MigrationsDir: "./migrations", NotifyBuffer: 16}
	}

	rootCmd := &cobra.Command{
		Use:           "pomodoro",
		Short:         "Paralello study timer for the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// migrate reports what it applies, so it runs the migrations itself.
			return a.open(cmd.ErrOrStderr(), cfg, cmd.Name() != "migrate")
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", cfg.DBPath, "sqlite database file")
	rootCmd.PersistentFlags().StringVar(&a.migDir, "migrations", cfg.MigrationsDir, "directory holding .sql migrations")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(
		newStatusCmd(a),
		newActionCmd(a, "start", "Start or resume the countdown", (*service.TimerService).Start),
		newActionCmd(a, "pause", "Pause the countdown", (*service.TimerService).Pause),
		newActionCmd(a, "reset", "Go back to a fresh focus phase", (*service.TimerService).Reset),
		newActionCmd(a, "skip", "End the current phase now", (*service.TimerService).Skip),
		newWatchCmd(a),
		newTaskCmd(a),
		newMigrateCmd(a),
	)
	return rootCmd
}

func (a *app) open(stderr io.Writer, cfg config.Config, migrate bool) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	database, err := db.OpenSQLite(a.dbPath)
	if err != nil {
		return err
	}
	a.database = database

	if migrate {
		if _, err := db.RunMigrations(database, a.fs, a.migDir); err != nil {
			return err
		}
	}

	a.hub = notify.NewHub(cfg.NotifyBuffer, a.logger)
	store := timer.NewStore(repository.NewSlotRepository(database), time.Now, a.logger)
	a.timer = service.NewTimerService(store, repository.NewHistoryRepository(database), a.hub, service.TimerOptions{
		Logger:       a.logger,
		HistoryLimit: cfg.HistoryLimit,
	})
	return nil
}

func (a *app) close() error {
	if a.database == nil {
		return nil
	}
	err := a.database.Close()
	a.database = nil
	return err
}

func apiError(apiErr *apperrors.APIError) error {
	if apiErr == nil {
		return nil
	}
	return errors.New(apiErr.Error())
}
