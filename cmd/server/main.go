package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"paralello/backend/internal/config"
	"paralello/backend/internal/db"
	"paralello/backend/internal/handler"
	"paralello/backend/internal/notify"
	"paralello/backend/internal/repository"
	"paralello/backend/internal/router"
	"paralello/backend/internal/service"
	"paralello/backend/internal/timer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := db.RunMigrations(database, afero.NewOsFs(), cfg.MigrationsDir)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "files", applied)
	}

	userRepo := repository.NewUserRepository(database)
	slotRepo := repository.NewSlotRepository(database)
	historyRepo := repository.NewHistoryRepository(database)
	scheduleRepo := repository.NewScheduleRepository(database)

	hub := notify.NewHub(cfg.NotifyBuffer, logger)
	store := timer.NewStore(slotRepo, time.Now, logger)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	timerService := service.NewTimerService(store, historyRepo, hub, service.TimerOptions{
		Logger:       logger,
		HistoryLimit: cfg.HistoryLimit,
	})
	scheduleService := service.NewScheduleService(scheduleRepo)

	engine := router.New(authService, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Timer:    handler.NewTimerHandler(timerService),
		Schedule: handler.NewScheduleHandler(scheduleService),
	}, cfg.CORSOrigins)

	go timerService.Run(ctx, cfg.TickInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end when the process is asked to stop.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("backend listening", "addr", srv.Addr, "tick", cfg.TickInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
