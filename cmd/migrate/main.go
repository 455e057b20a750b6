package main

import (
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"paralello/backend/internal/config"
	"paralello/backend/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	applied, err := db.RunMigrations(database, afero.NewOsFs(), cfg.MigrationsDir)
	if err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	logger.Info("migrations applied successfully", "db", cfg.DBPath, "applied", applied)
}
