package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	DBPath        string
	JWTSecret     string
	TokenTTL      time.Duration
	CORSOrigins   []string
	MigrationsDir string
	TickInterval  time.Duration
	LogLevel      slog.Level
	NotifyBuffer  int
	HistoryLimit  int
}

// Load reads configuration from the environment, after loading the file
// named by ENV_FILE (default .env) when it exists.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config.godotenv(%s): %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "./data/paralello.db")
	v.SetDefault("JWT_SECRET", "change-this-secret")
	v.SetDefault("TOKEN_TTL_HOURS", 72)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("TICK_INTERVAL", time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("NOTIFY_BUFFER", 16)
	v.SetDefault("HISTORY_LIMIT", 50)
}

func fromViper(v *viper.Viper) (Config, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return Config{}, fmt.Errorf("config LOG_LEVEL: %w", err)
	}

	tick := v.GetDuration("TICK_INTERVAL")
	if tick <= 0 {
		return Config{}, fmt.Errorf("config TICK_INTERVAL must be positive, got %s", tick)
	}

	ttl := v.GetInt("TOKEN_TTL_HOURS")
	if ttl <= 0 {
		ttl = 72
	}

	buffer := v.GetInt("NOTIFY_BUFFER")
	if buffer < 1 {
		buffer = 1
	}

	history := v.GetInt("HISTORY_LIMIT")
	if history < 1 {
		history = 50
	}

	return Config{
		Port:          v.GetString("PORT"),
		DBPath:        v.GetString("DB_PATH"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		TokenTTL:      time.Duration(ttl) * time.Hour,
		CORSOrigins:   splitList(v.GetString("CORS_ORIGINS")),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
		TickInterval:  tick,
		LogLevel:      level,
		NotifyBuffer:  buffer,
		HistoryLimit:  history,
	}, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// NewLogger builds the process logger at the configured level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}
