// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

const minSecretLength = 16

// Config holds all application configuration.
type Config struct {
	Port              string        `env:"PORT,default=8080"`
	GRPCPort          string        `env:"GRPC_PORT"`
	FrontendURL       string        `env:"FRONTEND_URL"`
	DBPath            string        `env:"DB_PATH,default=./data/chat.db"`
	StoreDriver       string        `env:"STORE_DRIVER,default=sqlite"`
	BadgerPath        string        `env:"BADGER_PATH,default=./data/messages"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	JWTExpire         time.Duration `env:"JWT_EXPIRE,default=24h"`
	AppendTimeout     time.Duration `env:"APPEND_TIMEOUT,default=5s"`
	MaxMessageLength  int           `env:"MAX_MESSAGE_LENGTH,default=4096"`
	OutboxSize        int           `env:"OUTBOX_SIZE,default=64"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.StoreDriver {
	case DriverSQLite:
	case DriverBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH cannot be empty when STORE_DRIVER=badger")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverBadger, c.StoreDriver)
	}
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	if c.JWTExpire <= 0 {
		return fmt.Errorf("JWT_EXPIRE must be > 0")
	}
	if c.AppendTimeout <= 0 {
		return fmt.Errorf("APPEND_TIMEOUT must be > 0")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be > 0")
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("OUTBOX_SIZE must be > 0")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WRITE_TIMEOUT must be > 0")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
