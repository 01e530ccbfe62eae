package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// ConfigPathEnv names the optional YAML file read before environment overrides.
const ConfigPathEnv = "HANDBRAIN_CONFIG"

type AppConfig struct {
	HTTPAddr string `yaml:"http-addr" env:"HTTP_ADDR" env-default:":8080"`
	// EventsAddr serves the websocket event feed; empty disables it.
	EventsAddr string `yaml:"events-addr" env:"EVENTS_ADDR" env-default:":8081"`

	StoreBackend string        `yaml:"store-backend" env:"STORE_BACKEND" env-default:"memory"`
	RedisURL     string        `yaml:"redis-url" env:"REDIS_URL"`
	SQLitePath   string        `yaml:"sqlite-path" env:"SQLITE_PATH" env-default:"data/handbrain.db"`
	GameTTL      time.Duration `yaml:"game-ttl" env:"GAME_TTL" env-default:"0s"`

	// DatabaseURL enables the Postgres archive of finished games when set.
	DatabaseURL string `yaml:"database-url" env:"DATABASE_URL"`

	OpTimeout    time.Duration `yaml:"op-timeout" env:"OP_TIMEOUT" env-default:"5s"`
	MaxTxRetries int           `yaml:"max-tx-retries" env:"MAX_TX_RETRIES" env-default:"8"`

	MessagesDir string `yaml:"messages-dir" env:"MESSAGES_DIR"`

	ServiceName  string `yaml:"service-name" env:"SERVICE_NAME" env-default:"handbrain-chess"`
	OTelEndpoint string `yaml:"otel-endpoint" env:"OTEL_ENDPOINT"`
}

// Load reads $HANDBRAIN_CONFIG (when set) and then the environment.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error
	if path := strings.TrimSpace(os.Getenv(ConfigPathEnv)); path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.SQLitePath = strings.TrimSpace(cfg.SQLitePath)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.EventsAddr = strings.TrimSpace(cfg.EventsAddr)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.MaxTxRetries <= 0 {
		return errors.New("MAX_TX_RETRIES must be positive")
	}
	if c.OpTimeout < 0 {
		return errors.New("OP_TIMEOUT must not be negative")
	}
	return nil
}
