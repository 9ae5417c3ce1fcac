package config

import (
	"time"

	redisclient "github.com/vietddude/streamkeeper/internal/infra/redis"
	"github.com/vietddude/streamkeeper/internal/infra/storage/sqlstore"
)

// DefaultLedgerKey is the Redis set holding failure records.
const DefaultLedgerKey = "streamer.failed.messages"

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  sqlstore.Config    `yaml:"database"`
	Failed    FailedConfig       `yaml:"failed"`
	Retry     RetryConfig        `yaml:"retry"`
	Receivers []ReceiverConfig   `yaml:"receivers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// FailedConfig holds failure ledger settings.
type FailedConfig struct {
	LedgerKey string `yaml:"ledger_key"`
}

// RetryConfig holds settings for the scheduled retry worker.
type RetryConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"` // per pass, 0 = none
}

// ReceiverConfig declares a receiver that can be resolved by name.
type ReceiverConfig struct {
	Name    string        `yaml:"name"`
	Type    string        `yaml:"type"` // http
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}
