package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/streamkeeper/internal/infra/storage/sqlstore"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = sqlstore.DriverPgx
	}
	if cfg.Failed.LedgerKey == "" {
		cfg.Failed.LedgerKey = DefaultLedgerKey
	}
	if cfg.Retry.Interval == 0 {
		cfg.Retry.Interval = time.Minute
	}

	for i, r := range cfg.Receivers {
		if r.Name == "" {
			return nil, fmt.Errorf("receiver %d: name is required", i)
		}
		if r.Type == "" {
			cfg.Receivers[i].Type = "http"
		}
		if cfg.Receivers[i].Type != "http" {
			return nil, fmt.Errorf("receiver %s: unsupported type %q", r.Name, r.Type)
		}
		if r.URL == "" {
			return nil, fmt.Errorf("receiver %s: url is required", r.Name)
		}
	}

	return &cfg, nil
}
