package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"database"`
	Broker struct {
		Endpoint string `yaml:"endpoint"`
		AppID    string `yaml:"app_id"`
	} `yaml:"broker"`
	Evaluation struct {
		IntervalSeconds     int `yaml:"interval_seconds"`
		InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	} `yaml:"evaluation"`
	Sync struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"sync"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	LogMode string `yaml:"log_mode"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error; env-only setups
// are supported.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Database.ClickhouseDSN = v
	}
	if v := os.Getenv("BROKER_ENDPOINT"); v != "" {
		cfg.Broker.Endpoint = v
	}
	if v := os.Getenv("BROKER_APP_ID"); v != "" {
		cfg.Broker.AppID = v
	}
	if v := os.Getenv("EVAL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Evaluation.IntervalSeconds = n
		}
	}
	if v := os.Getenv("SYNC_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.IntervalSeconds = n
		}
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_MODE"); v != "" {
		cfg.LogMode = v
	}

	// Defaults
	if cfg.Broker.Endpoint == "" {
		cfg.Broker.Endpoint = "wss://ws.derivws.com/websockets/v3"
	}
	if cfg.Evaluation.IntervalSeconds == 0 {
		cfg.Evaluation.IntervalSeconds = 30
	}
	if cfg.Evaluation.InitialDelaySeconds == 0 {
		cfg.Evaluation.InitialDelaySeconds = 5
	}
	if cfg.Sync.IntervalSeconds == 0 {
		cfg.Sync.IntervalSeconds = 30
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogMode == "" {
		cfg.LogMode = "prod"
	}

	return cfg, nil
}

// Validate checks that all required fields are set. Database DSNs are
// checked by the caller because the in-memory mode runs without them.
func (c *Config) Validate() error {
	if c.Broker.Endpoint == "" {
		return fmt.Errorf("broker.endpoint is required")
	}
	if c.Broker.AppID == "" {
		return fmt.Errorf("broker.app_id is required")
	}
	if c.Evaluation.IntervalSeconds <= 0 {
		return fmt.Errorf("evaluation.interval_seconds must be positive")
	}
	if c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("sync.interval_seconds must be positive")
	}
	return nil
}

// BrokerURL is the websocket endpoint with the app id applied.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("%s?app_id=%s", c.Broker.Endpoint, c.Broker.AppID)
}

// EvalInterval returns the evaluation cycle spacing.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.Evaluation.IntervalSeconds) * time.Second
}

// EvalInitialDelay returns the delay before the first evaluation cycle.
func (c *Config) EvalInitialDelay() time.Duration {
	return time.Duration(c.Evaluation.InitialDelaySeconds) * time.Second
}

// SyncInterval returns the broker sweep spacing.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}
