package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
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

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills anything the file left unset.
func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Session.MaxSteps == 0 {
		cfg.Session.MaxSteps = 500
	}
	if cfg.Session.AutoSaveInterval == 0 {
		cfg.Session.AutoSaveInterval = 5 * time.Second
	}
	if cfg.Recovery.MaxRetries == 0 {
		cfg.Recovery.MaxRetries = 3
	}
	if cfg.Recovery.MaxErrors == 0 {
		cfg.Recovery.MaxErrors = 50
	}
	if cfg.Telemetry.StepHistorySize == 0 {
		cfg.Telemetry.StepHistorySize = 1000
	}
	if cfg.Telemetry.RowHistorySize == 0 {
		cfg.Telemetry.RowHistorySize = 500
	}
	if cfg.Telemetry.ExecutionHistorySize == 0 {
		cfg.Telemetry.ExecutionHistorySize = 200
	}
	if cfg.Telemetry.MaxDurationsPerLabel == 0 {
		cfg.Telemetry.MaxDurationsPerLabel = 1000
	}
	if cfg.Replay.StepTimeout == 0 {
		cfg.Replay.StepTimeout = 15 * time.Second
	}
	if cfg.Replay.RetryDelay == 0 {
		cfg.Replay.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Driver.DebuggerURL == "" {
		cfg.Driver.DebuggerURL = "ws://127.0.0.1:9222"
	}
}
