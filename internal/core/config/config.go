package config

import (
	"github.com/vietddude/webtape/internal/infra/driver/cdp"
	redisclient "github.com/vietddude/webtape/internal/infra/redis"
	"github.com/vietddude/webtape/internal/infra/storage/postgres"
	"github.com/vietddude/webtape/internal/recovery"
	"github.com/vietddude/webtape/internal/replay"
	"github.com/vietddude/webtape/internal/session"
	"github.com/vietddude/webtape/internal/telemetry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Session   session.Config     `yaml:"session"`
	Recovery  recovery.Config    `yaml:"recovery"`
	Telemetry telemetry.Config   `yaml:"telemetry"`
	Replay    replay.Config      `yaml:"replay"`
	Driver    cdp.Config         `yaml:"driver"`
	Storage   StorageConfig      `yaml:"storage"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
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

// StorageConfig selects the local store used when no database URL is set.
type StorageConfig struct {
	Path string `yaml:"path"` // SQLite file; empty = in-memory
}
