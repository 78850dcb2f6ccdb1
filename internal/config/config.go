// Package config loads wotrack settings from YAML or TOML files, applies
// defaults and environment overrides, and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvDatabase = "WOTRACK_DB"
	EnvAddr     = "WOTRACK_ADDR"
	EnvLogLevel = "WOTRACK_LOG_LEVEL"
)

// Server contains HTTP listener settings.
type Server struct {
	Addr                   string `toml:"addr" yaml:"addr"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// Database contains datastore settings.
type Database struct {
	Path          string `toml:"path" yaml:"path"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	File   string `toml:"file" yaml:"file"`
}

// Engine tunes transaction retries on write conflicts.
type Engine struct {
	MaxAttempts    int `toml:"max_attempts" yaml:"max_attempts"`
	RetryBackoffMS int `toml:"retry_backoff_ms" yaml:"retry_backoff_ms"`
}

// WebSocket tunes dashboard connections.
type WebSocket struct {
	WriteTimeoutSeconds int `toml:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	PingIntervalSeconds int `toml:"ping_interval_seconds" yaml:"ping_interval_seconds"`
}

// Config encapsulates all configuration values for wotrack.
type Config struct {
	Server    Server    `toml:"server" yaml:"server"`
	Database  Database  `toml:"database" yaml:"database"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Engine    Engine    `toml:"engine" yaml:"engine"`
	WebSocket WebSocket `toml:"websocket" yaml:"websocket"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:    Server{Addr: ":9000", ShutdownTimeoutSeconds: 10},
		Database:  Database{Path: "wotrack.db", BusyTimeoutMS: 5000},
		Logging:   Logging{Level: "info", Format: "auto"},
		Engine:    Engine{MaxAttempts: 8, RetryBackoffMS: 5},
		WebSocket: WebSocket{WriteTimeoutSeconds: 5, PingIntervalSeconds: 30},
	}
}

// Load reads path (when non-empty), layers environment overrides on top and
// validates the result. The file format is chosen by extension.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config: unsupported file extension %q (want .yaml, .yml or .toml)", ext)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabase); ok && strings.TrimSpace(v) != "" {
		c.Database.Path = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAddr); ok && strings.TrimSpace(v) != "" {
		c.Server.Addr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.Logging.Level = strings.TrimSpace(v)
	}
}

func (s Server) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

func (d Database) BusyTimeout() time.Duration {
	return time.Duration(d.BusyTimeoutMS) * time.Millisecond
}

func (e Engine) RetryBackoff() time.Duration {
	return time.Duration(e.RetryBackoffMS) * time.Millisecond
}

func (w WebSocket) WriteTimeout() time.Duration {
	return time.Duration(w.WriteTimeoutSeconds) * time.Second
}

func (w WebSocket) PingInterval() time.Duration {
	return time.Duration(w.PingIntervalSeconds) * time.Second
}
