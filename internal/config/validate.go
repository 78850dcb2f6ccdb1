package config

import (
	"errors"
	"fmt"
	"strings"

	"wotrack/internal/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr must be set"))
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout_seconds must be positive"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path must be set"))
	}
	if c.Database.BusyTimeoutMS < 0 {
		errs = append(errs, errors.New("database.busy_timeout_ms must not be negative"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level))
	}
	if !logging.ValidFormat(c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format))
	}
	if c.Engine.MaxAttempts < 1 {
		errs = append(errs, errors.New("engine.max_attempts must be at least 1"))
	}
	if c.Engine.RetryBackoffMS < 0 {
		errs = append(errs, errors.New("engine.retry_backoff_ms must not be negative"))
	}
	if c.WebSocket.WriteTimeoutSeconds <= 0 || c.WebSocket.PingIntervalSeconds <= 0 {
		errs = append(errs, errors.New("websocket timeouts must be positive"))
	}
	return errors.Join(errs...)
}
