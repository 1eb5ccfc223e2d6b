package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Stream.URL == "" {
		return errors.New("stream.url is required")
	}
	u, err := url.Parse(c.Stream.URL)
	if err != nil {
		return fmt.Errorf("stream.url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream.url must use ws or wss, got %q", u.Scheme)
	}
	if c.Stream.HeartbeatInterval < 0 {
		return errors.New("stream.heartbeat_interval must be >= 0")
	}
	if c.Stream.StaleTimeout < 0 {
		return errors.New("stream.stale_timeout must be >= 0")
	}
	if c.Stream.StaleTimeout > 0 && c.Stream.HeartbeatInterval == 0 {
		return errors.New("stream.stale_timeout requires heartbeat_interval > 0")
	}
	if c.Stream.StaleTimeout > 0 && c.Stream.StaleTimeout <= c.Stream.HeartbeatInterval {
		return fmt.Errorf("stream.stale_timeout (%s) must exceed heartbeat_interval (%s)",
			c.Stream.StaleTimeout, c.Stream.HeartbeatInterval)
	}

	if c.Buffer.QueueCapacity < 1 {
		return errors.New("buffer.queue_capacity must be >= 1")
	}
	if c.Buffer.FlushInterval <= 0 {
		return errors.New("buffer.flush_interval must be > 0")
	}

	if c.Reconnect.BaseDelay <= 0 {
		return errors.New("reconnect.base_delay must be > 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect.base_delay (%s) cannot exceed max_delay (%s)",
			c.Reconnect.BaseDelay, c.Reconnect.MaxDelay)
	}
	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}

	if c.Auth.Enabled() && (c.Auth.APIKey == "" || c.Auth.PrivateKeyPath == "") {
		return errors.New("auth.api_key and auth.private_key_path must be set together")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("server.metrics_path must start with /, got %q", c.Server.MetricsPath)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q is invalid", l.Level)
	}
	return level, nil
}
