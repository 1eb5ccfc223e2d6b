package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rickgao/quote-stream/internal/connection"
	"github.com/rickgao/quote-stream/internal/router"
)

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Stream    StreamConfig    `yaml:"stream"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Auth      AuthConfig      `yaml:"auth"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds the market data socket settings.
//
// An explicit 0 for heartbeat_interval or stale_timeout disables the feature;
// an omitted key takes the default. Stale detection runs on heartbeat ticks,
// so disabling the heartbeat also disables it unless stale_timeout is set.
type StreamConfig struct {
	URL               string        `yaml:"url"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleTimeout      time.Duration `yaml:"stale_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	Symbols           []string      `yaml:"symbols"` // Subscribed at startup, upper-cased

	heartbeatSet bool
	staleSet     bool
}

// UnmarshalYAML decodes the section and records which zero-means-off keys
// were present.
func (s *StreamConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain StreamConfig
	if err := value.Decode((*plain)(s)); err != nil {
		return err
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		switch value.Content[i].Value {
		case "heartbeat_interval":
			s.heartbeatSet = true
		case "stale_timeout":
			s.staleSet = true
		}
	}
	return nil
}

// BufferConfig holds coalescing buffer settings.
type BufferConfig struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ReconnectConfig holds backoff settings.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// AuthConfig holds optional handshake credentials. Both fields empty means
// the socket is opened unauthenticated.
type AuthConfig struct {
	APIKey         string `yaml:"api_key"`
	PrivateKeyPath string `yaml:"private_key_path"` // Path to RSA private key PEM file
}

// Enabled reports whether handshake signing is configured.
func (a AuthConfig) Enabled() bool {
	return a.APIKey != "" || a.PrivateKeyPath != ""
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StreamClientConfig converts the stream and reconnect sections for the client.
func (c *StreamerConfig) StreamClientConfig() connection.StreamConfig {
	return connection.StreamConfig{
		HeartbeatInterval: c.Stream.HeartbeatInterval,
		StaleTimeout:      c.Stream.StaleTimeout,
		ReconnectBase:     c.Reconnect.BaseDelay,
		ReconnectCap:      c.Reconnect.MaxDelay,
		MaxAttempts:       c.Reconnect.MaxAttempts,
	}
}

// RouterConfig converts the buffer section for the coalescing buffer and
// frame scheduler.
func (c *StreamerConfig) RouterConfig() router.RouterConfig {
	return router.RouterConfig{
		QueueCapacity: c.Buffer.QueueCapacity,
		FlushInterval: c.Buffer.FlushInterval,
	}
}

// TransportConfig converts the stream section for the WebSocket transport.
// Header is left for the caller to set.
func (c *StreamerConfig) TransportConfig() connection.TransportConfig {
	cfg := connection.DefaultTransportConfig()
	cfg.HandshakeTimeout = c.Stream.HandshakeTimeout
	cfg.WriteTimeout = c.Stream.WriteTimeout
	return cfg
}
