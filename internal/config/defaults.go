package config

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/quote-stream/internal/connection"
	"github.com/rickgao/quote-stream/internal/router"
)

// Default values for optional configuration fields.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStaleTimeout      = 90 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultQueueCapacity     = router.DefaultQueueCapacity
	DefaultFlushInterval     = router.DefaultFrameInterval
	DefaultReconnectBase     = 1 * time.Second
	DefaultReconnectMax      = 30 * time.Second
	DefaultMaxAttempts       = 10
	DefaultServerPort        = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *StreamerConfig) applyDefaults() {
	// Instance defaults
	if c.Instance.ID == "" {
		c.Instance.ID = "streamer-" + uuid.NewString()[:8]
	}

	// Stream defaults
	if c.Stream.HeartbeatInterval == 0 && !c.Stream.heartbeatSet {
		c.Stream.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Stream.StaleTimeout == 0 && !c.Stream.staleSet && c.Stream.HeartbeatInterval > 0 {
		c.Stream.StaleTimeout = DefaultStaleTimeout
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	c.Stream.Symbols = normalizeSymbols(c.Stream.Symbols)

	// Buffer defaults
	if c.Buffer.QueueCapacity == 0 {
		c.Buffer.QueueCapacity = DefaultQueueCapacity
	}
	if c.Buffer.FlushInterval == 0 {
		c.Buffer.FlushInterval = DefaultFlushInterval
	}

	// Reconnect defaults
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBase
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMax
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// normalizeSymbols upper-cases, trims, drops empties and removes duplicates,
// keeping order.
func normalizeSymbols(symbols []string) []string {
	if len(symbols) == 0 {
		return symbols
	}
	seen := make(map[string]bool, len(symbols))
	out := symbols[:0]
	for _, s := range symbols {
		s = connection.NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
