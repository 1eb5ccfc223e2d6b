package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
stream:
  url: wss://stream.example.com/v1/quotes
  heartbeat_interval: 15s
  symbols: [AAPL, MSFT]
buffer:
  queue_capacity: 20
reconnect:
  max_attempts: 5
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-streamer" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-streamer")
	}
	if cfg.Stream.URL != "wss://stream.example.com/v1/quotes" {
		t.Errorf("Stream.URL = %q, want %q", cfg.Stream.URL, "wss://stream.example.com/v1/quotes")
	}
	if cfg.Stream.HeartbeatInterval != 15*time.Second {
		t.Errorf("Stream.HeartbeatInterval = %v, want 15s", cfg.Stream.HeartbeatInterval)
	}
	if len(cfg.Stream.Symbols) != 2 || cfg.Stream.Symbols[1] != "MSFT" {
		t.Errorf("Stream.Symbols = %v, want [AAPL MSFT]", cfg.Stream.Symbols)
	}
	if cfg.Buffer.QueueCapacity != 20 {
		t.Errorf("Buffer.QueueCapacity = %d, want 20", cfg.Buffer.QueueCapacity)
	}

	// Load does not apply defaults
	if cfg.Stream.StaleTimeout != 0 {
		t.Errorf("Stream.StaleTimeout = %v, want 0", cfg.Stream.StaleTimeout)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_STREAM_URL", "wss://stream.example.com")
	t.Setenv("TEST_API_KEY", "key-123")

	yaml := `
stream:
  url: ${TEST_STREAM_URL}
auth:
  api_key: ${TEST_API_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.URL != "wss://stream.example.com" {
		t.Errorf("Stream.URL = %q, want %q", cfg.Stream.URL, "wss://stream.example.com")
	}
	if cfg.Auth.APIKey != "key-123" {
		t.Errorf("Auth.APIKey = %q, want %q", cfg.Auth.APIKey, "key-123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
stream:
  url: wss://stream.example.com
  symbols: [" aapl", "", "MSFT", "AAPL"]
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if !strings.HasPrefix(cfg.Instance.ID, "streamer-") {
		t.Errorf("Instance.ID = %q, want streamer- prefix", cfg.Instance.ID)
	}
	if cfg.Stream.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("Stream.HeartbeatInterval = %v, want %v", cfg.Stream.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cfg.Stream.StaleTimeout != DefaultStaleTimeout {
		t.Errorf("Stream.StaleTimeout = %v, want %v", cfg.Stream.StaleTimeout, DefaultStaleTimeout)
	}
	if cfg.Buffer.QueueCapacity != DefaultQueueCapacity {
		t.Errorf("Buffer.QueueCapacity = %d, want %d", cfg.Buffer.QueueCapacity, DefaultQueueCapacity)
	}
	if cfg.Buffer.FlushInterval != DefaultFlushInterval {
		t.Errorf("Buffer.FlushInterval = %v, want %v", cfg.Buffer.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Reconnect.BaseDelay != time.Second || cfg.Reconnect.MaxDelay != 30*time.Second {
		t.Errorf("Reconnect delays = %v/%v, want 1s/30s", cfg.Reconnect.BaseDelay, cfg.Reconnect.MaxDelay)
	}
	if cfg.Reconnect.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want %d", cfg.Reconnect.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Server.MetricsPath != DefaultMetricsPath {
		t.Errorf("Server.MetricsPath = %q, want %q", cfg.Server.MetricsPath, DefaultMetricsPath)
	}

	want := []string{"AAPL", "MSFT"}
	if len(cfg.Stream.Symbols) != len(want) {
		t.Fatalf("Stream.Symbols = %v, want %v", cfg.Stream.Symbols, want)
	}
	for i := range want {
		if cfg.Stream.Symbols[i] != want[i] {
			t.Errorf("Stream.Symbols[%d] = %q, want %q", i, cfg.Stream.Symbols[i], want[i])
		}
	}
}

func TestLoadExplicitZeroDisables(t *testing.T) {
	tests := []struct {
		name      string
		stream    string
		heartbeat time.Duration
		stale     time.Duration
	}{
		{"both omitted", "", DefaultHeartbeatInterval, DefaultStaleTimeout},
		{"both zero", "  heartbeat_interval: 0s\n  stale_timeout: 0s\n", 0, 0},
		{"stale zero", "  stale_timeout: 0s\n", DefaultHeartbeatInterval, 0},
		{"heartbeat zero", "  heartbeat_interval: 0s\n", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "stream:\n  url: wss://stream.example.com\n"+tt.stream)

			cfg, err := LoadAndValidate(path)
			if err != nil {
				t.Fatalf("LoadAndValidate failed: %v", err)
			}
			if cfg.Stream.HeartbeatInterval != tt.heartbeat {
				t.Errorf("HeartbeatInterval = %v, want %v", cfg.Stream.HeartbeatInterval, tt.heartbeat)
			}
			if cfg.Stream.StaleTimeout != tt.stale {
				t.Errorf("StaleTimeout = %v, want %v", cfg.Stream.StaleTimeout, tt.stale)
			}

			sc := cfg.StreamClientConfig()
			if sc.HeartbeatInterval != tt.heartbeat || sc.StaleTimeout != tt.stale {
				t.Errorf("StreamClientConfig() = %+v", sc)
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "stream:\n  url: wss://stream.example.com\n")
	if _, err := LoadAndValidate(path); err != nil {
		t.Errorf("LoadAndValidate failed: %v", err)
	}

	path = writeTempFile(t, "stream:\n  url: https://stream.example.com\n")
	_, err := LoadAndValidate(path)
	if err == nil || !strings.HasPrefix(err.Error(), "validate config: ") {
		t.Errorf("LoadAndValidate error = %v, want validate config error", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "stream: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *StreamerConfig {
		cfg := Default()
		cfg.Stream.URL = "wss://stream.example.com"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*StreamerConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*StreamerConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *StreamerConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing url",
			mutate:  func(c *StreamerConfig) { c.Stream.URL = "" },
			wantErr: "stream.url is required",
		},
		{
			name:    "http url",
			mutate:  func(c *StreamerConfig) { c.Stream.URL = "http://stream.example.com" },
			wantErr: `stream.url must use ws or wss, got "http"`,
		},
		{
			name:    "stale timeout below heartbeat",
			mutate:  func(c *StreamerConfig) { c.Stream.StaleTimeout = 10 * time.Second },
			wantErr: "stream.stale_timeout (10s) must exceed heartbeat_interval (30s)",
		},
		{
			name: "stale timeout without heartbeat",
			mutate: func(c *StreamerConfig) {
				c.Stream.HeartbeatInterval = 0
				c.Stream.StaleTimeout = time.Minute
			},
			wantErr: "stream.stale_timeout requires heartbeat_interval > 0",
		},
		{
			name:    "zero queue capacity",
			mutate:  func(c *StreamerConfig) { c.Buffer.QueueCapacity = 0 },
			wantErr: "buffer.queue_capacity must be >= 1",
		},
		{
			name:    "base exceeds max",
			mutate:  func(c *StreamerConfig) { c.Reconnect.BaseDelay = time.Minute },
			wantErr: "reconnect.base_delay (1m0s) cannot exceed max_delay (30s)",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *StreamerConfig) { c.Reconnect.MaxAttempts = 0 },
			wantErr: "reconnect.max_attempts must be >= 1",
		},
		{
			name:    "api key without private key",
			mutate:  func(c *StreamerConfig) { c.Auth.APIKey = "key" },
			wantErr: "auth.api_key and auth.private_key_path must be set together",
		},
		{
			name:    "port out of range",
			mutate:  func(c *StreamerConfig) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *StreamerConfig) { c.Log.Level = "loud" },
			wantErr: `log.level "loud" is invalid`,
		},
		{
			name:    "bad log format",
			mutate:  func(c *StreamerConfig) { c.Log.Format = "xml" },
			wantErr: `log.format must be text or json, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestComponentConfigs(t *testing.T) {
	cfg := Default()
	cfg.Stream.StaleTimeout = 2 * time.Minute
	cfg.Reconnect.MaxAttempts = 4

	sc := cfg.StreamClientConfig()
	if sc.HeartbeatInterval != DefaultHeartbeatInterval || sc.StaleTimeout != 2*time.Minute {
		t.Errorf("StreamClientConfig() = %+v", sc)
	}
	if sc.ReconnectBase != DefaultReconnectBase || sc.ReconnectCap != DefaultReconnectMax || sc.MaxAttempts != 4 {
		t.Errorf("StreamClientConfig() reconnect = %+v", sc)
	}

	rc := cfg.RouterConfig()
	if rc.QueueCapacity != DefaultQueueCapacity || rc.FlushInterval != DefaultFlushInterval {
		t.Errorf("RouterConfig() = %+v", rc)
	}

	tc := cfg.TransportConfig()
	if tc.HandshakeTimeout != DefaultHandshakeTimeout || tc.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("TransportConfig() = %+v", tc)
	}
	if tc.ReadLimit <= 0 {
		t.Errorf("TransportConfig().ReadLimit = %d, want > 0", tc.ReadLimit)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := LogConfig{Level: tt.in}.SlogLevel()
		if err != nil {
			t.Errorf("SlogLevel(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
