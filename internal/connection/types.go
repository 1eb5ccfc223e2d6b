package connection

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no inbound frames)")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrInvalidURL       = errors.New("invalid stream url")
)

// State is the lifecycle state of the stream connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionStatus is a point-in-time copy of the client's connection health.
type ConnectionStatus struct {
	State         State
	URL           string
	AttemptID     uuid.UUID // Identifies the current connection attempt
	LastMessageAt time.Time // Zero until the first inbound frame
	RetryCount    int
	LastError     error
	Exhausted     bool // True once MaxAttempts retries failed; only Connect clears it
}

// StatusSink receives a fresh ConnectionStatus on every change.
// It is called with the client's lock held and must not call back into the client.
type StatusSink interface {
	ApplyStatus(status ConnectionStatus)
}

// StatusSinkFunc is a function adapter for StatusSink.
type StatusSinkFunc func(ConnectionStatus)

func (f StatusSinkFunc) ApplyStatus(s ConnectionStatus) {
	f(s)
}

// Dispatcher routes inbound frames after the generation check has passed.
type Dispatcher interface {
	// Dispatch handles one raw frame. Must not block on the consumer.
	Dispatch(frame []byte)

	// Reset drops any buffered data. Called on Dispose after any in-flight
	// Dispatch has returned, never concurrently with one.
	Reset()
}

// Outbound wire frames.

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// SubscriptionFrame is sent on 0→1 and 1→0 reference-count edges.
type SubscriptionFrame struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// PingFrame is the application-level heartbeat.
type PingFrame struct {
	Type string `json:"type"`
}

// StreamConfig configures a StreamClient.
type StreamConfig struct {
	HeartbeatInterval time.Duration // Ping interval while open
	StaleTimeout      time.Duration // Max time without inbound frames before reconnecting (0 = disabled)
	ReconnectBase     time.Duration // First reconnect delay
	ReconnectCap      time.Duration // Upper bound on reconnect delay
	MaxAttempts       int           // Retries before giving up
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HeartbeatInterval: 30 * time.Second,
		StaleTimeout:      90 * time.Second,
		ReconnectBase:     1 * time.Second,
		ReconnectCap:      30 * time.Second,
		MaxAttempts:       10,
	}
}

// TransportConfig configures the WebSocket transport.
type TransportConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// ReadLimit is the max inbound frame size in bytes (0 = unlimited).
	ReadLimit int64

	// Header optionally supplies handshake headers for each dial.
	Header HeaderFunc
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// StreamStats provides counters about the client.
type StreamStats struct {
	ConnectAttempts   int64 // Transports opened (initial + reconnects)
	Opens             int64
	FramesReceived    int64
	StaleCallbacks    int64 // Callbacks ignored because their generation was superseded
	SendErrors        int64
	ReconnectsPlanned int64
	Subscriptions     int // Symbols with a positive reference count
}
