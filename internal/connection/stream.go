package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Timer is the subset of *time.Timer the client relies on.
type Timer interface {
	Stop() bool
}

// Clock provides time and one-shot timers. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a StreamClient.
type Option func(*StreamClient)

// WithClock replaces the wall clock used for heartbeats and reconnect delays.
func WithClock(clock Clock) Option {
	return func(c *StreamClient) {
		c.clock = clock
	}
}

// StreamClient owns a single streaming connection and its subscriptions.
//
// All state below mu is single-writer: public methods, transport callbacks
// and timer callbacks take mu before touching it. Callbacks carry the
// generation they were registered under and become no-ops once the
// generation moves on.
type StreamClient struct {
	cfg        StreamConfig
	transport  Transport
	dispatcher Dispatcher
	status     StatusSink
	clock      Clock
	logger     *slog.Logger

	mu sync.Mutex
	sm *StateMachine

	// dispatchMu is held across the generation check and Dispatch so that
	// Dispose can wait out an in-flight frame before resetting the dispatcher.
	// Lock order: dispatchMu, then mu.
	dispatchMu sync.Mutex

	// Current connection attempt
	gen       uint64
	cancel    context.CancelFunc
	conn      Conn
	url       string
	attemptID uuid.UUID

	// Health
	lastMessageAt time.Time
	lastActivity  time.Time
	lastError     error
	exhausted     bool

	// Subscription table: symbol → reference count (> 0)
	refs map[string]int

	// Timers
	policy         *reconnectPolicy
	reconnectTimer Timer
	heartbeatTimer Timer

	disposed bool
	stats    StreamStats
}

// NewStreamClient creates a client in StateIdle. dispatcher and status may be nil.
func NewStreamClient(cfg StreamConfig, transport Transport, dispatcher Dispatcher, status StatusSink, logger *slog.Logger, opts ...Option) *StreamClient {
	if logger == nil {
		logger = slog.Default()
	}

	c := &StreamClient{
		cfg:        cfg,
		transport:  transport,
		dispatcher: dispatcher,
		status:     status,
		clock:      systemClock{},
		logger:     logger,
		sm:         NewStateMachine(),
		refs:       make(map[string]int),
		policy:     newReconnectPolicy(cfg.ReconnectBase, cfg.ReconnectCap, cfg.MaxAttempts),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.sm.OnChange(func(s State) {
		c.logger.Info("stream state changed",
			"state", s.String(),
			"attempt_id", c.attemptID,
			"retry", c.policy.Attempt(),
		)
	})

	return c
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Connect starts a new connection attempt to rawURL.
// It is a no-op while a connection is connecting or open.
func (c *StreamClient) Connect(rawURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		c.logger.Warn("connect ignored, client disposed")
		return
	}

	switch c.sm.Current() {
	case StateConnecting, StateOpen:
		c.logger.Debug("connect ignored, already busy", "state", c.sm.Current().String())
		return
	}

	// A supervisor restarting after exhaustion gets a fresh retry budget
	if c.exhausted {
		c.exhausted = false
		c.policy.Reset()
	}

	c.connectLocked(rawURL)
}

// Disconnect closes the connection and cancels pending heartbeats and
// reconnects. Safe to call repeatedly.
func (c *StreamClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnectLocked()
}

// Dispose disconnects and drops all subscriptions, retry state and buffered
// data. The client cannot be reused afterwards.
func (c *StreamClient) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}

	c.disconnectLocked()
	c.refs = make(map[string]int)
	c.policy.Reset()
	c.exhausted = false
	c.disposed = true
	d := c.dispatcher
	c.mu.Unlock()

	if d != nil {
		c.dispatchMu.Lock()
		d.Reset()
		c.dispatchMu.Unlock()
	}

	c.logger.Info("stream client disposed")
}

// Subscribe increments the reference count for symbol. The wire subscribe
// frame is sent only on the 0→1 edge and only while open; otherwise it is
// deferred to the next successful open.
func (c *StreamClient) Subscribe(symbol string) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		c.logger.Warn("subscribe ignored, client disposed", "symbol", symbol)
		return
	}

	c.refs[symbol]++
	if c.refs[symbol] == 1 && c.isOpenLocked() {
		c.sendLocked(SubscriptionFrame{Action: ActionSubscribe, Symbol: symbol})
	}
}

// Unsubscribe decrements the reference count for symbol, never below zero.
// The wire unsubscribe frame is sent only on the 1→0 edge while open.
// It returns the remaining count and false when symbol was not subscribed.
func (c *StreamClient) Unsubscribe(symbol string) (remaining int, ok bool) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.refs[symbol]
	switch {
	case count == 0:
		return 0, false
	case count > 1:
		c.refs[symbol] = count - 1
		return count - 1, true
	}

	delete(c.refs, symbol)
	if c.isOpenLocked() {
		c.sendLocked(SubscriptionFrame{Action: ActionUnsubscribe, Symbol: symbol})
	}
	return 0, true
}

// SubscribedSymbols returns the symbols with a positive reference count, sorted.
func (c *StreamClient) SubscribedSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbolsLocked()
}

// RefCount returns the reference count for symbol.
func (c *StreamClient) RefCount(symbol string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[NormalizeSymbol(symbol)]
}

// Status returns a copy of the current connection status.
func (c *StreamClient) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Stats returns current counters.
func (c *StreamClient) Stats() StreamStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Subscriptions = len(c.refs)
	return s
}

// -----------------------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------------------

// connectLocked supersedes the current attempt and opens a new transport.
func (c *StreamClient) connectLocked(rawURL string) {
	c.supersedeLocked()

	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.url = rawURL
	c.attemptID = uuid.New()
	c.stats.ConnectAttempts++

	c.sm.Transition(StateConnecting)
	c.publishLocked()

	conn, err := c.transport.Open(ctx, rawURL, c.callbacks(gen))
	if err != nil {
		c.logger.Warn("failed to open stream transport",
			"url", rawURL,
			"attempt_id", c.attemptID,
			"error", err,
		)
		c.lastError = err
		c.sm.Transition(StateError)
		c.scheduleReconnectLocked()
		c.publishLocked()
		return
	}

	c.conn = conn
}

// disconnectLocked invalidates every pending callback and closes the transport.
func (c *StreamClient) disconnectLocked() {
	c.supersedeLocked()
	if c.sm.Transition(StateClosed) {
		c.publishLocked()
	}
}

// supersedeLocked advances the generation and releases the current
// connection, its context and its timers.
func (c *StreamClient) supersedeLocked() {
	c.gen++

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	c.stopHeartbeatLocked()
	c.stopReconnectLocked()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("close stream transport", "error", err)
		}
		c.conn = nil
	}
}

// callbacks binds transport callbacks to generation gen.
func (c *StreamClient) callbacks(gen uint64) Callbacks {
	return Callbacks{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(frame []byte) { c.handleMessage(gen, frame) },
		OnClose:   func(wasClean bool) { c.handleClose(gen, wasClean) },
		OnError:   func(err error) { c.handleError(gen, err) },
	}
}

// staleLocked reports whether gen belongs to a superseded attempt.
func (c *StreamClient) staleLocked(gen uint64) bool {
	if gen != c.gen {
		c.stats.StaleCallbacks++
		return true
	}
	return false
}

func (c *StreamClient) handleOpen(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleLocked(gen) {
		return
	}

	c.policy.Reset()
	c.lastError = nil
	c.exhausted = false
	c.lastActivity = c.clock.Now()
	c.stats.Opens++

	c.sm.Transition(StateOpen)
	c.publishLocked()

	c.resubscribeLocked()
	c.startHeartbeatLocked(gen)
}

func (c *StreamClient) handleMessage(gen uint64, frame []byte) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	c.lastMessageAt = now
	c.lastActivity = now
	c.stats.FramesReceived++
	c.publishLocked()
	d := c.dispatcher
	c.mu.Unlock()

	// Dispatch outside mu; frames from one connection arrive on one goroutine
	if d != nil {
		d.Dispatch(frame)
	}
}

func (c *StreamClient) handleClose(gen uint64, wasClean bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleLocked(gen) {
		return
	}

	c.stopHeartbeatLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if wasClean {
		c.logger.Info("stream closed cleanly by server")
		c.stopReconnectLocked()
		if c.sm.Transition(StateClosed) {
			c.publishLocked()
		}
		return
	}

	if c.exhausted {
		return
	}

	c.logger.Warn("stream closed unexpectedly", "attempt_id", c.attemptID)
	c.sm.Transition(StateReconnecting)
	c.scheduleReconnectLocked()
	c.publishLocked()
}

func (c *StreamClient) handleError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleLocked(gen) {
		return
	}

	c.logger.Warn("stream transport error",
		"attempt_id", c.attemptID,
		"error", err,
	)

	c.stopHeartbeatLocked()
	c.lastError = err
	c.sm.Transition(StateError)
	c.scheduleReconnectLocked()
	c.publishLocked()
}

// -----------------------------------------------------------------------------
// Reconnection
// -----------------------------------------------------------------------------

// scheduleReconnectLocked arms the reconnect timer unless one is already
// pending. Once the retry budget is spent the client stays in StateError with
// Exhausted set until Connect is called again.
func (c *StreamClient) scheduleReconnectLocked() {
	if c.reconnectTimer != nil || c.exhausted {
		return
	}

	delay, ok := c.policy.Next()
	if !ok {
		c.exhausted = true
		if c.lastError != nil {
			c.lastError = fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, c.policy.Attempt(), c.lastError)
		} else {
			c.lastError = ErrRetriesExhausted
		}
		c.sm.Transition(StateError)
		c.logger.Error("reconnect attempts exhausted",
			"attempts", c.policy.Attempt(),
			"url", c.url,
		)
		return
	}

	c.stats.ReconnectsPlanned++
	gen := c.gen

	c.logger.Info("scheduling reconnect",
		"attempt", c.policy.Attempt(),
		"delay", delay,
	)

	c.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.handleReconnectTimer(gen)
	})
}

func (c *StreamClient) handleReconnectTimer(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleLocked(gen) {
		return
	}
	c.reconnectTimer = nil

	c.logger.Info("attempting reconnection",
		"attempt", c.policy.Attempt(),
		"url", c.url,
	)
	c.connectLocked(c.url)
}

func (c *StreamClient) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// -----------------------------------------------------------------------------
// Heartbeat
// -----------------------------------------------------------------------------

func (c *StreamClient) startHeartbeatLocked(gen uint64) {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	c.heartbeatTimer = c.clock.AfterFunc(c.cfg.HeartbeatInterval, func() {
		c.handleHeartbeat(gen)
	})
}

func (c *StreamClient) stopHeartbeatLocked() {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
}

// handleHeartbeat pings the server, or replaces the socket when nothing has
// arrived within StaleTimeout.
func (c *StreamClient) handleHeartbeat(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleLocked(gen) {
		return
	}
	c.heartbeatTimer = nil

	if c.sm.Current() != StateOpen {
		return
	}

	if c.cfg.StaleTimeout > 0 {
		if idle := c.clock.Now().Sub(c.lastActivity); idle > c.cfg.StaleTimeout {
			c.logger.Warn("no inbound frames, connection stale",
				"last_activity", c.lastActivity,
				"timeout", c.cfg.StaleTimeout,
			)
			c.supersedeLocked()
			c.lastError = ErrStaleConnection
			c.sm.Transition(StateReconnecting)
			c.scheduleReconnectLocked()
			c.publishLocked()
			return
		}
	}

	c.sendLocked(PingFrame{Type: "ping"})
	c.startHeartbeatLocked(gen)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// resubscribeLocked replays the subscription table, one frame per symbol.
func (c *StreamClient) resubscribeLocked() {
	symbols := c.symbolsLocked()
	if len(symbols) == 0 {
		return
	}

	c.logger.Info("resubscribing", "symbols", len(symbols))
	for _, symbol := range symbols {
		if err := c.sendLocked(SubscriptionFrame{Action: ActionSubscribe, Symbol: symbol}); err != nil {
			return
		}
	}
}

// sendLocked encodes and writes one frame. Failures are recorded in the
// status rather than returned to callers of the public API.
func (c *StreamClient) sendLocked(v any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	if err := c.conn.Send(data); err != nil {
		c.stats.SendErrors++
		c.lastError = fmt.Errorf("send frame: %w", err)
		c.logger.Warn("failed to send frame", "frame", string(data), "error", err)
		c.publishLocked()
		return err
	}

	return nil
}

func (c *StreamClient) isOpenLocked() bool {
	return c.sm.Current() == StateOpen && c.conn != nil
}

func (c *StreamClient) symbolsLocked() []string {
	symbols := make([]string, 0, len(c.refs))
	for symbol := range c.refs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (c *StreamClient) statusLocked() ConnectionStatus {
	return ConnectionStatus{
		State:         c.sm.Current(),
		URL:           c.url,
		AttemptID:     c.attemptID,
		LastMessageAt: c.lastMessageAt,
		RetryCount:    c.policy.Attempt(),
		LastError:     c.lastError,
		Exhausted:     c.exhausted,
	}
}

func (c *StreamClient) publishLocked() {
	if c.status != nil {
		c.status.ApplyStatus(c.statusLocked())
	}
}

// NormalizeSymbol trims and upper-cases a symbol. Every key in the
// subscription table is normalized.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
