package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// HeaderFunc returns extra handshake headers for a dial to u.
type HeaderFunc func(u *url.URL) (http.Header, error)

// Callbacks are invoked by a Conn from its own goroutine.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(frame []byte)
	OnClose   func(wasClean bool)
	OnError   func(err error)
}

// Transport opens streaming connections.
type Transport interface {
	// Open starts connecting to rawURL and returns immediately.
	// Callbacks must not be invoked before Open returns.
	// Cancelling ctx aborts an in-flight handshake.
	Open(ctx context.Context, rawURL string, cb Callbacks) (Conn, error)
}

// Conn is a handle to one transport connection.
type Conn interface {
	// Send writes one text frame.
	Send(frame []byte) error

	// Close closes the connection. After Close no callbacks fire.
	Close() error
}

// wsTransport implements Transport over gorilla/websocket.
type wsTransport struct {
	cfg    TransportConfig
	logger *slog.Logger
}

// NewWebSocketTransport creates a WebSocket transport.
func NewWebSocketTransport(cfg TransportConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}

	return &wsTransport{
		cfg:    cfg,
		logger: logger,
	}
}

// Open validates the URL, builds handshake headers and dials in the background.
func (t *wsTransport) Open(ctx context.Context, rawURL string, cb Callbacks) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	// Build headers
	header := http.Header{}
	header.Set("Accept", "application/json")
	if t.cfg.Header != nil {
		extra, err := t.cfg.Header(u)
		if err != nil {
			return nil, fmt.Errorf("build handshake headers: %w", err)
		}
		for k, vs := range extra {
			for _, v := range vs {
				header.Add(k, v)
			}
		}
	}

	dialCtx, cancel := context.WithCancel(ctx)
	c := &wsConn{
		cfg:    t.cfg,
		logger: t.logger,
		cancel: cancel,
	}

	go c.run(dialCtx, u.String(), header, cb)

	return c, nil
}

// wsConn is one WebSocket connection.
type wsConn struct {
	cfg    TransportConfig
	logger *slog.Logger
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// run dials, reports the open and then reads until the socket fails or is closed.
func (c *wsConn) run(ctx context.Context, rawURL string, header http.Header, cb Callbacks) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if c.isClosed() {
			return
		}
		cb.OnError(fmt.Errorf("dial: %w", err))
		cb.OnClose(false)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}

	c.logger.Debug("websocket connected", "url", rawURL)

	cb.OnOpen()
	c.readLoop(conn, cb)
}

// readLoop delivers frames until a read error.
func (c *wsConn) readLoop(conn *websocket.Conn, cb Callbacks) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			if c.isClosed() {
				return
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket closed by peer")
				cb.OnClose(true)
				return
			}

			cb.OnError(err)
			cb.OnClose(false)
			return
		}

		cb.OnMessage(data)
	}
}

// Send writes a text frame.
func (c *wsConn) Send(frame []byte) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if closed {
		return ErrAlreadyClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a normal closure and tears the socket down.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	// Abort a dial still in flight
	c.cancel()

	if conn == nil {
		return nil
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
