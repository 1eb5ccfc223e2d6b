package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

var (
	errSchedulerRunning = errors.New("frame scheduler already running")
	errMissingSymbol    = errors.New("frame has no symbol")
	errMissingPayload   = errors.New("frame has no payload")
)

// Router parses raw stream frames and routes them by type: ticks to the
// coalescing buffer, order books straight to the data sink, pongs nowhere.
// It satisfies connection.Dispatcher.
type Router struct {
	buf    *CoalescingBuffer
	sink   DataSink
	logger *slog.Logger

	mu          sync.Mutex
	received    int64
	ticks       int64
	snapshots   int64
	pongs       int64
	unknown     int64
	parseErrors int64
}

// NewRouter creates a Router. sink may be nil, in which case order books are
// counted and dropped.
func NewRouter(buf *CoalescingBuffer, sink DataSink, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		buf:    buf,
		sink:   sink,
		logger: logger,
	}
}

// Dispatch routes a single frame. Malformed and unknown frames are logged,
// counted and dropped.
func (r *Router) Dispatch(frame []byte) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		r.parseError("failed to decode frame", err, frame)
		return
	}

	switch env.Type {
	case TypeTick:
		symbol, err := tickSymbol(env)
		if err != nil {
			r.parseError("failed to parse tick", err, frame)
			return
		}
		tick := *env.Tick
		tick.Symbol = symbol

		r.mu.Lock()
		r.ticks++
		r.mu.Unlock()

		r.buf.Add(symbol, tick)

	case TypeOrderBook:
		symbol, err := bookSymbol(env)
		if err != nil {
			r.parseError("failed to parse order book", err, frame)
			return
		}
		book := *env.OrderBook
		book.Symbol = symbol

		r.mu.Lock()
		r.snapshots++
		r.mu.Unlock()

		if r.sink != nil {
			r.sink.ApplySnapshot(symbol, book)
		}

	case TypePong:
		r.mu.Lock()
		r.pongs++
		r.mu.Unlock()

	default:
		r.mu.Lock()
		r.unknown++
		r.mu.Unlock()
		r.logger.Debug("skipping message type", "type", env.Type)
	}
}

// Reset discards buffered ticks.
func (r *Router) Reset() {
	r.buf.Clear()
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RouterStats{
		MessagesReceived: r.received,
		Ticks:            r.ticks,
		Snapshots:        r.snapshots,
		Pongs:            r.pongs,
		UnknownMessages:  r.unknown,
		ParseErrors:      r.parseErrors,
		Buffer:           r.buf.Stats(),
	}
}

func (r *Router) parseError(msg string, err error, frame []byte) {
	r.mu.Lock()
	r.parseErrors++
	r.mu.Unlock()

	if len(frame) > 256 {
		frame = frame[:256]
	}
	r.logger.Warn(msg, "error", err, "frame", string(frame))
}

// tickSymbol resolves the symbol from the envelope, falling back to the payload.
func tickSymbol(env envelope) (string, error) {
	if env.Tick == nil {
		return "", fmt.Errorf("tick: %w", errMissingPayload)
	}
	return resolveSymbol(env.Symbol, env.Tick.Symbol)
}

func bookSymbol(env envelope) (string, error) {
	if env.OrderBook == nil {
		return "", fmt.Errorf("orderbook: %w", errMissingPayload)
	}
	return resolveSymbol(env.Symbol, env.OrderBook.Symbol)
}

func resolveSymbol(outer, inner string) (string, error) {
	if s := strings.TrimSpace(outer); s != "" {
		return s, nil
	}
	if s := strings.TrimSpace(inner); s != "" {
		return s, nil
	}
	return "", errMissingSymbol
}
