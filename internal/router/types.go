package router

import (
	"time"

	"github.com/rickgao/quote-stream/internal/model"
)

// RouterConfig holds configuration for the buffering stage. Zero values fall
// back to DefaultQueueCapacity and DefaultFrameInterval.
type RouterConfig struct {
	QueueCapacity int           // Per-symbol tick queue
	FlushInterval time.Duration // Frame interval
}

// Message types carried in the envelope "type" field.
const (
	TypeTick      = "tick"
	TypeOrderBook = "orderbook"
	TypePong      = "pong"
)

// DataSink receives routed market data.
type DataSink interface {
	// ApplySnapshot delivers one order book, uncoalesced.
	ApplySnapshot(symbol string, book model.OrderBook)

	// ApplyBatch delivers the latest tick per symbol for one frame.
	ApplyBatch(batch map[string]model.Tick)
}

// BatchFunc consumes one coalesced batch.
type BatchFunc func(batch map[string]model.Tick)

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	Ticks            int64
	Snapshots        int64
	Pongs            int64
	UnknownMessages  int64
	ParseErrors      int64
	Buffer           BufferStats
}

// BufferStats contains coalescing buffer statistics.
type BufferStats struct {
	Queued    int   // Ticks currently queued across all symbols
	Symbols   int   // Symbols with pending data
	Added     int64
	Dropped   int64 // Ticks discarded by the overflow policy
	Flushes   int64 // Flushes that delivered a batch
	Scheduled int64
}

// Wire types for JSON parsing

// envelope is the inbound frame shape. Only the payload matching Type is set.
type envelope struct {
	Type      string           `json:"type"`
	Symbol    string           `json:"symbol"`
	Tick      *model.Tick      `json:"tick"`
	OrderBook *model.OrderBook `json:"orderbook"`
}
