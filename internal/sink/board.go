package sink

import (
	"sort"
	"sync"

	"github.com/rickgao/quote-stream/internal/model"
)

// BoardStats contains board statistics.
type BoardStats struct {
	Batches      int64
	TicksApplied int64
	Snapshots    int64
	Symbols      int
}

// Board keeps the latest tick and order book per symbol. It satisfies
// router.DataSink.
type Board struct {
	mu      sync.RWMutex
	ticks   map[string]model.Tick
	books   map[string]model.OrderBook
	onBatch []func(map[string]model.Tick)
	stats   BoardStats
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		ticks: make(map[string]model.Tick),
		books: make(map[string]model.OrderBook),
	}
}

// ApplyBatch merges one coalesced batch into the board.
func (b *Board) ApplyBatch(batch map[string]model.Tick) {
	b.mu.Lock()
	for symbol, tick := range batch {
		if tick.Symbol == "" {
			tick.Symbol = symbol
		}
		b.ticks[symbol] = tick
	}
	b.stats.Batches++
	b.stats.TicksApplied += int64(len(batch))
	listeners := b.onBatch
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(batch)
	}
}

// ApplySnapshot replaces the order book for symbol.
func (b *Board) ApplySnapshot(symbol string, book model.OrderBook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.books[symbol] = book
	b.stats.Snapshots++
}

// OnBatch registers fn to receive every batch after it is applied.
func (b *Board) OnBatch(fn func(map[string]model.Tick)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBatch = append(b.onBatch, fn)
}

// Tick returns the latest tick for symbol.
func (b *Board) Tick(symbol string) (model.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.ticks[symbol]
	return t, ok
}

// Book returns the latest order book for symbol.
func (b *Board) Book(symbol string) (model.OrderBook, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	book, ok := b.books[symbol]
	return book, ok
}

// Ticks returns the latest tick of every symbol, sorted by symbol.
func (b *Board) Ticks() []model.Tick {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Tick, 0, len(b.ticks))
	for _, t := range b.ticks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Forget drops everything held for symbol.
func (b *Board) Forget(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ticks, symbol)
	delete(b.books, symbol)
}

// Stats returns board statistics.
func (b *Board) Stats() BoardStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.stats
	s.Symbols = len(b.ticks)
	return s
}
