package router

import (
	"sync"

	"github.com/rickgao/quote-stream/internal/model"
)

// DefaultQueueCapacity is the per-symbol queue bound.
const DefaultQueueCapacity = 10

// CoalescingBuffer collects ticks per symbol and hands the latest tick of
// each symbol to a consumer at most once per scheduled frame.
//
// A symbol queue never holds more than capacity ticks. When an add would
// exceed it, the queue is replaced by the new tick alone.
type CoalescingBuffer struct {
	mu       sync.Mutex
	capacity int
	sched    Scheduler
	consumer BatchFunc

	queues  map[string][]model.Tick
	dirty   []string // Symbols with a non-empty queue, in first-add order
	queued  int
	pending bool // A flush is scheduled and has not yet run

	// Stats
	added     int64
	dropped   int64
	flushes   int64
	scheduled int64
}

// NewCoalescingBuffer creates a buffer that delivers batches to consumer
// through sched. consumer may be nil.
func NewCoalescingBuffer(capacity int, sched Scheduler, consumer BatchFunc) *CoalescingBuffer {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &CoalescingBuffer{
		capacity: capacity,
		sched:    sched,
		consumer: consumer,
		queues:   make(map[string][]model.Tick),
	}
}

// Add queues tick for symbol and schedules a flush if none is pending.
func (b *CoalescingBuffer) Add(symbol string, tick model.Tick) {
	b.mu.Lock()

	q, ok := b.queues[symbol]
	if !ok || len(q) == 0 {
		b.dirty = append(b.dirty, symbol)
	}

	if len(q) >= b.capacity {
		b.dropped += int64(len(q))
		b.queued -= len(q)
		q = q[:0]
	}
	b.queues[symbol] = append(q, tick)
	b.queued++
	b.added++

	schedule := !b.pending
	if schedule {
		b.pending = true
		b.scheduled++
	}
	b.mu.Unlock()

	if schedule {
		b.sched.ScheduleOnce(b.flush)
	}
}

// flush delivers the newest tick of every symbol with pending data and
// empties the queues. It does nothing when no data is pending.
func (b *CoalescingBuffer) flush() {
	b.mu.Lock()
	b.pending = false

	if len(b.dirty) == 0 {
		b.mu.Unlock()
		return
	}

	batch := make(map[string]model.Tick, len(b.dirty))
	for _, symbol := range b.dirty {
		q := b.queues[symbol]
		if len(q) == 0 {
			continue
		}
		batch[symbol] = q[len(q)-1]
		b.queues[symbol] = q[:0]
	}
	b.dirty = b.dirty[:0]
	b.queued = 0
	b.flushes++
	consumer := b.consumer
	b.mu.Unlock()

	if consumer != nil && len(batch) > 0 {
		consumer(batch)
	}
}

// Size returns the number of ticks currently queued across all symbols.
func (b *CoalescingBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queued
}

// Clear discards all queued ticks. A flush that is already scheduled still
// runs and finds nothing to deliver.
func (b *CoalescingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queues = make(map[string][]model.Tick)
	b.dirty = nil
	b.queued = 0
}

// Stats returns buffer statistics.
func (b *CoalescingBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Queued:    b.queued,
		Symbols:   len(b.dirty),
		Added:     b.added,
		Dropped:   b.dropped,
		Flushes:   b.flushes,
		Scheduled: b.scheduled,
	}
}
