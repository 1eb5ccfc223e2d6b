package router

import (
	"context"
	"sync"
	"time"
)

// DefaultFrameInterval is roughly one display frame at 60 Hz.
const DefaultFrameInterval = 16 * time.Millisecond

// Scheduler runs fn once at the next frame boundary.
type Scheduler interface {
	ScheduleOnce(fn func())
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func())

// ScheduleOnce calls f(fn).
func (f SchedulerFunc) ScheduleOnce(fn func()) { f(fn) }

// FrameScheduler runs queued callbacks on a fixed-interval ticker.
type FrameScheduler struct {
	interval time.Duration

	mu      sync.Mutex
	queue   []func()
	frames  int64
	running bool
}

// NewFrameScheduler creates a scheduler ticking every interval.
func NewFrameScheduler(interval time.Duration) *FrameScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &FrameScheduler{interval: interval}
}

// ScheduleOnce queues fn for the next frame.
func (s *FrameScheduler) ScheduleOnce(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
}

// Run executes every callback queued since the previous frame, once per
// tick, until ctx is cancelled.
func (s *FrameScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errSchedulerRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one frame immediately. Callbacks queued while the frame runs
// wait for the next one.
func (s *FrameScheduler) Tick() {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.frames++
	s.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}

// Pending returns the number of callbacks waiting for the next frame.
func (s *FrameScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Frames returns the number of frames run.
func (s *FrameScheduler) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
