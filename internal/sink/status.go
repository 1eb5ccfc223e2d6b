package sink

import (
	"sync"

	"github.com/rickgao/quote-stream/internal/connection"
)

// StatusStore keeps the most recent connection status.
type StatusStore struct {
	mu        sync.RWMutex
	latest    connection.ConnectionStatus
	updates   int64
	listeners []func(connection.ConnectionStatus)
}

// NewStatusStore creates an empty store reporting StateIdle.
func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

// ApplyStatus records status and notifies listeners when the state changed.
func (s *StatusStore) ApplyStatus(status connection.ConnectionStatus) {
	s.mu.Lock()
	changed := s.updates == 0 || s.latest.State != status.State
	s.latest = status
	s.updates++
	listeners := s.listeners
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(status)
	}
}

// OnStateChange registers fn to run whenever the published state differs
// from the previous one.
func (s *StatusStore) OnStateChange(fn func(connection.ConnectionStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Latest returns a copy of the last status applied.
func (s *StatusStore) Latest() connection.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Updates returns the number of statuses applied.
func (s *StatusStore) Updates() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// MultiStatus fans a status out to several sinks in order.
type MultiStatus []connection.StatusSink

// ApplyStatus forwards status to every non-nil sink.
func (m MultiStatus) ApplyStatus(status connection.ConnectionStatus) {
	for _, s := range m {
		if s != nil {
			s.ApplyStatus(status)
		}
	}
}
