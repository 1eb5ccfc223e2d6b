package connection

// StateMachine holds the connection lifecycle state.
//
// It does no I/O and no locking; the owning StreamClient serializes access.
type StateMachine struct {
	current  State
	observer func(State)
}

// NewStateMachine returns a machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	return m.current
}

// Transition moves to next and notifies the observer.
// Returns false without notifying when next equals the current state.
func (m *StateMachine) Transition(next State) bool {
	if next == m.current {
		return false
	}
	m.current = next
	if m.observer != nil {
		m.observer(next)
	}
	return true
}

// OnChange registers the single observer, replacing any previous one.
// Passing nil removes it.
func (m *StateMachine) OnChange(fn func(State)) {
	m.observer = fn
}

// IsBusy reports whether a connection is in flight or established.
func (m *StateMachine) IsBusy() bool {
	switch m.current {
	case StateConnecting, StateOpen, StateReconnecting:
		return true
	}
	return false
}
