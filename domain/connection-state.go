package domain

import "sync"

type ConnectionState string

const (
	StateDisconnected   ConnectionState = "disconnected"
	StateConnecting     ConnectionState = "connecting"
	StateAuthenticating ConnectionState = "authenticating"
	StateSubscribing    ConnectionState = "subscribing"
	StateConnected      ConnectionState = "connected"
	StateReconnecting   ConnectionState = "reconnecting"
	StateClosed         ConnectionState = "closed"
)

var AllConnectionStates = []ConnectionState{
	StateDisconnected,
	StateConnecting,
	StateAuthenticating,
	StateSubscribing,
	StateConnected,
	StateReconnecting,
	StateClosed,
}

var transitions = map[ConnectionState][]ConnectionState{
	StateDisconnected:   {StateConnecting},
	StateConnecting:     {StateAuthenticating, StateSubscribing, StateReconnecting},
	StateAuthenticating: {StateSubscribing, StateReconnecting},
	StateSubscribing:    {StateConnected, StateReconnecting},
	StateConnected:      {StateReconnecting},
	StateReconnecting:   {StateConnecting},
}

func (s ConnectionState) String() string { return string(s) }

// CanTransitionTo reports whether next may follow s. Every state except closed may move to closed.
func (s ConnectionState) CanTransitionTo(next ConnectionState) bool {
	if s == StateClosed {
		return false
	}
	if next == StateClosed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StateMachine serializes connection state transitions.
type StateMachine struct {
	mu       sync.RWMutex
	state    ConnectionState
	onChange func(from, to ConnectionState)
}

func NewStateMachine(onChange func(from, to ConnectionState)) *StateMachine {
	return &StateMachine{state: StateDisconnected, onChange: onChange}
}

func (m *StateMachine) Current() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *StateMachine) Transition(to ConnectionState) error {
	m.mu.Lock()
	from := m.state
	if !from.CanTransitionTo(to) {
		m.mu.Unlock()
		return Newf(ErrCodeInvalidTransition, "cannot move from %s to %s", from, to)
	}
	m.state = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}
