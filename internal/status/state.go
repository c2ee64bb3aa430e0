package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State represents the lifecycle state of the provider session.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Refreshing   State = "REFRESHING"
	Error        State = "ERROR"
)

// KindStatusChanged is the bus event kind published on every transition.
const KindStatusChanged = "session.status_changed"

// validTransitions defines allowed state transitions. AUTH_REQUIRED doubles
// as the signed-out state.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Ready, AuthRequired, Error},
	Ready:        {Refreshing, AuthRequired, Error},
	Refreshing:   {Ready, AuthRequired, Error},
	Error:        {Booting, Connecting, AuthRequired},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      KindStatusChanged,
			Timestamp: m.since,
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// TransitionIfNot moves to the target state unless already there. It is used by
// callers that may race into the same state from different paths.
func (m *Machine) TransitionIfNot(to State) error {
	if m.Current() == to {
		return nil
	}
	return m.Transition(to)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
