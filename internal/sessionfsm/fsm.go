// Package sessionfsm implements the per-connection session state machine
// (component H, spec §4.5), grounded on Client.GetRole/
// SetRole mutex-guarded-field idiom (internal/v1/transport/client.go),
// generalized from a bare field into a validated state machine with
// post-transition listener notification (the typed, synchronous,
// isolated-failure listener bus spec §9 calls for).
package sessionfsm

import (
	"sync"

	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/logging"
	"go.uber.org/zap"
)

// Event names the cause of a transition request.
type Event string

const (
	EventConnect    Event = "connect"
	EventJoined     Event = "joined"
	EventDisconnect Event = "disconnect"
	EventReconnect  Event = "reconnect"
	EventClose      Event = "close"
)

// transitions is the exact graph from spec §4.5. domain.ParticipantDisconnected
// plays the role of the "idle" state the spec names — a connection that
// exists but has not yet joined a room.
var transitions = map[domain.ConnectionState]map[Event]domain.ConnectionState{
	domain.ParticipantDisconnected: {
		EventConnect: domain.ParticipantJoining,
	},
	domain.ParticipantJoining: {
		EventJoined:     domain.ParticipantConnected,
		EventDisconnect: domain.ParticipantDisconnected,
		EventClose:      domain.ParticipantClosed,
	},
	domain.ParticipantConnected: {
		EventDisconnect: domain.ParticipantDisconnected,
		EventReconnect:  domain.ParticipantReconnecting,
		EventClose:      domain.ParticipantClosed,
	},
	domain.ParticipantReconnecting: {
		EventJoined:     domain.ParticipantConnected,
		EventDisconnect: domain.ParticipantDisconnected,
		EventClose:      domain.ParticipantClosed,
	},
	// domain.ParticipantClosed is terminal: no entry, every event rejected.
}

// Listener is notified synchronously after a valid transition.
type Listener func(from, to domain.ConnectionState, event Event)

// FSM is a single connection's session state machine.
type FSM struct {
	mu        sync.RWMutex
	state     domain.ConnectionState
	listeners []Listener
}

// New constructs an FSM starting in the disconnected ("idle") state.
func New() *FSM {
	return &FSM{state: domain.ParticipantDisconnected}
}

// State returns the current state.
func (f *FSM) State() domain.ConnectionState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// On registers a listener, returning a token Off can later use to remove
// it.
func (f *FSM) On(l Listener) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
	return len(f.listeners) - 1
}

// Off removes the listener previously returned by On. A negative or
// out-of-range token is a no-op.
func (f *FSM) Off(token int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token < 0 || token >= len(f.listeners) {
		return
	}
	f.listeners[token] = nil
}

// Fire attempts the transition named by event. It returns false and
// leaves the state unchanged if no such transition is defined from the
// current state (spec §4.5: "invalid transitions are logged and
// rejected"). On success, listeners are invoked synchronously in
// registration order with (from, to, event); a listener that panics is
// recovered and logged so it cannot block or corrupt delivery to the
// remaining listeners.
func (f *FSM) Fire(event Event) bool {
	f.mu.Lock()
	from := f.state
	to, ok := transitions[from][event]
	if !ok {
		f.mu.Unlock()
		logging.Warn(nil, "rejected invalid session transition",
			zap.String("from", string(from)), zap.String("event", string(event)))
		return false
	}
	f.state = to
	listeners := make([]Listener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	for _, l := range listeners {
		f.emit(l, from, to, event)
	}
	return true
}

func (f *FSM) emit(l Listener, from, to domain.ConnectionState, event Event) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error(nil, "session fsm listener panicked", zap.Any("recovered", r))
		}
	}()
	l(from, to, event)
}
