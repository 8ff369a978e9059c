// Package dispatch implements the handler registry and per-connection
// intent serialization (component K, spec §4.8). Spec §4.8/§9 calls for
// "dynamic dispatch of handlers... modeled as a registry" rather than a
// switch statement in Room.router (session/room.go) — this is a
// deliberate redesign away from that switch, generalizing the
// single-goroutine-owns-state readPump idiom into an explicit per-
// connection worker queue feeding a map[string]Handler lookup.
package dispatch

import (
	"context"
	"sync"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/auth"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/signaling"
	"github.com/meshcall/controlplane/internal/validate"
)

// Handler processes one validated intent for a session. Handlers are
// responsible for their own response/broadcast shape (unicast vs.
// room-wide fan-out) per spec §4.9 — the dispatcher only routes and
// serializes.
type Handler interface {
	Handle(ctx context.Context, session *Session, intent signaling.Intent) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, session *Session, intent signaling.Intent) error

func (f HandlerFunc) Handle(ctx context.Context, session *Session, intent signaling.Intent) error {
	return f(ctx, session, intent)
}

// Registry maps intent-type strings to their Handler, built once at
// startup (spec §4.8: "one registration per type, established at build
// time").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates intentType with h. Registering the same type twice
// panics — a build-time error, not a runtime one, since the registry is
// populated once during server startup.
func (r *Registry) Register(intentType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[intentType]; exists {
		panic("dispatch: duplicate handler registration for intent type " + intentType)
	}
	r.handlers[intentType] = h
}

// Lookup returns the handler registered for intentType, if any.
func (r *Registry) Lookup(intentType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[intentType]
	return h, ok
}

// Session is the per-connection state handlers read and mutate: which
// participant (if any) this socket has become, which room it joined, and
// the credential grants extracted at join time. One Session exists per
// live signaling connection and is only ever touched by that
// connection's Worker goroutine plus whatever room-level locking the
// domain types themselves apply — it carries no lock of its own, because
// spec §5 guarantees intents from one connection never run concurrently
// with each other.
type Session struct {
	SocketID       string
	Conn           *signaling.Connection
	Credential     *auth.Credential
	ParticipantSid domain.ParticipantID
	RoomSid        domain.RoomID
	Joined         bool
}

// NewSession constructs a Session for a freshly-accepted connection,
// before any joinRoom intent has been processed.
func NewSession(socketID string, conn *signaling.Connection) *Session {
	return &Session{SocketID: socketID, Conn: conn}
}

// Worker serializes intent processing for exactly one connection: intents
// enqueued via Enqueue are validated then dispatched to their registered
// handler strictly in arrival order, matching spec §5's per-connection
// in-order guarantee. Enqueue blocks once the queue is full, applying
// backpressure to the connection's read loop rather than dropping or
// reordering intents.
type Worker struct {
	session  *Session
	registry *Registry
	queue    chan signaling.Intent
	done     chan struct{}
}

// DefaultQueueDepth bounds how many not-yet-processed intents one
// connection may have outstanding before its read loop blocks.
const DefaultQueueDepth = 64

// NewWorker constructs a Worker for session, dispatching against registry.
func NewWorker(session *Session, registry *Registry, queueDepth int) *Worker {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Worker{
		session:  session,
		registry: registry,
		queue:    make(chan signaling.Intent, queueDepth),
		done:     make(chan struct{}),
	}
}

// Enqueue hands intent to the worker, blocking if its queue is full.
// Safe to call after Stop: it then becomes a no-op (avoids a panic on
// send-to-closed-channel racing with a connection teardown).
func (w *Worker) Enqueue(intent signaling.Intent) {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.queue <- intent:
	case <-w.done:
	}
}

// Run processes queued intents until Stop is called. Intended to be run
// in its own goroutine, one per connection.
func (w *Worker) Run() {
	for {
		select {
		case <-w.done:
			return
		case intent := <-w.queue:
			w.process(intent)
		}
	}
}

// Stop ends Run's loop. Safe to call more than once.
func (w *Worker) Stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

func (w *Worker) process(intent signaling.Intent) {
	if err := validate.Validate(intent.Type, intent.Payload); err != nil {
		w.session.Conn.SendError(err)
		return
	}

	handler, ok := w.registry.Lookup(intent.Type)
	if !ok {
		w.session.Conn.SendError(apperror.New(apperror.InvalidRequest, "unrecognized intent type: "+intent.Type))
		return
	}

	if err := handler.Handle(context.Background(), w.session, intent); err != nil {
		w.session.Conn.SendError(err)
	}
}
