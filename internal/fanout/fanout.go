// Package fanout implements the fan-out engine (component M, spec
// §4.10): broadcast(room, message, excludeSocketId?) over a room's
// current participants, snapshotting membership under the room lock then
// releasing it before any write, with a slow-consumer-close policy once a
// sink's outbound queue backs up past Q_max.
//
// Grounded directly on session/room.go broadcast/
// broadcastWithOptions/broadcastToClientMap (marshal once, non-blocking
// per-client channel send via select/default) generalized from a
// role-set filter to a single exclude-by-socket-id parameter,
// since this domain has no role hierarchy to filter on at the transport
// layer (spec §4.10 only mentions exclusion, not per-role delivery).
package fanout

import (
	"encoding/json"
	"sync"

	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/logging"
	"go.uber.org/zap"
)

// DefaultQMax matches spec §4.10's Q_max default of 1024.
const DefaultQMax = 1024

// Sink is a live connection's outbound side — implemented by
// internal/signaling's per-connection send queue. Send is non-blocking:
// it reports false if the queue was already full, at which point the
// Engine closes the connection rather than letting it fall further
// behind (spec §4.10's slow-consumer-close policy).
type Sink interface {
	SocketID() string
	Send(payload []byte) bool
	Close(reason string)
}

// Engine is the fan-out engine: a registry of live sinks keyed by socket
// id, independent of domain.Room (which holds only sids, per spec §9's
// cyclic-ownership break) and of any specific Participant.
type Engine struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewEngine constructs an empty Engine.
func NewEngine() *Engine {
	return &Engine{sinks: make(map[string]Sink)}
}

// Register associates a live sink with its socket id so future
// broadcasts can reach it.
func (e *Engine) Register(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks[sink.SocketID()] = sink
}

// Unregister removes a sink, typically once its connection has closed.
func (e *Engine) Unregister(socketID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sinks, socketID)
}

// Broadcast marshals message once and writes it to every participant
// currently in room, except excludeSocketID (pass "" to exclude no one).
// Participant membership is snapshotted under the room's own lock via
// Participants(), which has already released the lock by the time this
// function starts writing — no room lock is held across any sink write.
func (e *Engine) Broadcast(room *domain.Room, message any, excludeSocketID string) {
	raw, err := json.Marshal(message)
	if err != nil {
		logging.Error(nil, "failed to marshal broadcast message", zap.Error(err))
		return
	}

	participants := room.Participants()

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range participants {
		socketID := p.SocketID
		if socketID == "" || socketID == excludeSocketID {
			continue
		}
		sink, ok := e.sinks[socketID]
		if !ok {
			continue
		}
		if !sink.Send(raw) {
			logging.Warn(nil, "closing slow consumer", zap.String("socketId", socketID))
			go sink.Close("slow consumer: outbound queue exceeded capacity")
		}
	}
}

// Unicast writes message to exactly one registered socket, used by
// handlers that must respond only to the intent's originator (e.g.
// roomJoined, callStarted) rather than broadcast to the room.
func (e *Engine) Unicast(socketID string, message any) bool {
	raw, err := json.Marshal(message)
	if err != nil {
		logging.Error(nil, "failed to marshal unicast message", zap.Error(err))
		return false
	}

	e.mu.RLock()
	sink, ok := e.sinks[socketID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	if !sink.Send(raw) {
		go sink.Close("slow consumer: outbound queue exceeded capacity")
		return false
	}
	return true
}
