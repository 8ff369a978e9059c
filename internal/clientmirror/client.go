// Package clientmirror implements the client-side mirror (component O,
// spec §4.12): a Session state machine identical to the server's, a
// signaling client that sends intents and dispatches server responses to
// registered message-kind handlers, a media-engine client adapter that
// hides producer/consumer/transport plumbing behind intent-level
// operations, and the reconnect-reconciliation contract between
// optimistic local state and server-confirmed state.
//
// The source repo has no client-side Go package (its clients are
// browser JS talking to the transport package's server-side Client), so
// this component is built by running the server-side idioms in reverse:
// internal/signaling's Connection already frames/deframes JSON the same
// way on both ends, so the client reuses it directly rather than
// reimplementing framing; internal/sessionfsm's FSM is the same state
// machine on both ends (spec §4.12 "identical to the server's"); and
// reconnection uses internal/resilience's RetryConnect, component N's
// exponential-backoff helper, whose only caller is this client's Connect.
package clientmirror

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/fanout"
	"github.com/meshcall/controlplane/internal/resilience"
	"github.com/meshcall/controlplane/internal/sessionfsm"
	"github.com/meshcall/controlplane/internal/signaling"
	"github.com/meshcall/controlplane/internal/logging"
	"go.uber.org/zap"
)

// MessageHandler processes one decoded server-originated message, keyed
// by its "type" field.
type MessageHandler func(payload map[string]any)

// SignalingClient is the client-side half of internal/signaling's wire
// protocol: it dials the server, sends intents, and dispatches inbound
// frames to handlers registered by message type.
type SignalingClient struct {
	url    string
	dialer *websocket.Dialer

	fsm *sessionfsm.FSM

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	conn     *signaling.Connection
}

// NewSignalingClient constructs a client targeting serverURL (a ws:// or
// wss:// URL), starting in the disconnected state.
func NewSignalingClient(serverURL string) *SignalingClient {
	return &SignalingClient{
		url:      serverURL,
		dialer:   websocket.DefaultDialer,
		fsm:      sessionfsm.New(),
		handlers: make(map[string]MessageHandler),
	}
}

// On registers the handler invoked for every inbound message of the
// given type, replacing any previously registered handler for it.
func (c *SignalingClient) On(messageType string, h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[messageType] = h
}

// State returns the client's current session state.
func (c *SignalingClient) State() domain.ConnectionState {
	return c.fsm.State()
}

// Connect dials the server with exponential backoff (spec §4.11's retry
// tuning, reused here per spec §4.12), then starts the read/write pumps.
// maxElapsed bounds total retry time; zero means retry until ctx is done.
func (c *SignalingClient) Connect(ctx context.Context, maxElapsed time.Duration) error {
	var raw *websocket.Conn
	err := resilience.RetryConnect(ctx, maxElapsed, func() error {
		conn, _, dialErr := c.dialer.DialContext(ctx, c.url, nil)
		if dialErr != nil {
			return dialErr
		}
		raw = conn
		return nil
	})
	if err != nil {
		return err
	}

	c.fsm.Fire(sessionfsm.EventConnect)

	conn := signaling.NewConnection(raw, "self", fanout.DefaultQMax, signaling.DefaultPingInterval)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go conn.WritePump()
	go conn.ReadPump(c.dispatch, c.handleDisconnect)
	return nil
}

// Reconnect re-dials after a transient disconnect (spec §4.12 "on
// transient signaling disconnect, the client enters reconnecting,
// reconnects with backoff"), then invokes onReconnected — typically a
// call to Reconcile — once the new connection is live.
func (c *SignalingClient) Reconnect(ctx context.Context, maxElapsed time.Duration, onReconnected func()) error {
	if !c.fsm.Fire(sessionfsm.EventReconnect) {
		return nil
	}
	if err := c.Connect(ctx, maxElapsed); err != nil {
		return err
	}
	if onReconnected != nil {
		onReconnected()
	}
	return nil
}

// JoinedRoom records that a joinRoom round-trip completed, transitioning
// the session out of joining/reconnecting into connected.
func (c *SignalingClient) JoinedRoom() {
	c.fsm.Fire(sessionfsm.EventJoined)
}

func (c *SignalingClient) handleDisconnect() {
	c.fsm.Fire(sessionfsm.EventDisconnect)
}

func (c *SignalingClient) dispatch(intent signaling.Intent) {
	c.mu.RLock()
	h, ok := c.handlers[intent.Type]
	c.mu.RUnlock()
	if !ok {
		logging.Warn(nil, "no client handler registered for message type", zap.String("type", intent.Type))
		return
	}
	h(intent.Payload)
}

// SendIntent marshals {type: intentType, ...payload} and enqueues it on
// the outbound queue, mirroring the wire shape internal/signaling
// decodes server-side.
func (c *SignalingClient) SendIntent(intentType string, payload map[string]any) bool {
	frame := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		frame[k] = v
	}
	frame["type"] = intentType

	data, err := json.Marshal(frame)
	if err != nil {
		logging.Error(nil, "failed to marshal outbound intent", zap.Error(err))
		return false
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return false
	}
	return conn.Send(data)
}

// Close tears down the underlying connection, if any.
func (c *SignalingClient) Close() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		conn.Close("client closed")
	}
}
