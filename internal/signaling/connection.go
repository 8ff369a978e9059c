// Package signaling implements the signaling transport (component I,
// spec §4.6): UTF-8 JSON text frames over WebSocket, a 30s-default
// heartbeat that closes a peer silent past 2×T_ping, and a per-connection
// FIFO outbound send queue.
//
// Grounded on session/client.go (wsConnection interface,
// buffered send channel, readPump/writePump goroutine pair, write-deadline
// discipline) with protobuf framing (`pb.WebSocketMessage`/
// `proto.Marshal`) replaced by JSON per spec §4.6, and gorilla/websocket
// ping/pong wired in to satisfy a heartbeat contract client.go does not
// itself implement.
package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/logging"
	"go.uber.org/zap"
)

// DefaultPingInterval matches spec §4.6's T_ping default of 30s.
const DefaultPingInterval = 30 * time.Second

const writeWait = 10 * time.Second

// wsConn is the subset of *websocket.Conn the Connection needs —
// mirrors wsConnection interface, extended with the pong
// handler and read deadline gorilla/websocket needs for heartbeat.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Intent is a decoded inbound frame: {type, ...fields} per spec §4.6.
type Intent struct {
	Type    string
	Payload map[string]any
}

// DecodeFrame parses a raw JSON text frame into an Intent.
func DecodeFrame(data []byte) (Intent, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Intent{}, apperror.Wrap(apperror.InvalidRequest, "malformed JSON frame", err)
	}
	typ, ok := payload["type"].(string)
	if !ok || typ == "" {
		return Intent{}, apperror.New(apperror.InvalidRequest, "frame missing string \"type\" field")
	}
	return Intent{Type: typ, Payload: payload}, nil
}

// errorFrame is the wire shape of a server-originated error (spec §4.6).
type errorFrame struct {
	Type  string      `json:"type"`
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Connection wraps one WebSocket connection with a FIFO outbound send
// queue and the heartbeat contract. It implements internal/fanout.Sink.
type Connection struct {
	conn         wsConn
	socketID     string
	pingInterval time.Duration

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps conn. qMax bounds the outbound queue (spec §4.10's
// Q_max governs when the fan-out engine gives up on a slow consumer;
// here it just sizes the buffer Send writes into non-blockingly).
func NewConnection(conn wsConn, socketID string, qMax int, pingInterval time.Duration) *Connection {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Connection{
		conn:         conn,
		socketID:     socketID,
		pingInterval: pingInterval,
		send:         make(chan []byte, qMax),
		closed:       make(chan struct{}),
	}
}

// SocketID implements fanout.Sink.
func (c *Connection) SocketID() string { return c.socketID }

// Send implements fanout.Sink: a non-blocking FIFO enqueue. Returns false
// if the queue is already full (the fan-out engine's cue to close this
// connection as a slow consumer) or already closed.
func (c *Connection) Send(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendError writes a {type:"error", error:{code, message}} frame built
// from err's apperror.Kind/Code.
func (c *Connection) SendError(err error) {
	frame := errorFrame{Type: "error", Error: errorDetail{Code: apperror.CodeOf(err), Message: err.Error()}}
	data, marshalErr := json.Marshal(frame)
	if marshalErr != nil {
		logging.Error(nil, "failed to marshal error frame", zap.Error(marshalErr))
		return
	}
	c.Send(data)
}

// Close implements fanout.Sink. Safe to call more than once or
// concurrently with Send/WritePump/ReadPump. Does not close the send
// channel — Send stays guarded solely by c.closed, so a Send racing a
// concurrent Close can never land on a closed channel.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		if reason != "" {
			logging.Info(nil, "closing signaling connection", zap.String("socketId", c.socketID), zap.String("reason", reason))
		}
	})
}

// WritePump drains the send queue to the underlying connection and pings
// on pingInterval. Runs until c.closed fires or a write fails; always
// closes the underlying connection on return.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads frames until the connection errors or goes silent past
// 2×pingInterval (spec §4.6), decoding each into an Intent and handing it
// to handle. A malformed frame yields an error frame to the sender and
// does not terminate the connection. onDisconnect, if non-nil, runs
// exactly once before the connection is torn down.
func (c *Connection) ReadPump(handle func(Intent), onDisconnect func()) {
	defer func() {
		if onDisconnect != nil {
			onDisconnect()
		}
		c.Close("read loop ended")
	}()

	silenceLimit := 2 * c.pingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(silenceLimit))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(silenceLimit))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(silenceLimit))

		intent, err := DecodeFrame(data)
		if err != nil {
			c.SendError(err)
			continue
		}
		handle(intent)
	}
}
