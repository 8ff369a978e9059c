package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meshcall/controlplane/internal/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWsConn satisfies signaling's unexported wsConn interface
// structurally, the same approach connection_test.go uses within the
// signaling package itself.
type fakeWsConn struct {
	mu       sync.Mutex
	outbound [][]byte
	inbound  chan []byte
}

func newFakeWsConn() *fakeWsConn { return &fakeWsConn{inbound: make(chan []byte, 4)} }

func (f *fakeWsConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return 0, nil, assert.AnError
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeWsConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.TextMessage {
		cp := make([]byte, len(data))
		copy(cp, data)
		f.outbound = append(f.outbound, cp)
	}
	return nil
}

func (f *fakeWsConn) Close() error                        { return nil }
func (f *fakeWsConn) SetWriteDeadline(t time.Time) error   { return nil }
func (f *fakeWsConn) SetReadDeadline(t time.Time) error    { return nil }
func (f *fakeWsConn) SetPongHandler(h func(string) error)  {}

func (f *fakeWsConn) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbound))
	copy(out, f.outbound)
	return out
}

func newTestSession(t *testing.T) (*Session, *fakeWsConn) {
	t.Helper()
	fc := newFakeWsConn()
	conn := signaling.NewConnection(fc, "sock-1", 8, time.Hour)
	go conn.WritePump()
	t.Cleanup(func() { conn.Close("test done") })
	return NewSession("sock-1", conn), fc
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	r.Register("leaveRoom", HandlerFunc(func(ctx context.Context, s *Session, i signaling.Intent) error { return nil }))
	assert.Panics(t, func() {
		r.Register("leaveRoom", HandlerFunc(func(ctx context.Context, s *Session, i signaling.Intent) error { return nil }))
	})
}

func TestWorker_DispatchesInOrder(t *testing.T) {
	r := NewRegistry()
	var order []int
	var mu sync.Mutex
	r.Register("leaveRoom", HandlerFunc(func(ctx context.Context, s *Session, i signaling.Intent) error {
		mu.Lock()
		order = append(order, i.Payload["seq"].(int))
		mu.Unlock()
		return nil
	}))

	session, _ := newTestSession(t)
	w := NewWorker(session, r, 8)
	go w.Run()
	defer w.Stop()

	for i := 0; i < 5; i++ {
		w.Enqueue(signaling.Intent{Type: "leaveRoom", Payload: map[string]any{"seq": i}})
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestWorker_UnrecognizedIntentSendsError(t *testing.T) {
	r := NewRegistry()
	session, fc := newTestSession(t)

	w := NewWorker(session, r, 8)
	w.process(signaling.Intent{Type: "doesNotExist", Payload: map[string]any{}})

	require.Eventually(t, func() bool { return len(fc.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Contains(t, string(fc.snapshot()[0]), `"type":"error"`)
}

func TestWorker_FailsValidationNeverReachesHandler(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("startCall", HandlerFunc(func(ctx context.Context, s *Session, i signaling.Intent) error {
		called = true
		return nil
	}))
	session, fc := newTestSession(t)
	w := NewWorker(session, r, 8)

	w.process(signaling.Intent{Type: "startCall", Payload: map[string]any{}})

	assert.False(t, called)
	require.Eventually(t, func() bool { return len(fc.snapshot()) == 1 }, time.Second, time.Millisecond)
}

func TestWorker_EnqueueAfterStopIsNoop(t *testing.T) {
	r := NewRegistry()
	session, _ := newTestSession(t)
	w := NewWorker(session, r, 1)
	w.Stop()

	done := make(chan struct{})
	go func() {
		w.Enqueue(signaling.Intent{Type: "leaveRoom"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked after Stop")
	}
}
