package signaling

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWsConn struct {
	mu       sync.Mutex
	outbound [][]byte
	inbound  chan []byte
	closed   bool
	pongFn   func(string) error
}

func newFakeWsConn() *fakeWsConn {
	return &fakeWsConn{inbound: make(chan []byte, 16)}
}

func (f *fakeWsConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
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

func (f *fakeWsConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWsConn) SetWriteDeadline(t time.Time) error { return nil }
func (f *fakeWsConn) SetReadDeadline(t time.Time) error   { return nil }
func (f *fakeWsConn) SetPongHandler(h func(string) error) { f.pongFn = h }

func (f *fakeWsConn) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbound))
	copy(out, f.outbound)
	return out
}

func TestDecodeFrame_ValidAndInvalid(t *testing.T) {
	intent, err := DecodeFrame([]byte(`{"type":"joinRoom","room":"alpha"}`))
	require.NoError(t, err)
	assert.Equal(t, "joinRoom", intent.Type)
	assert.Equal(t, "alpha", intent.Payload["room"])

	_, err = DecodeFrame([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"room":"alpha"}`))
	assert.Error(t, err)
}

func TestConnection_SendEnqueuesFIFO(t *testing.T) {
	fc := newFakeWsConn()
	conn := NewConnection(fc, "sock-1", 8, time.Hour)

	assert.True(t, conn.Send([]byte("a")))
	assert.True(t, conn.Send([]byte("b")))

	go conn.WritePump()
	time.Sleep(20 * time.Millisecond)
	conn.Close("test done")

	out := fc.snapshot()
	require.Len(t, out, 2)
	assert.Equal(t, "a", string(out[0]))
	assert.Equal(t, "b", string(out[1]))
}

func TestConnection_SendReturnsFalseWhenQueueFull(t *testing.T) {
	fc := newFakeWsConn()
	conn := NewConnection(fc, "sock-1", 1, time.Hour)

	assert.True(t, conn.Send([]byte("a")))
	assert.False(t, conn.Send([]byte("b")))
}

func TestConnection_SendErrorWritesErrorFrame(t *testing.T) {
	fc := newFakeWsConn()
	conn := NewConnection(fc, "sock-1", 8, time.Hour)

	conn.SendError(assert.AnError)
	go conn.WritePump()
	time.Sleep(20 * time.Millisecond)
	conn.Close("")

	out := fc.snapshot()
	require.Len(t, out, 1)
	assert.Contains(t, string(out[0]), `"type":"error"`)
}

func TestConnection_ReadPumpDispatchesIntents(t *testing.T) {
	fc := newFakeWsConn()
	conn := NewConnection(fc, "sock-1", 8, time.Hour)

	var got []Intent
	var mu sync.Mutex
	done := make(chan struct{})

	go conn.ReadPump(func(i Intent) {
		mu.Lock()
		got = append(got, i)
		mu.Unlock()
	}, func() { close(done) })

	fc.inbound <- []byte(`{"type":"leaveRoom"}`)
	time.Sleep(20 * time.Millisecond)
	close(fc.inbound)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "leaveRoom", got[0].Type)
}

func TestConnection_ReadPumpSurvivesMalformedFrame(t *testing.T) {
	fc := newFakeWsConn()
	conn := NewConnection(fc, "sock-1", 8, time.Hour)

	handled := 0
	done := make(chan struct{})
	go conn.ReadPump(func(i Intent) { handled++ }, func() { close(done) })

	fc.inbound <- []byte(`not json at all`)
	fc.inbound <- []byte(`{"type":"leaveRoom"}`)
	time.Sleep(20 * time.Millisecond)
	close(fc.inbound)
	<-done

	assert.Equal(t, 1, handled)
}
