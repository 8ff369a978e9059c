package sessionfsm

import (
	"testing"

	"github.com/meshcall/controlplane/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFSM_HappyPathLifecycle(t *testing.T) {
	f := New()
	assert.Equal(t, domain.ParticipantDisconnected, f.State())

	assert.True(t, f.Fire(EventConnect))
	assert.Equal(t, domain.ParticipantJoining, f.State())

	assert.True(t, f.Fire(EventJoined))
	assert.Equal(t, domain.ParticipantConnected, f.State())

	assert.True(t, f.Fire(EventReconnect))
	assert.Equal(t, domain.ParticipantReconnecting, f.State())

	assert.True(t, f.Fire(EventJoined))
	assert.Equal(t, domain.ParticipantConnected, f.State())

	assert.True(t, f.Fire(EventClose))
	assert.Equal(t, domain.ParticipantClosed, f.State())
}

func TestFSM_InvalidTransitionRejectedWithoutStateChange(t *testing.T) {
	f := New()
	// idle has no "joined" transition defined.
	assert.False(t, f.Fire(EventJoined))
	assert.Equal(t, domain.ParticipantDisconnected, f.State())
}

func TestFSM_ClosedIsTerminal(t *testing.T) {
	f := New()
	f.Fire(EventConnect)
	f.Fire(EventClose)
	require := assert.New(t)
	require.Equal(domain.ParticipantClosed, f.State())

	for _, e := range []Event{EventConnect, EventJoined, EventDisconnect, EventReconnect, EventClose} {
		require.False(f.Fire(e), "no event should be accepted from closed")
	}
	require.Equal(domain.ParticipantClosed, f.State())
}

func TestFSM_DisconnectFromConnectedReturnsToIdle(t *testing.T) {
	f := New()
	f.Fire(EventConnect)
	f.Fire(EventJoined)
	assert.True(t, f.Fire(EventDisconnect))
	assert.Equal(t, domain.ParticipantDisconnected, f.State())
}

func TestFSM_ListenersNotifiedPostTransitionWithFromToEvent(t *testing.T) {
	f := New()
	type transitionLog struct {
		from, to domain.ConnectionState
		event    Event
	}
	var got []transitionLog
	f.On(func(from, to domain.ConnectionState, event Event) {
		got = append(got, transitionLog{from, to, event})
	})

	f.Fire(EventConnect)
	f.Fire(EventJoined)

	assert.Equal(t, []transitionLog{
		{domain.ParticipantDisconnected, domain.ParticipantJoining, EventConnect},
		{domain.ParticipantJoining, domain.ParticipantConnected, EventJoined},
	}, got)
}

func TestFSM_ListenerNotNotifiedOnRejectedTransition(t *testing.T) {
	f := New()
	called := false
	f.On(func(from, to domain.ConnectionState, event Event) { called = true })

	f.Fire(EventJoined) // invalid from idle
	assert.False(t, called)
}

func TestFSM_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	f := New()
	secondCalled := false
	f.On(func(from, to domain.ConnectionState, event Event) { panic("boom") })
	f.On(func(from, to domain.ConnectionState, event Event) { secondCalled = true })

	assert.NotPanics(t, func() { f.Fire(EventConnect) })
	assert.True(t, secondCalled)
}

func TestFSM_OffRemovesListener(t *testing.T) {
	f := New()
	calls := 0
	token := f.On(func(from, to domain.ConnectionState, event Event) { calls++ })
	f.Off(token)

	f.Fire(EventConnect)
	assert.Equal(t, 0, calls)
}
