package domain

import (
	"testing"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParticipant(identity string) *Participant {
	return NewParticipant(DefaultIDGenerator.NewParticipantID(), identity, identity, nil, Permissions{MayPublish: true, MaySubscribe: true, MayPublishData: true})
}

func TestRoomAddParticipant_CapacityInvariant(t *testing.T) {
	max := 2
	room := NewRoom(DefaultIDGenerator.NewRoomID(), "alpha", nil, &max)

	require.NoError(t, room.AddParticipant(newTestParticipant("alice")))
	require.NoError(t, room.AddParticipant(newTestParticipant("bob")))

	err := room.AddParticipant(newTestParticipant("carol"))
	require.Error(t, err)
	assert.Equal(t, apperror.RoomFull, apperror.KindOf(err))
	assert.Equal(t, 2, room.NumParticipants())
}

func TestRoomAddParticipant_DuplicateIdentityRejected(t *testing.T) {
	room := NewRoom(DefaultIDGenerator.NewRoomID(), "alpha", nil, nil)
	require.NoError(t, room.AddParticipant(newTestParticipant("alice")))

	err := room.AddParticipant(newTestParticipant("alice"))
	require.Error(t, err)
}

func TestRoomRemoveParticipant(t *testing.T) {
	room := NewRoom(DefaultIDGenerator.NewRoomID(), "alpha", nil, nil)
	alice := newTestParticipant("alice")
	require.NoError(t, room.AddParticipant(alice))

	removed, ok := room.RemoveParticipant(alice.Sid)
	require.True(t, ok)
	assert.Equal(t, alice, removed)
	assert.Equal(t, 0, room.NumParticipants())

	_, ok = room.RemoveParticipant(alice.Sid)
	assert.False(t, ok)
}

func TestParticipantPublishTrack_ReplacementRule(t *testing.T) {
	p := newTestParticipant("alice")

	first := &Track{Sid: "track_1", Kind: TrackKindVideo, Source: TrackSourceCamera}
	evicted, evictedProducerID := p.PublishTrack(first, "prod_1")
	assert.Nil(t, evicted)
	assert.Empty(t, evictedProducerID)

	second := &Track{Sid: "track_2", Kind: TrackKindVideo, Source: TrackSourceCamera}
	evicted, evictedProducerID = p.PublishTrack(second, "prod_2")
	require.NotNil(t, evicted)
	assert.Equal(t, TrackID("track_1"), evicted.Sid)
	assert.Equal(t, "prod_1", evictedProducerID)

	tracks := p.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, TrackID("track_2"), tracks[0].Sid)
}

func TestParticipantTrackBySource(t *testing.T) {
	p := newTestParticipant("alice")
	p.PublishTrack(&Track{Sid: "track_1", Kind: TrackKindAudio, Source: TrackSourceMicrophone}, "prod_1")

	track, ok := p.TrackBySource(TrackSourceMicrophone, TrackKindAudio)
	require.True(t, ok)
	assert.Equal(t, TrackID("track_1"), track.Sid)

	_, ok = p.TrackBySource(TrackSourceCamera, TrackKindVideo)
	assert.False(t, ok)
}

func TestRoomAddCall_PairInvariant(t *testing.T) {
	room := NewRoom(DefaultIDGenerator.NewRoomID(), "alpha", nil, nil)
	alice := newTestParticipant("alice")
	bob := newTestParticipant("bob")

	call := &Call{CallID: DefaultIDGenerator.NewCallID(), CallerSid: alice.Sid, TargetSid: bob.Sid, State: CallPending}
	require.NoError(t, room.AddCall(call))

	dup := &Call{CallID: DefaultIDGenerator.NewCallID(), CallerSid: bob.Sid, TargetSid: alice.Sid, State: CallPending}
	err := room.AddCall(dup)
	require.Error(t, err)

	call.State = CallEnded
	room.RemoveCallPairIndex(call)
	require.NoError(t, room.AddCall(dup))
}

func TestRoomCallBetween(t *testing.T) {
	room := NewRoom(DefaultIDGenerator.NewRoomID(), "alpha", nil, nil)
	alice := newTestParticipant("alice")
	bob := newTestParticipant("bob")
	call := &Call{CallID: DefaultIDGenerator.NewCallID(), CallerSid: alice.Sid, TargetSid: bob.Sid, State: CallPending}
	require.NoError(t, room.AddCall(call))

	found, ok := room.CallBetween(bob.Sid, alice.Sid)
	require.True(t, ok)
	assert.Equal(t, call.CallID, found.CallID)
}

func TestCallStateHelpers(t *testing.T) {
	assert.True(t, CallPending.IsActive())
	assert.True(t, CallAccepted.IsActive())
	assert.False(t, CallRejected.IsActive())
	assert.True(t, CallRejected.IsTerminal())
	assert.True(t, CallEnded.IsTerminal())
	assert.False(t, CallPending.IsTerminal())
}
