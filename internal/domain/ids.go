// Package domain holds the pure data types and invariants of the control
// plane's room/participant/track/call model (spec §3): Room, Participant,
// Track, and Call carry no transport or adapter dependency, only the state
// and the mutation rules that keep their invariants true.
package domain

import "github.com/google/uuid"

// RoomID, ParticipantID, TrackID and CallID are opaque server-assigned
// identifiers, unique within their scope, modeled as distinct string types
// the way RoleType/ClientIdType were modeled as RoleType/ClientIdType as named strings rather
// than bare strings.
type RoomID string
type ParticipantID string
type TrackID string
type CallID string

// IDGenerator mints new ids. Production code uses uuidGenerator; tests can
// substitute a deterministic generator so reconciliation and adapter tests
// stay reproducible per spec §9 ("all randomness must be injectable").
type IDGenerator interface {
	NewRoomID() RoomID
	NewParticipantID() ParticipantID
	NewTrackID() TrackID
	NewCallID() CallID
}

type uuidGenerator struct{}

// DefaultIDGenerator mints ids via google/uuid.
var DefaultIDGenerator IDGenerator = uuidGenerator{}

func (uuidGenerator) NewRoomID() RoomID               { return RoomID("room_" + uuid.New().String()) }
func (uuidGenerator) NewParticipantID() ParticipantID { return ParticipantID("p_" + uuid.New().String()) }
func (uuidGenerator) NewTrackID() TrackID             { return TrackID("track_" + uuid.New().String()) }
func (uuidGenerator) NewCallID() CallID               { return CallID("call_" + uuid.New().String()) }

// TrackKind is the media kind of a Track.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// TrackSource is the originating device/capture source of a Track.
type TrackSource string

const (
	TrackSourceCamera       TrackSource = "camera"
	TrackSourceMicrophone   TrackSource = "microphone"
	TrackSourceScreen       TrackSource = "screen"
	TrackSourceScreenAudio  TrackSource = "screenAudio"
)

// ConnectionState is a Participant's connection lifecycle state.
type ConnectionState string

const (
	ParticipantDisconnected ConnectionState = "disconnected"
	ParticipantJoining      ConnectionState = "joining"
	ParticipantConnected    ConnectionState = "connected"
	ParticipantReconnecting ConnectionState = "reconnecting"
	ParticipantClosed       ConnectionState = "closed"
)

// CallState is a Call's lifecycle state.
type CallState string

const (
	CallPending  CallState = "pending"
	CallAccepted CallState = "accepted"
	CallRejected CallState = "rejected"
	CallEnded    CallState = "ended"
)

// IsTerminal reports whether a call in this state can no longer transition.
func (s CallState) IsTerminal() bool {
	return s == CallRejected || s == CallEnded
}

// IsActive reports whether a call in this state counts against the
// at-most-one-active-call-per-pair invariant (spec §3 invariant, §8
// invariant 1: state ∈ {pending, accepted}).
func (s CallState) IsActive() bool {
	return s == CallPending || s == CallAccepted
}

// Permissions mirrors the grants carried in a validated credential.
type Permissions struct {
	MayPublish     bool
	MaySubscribe   bool
	MayPublishData bool
}

// pairKey builds the unordered-pair key used for call deduplication
// (spec §3 "pair-index from unordered {identity_a, identity_b}").
func pairKey(a, b ParticipantID) string {
	if a < b {
		return string(a) + "|" + string(b)
	}
	return string(b) + "|" + string(a)
}
