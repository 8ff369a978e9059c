package domain

import (
	"sync"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
)

// Room is a container for participants and the scope for fan-out and calls
// (spec §3). It owns one exclusive lock protecting its participant map,
// call maps, and pair-indices; acquisition order across the system is
// RoomManager → Room → Participant, never the reverse (spec §5).
type Room struct {
	Sid             RoomID
	Name            string
	Metadata        map[string]string
	MaxParticipants *int
	CreationTime    time.Time

	mu     sync.RWMutex
	active bool

	participantsBySid      map[ParticipantID]*Participant
	participantsByIdentity map[string]*Participant

	calls     map[CallID]*Call
	pairIndex map[string]CallID

	admitMode string
	host      *ParticipantID
	waiting   map[ParticipantID]*Participant
	recent    []DataRecord
}

// AdmitModeOpen is the spec.md default: joinRoom admits directly once
// capacity allows. AdmitModeWaiting parks every arrival but the first in
// a waiting set until a host admits them (SPEC_FULL.md §12).
const (
	AdmitModeOpen    = "open"
	AdmitModeWaiting = "waiting"
)

// maxRecentData bounds the per-room ring buffer of recent reliable
// sendData payloads (SPEC_FULL.md §12's chat-history-style replay).
const maxRecentData = 50

// DataRecord is one entry in a room's recent-data ring buffer.
type DataRecord struct {
	ParticipantSid ParticipantID
	Payload        string
	Kind           string
	Timestamp      time.Time
}

// NewRoom constructs an empty, active Room.
func NewRoom(sid RoomID, name string, metadata map[string]string, maxParticipants *int) *Room {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Room{
		Sid:                    sid,
		Name:                   name,
		Metadata:               metadata,
		MaxParticipants:        maxParticipants,
		CreationTime:           time.Now(),
		active:                 true,
		participantsBySid:      make(map[ParticipantID]*Participant),
		participantsByIdentity: make(map[string]*Participant),
		calls:                  make(map[CallID]*Call),
		pairIndex:              make(map[string]CallID),
		admitMode:              AdmitModeOpen,
		waiting:                make(map[ParticipantID]*Participant),
	}
}

// Active reports whether the room has not yet been closed.
func (r *Room) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// NumParticipants returns the current participant count.
func (r *Room) NumParticipants() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participantsBySid)
}

// AddParticipant registers p in the room, enforcing the capacity invariant
// (numParticipants ≤ maxParticipants) and per-room identity uniqueness.
func (r *Room) AddParticipant(p *Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return apperror.New(apperror.NotFound, "room is closed")
	}
	if r.MaxParticipants != nil && len(r.participantsBySid) >= *r.MaxParticipants {
		return apperror.New(apperror.RoomFull, "room is full")
	}
	if _, exists := r.participantsByIdentity[p.Identity]; exists {
		return apperror.New(apperror.InvalidRequest, "identity already joined this room")
	}

	r.participantsBySid[p.Sid] = p
	r.participantsByIdentity[p.Identity] = p
	return nil
}

// RemoveParticipant removes a participant by sid, returning it if present.
func (r *Room) RemoveParticipant(sid ParticipantID) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participantsBySid[sid]
	if !ok {
		return nil, false
	}
	delete(r.participantsBySid, sid)
	delete(r.participantsByIdentity, p.Identity)
	return p, true
}

// ParticipantBySid looks up a participant by sid.
func (r *Room) ParticipantBySid(sid ParticipantID) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participantsBySid[sid]
	return p, ok
}

// ParticipantByIdentity looks up a participant by identity.
func (r *Room) ParticipantByIdentity(identity string) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participantsByIdentity[identity]
	return p, ok
}

// Participants returns a snapshot slice of all current participants.
func (r *Room) Participants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participantsBySid))
	for _, p := range r.participantsBySid {
		out = append(out, p)
	}
	return out
}

// AddCall records a new call in the room, enforcing invariant (a): at most
// one active call between any unordered participant pair.
func (r *Room) AddCall(c *Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := c.Pair()
	if existingID, exists := r.pairIndex[key]; exists {
		if existing, ok := r.calls[existingID]; ok && existing.State.IsActive() {
			return apperror.New(apperror.CallAlreadyExists, "an active call already exists between these participants")
		}
	}
	r.calls[c.CallID] = c
	r.pairIndex[key] = c.CallID
	return nil
}

// Call looks up a call by id.
func (r *Room) Call(id CallID) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	return c, ok
}

// CallBetween looks up the active call id, if any, between an unordered
// participant pair.
func (r *Room) CallBetween(a, b ParticipantID) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.pairIndex[pairKey(a, b)]
	if !ok {
		return nil, false
	}
	c, ok := r.calls[id]
	return c, ok
}

// RemoveCallPairIndex clears the pair-index entry for a terminal call so a
// new call between the same pair can be started; the Call record itself
// remains in r.calls until garbage-collected (spec §4.4 call GC).
func (r *Room) RemoveCallPairIndex(c *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := c.Pair()
	if id, ok := r.pairIndex[key]; ok && id == c.CallID {
		delete(r.pairIndex, key)
	}
}

// PurgeCall permanently removes a call record (used by the CallManager's
// GC sweep once a terminal call is older than T_callmax).
func (r *Room) PurgeCall(id CallID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
}

// Calls returns a snapshot slice of every call ever recorded in the room
// (used to cascade-end calls on room close).
func (r *Room) Calls() []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	return out
}

// Close marks the room inactive. Destruction cascades (closing member
// participants' adapter resources, ending calls) are orchestrated by the
// RoomManager, which alone knows about the Adapter and fan-out engine.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
}

// SetAdmitMode configures whether joinRoom admits directly (AdmitModeOpen,
// the default) or parks arrivals in the waiting set (AdmitModeWaiting).
func (r *Room) SetAdmitMode(mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admitMode = mode
}

// AdmitMode returns the room's current admission mode.
func (r *Room) AdmitMode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.admitMode == "" {
		return AdmitModeOpen
	}
	return r.admitMode
}

// TryPromoteHost makes sid the room's host if and only if the room has no
// host yet, returning whether the promotion took effect. Host assignment
// is sticky — the first successful promotion wins for the room's
// lifetime, no re-election on host departure (SPEC_FULL.md §12's
// simplification).
func (r *Room) TryPromoteHost(sid ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host != nil {
		return false
	}
	r.host = &sid
	return true
}

// IsHost reports whether sid is the room's promoted host.
func (r *Room) IsHost(sid ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.host != nil && *r.host == sid
}

// AddWaiting parks p in the waiting set without admitting it to the room
// (AdmitModeWaiting's holding area for acceptWaiting/denyWaiting).
func (r *Room) AddWaiting(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting[p.Sid] = p
}

// PopWaiting removes and returns the waiting participant sid, if present.
func (r *Room) PopWaiting(sid ParticipantID) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.waiting[sid]
	delete(r.waiting, sid)
	return p, ok
}

// WaitingParticipants returns a snapshot of everyone currently parked.
func (r *Room) WaitingParticipants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.waiting))
	for _, p := range r.waiting {
		out = append(out, p)
	}
	return out
}

// RecordData appends rec to the room's recent-data ring buffer, dropping
// the oldest entry once past maxRecentData (SPEC_FULL.md §12).
func (r *Room) RecordData(rec DataRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = append(r.recent, rec)
	if len(r.recent) > maxRecentData {
		r.recent = r.recent[len(r.recent)-maxRecentData:]
	}
}

// RecentData returns up to the last limit recorded data entries, most
// recent last. limit <= 0 returns everything retained.
func (r *Room) RecentData(limit int) []DataRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.recent) {
		limit = len(r.recent)
	}
	start := len(r.recent) - limit
	out := make([]DataRecord, limit)
	copy(out, r.recent[start:])
	return out
}
