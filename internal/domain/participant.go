package domain

import "sync"

// Participant is one joined member of a Room. It is created on successful
// join and destroyed on leave/disconnect/room close (spec §3). It holds
// adapter resource *ids* only, never engine handles — lookups go
// Room → Participant → id → Adapter (spec §9 "cyclic ownership").
type Participant struct {
	Sid         ParticipantID
	Identity    string
	DisplayName string
	Metadata    map[string]string
	Permissions Permissions
	SocketID    string

	mu sync.RWMutex

	state ConnectionState

	// tracks keyed by track sid.
	tracks map[TrackID]*Track
	// producerIDs keyed by track sid: every producer-id refers to a
	// producer on this participant's send-transport.
	producerIDs map[TrackID]string
	// consumerIDs keyed by source-participant-sid then track sid: every
	// consumer-id refers to a consumer on this participant's
	// receive-transport.
	consumerIDs map[ParticipantID]map[TrackID]string

	sendTransportID *string
	recvTransportID *string
}

// NewParticipant constructs a Participant in the joining state.
func NewParticipant(sid ParticipantID, identity, displayName string, metadata map[string]string, perms Permissions) *Participant {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Participant{
		Sid:         sid,
		Identity:    identity,
		DisplayName: displayName,
		Metadata:    metadata,
		Permissions: perms,
		state:       ParticipantJoining,
		tracks:      make(map[TrackID]*Track),
		producerIDs: make(map[TrackID]string),
		consumerIDs: make(map[ParticipantID]map[TrackID]string),
	}
}

// State returns the participant's current connection state.
func (p *Participant) State() ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetState sets the participant's connection state directly; the
// session-level FSM (H) governs transition legality for the connection as
// a whole, this setter just mirrors it onto the domain object.
func (p *Participant) SetState(s ConnectionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// SendTransportID returns the participant's send-transport id, if any.
func (p *Participant) SendTransportID() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sendTransportID == nil {
		return "", false
	}
	return *p.sendTransportID, true
}

// SetSendTransportID records the send-transport id on first media intent.
func (p *Participant) SetSendTransportID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendTransportID = &id
}

// RecvTransportID returns the participant's receive-transport id, if any.
func (p *Participant) RecvTransportID() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.recvTransportID == nil {
		return "", false
	}
	return *p.recvTransportID, true
}

// SetRecvTransportID records the receive-transport id on first subscribe.
func (p *Participant) SetRecvTransportID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recvTransportID = &id
}

// PublishTrack installs track under its (source, kind) slot, evicting and
// returning any previously-published track (and its producer id) in the
// same slot per the latest-publish-wins rule (spec §3 Track invariant,
// §8 scenario 4).
func (p *Participant) PublishTrack(track *Track, producerID string) (evicted *Track, evictedProducerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sourceKindKey(track.Source, track.Kind)
	for sid, t := range p.tracks {
		if sourceKindKey(t.Source, t.Kind) == key {
			evicted = t
			evictedProducerID = p.producerIDs[sid]
			delete(p.tracks, sid)
			delete(p.producerIDs, sid)
			break
		}
	}
	p.tracks[track.Sid] = track
	p.producerIDs[track.Sid] = producerID
	return evicted, evictedProducerID
}

// Track returns the track with the given sid, if published.
func (p *Participant) Track(sid TrackID) (*Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tracks[sid]
	return t, ok
}

// TrackBySource returns the unique active track for (source, kind), if any.
func (p *Participant) TrackBySource(source TrackSource, kind TrackKind) (*Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	key := sourceKindKey(source, kind)
	for _, t := range p.tracks {
		if sourceKindKey(t.Source, t.Kind) == key {
			return t, true
		}
	}
	return nil, false
}

// RemoveTrack deletes a track and its producer id, returning the removed
// track's producer id if it existed.
func (p *Participant) RemoveTrack(sid TrackID) (producerID string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.tracks[sid]; !exists {
		return "", false
	}
	producerID = p.producerIDs[sid]
	delete(p.tracks, sid)
	delete(p.producerIDs, sid)
	return producerID, true
}

// SetTrackMuted toggles a track's muted bit, returning false if the track
// is not published.
func (p *Participant) SetTrackMuted(sid TrackID, muted bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tracks[sid]
	if !ok {
		return false
	}
	t.Muted = muted
	return true
}

// Tracks returns a snapshot slice of all currently published tracks.
func (p *Participant) Tracks() []*Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Track, 0, len(p.tracks))
	for _, t := range p.tracks {
		out = append(out, t)
	}
	return out
}

// AddConsumer records a consumer id for a track subscribed from sourceSid.
func (p *Participant) AddConsumer(sourceSid ParticipantID, trackSid TrackID, consumerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumerIDs[sourceSid] == nil {
		p.consumerIDs[sourceSid] = make(map[TrackID]string)
	}
	p.consumerIDs[sourceSid][trackSid] = consumerID
}

// ConsumersFor returns a snapshot of track-sid → consumer-id for the given
// source participant.
func (p *Participant) ConsumersFor(sourceSid ParticipantID) map[TrackID]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[TrackID]string, len(p.consumerIDs[sourceSid]))
	for k, v := range p.consumerIDs[sourceSid] {
		out[k] = v
	}
	return out
}

// RemoveConsumersFor clears all consumer ids recorded for sourceSid and
// returns them.
func (p *Participant) RemoveConsumersFor(sourceSid ParticipantID) map[TrackID]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.consumerIDs[sourceSid]
	delete(p.consumerIDs, sourceSid)
	return out
}

// AllConsumerIDs returns every consumer id this participant owns, across
// all source participants — used when cascading a disconnect close.
func (p *Participant) AllConsumerIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for _, byTrack := range p.consumerIDs {
		for _, id := range byTrack {
			out = append(out, id)
		}
	}
	return out
}

// AllProducerIDs returns every producer id this participant owns.
func (p *Participant) AllProducerIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.producerIDs))
	for _, id := range p.producerIDs {
		out = append(out, id)
	}
	return out
}

// Snapshot is an immutable view of a Participant suitable for serializing
// into a wire frame (roomJoined, participantJoined, ...).
type Snapshot struct {
	Sid         ParticipantID
	Identity    string
	DisplayName string
	Metadata    map[string]string
	Tracks      []*Track
}

// Snapshot builds a point-in-time copy of the participant's public state.
func (p *Participant) Snapshot() Snapshot {
	return Snapshot{
		Sid:         p.Sid,
		Identity:    p.Identity,
		DisplayName: p.DisplayName,
		Metadata:    p.Metadata,
		Tracks:      p.Tracks(),
	}
}
