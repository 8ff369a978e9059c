package clientmirror

import (
	"sync"

	"github.com/meshcall/controlplane/internal/domain"
)

// MediaClient is the client-side media-engine adapter spec §4.12 calls
// for: it hides the engine's producer/consumer/transport API behind the
// same intent-level operations the signaling client already exposes
// (enableCamera, subscribeToParticipant, ...), tracking only what the
// client needs to reconcile after a reconnect — no real SFU negotiation
// happens here, that is the server's and the real engine's concern.
type MediaClient struct {
	mu     sync.RWMutex
	tracks TrackSet
}

// NewMediaClient constructs an empty MediaClient.
func NewMediaClient() *MediaClient {
	return &MediaClient{tracks: make(TrackSet)}
}

// TrackEnabled records a track the client believes it has just published
// (optimistic local state, before the server's trackPublished/
// cameraEnabled confirmation arrives).
func (m *MediaClient) TrackEnabled(t *domain.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[t.Sid] = t
}

// TrackDisabled removes a track the client believes it has just
// unpublished.
func (m *MediaClient) TrackDisabled(sid domain.TrackID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, sid)
}

// Snapshot returns the client's current optimistic track set, suitable
// as the "local" side of Reconcile.
func (m *MediaClient) Snapshot(sid domain.ParticipantID, metadata map[string]string) ParticipantSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tracks := make(TrackSet, len(m.tracks))
	for k, v := range m.tracks {
		tracks[k] = v
	}
	return ParticipantSnapshot{Sid: sid, Tracks: tracks, Metadata: metadata}
}

// ApplyResolved replaces the client's local track set with a
// reconciliation's resolved state, adopting it as the new ground truth.
func (m *MediaClient) ApplyResolved(resolved ParticipantSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = make(TrackSet, len(resolved.Tracks))
	for k, v := range resolved.Tracks {
		m.tracks[k] = v
	}
}
