package clientmirror

import "github.com/meshcall/controlplane/internal/domain"

// Policy selects how Reconcile resolves a divergence between optimistic
// local state and server-confirmed state after a reconnect (spec §4.12).
type Policy string

const (
	// PolicyPreferServer discards every local-only track and any locally
	// held copy of a track the server also knows about. This is the
	// spec's stated default.
	PolicyPreferServer Policy = "preferServer"
	// PolicyPreferLocal keeps every locally known track, layering the
	// server's view underneath rather than over it.
	PolicyPreferLocal Policy = "preferLocal"
	// PolicyMerge starts from the server's view and adds back any track
	// the client still believes it published that the server has no
	// record of (spec §8 scenario 6's worked example).
	PolicyMerge Policy = "merge"
)

// DefaultPolicy matches spec §4.12's "the default is preferServer".
const DefaultPolicy = PolicyPreferServer

// TrackSet is a participant's published tracks, by track sid.
type TrackSet map[domain.TrackID]*domain.Track

// ParticipantSnapshot is one side (local or server) of a single
// participant's known state, as seen by the reconciling client.
type ParticipantSnapshot struct {
	Sid      domain.ParticipantID
	Tracks   TrackSet
	Metadata map[string]string
}

// Diff reports how one participant's local and server snapshots differed
// before reconciliation resolved them.
type Diff struct {
	ParticipantSid  domain.ParticipantID
	LocalOnly       []domain.TrackID
	ServerOnly      []domain.TrackID
	Conflicting     []domain.TrackID
	MetadataChanged bool
}

func trackEqual(a, b *domain.Track) bool {
	return a.Kind == b.Kind && a.Source == b.Source && a.Muted == b.Muted
}

func metadataEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Reconcile compares one participant's local (optimistic) and
// server-confirmed snapshots, computes the three-way diff spec §4.12
// names (localOnly/serverOnly/conflicting), and applies policy to
// produce the resolved snapshot the client should adopt.
func Reconcile(local, server ParticipantSnapshot, policy Policy) (ParticipantSnapshot, Diff) {
	if policy == "" {
		policy = DefaultPolicy
	}

	diff := Diff{ParticipantSid: server.Sid}
	for sid, lt := range local.Tracks {
		st, onServer := server.Tracks[sid]
		switch {
		case !onServer:
			diff.LocalOnly = append(diff.LocalOnly, sid)
		case !trackEqual(lt, st):
			diff.Conflicting = append(diff.Conflicting, sid)
		}
	}
	for sid := range server.Tracks {
		if _, onLocal := local.Tracks[sid]; !onLocal {
			diff.ServerOnly = append(diff.ServerOnly, sid)
		}
	}
	diff.MetadataChanged = !metadataEqual(local.Metadata, server.Metadata)

	resolved := ParticipantSnapshot{
		Sid:      server.Sid,
		Tracks:   make(TrackSet, len(server.Tracks)),
		Metadata: server.Metadata,
	}
	for sid, t := range server.Tracks {
		resolved.Tracks[sid] = t
	}

	switch policy {
	case PolicyPreferLocal:
		for sid, t := range local.Tracks {
			resolved.Tracks[sid] = t
		}
		resolved.Metadata = local.Metadata
	case PolicyMerge:
		for _, sid := range diff.LocalOnly {
			resolved.Tracks[sid] = local.Tracks[sid]
		}
	case PolicyPreferServer:
		// resolved already holds exactly the server's view.
	}
	return resolved, diff
}

// RoomReconciliation is the result of reconciling every participant known
// to either side of a reconnect.
type RoomReconciliation struct {
	Participants map[domain.ParticipantID]ParticipantSnapshot
	Diffs        map[domain.ParticipantID]Diff
}

// ReconcileRoom reconciles an entire room's worth of participants —
// self and every peer — applying the same policy to each. A participant
// known only to the server is reconciled against an empty local snapshot.
// A participant known only locally is dropped under
// PolicyPreferServer/PolicyMerge (server is authoritative for membership)
// and kept as-is, with no Diff entry, under PolicyPreferLocal (the client
// hasn't yet learned it dropped).
func ReconcileRoom(local, server map[domain.ParticipantID]ParticipantSnapshot, policy Policy) RoomReconciliation {
	out := RoomReconciliation{
		Participants: make(map[domain.ParticipantID]ParticipantSnapshot, len(server)),
		Diffs:        make(map[domain.ParticipantID]Diff),
	}
	for sid, srv := range server {
		loc, ok := local[sid]
		if !ok {
			loc = ParticipantSnapshot{Sid: sid, Tracks: TrackSet{}}
		}
		resolved, diff := Reconcile(loc, srv, policy)
		out.Participants[sid] = resolved
		out.Diffs[sid] = diff
	}
	if policy == PolicyPreferLocal {
		for sid, loc := range local {
			if _, ok := server[sid]; !ok {
				out.Participants[sid] = loc
			}
		}
	}
	return out
}
