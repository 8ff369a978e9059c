package clientmirror

import (
	"testing"

	"github.com/meshcall/controlplane/internal/domain"
	"github.com/stretchr/testify/assert"
)

func track(sid string) *domain.Track {
	return &domain.Track{Sid: domain.TrackID(sid), Kind: domain.TrackKindVideo, Source: domain.TrackSourceCamera}
}

// TestReconcile_ScenarioSix mirrors spec §8 scenario 6 exactly: client C
// locally has {t1, t2} and peer P has {u1}; after reconnect the server
// says C has {t1} (t2 pruned while disconnected) and P has {u1, u2}.
func TestReconcile_ScenarioSix_PreferServer(t *testing.T) {
	localC := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": track("t1"), "t2": track("t2")}}
	serverC := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": track("t1")}}

	resolvedC, diffC := Reconcile(localC, serverC, PolicyPreferServer)
	assert.ElementsMatch(t, []domain.TrackID{"t2"}, diffC.LocalOnly)
	assert.Empty(t, diffC.ServerOnly)
	assert.Len(t, resolvedC.Tracks, 1)
	_, hasT1 := resolvedC.Tracks["t1"]
	assert.True(t, hasT1)

	localP := ParticipantSnapshot{Sid: "P", Tracks: TrackSet{"u1": track("u1")}}
	serverP := ParticipantSnapshot{Sid: "P", Tracks: TrackSet{"u1": track("u1"), "u2": track("u2")}}

	resolvedP, diffP := Reconcile(localP, serverP, PolicyPreferServer)
	assert.ElementsMatch(t, []domain.TrackID{"u2"}, diffP.ServerOnly)
	assert.Empty(t, diffP.LocalOnly)
	assert.Len(t, resolvedP.Tracks, 2)
}

func TestReconcile_ScenarioSix_Merge(t *testing.T) {
	localC := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": track("t1"), "t2": track("t2")}}
	serverC := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": track("t1")}}

	resolvedC, _ := Reconcile(localC, serverC, PolicyMerge)
	assert.Len(t, resolvedC.Tracks, 2)
	_, hasT2 := resolvedC.Tracks["t2"]
	assert.True(t, hasT2, "merge preserves the client's optimistic local-only track")
}

func TestReconcile_PreferLocalKeepsEverythingLocal(t *testing.T) {
	local := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": track("t1")}, Metadata: map[string]string{"k": "local"}}
	server := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{}, Metadata: map[string]string{"k": "server"}}

	resolved, diff := Reconcile(local, server, PolicyPreferLocal)
	assert.Len(t, resolved.Tracks, 1)
	assert.Equal(t, "local", resolved.Metadata["k"])
	assert.True(t, diff.MetadataChanged)
}

func TestReconcile_ConflictingTrackDetected(t *testing.T) {
	muted := &domain.Track{Sid: "t1", Kind: domain.TrackKindAudio, Source: domain.TrackSourceMicrophone, Muted: true}
	unmuted := &domain.Track{Sid: "t1", Kind: domain.TrackKindAudio, Source: domain.TrackSourceMicrophone, Muted: false}

	local := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": muted}}
	server := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": unmuted}}

	_, diff := Reconcile(local, server, PolicyPreferServer)
	assert.ElementsMatch(t, []domain.TrackID{"t1"}, diff.Conflicting)
}

func TestReconcile_DefaultsToPreferServerWhenPolicyEmpty(t *testing.T) {
	local := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": track("t1"), "t2": track("t2")}}
	server := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": track("t1")}}

	resolved, _ := Reconcile(local, server, "")
	assert.Len(t, resolved.Tracks, 1)
}

func TestReconcileRoom_AppliesPolicyPerParticipant(t *testing.T) {
	local := map[domain.ParticipantID]ParticipantSnapshot{
		"C": {Sid: "C", Tracks: TrackSet{"t1": track("t1"), "t2": track("t2")}},
		"P": {Sid: "P", Tracks: TrackSet{"u1": track("u1")}},
	}
	server := map[domain.ParticipantID]ParticipantSnapshot{
		"C": {Sid: "C", Tracks: TrackSet{"t1": track("t1")}},
		"P": {Sid: "P", Tracks: TrackSet{"u1": track("u1"), "u2": track("u2")}},
	}

	result := ReconcileRoom(local, server, PolicyPreferServer)
	assert.Len(t, result.Participants["C"].Tracks, 1)
	assert.Len(t, result.Participants["P"].Tracks, 2)
	assert.ElementsMatch(t, []domain.TrackID{"t2"}, result.Diffs["C"].LocalOnly)
	assert.ElementsMatch(t, []domain.TrackID{"u2"}, result.Diffs["P"].ServerOnly)
}

func TestMediaClient_SnapshotAndApplyResolved(t *testing.T) {
	mc := NewMediaClient()
	mc.TrackEnabled(track("t1"))
	mc.TrackEnabled(track("t2"))

	snap := mc.Snapshot("C", nil)
	assert.Len(t, snap.Tracks, 2)

	resolved := ParticipantSnapshot{Sid: "C", Tracks: TrackSet{"t1": track("t1")}}
	mc.ApplyResolved(resolved)
	assert.Len(t, mc.Snapshot("C", nil).Tracks, 1)
}
