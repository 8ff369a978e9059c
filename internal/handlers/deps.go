// Package handlers implements the ~20 signaling intent handlers
// (component L, spec §4.9): joinRoom/leaveRoom, the call handshake,
// camera/microphone publish-unpublish-mute, subscribe/unsubscribe, data
// relay, plus the moderation and waiting-room/screenshare intents
// SPEC_FULL.md §12 supplements.
//
// Grounded per-handler on session/handlers.go (assertPayload
// generic payload coercion, direct-send vs. broadcast split) and
// session/handlers_webrtc.go's forwardWebRTCSignal point-to-point
// signaling pattern. Every handler follows
// validate(J, already run by the dispatcher) → mutate under the room's
// own per-operation locking (domain.Room/Participant) →
// fan-out outside any lock (internal/fanout), per spec §4.9/§5's explicit
// "fan-out is performed outside the lock" (the prior handlers
// broadcast from inside Room.mu — corrected here, see DESIGN.md's L
// Open Question resolution).
package handlers

import (
	"sync"

	"github.com/meshcall/controlplane/internal/auth"
	"github.com/meshcall/controlplane/internal/dispatch"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/fanout"
	"github.com/meshcall/controlplane/internal/mediaengine"
	"github.com/meshcall/controlplane/internal/roommgr"
	"github.com/meshcall/controlplane/internal/statestore"
)

// Deps bundles the application services every handler needs. One Deps is
// constructed at startup and shared read-only across all connections —
// the mutable per-connection state lives in dispatch.Session instead,
// except for waitingSessions: a participant parked in a room's waiting
// set (AdmitModeWaiting) has no joined Session yet, so the handler that
// admits them (running on the *host's* connection) needs a side table to
// find and update the waiting connection's own Session once admitted.
type Deps struct {
	Rooms  *roommgr.RoomManager
	Calls  *roommgr.CallManager
	Media  mediaengine.Port
	Fanout *fanout.Engine
	Auth   auth.Validator
	IDGen  domain.IDGenerator

	// Store is the shared remote state store consulted for split-brain-safe
	// host promotion across control plane nodes (SPEC_FULL.md §12). Nil when
	// running with an in-memory, single-node statestore — promotion then
	// falls back to the purely local decision domain.Room.TryPromoteHost
	// already makes.
	Store statestore.Store

	waitingMu       sync.Mutex
	waitingSessions map[domain.ParticipantID]*dispatch.Session
}

// NewDeps constructs a Deps ready for Register. store may be nil.
func NewDeps(rooms *roommgr.RoomManager, calls *roommgr.CallManager, media mediaengine.Port, fanoutEngine *fanout.Engine, validator auth.Validator, idGen domain.IDGenerator, store statestore.Store) *Deps {
	if idGen == nil {
		idGen = domain.DefaultIDGenerator
	}
	return &Deps{
		Rooms:           rooms,
		Calls:           calls,
		Media:           media,
		Fanout:          fanoutEngine,
		Auth:            validator,
		IDGen:           idGen,
		Store:           store,
		waitingSessions: make(map[domain.ParticipantID]*dispatch.Session),
	}
}

func (d *Deps) trackWaitingSession(sid domain.ParticipantID, session *dispatch.Session) {
	d.waitingMu.Lock()
	defer d.waitingMu.Unlock()
	d.waitingSessions[sid] = session
}

func (d *Deps) popWaitingSession(sid domain.ParticipantID) (*dispatch.Session, bool) {
	d.waitingMu.Lock()
	defer d.waitingMu.Unlock()
	s, ok := d.waitingSessions[sid]
	delete(d.waitingSessions, sid)
	return s, ok
}

// Register installs every handler into registry, wired against deps.
// Called once at startup (spec §4.8: build-time registration).
func Register(registry *dispatch.Registry, deps *Deps) {
	registry.Register("joinRoom", &joinRoomHandler{deps})
	registry.Register("leaveRoom", &leaveRoomHandler{deps})

	registry.Register("startCall", &startCallHandler{deps})
	registry.Register("acceptCall", &respondCallHandler{deps, domain.CallAccepted})
	registry.Register("rejectCall", &respondCallHandler{deps, domain.CallRejected})
	registry.Register("endCall", &endCallHandler{deps})

	registry.Register("enableCamera", &enableTrackHandler{deps, domain.TrackKindVideo, domain.TrackSourceCamera})
	registry.Register("enableMicrophone", &enableTrackHandler{deps, domain.TrackKindAudio, domain.TrackSourceMicrophone})
	registry.Register("disableCamera", &disableTrackHandler{deps, domain.TrackSourceCamera})
	registry.Register("disableMicrophone", &disableTrackHandler{deps, domain.TrackSourceMicrophone})

	registry.Register("muteTrack", &setTrackMutedHandler{deps, true})
	registry.Register("unmuteTrack", &setTrackMutedHandler{deps, false})

	registry.Register("subscribeToParticipant", &subscribeHandler{deps})
	registry.Register("unsubscribeFromParticipant", &unsubscribeHandler{deps})

	registry.Register("sendData", &sendDataHandler{deps})
	registry.Register("getRecentData", &getRecentDataHandler{deps})

	registry.Register("kickParticipant", &kickParticipantHandler{deps})
	registry.Register("muteParticipantTrack", &muteParticipantTrackHandler{deps})
	registry.Register("acceptWaiting", &admitWaitingHandler{deps, true})
	registry.Register("denyWaiting", &admitWaitingHandler{deps, false})
	registry.Register("requestScreenshare", &requestScreenshareHandler{deps})
	registry.Register("grantScreenshare", &resolveScreenshareHandler{deps, true})
	registry.Register("denyScreenshare", &resolveScreenshareHandler{deps, false})
}
