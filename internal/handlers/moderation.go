package handlers

import (
	"context"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/dispatch"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/signaling"
)

func requireHost(room *domain.Room, sid domain.ParticipantID) error {
	if !room.IsHost(sid) {
		return apperror.New(apperror.PermissionDenied, "only the room's host may perform this action")
	}
	return nil
}

func hostSocket(room *domain.Room) (string, bool) {
	for _, p := range room.Participants() {
		if room.IsHost(p.Sid) {
			return p.SocketID, true
		}
	}
	return "", false
}

// kickParticipantHandler implements the SPEC_FULL.md §12 host moderation
// supplement: the host forcibly removes another participant, cascading
// the same adapter/consumer teardown as a voluntary leaveRoom.
type kickParticipantHandler struct{ deps *Deps }

func (h *kickParticipantHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}
	if err := requireHost(room, session.ParticipantSid); err != nil {
		return err
	}

	targetSid := domain.ParticipantID(stringField(intent.Payload, "targetSid"))
	target, ok := room.RemoveParticipant(targetSid)
	if !ok {
		return apperror.New(apperror.NotFound, "target participant not in room")
	}

	cascadeCloseParticipant(ctx, h.deps, room, target)
	h.deps.Rooms.UntrackParticipant(target.Sid)

	h.deps.Fanout.Unicast(target.SocketID, participantLeftMsg{Type: "participantLeft", ParticipantSid: string(target.Sid)})
	h.deps.Fanout.Broadcast(room, participantLeftMsg{Type: "participantLeft", ParticipantSid: string(target.Sid)}, "")
	if room.NumParticipants() == 0 {
		h.deps.Rooms.ScheduleCloseIfEmpty(room.Sid)
	}
	return nil
}

// muteParticipantTrackHandler implements the host-forced mute supplement.
type muteParticipantTrackHandler struct{ deps *Deps }

func (h *muteParticipantTrackHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}
	if err := requireHost(room, session.ParticipantSid); err != nil {
		return err
	}

	targetSid := domain.ParticipantID(stringField(intent.Payload, "targetSid"))
	target, ok := room.ParticipantBySid(targetSid)
	if !ok {
		return apperror.New(apperror.NotFound, "target participant not in room")
	}

	trackSid := domain.TrackID(stringField(intent.Payload, "trackSid"))
	if !target.SetTrackMuted(trackSid, true) {
		return apperror.New(apperror.NotFound, "track not found")
	}

	h.deps.Fanout.Broadcast(room, trackMutedMsg{
		Type: "trackMuted", ParticipantSid: string(targetSid), TrackSid: string(trackSid),
	}, "")
	return nil
}

// admitWaitingHandler implements acceptWaiting/denyWaiting: the host
// resolves a parked arrival out of the room's waiting set (SPEC_FULL.md
// §12's waiting-room admission model).
type admitWaitingHandler struct {
	deps   *Deps
	accept bool
}

func (h *admitWaitingHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}
	if err := requireHost(room, session.ParticipantSid); err != nil {
		return err
	}

	targetSid := domain.ParticipantID(stringField(intent.Payload, "targetSid"))
	waitingParticipant, ok := room.PopWaiting(targetSid)
	if !ok {
		return apperror.New(apperror.NotFound, "no such waiting participant")
	}
	waitingSession, ok := h.deps.popWaitingSession(targetSid)
	if !ok {
		return apperror.New(apperror.NotFound, "waiting participant has no live connection")
	}

	if !h.accept {
		h.deps.Fanout.Unicast(waitingSession.SocketID, waitingForApprovalDeniedMsg{Type: "waitingDenied"})
		return nil
	}

	if err := room.AddParticipant(waitingParticipant); err != nil {
		return err
	}
	waitingSession.ParticipantSid = waitingParticipant.Sid
	waitingSession.RoomSid = room.Sid
	waitingSession.Joined = true
	h.deps.Rooms.TrackParticipant(waitingParticipant.Sid, room.Sid)

	h.deps.Fanout.Unicast(waitingSession.SocketID, roomJoinedMsg{
		Type:              "roomJoined",
		Room:              roomView{Sid: string(room.Sid), Name: room.Name},
		Participant:       waitingParticipant.Snapshot(),
		OtherParticipants: otherParticipantSnapshots(room, waitingParticipant.Sid),
	})
	h.deps.Fanout.Broadcast(room, participantJoinedMsg{
		Type: "participantJoined", Participant: waitingParticipant.Snapshot(),
	}, waitingSession.SocketID)
	return nil
}

// requestScreenshareHandler notifies the room's host of a pending
// screenshare request. This is a pure advisory relay, matching the prior
// handleRequestScreenshare/handleAcceptScreenshare split — it
// does not install any persistent permission gate that a later
// enableCamera{source:"screen"} call would need to pass.
type requestScreenshareHandler struct{ deps *Deps }

func (h *requestScreenshareHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}

	socketID, ok := hostSocket(room)
	if !ok {
		return apperror.New(apperror.NotFound, "room has no host to ask")
	}
	h.deps.Fanout.Unicast(socketID, screenshareRequestedMsg{
		Type: "screenshareRequested", RequesterSid: string(session.ParticipantSid),
	})
	return nil
}

// resolveScreenshareHandler implements grantScreenshare/denyScreenshare:
// the host's advisory response to a pending requestScreenshare.
type resolveScreenshareHandler struct {
	deps  *Deps
	grant bool
}

func (h *resolveScreenshareHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}
	if err := requireHost(room, session.ParticipantSid); err != nil {
		return err
	}

	targetSid := domain.ParticipantID(stringField(intent.Payload, "targetSid"))
	target, ok := room.ParticipantBySid(targetSid)
	if !ok {
		return apperror.New(apperror.NotFound, "target participant not in room")
	}

	if h.grant {
		h.deps.Fanout.Unicast(target.SocketID, screenshareGrantedMsg{Type: "screenshareGranted"})
	} else {
		h.deps.Fanout.Unicast(target.SocketID, screenshareDeniedMsg{Type: "screenshareDenied"})
	}
	return nil
}
