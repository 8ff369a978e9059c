package handlers

import (
	"context"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/dispatch"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/signaling"
)

// hostClaimTTL bounds how long a promoted-host marker survives in the
// shared state store past the room's own lifetime, in case a node
// crashes before ever clearing it.
const hostClaimTTL = 24 * time.Hour

// tryPromoteHost makes sid the host of room, consulting deps.Store first
// when one is configured so two control plane nodes racing to promote the
// first arrival in the same room (SPEC_FULL.md §12 split-brain-safe host
// promotion) don't each succeed locally. A cross-node claim already present
// in the store short-circuits the local promotion; a successful local
// promotion is then published to the store for other nodes to see.
func tryPromoteHost(ctx context.Context, deps *Deps, room *domain.Room, sid domain.ParticipantID) bool {
	if deps.Store == nil {
		return room.TryPromoteHost(sid)
	}

	key := "room:" + string(room.Sid) + ":host"
	if exists, err := deps.Store.Exists(ctx, key); err == nil && exists {
		return false
	}

	if !room.TryPromoteHost(sid) {
		return false
	}
	_ = deps.Store.Set(ctx, key, []byte(sid), hostClaimTTL)
	return true
}

func otherParticipantSnapshots(room *domain.Room, exclude domain.ParticipantID) []domain.Snapshot {
	participants := room.Participants()
	out := make([]domain.Snapshot, 0, len(participants))
	for _, p := range participants {
		if p.Sid == exclude {
			continue
		}
		out = append(out, p.Snapshot())
	}
	return out
}

// joinRoomHandler implements spec §4.9 joinRoom.
type joinRoomHandler struct{ deps *Deps }

func (h *joinRoomHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	roomName := stringField(intent.Payload, "room")
	token := stringField(intent.Payload, "token")
	metadata := stringMapField(intent.Payload, "metadata")

	cred, err := h.deps.Auth.ValidateToken(token)
	if err != nil {
		return err
	}
	if !cred.Grants.RoomJoin {
		return apperror.New(apperror.Unauthorized, "credential does not grant roomJoin")
	}
	if cred.Grants.Room != "" && cred.Grants.Room != roomName {
		return apperror.New(apperror.Unauthorized, "credential is restricted to a different room")
	}

	room, err := h.deps.Rooms.GetOrCreateRoomByName(roomName, nil, nil)
	if err != nil {
		return err
	}

	perms := domain.Permissions{
		MayPublish:     cred.Grants.CanPublish,
		MaySubscribe:   cred.Grants.CanSubscribe,
		MayPublishData: cred.Grants.CanPublishData,
	}
	p := domain.NewParticipant(h.deps.IDGen.NewParticipantID(), cred.Identity, cred.DisplayName, metadata, perms)
	p.SocketID = session.SocketID

	if room.AdmitMode() == domain.AdmitModeWaiting && !tryPromoteHost(ctx, h.deps, room, p.Sid) {
		room.AddWaiting(p)
		h.deps.trackWaitingSession(p.Sid, session)
		h.deps.Fanout.Unicast(session.SocketID, waitingForApprovalMsg{
			Type: "waitingForApproval",
			Room: roomView{Sid: string(room.Sid), Name: room.Name},
		})
		return nil
	}

	if err := room.AddParticipant(p); err != nil {
		return err
	}

	session.ParticipantSid = p.Sid
	session.RoomSid = room.Sid
	session.Joined = true
	h.deps.Rooms.TrackParticipant(p.Sid, room.Sid)

	h.deps.Fanout.Unicast(session.SocketID, roomJoinedMsg{
		Type:              "roomJoined",
		Room:              roomView{Sid: string(room.Sid), Name: room.Name},
		Participant:       p.Snapshot(),
		OtherParticipants: otherParticipantSnapshots(room, p.Sid),
	})
	h.deps.Fanout.Broadcast(room, participantJoinedMsg{Type: "participantJoined", Participant: p.Snapshot()}, session.SocketID)
	return nil
}

// leaveRoomHandler implements spec §4.9 leaveRoom.
type leaveRoomHandler struct{ deps *Deps }

func (h *leaveRoomHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	if !session.Joined {
		return notJoined()
	}
	room, ok := h.deps.Rooms.GetRoom(session.RoomSid)
	if !ok {
		return apperror.New(apperror.NotFound, "room not found")
	}

	p, ok := room.RemoveParticipant(session.ParticipantSid)
	if !ok {
		return apperror.New(apperror.NotFound, "participant not found in room")
	}

	cascadeCloseParticipant(ctx, h.deps, room, p)

	h.deps.Rooms.UntrackParticipant(p.Sid)
	session.Joined = false
	session.ParticipantSid = ""
	session.RoomSid = ""

	h.deps.Fanout.Broadcast(room, participantLeftMsg{Type: "participantLeft", ParticipantSid: string(p.Sid)}, session.SocketID)
	if room.NumParticipants() == 0 {
		h.deps.Rooms.ScheduleCloseIfEmpty(room.Sid)
	}
	return nil
}

// cascadeCloseParticipant tears down every adapter resource p owned
// (its own send/receive transports) and every consumer other
// participants created to receive p's tracks, matching spec §4.9
// leaveRoom's "cascade-close adapter transports" and §4.2's cascading
// close discipline.
func cascadeCloseParticipant(ctx context.Context, deps *Deps, room *domain.Room, p *domain.Participant) {
	if id, ok := p.SendTransportID(); ok {
		_ = deps.Media.CloseTransport(ctx, id)
	}
	if id, ok := p.RecvTransportID(); ok {
		_ = deps.Media.CloseTransport(ctx, id)
	}
	for _, other := range room.Participants() {
		for _, consumerID := range other.RemoveConsumersFor(p.Sid) {
			_ = deps.Media.CloseConsumer(ctx, consumerID)
		}
	}
}
