package handlers

import (
	"context"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/dispatch"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/signaling"
)

func currentRoom(deps *Deps, session *dispatch.Session) (*domain.Room, error) {
	if !session.Joined {
		return nil, notJoined()
	}
	room, ok := deps.Rooms.GetRoom(session.RoomSid)
	if !ok {
		return nil, apperror.New(apperror.NotFound, "room not found")
	}
	return room, nil
}

// startCallHandler implements spec §4.9 startCall.
type startCallHandler struct{ deps *Deps }

func (h *startCallHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}

	targetIdentity := stringField(intent.Payload, "targetUserId")
	target, ok := room.ParticipantByIdentity(targetIdentity)
	if !ok {
		return apperror.New(apperror.NotFound, "target is not in this room")
	}
	if target.Sid == session.ParticipantSid {
		return apperror.New(apperror.InvalidRequest, "cannot start a call with yourself")
	}

	call, err := h.deps.Calls.StartCall(room, session.ParticipantSid, target.Sid)
	if err != nil {
		return err
	}

	h.deps.Fanout.Unicast(session.SocketID, callStartedMsg{
		Type: "callStarted", CallID: string(call.CallID), Target: string(target.Sid),
	})
	h.deps.Fanout.Unicast(target.SocketID, callReceivedMsg{
		Type: "callReceived", CallID: string(call.CallID), Caller: string(session.ParticipantSid), Metadata: stringMapField(intent.Payload, "metadata"),
	})
	return nil
}

// respondCallHandler implements acceptCall/rejectCall: the target of a
// pending call transitions it to accepted or rejected.
type respondCallHandler struct {
	deps    *Deps
	toState domain.CallState
}

func (h *respondCallHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}

	callID := domain.CallID(stringField(intent.Payload, "callId"))
	call, ok := room.Call(callID)
	if !ok {
		return apperror.New(apperror.NotFound, "call not found")
	}
	if call.TargetSid != session.ParticipantSid {
		return apperror.New(apperror.PermissionDenied, "only the call's target may respond to it")
	}

	var updated *domain.Call
	if h.toState == domain.CallAccepted {
		updated, err = h.deps.Calls.AcceptCall(room, callID)
	} else {
		updated, err = h.deps.Calls.RejectCall(room, callID)
	}
	if err != nil {
		return err
	}

	caller, _ := room.ParticipantBySid(updated.CallerSid)
	target, _ := room.ParticipantBySid(updated.TargetSid)

	if h.toState == domain.CallAccepted {
		msg := callAcceptedMsg{Type: "callAccepted", CallID: string(callID)}
		if caller != nil {
			h.deps.Fanout.Unicast(caller.SocketID, msg)
		}
		if target != nil {
			h.deps.Fanout.Unicast(target.SocketID, msg)
		}
		return nil
	}

	msg := callRejectedMsg{Type: "callRejected", CallID: string(callID)}
	if caller != nil {
		h.deps.Fanout.Unicast(caller.SocketID, msg)
	}
	if target != nil {
		h.deps.Fanout.Unicast(target.SocketID, msg)
	}
	return nil
}

// endCallHandler implements spec §4.9 endCall: either party may end a
// pending or accepted call.
type endCallHandler struct{ deps *Deps }

func (h *endCallHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}

	callID := domain.CallID(stringField(intent.Payload, "callId"))
	call, ok := room.Call(callID)
	if !ok {
		return apperror.New(apperror.NotFound, "call not found")
	}
	if !call.Involves(session.ParticipantSid) {
		return apperror.New(apperror.PermissionDenied, "only a party to the call may end it")
	}

	updated, err := h.deps.Calls.EndCall(room, callID)
	if err != nil {
		return err
	}

	msg := callEndedMsg{Type: "callEnded", CallID: string(callID)}
	if caller, ok := room.ParticipantBySid(updated.CallerSid); ok {
		h.deps.Fanout.Unicast(caller.SocketID, msg)
	}
	if target, ok := room.ParticipantBySid(updated.TargetSid); ok {
		h.deps.Fanout.Unicast(target.SocketID, msg)
	}
	return nil
}
