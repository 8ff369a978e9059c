package handlers

import (
	"context"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/dispatch"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/mediaengine"
	"github.com/meshcall/controlplane/internal/signaling"
	"github.com/meshcall/controlplane/internal/logging"
	"go.uber.org/zap"
)

// subscribeHandler implements spec §4.9 subscribeToParticipant: create one
// consumer per track the target currently has published. A failure on one
// track does not abort the others — each is attempted independently and
// reported on its own trackSubscribed/omission.
type subscribeHandler struct{ deps *Deps }

func (h *subscribeHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, p, err := currentParticipant(h.deps, session)
	if err != nil {
		return err
	}
	if !p.Permissions.MaySubscribe {
		return apperror.New(apperror.PermissionDenied, "credential does not grant canSubscribe")
	}

	targetSid := domain.ParticipantID(stringField(intent.Payload, "participantSid"))
	target, ok := room.ParticipantBySid(targetSid)
	if !ok {
		return apperror.New(apperror.NotFound, "target participant not in room")
	}

	recvTransportID, ok := p.RecvTransportID()
	if !ok {
		info, err := h.deps.Media.CreateTransport(ctx, room.Sid, mediaengine.DirectionRecv, nil)
		if err != nil {
			return err
		}
		p.SetRecvTransportID(info.ID)
		recvTransportID = info.ID
	}

	for _, track := range target.Tracks() {
		consumer, err := h.deps.Media.CreateConsumer(ctx, recvTransportID, string(track.Sid), nil)
		if err != nil {
			logging.Warn(ctx, "failed to create consumer for track",
				zap.String("trackSid", string(track.Sid)), zap.Error(err))
			continue
		}
		p.AddConsumer(targetSid, track.Sid, consumer.ID)
		h.deps.Fanout.Unicast(session.SocketID, trackSubscribedMsg{
			Type:           "trackSubscribed",
			ParticipantSid: string(targetSid),
			Track:          track,
			ConsumerID:     consumer.ID,
			RTPParameters:  consumer.RTPParameters,
		})
	}
	return nil
}

// unsubscribeHandler implements spec §4.9 unsubscribeFromParticipant.
type unsubscribeHandler struct{ deps *Deps }

func (h *unsubscribeHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	_, p, err := currentParticipant(h.deps, session)
	if err != nil {
		return err
	}

	targetSid := domain.ParticipantID(stringField(intent.Payload, "participantSid"))
	consumers := p.RemoveConsumersFor(targetSid)
	for trackSid, consumerID := range consumers {
		if err := h.deps.Media.CloseConsumer(ctx, consumerID); err != nil {
			logging.Warn(ctx, "failed to close consumer",
				zap.String("consumerId", consumerID), zap.Error(err))
		}
		h.deps.Fanout.Unicast(session.SocketID, trackUnsubscribedMsg{
			Type:           "trackUnsubscribed",
			ParticipantSid: string(targetSid),
			TrackSid:       string(trackSid),
		})
	}
	return nil
}
