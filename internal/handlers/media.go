package handlers

import (
	"context"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/dispatch"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/mediaengine"
	"github.com/meshcall/controlplane/internal/signaling"
)

func currentParticipant(deps *Deps, session *dispatch.Session) (*domain.Room, *domain.Participant, error) {
	room, err := currentRoom(deps, session)
	if err != nil {
		return nil, nil, err
	}
	p, ok := room.ParticipantBySid(session.ParticipantSid)
	if !ok {
		return nil, nil, apperror.New(apperror.NotFound, "participant not found in room")
	}
	return room, p, nil
}

// enableTrackHandler implements spec §4.9 enableCamera/enableMicrophone,
// including the same-(source,kind)-replaces-first rule.
type enableTrackHandler struct {
	deps          *Deps
	kind          domain.TrackKind
	defaultSource domain.TrackSource
}

func (h *enableTrackHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, p, err := currentParticipant(h.deps, session)
	if err != nil {
		return err
	}
	if !p.Permissions.MayPublish {
		return apperror.New(apperror.PermissionDenied, "credential does not grant canPublish")
	}

	source := h.defaultSource
	if s := stringField(intent.Payload, "source"); s != "" {
		source = domain.TrackSource(s)
	}

	transportID, ok := p.SendTransportID()
	if !ok {
		info, err := h.deps.Media.CreateTransport(ctx, room.Sid, mediaengine.DirectionSend, nil)
		if err != nil {
			return err
		}
		p.SetSendTransportID(info.ID)
		transportID = info.ID
	}

	if old, ok := p.TrackBySource(source, h.kind); ok {
		oldProducerID, _ := p.RemoveTrack(old.Sid)
		_ = h.deps.Media.CloseProducer(ctx, oldProducerID)
		h.deps.Fanout.Broadcast(room, trackUnpublishedMsg{
			Type: "trackUnpublished", ParticipantSid: string(p.Sid), TrackSid: string(old.Sid),
		}, session.SocketID)
	}

	producerInfo, err := h.deps.Media.CreateProducer(ctx, transportID, h.kind, source, nil, nil)
	if err != nil {
		return err
	}

	track := &domain.Track{Sid: domain.TrackID(producerInfo.ID), Kind: h.kind, Source: source}
	p.PublishTrack(track, producerInfo.ID)

	if h.kind == domain.TrackKindVideo {
		h.deps.Fanout.Unicast(session.SocketID, cameraEnabledMsg{Type: "cameraEnabled", TrackSid: string(track.Sid)})
	} else {
		h.deps.Fanout.Unicast(session.SocketID, microphoneEnabledMsg{Type: "microphoneEnabled", TrackSid: string(track.Sid)})
	}
	h.deps.Fanout.Broadcast(room, trackPublishedMsg{
		Type: "trackPublished", ParticipantSid: string(p.Sid), Track: track,
	}, session.SocketID)
	return nil
}

// disableTrackHandler implements spec §4.9 disableCamera/disableMicrophone.
type disableTrackHandler struct {
	deps   *Deps
	source domain.TrackSource
}

func trackKindForSource(source domain.TrackSource) domain.TrackKind {
	if source == domain.TrackSourceMicrophone || source == domain.TrackSourceScreenAudio {
		return domain.TrackKindAudio
	}
	return domain.TrackKindVideo
}

func (h *disableTrackHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, p, err := currentParticipant(h.deps, session)
	if err != nil {
		return err
	}

	track, ok := p.TrackBySource(h.source, trackKindForSource(h.source))
	if !ok {
		return apperror.New(apperror.NotFound, "no published track for this source")
	}
	producerID, _ := p.RemoveTrack(track.Sid)
	if err := h.deps.Media.CloseProducer(ctx, producerID); err != nil {
		return err
	}

	h.deps.Fanout.Broadcast(room, trackUnpublishedMsg{
		Type: "trackUnpublished", ParticipantSid: string(p.Sid), TrackSid: string(track.Sid),
	}, session.SocketID)
	return nil
}

// setTrackMutedHandler implements spec §4.9 muteTrack/unmuteTrack —
// broadcast to everyone, including the originator, per spec's wording
// ("broadcast ... to all").
type setTrackMutedHandler struct {
	deps  *Deps
	muted bool
}

func (h *setTrackMutedHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, p, err := currentParticipant(h.deps, session)
	if err != nil {
		return err
	}

	trackSid := domain.TrackID(stringField(intent.Payload, "trackSid"))
	if !p.SetTrackMuted(trackSid, h.muted) {
		return apperror.New(apperror.NotFound, "track not found")
	}

	if h.muted {
		h.deps.Fanout.Broadcast(room, trackMutedMsg{Type: "trackMuted", ParticipantSid: string(p.Sid), TrackSid: string(trackSid)}, "")
	} else {
		h.deps.Fanout.Broadcast(room, trackUnmutedMsg{Type: "trackUnmuted", ParticipantSid: string(p.Sid), TrackSid: string(trackSid)}, "")
	}
	return nil
}
