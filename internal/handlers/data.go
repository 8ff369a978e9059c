package handlers

import (
	"context"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/dispatch"
	"github.com/meshcall/controlplane/internal/domain"
	"github.com/meshcall/controlplane/internal/signaling"
	"github.com/meshcall/controlplane/internal/validate"
)

// sendDataHandler implements spec §4.9 sendData: relays an application
// payload to the rest of the room and, for reliable payloads, records it
// into the room's recent-data ring buffer (SPEC_FULL.md §12). The wire
// schema carries a "channel" dimension on getRecentData that the ring
// buffer does not currently partition by — every reliable payload lands
// in one undifferentiated per-room buffer regardless of channel.
//
// A "reliable" payload prefers the media engine's own data channel
// (SPEC_FULL.md §13): when the sender's send-transport reports
// DataChannelReady, the media engine's already-established data producer
// carries the bytes to subscribers and this handler only records it for
// getRecentData, skipping the signaling broadcast. Otherwise — "lossy"
// payloads, or a reliable payload whose data channel isn't up yet — it
// falls back to relaying over the signaling connection, where the smaller
// signaling-relay size cap applies whatever the payload's kind.
type sendDataHandler struct{ deps *Deps }

func (h *sendDataHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, p, err := currentParticipant(h.deps, session)
	if err != nil {
		return err
	}
	if !p.Permissions.MayPublishData {
		return apperror.New(apperror.PermissionDenied, "credential does not grant canPublishData")
	}

	payload := stringField(intent.Payload, "payload")
	kind := stringField(intent.Payload, "kind")
	reliable := kind == "reliable"

	viaDataChannel := false
	if reliable && h.deps.Media != nil {
		transportID, ok := p.SendTransportID()
		viaDataChannel = ok && h.deps.Media.DataChannelReady(transportID)
	}
	capKind := "lossy"
	if viaDataChannel {
		capKind = kind
	}
	if err := validate.ValidateDataPayloadSize(capKind, len(payload)); err != nil {
		return err
	}

	if reliable {
		room.RecordData(domain.DataRecord{
			ParticipantSid: p.Sid,
			Payload:        payload,
			Kind:           kind,
			Timestamp:      time.Now(),
		})
	}

	if viaDataChannel {
		return nil
	}

	h.deps.Fanout.Broadcast(room, dataReceivedMsg{
		Type:           "dataReceived",
		ParticipantSid: string(p.Sid),
		Payload:        payload,
		Kind:           kind,
	}, session.SocketID)
	return nil
}

// getRecentDataHandler implements spec §4.9 getRecentData.
type getRecentDataHandler struct{ deps *Deps }

func (h *getRecentDataHandler) Handle(ctx context.Context, session *dispatch.Session, intent signaling.Intent) error {
	room, err := currentRoom(h.deps, session)
	if err != nil {
		return err
	}

	channel := stringField(intent.Payload, "channel")
	limit := 0
	if n, ok := intent.Payload["limit"].(float64); ok {
		limit = int(n)
	}

	entries := room.RecentData(limit)
	h.deps.Fanout.Unicast(session.SocketID, recentDataMsg{
		Type:    "recentData",
		Channel: channel,
		Entries: entries,
	})
	return nil
}
