package handlers

import "github.com/meshcall/controlplane/internal/domain"

// roomView is the minimal room shape embedded in roomJoined.
type roomView struct {
	Sid  string `json:"sid"`
	Name string `json:"name"`
}

type roomJoinedMsg struct {
	Type              string            `json:"type"`
	Room              roomView          `json:"room"`
	Participant       domain.Snapshot   `json:"participant"`
	OtherParticipants []domain.Snapshot `json:"otherParticipants"`
}

type waitingForApprovalMsg struct {
	Type string `json:"type"`
	Room roomView `json:"room"`
}

type participantJoinedMsg struct {
	Type        string          `json:"type"`
	Participant domain.Snapshot `json:"participant"`
}

type participantLeftMsg struct {
	Type           string `json:"type"`
	ParticipantSid string `json:"participantSid"`
}

type callStartedMsg struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	Target string `json:"target"`
}

type callReceivedMsg struct {
	Type     string            `json:"type"`
	CallID   string            `json:"callId"`
	Caller   string            `json:"caller"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type callAcceptedMsg struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type callRejectedMsg struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type callEndedMsg struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
}

type cameraEnabledMsg struct {
	Type    string `json:"type"`
	TrackSid string `json:"trackSid"`
}

type microphoneEnabledMsg struct {
	Type    string `json:"type"`
	TrackSid string `json:"trackSid"`
}

type trackPublishedMsg struct {
	Type           string       `json:"type"`
	ParticipantSid string       `json:"participantSid"`
	Track          *domain.Track `json:"track"`
}

type trackUnpublishedMsg struct {
	Type           string `json:"type"`
	ParticipantSid string `json:"participantSid"`
	TrackSid       string `json:"trackSid"`
}

type trackMutedMsg struct {
	Type           string `json:"type"`
	ParticipantSid string `json:"participantSid"`
	TrackSid       string `json:"trackSid"`
}

type trackUnmutedMsg struct {
	Type           string `json:"type"`
	ParticipantSid string `json:"participantSid"`
	TrackSid       string `json:"trackSid"`
}

type trackSubscribedMsg struct {
	Type           string                 `json:"type"`
	ParticipantSid string                 `json:"participantSid"`
	Track          *domain.Track          `json:"track"`
	ConsumerID     string                 `json:"consumerId"`
	RTPParameters  map[string]interface{} `json:"rtpParameters"`
}

type trackUnsubscribedMsg struct {
	Type           string `json:"type"`
	ParticipantSid string `json:"participantSid"`
	TrackSid       string `json:"trackSid"`
}

type dataReceivedMsg struct {
	Type           string `json:"type"`
	ParticipantSid string `json:"participantSid"`
	Payload        string `json:"payload"`
	Kind           string `json:"kind"`
}

type recentDataMsg struct {
	Type    string             `json:"type"`
	Channel string             `json:"channel"`
	Entries []domain.DataRecord `json:"entries"`
}

type waitingForApprovalDeniedMsg struct {
	Type string `json:"type"`
}

type screenshareRequestedMsg struct {
	Type         string `json:"type"`
	RequesterSid string `json:"requesterSid"`
}

type screenshareGrantedMsg struct {
	Type string `json:"type"`
}

type screenshareDeniedMsg struct {
	Type string `json:"type"`
}
