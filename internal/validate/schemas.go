package validate

// init populates Registry with one Schema per intent type the dispatcher
// (component K) and handlers (component L) recognize, per spec §4.9 and
// SPEC_FULL.md §12's supplemented admin/waiting-room/screenshare intents.
func init() {
	register(Schema{IntentType: "joinRoom", Fields: []Field{
		{Name: "room", Required: true, Kind: KindRoomName},
		{Name: "token", Required: true, Kind: KindString},
		{Name: "metadata", Required: false, Kind: KindMetadata},
	}})
	register(Schema{IntentType: "leaveRoom"})
	register(Schema{IntentType: "startCall", Fields: []Field{
		{Name: "targetUserId", Required: true, Kind: KindIdentity},
		{Name: "metadata", Required: false, Kind: KindMetadata},
	}})
	register(Schema{IntentType: "acceptCall", Fields: []Field{
		{Name: "callId", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "rejectCall", Fields: []Field{
		{Name: "callId", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "endCall", Fields: []Field{
		{Name: "callId", Required: true, Kind: KindString},
	}})

	register(Schema{IntentType: "enableCamera", Fields: []Field{
		{Name: "source", Required: false, Kind: KindString, OneOf: []string{"camera", "screen"}},
	}})
	register(Schema{IntentType: "enableMicrophone", Fields: []Field{
		{Name: "source", Required: false, Kind: KindString, OneOf: []string{"microphone", "screenAudio"}},
	}})
	register(Schema{IntentType: "disableCamera"})
	register(Schema{IntentType: "disableMicrophone"})

	register(Schema{IntentType: "muteTrack", Fields: []Field{
		{Name: "trackSid", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "unmuteTrack", Fields: []Field{
		{Name: "trackSid", Required: true, Kind: KindString},
	}})

	register(Schema{IntentType: "subscribeToParticipant", Fields: []Field{
		{Name: "participantSid", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "unsubscribeFromParticipant", Fields: []Field{
		{Name: "participantSid", Required: true, Kind: KindString},
	}})

	register(Schema{IntentType: "sendData", Fields: []Field{
		{Name: "payload", Required: true, Kind: KindString},
		{Name: "kind", Required: true, Kind: KindString, OneOf: []string{"reliable", "lossy"}},
	}})
	register(Schema{IntentType: "getRecentData", Fields: []Field{
		{Name: "channel", Required: true, Kind: KindString},
		{Name: "limit", Required: false, Kind: KindNumber},
	}})

	// Supplemented admin/moderation intents (SPEC_FULL.md §12).
	register(Schema{IntentType: "kickParticipant", Fields: []Field{
		{Name: "targetSid", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "muteParticipantTrack", Fields: []Field{
		{Name: "targetSid", Required: true, Kind: KindString},
		{Name: "trackSid", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "acceptWaiting", Fields: []Field{
		{Name: "targetSid", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "denyWaiting", Fields: []Field{
		{Name: "targetSid", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "requestScreenshare"})
	register(Schema{IntentType: "grantScreenshare", Fields: []Field{
		{Name: "targetSid", Required: true, Kind: KindString},
	}})
	register(Schema{IntentType: "denyScreenshare", Fields: []Field{
		{Name: "targetSid", Required: true, Kind: KindString},
	}})
}
