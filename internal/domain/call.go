package domain

import "time"

// Call is a signaling-level call between two participants in the same
// room. Its state machine is enforced by the CallManager (application
// service G), not here — this type only carries the data.
type Call struct {
	CallID     CallID
	CallerSid  ParticipantID
	TargetSid  ParticipantID
	State      CallState
	StartTime  time.Time
	EndTime    *time.Time
	Metadata   map[string]string
}

// Pair returns the unordered-pair key for this call's two participants.
func (c *Call) Pair() string {
	return pairKey(c.CallerSid, c.TargetSid)
}

// Involves reports whether sid is either party to this call.
func (c *Call) Involves(sid ParticipantID) bool {
	return c.CallerSid == sid || c.TargetSid == sid
}

// OtherParty returns the call participant that is not sid.
func (c *Call) OtherParty(sid ParticipantID) ParticipantID {
	if c.CallerSid == sid {
		return c.TargetSid
	}
	return c.CallerSid
}
