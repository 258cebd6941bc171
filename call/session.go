package call

import (
	"time"

	"github.com/google/uuid"
)

// Session is the single process-wide call record, the "ongoing call". At
// most one exists per Manager. Ringing is true only on the callee side
// before pickup; false means either "caller awaiting pickup" or "accepted".
type Session struct {
	ID           string       `json:"id"`
	Participants Participants `json:"participants"`
	Ringing      bool         `json:"isRinging"`
	StartedAt    time.Time    `json:"startedAt"`
}

// NewSession creates a call record with a fresh ID. The ID is advisory
// (logging and UI); correlation between peers relies on the singleton-call
// invariant, not on ID equality.
func NewSession(participants Participants, ringing bool) Session {
	return Session{
		ID:           uuid.NewString(),
		Participants: participants,
		Ringing:      ringing,
		StartedAt:    time.Now(),
	}
}

// Merge combines a remote snapshot of the same call into this session,
// field-wise, so that signaling events arriving out of order never erase
// locally known data:
//
//   - ID and StartedAt: first writer wins, kept once set locally.
//   - Participants: the remote value wins when it actually names a caller.
//   - Ringing: monotonic and-merge; once either side has observed pickup
//     (ringing=false), the call never reverts to ringing.
//
// Merge never mutates the receiver; it returns the merged value.
func (s Session) Merge(remote Session) Session {
	merged := s
	if merged.ID == "" {
		merged.ID = remote.ID
	}
	if remote.Participants.Caller.ID != "" {
		merged.Participants = remote.Participants
	}
	merged.Ringing = s.Ringing && remote.Ringing
	if merged.StartedAt.IsZero() {
		merged.StartedAt = remote.StartedAt
	}
	return merged
}
