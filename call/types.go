package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/lingopeer/callkit/peer"
)

// User is an opaque identity reference owned by the auth subsystem. The
// call core only reads it, never mutates it.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Participants identifies the two parties of a call. Immutable once the
// call is created.
type Participants struct {
	Caller   User `json:"caller"`
	Receiver User `json:"receiver"`
}

// State is the call state machine's current phase.
type State int

const (
	// StateIdle indicates no call exists.
	StateIdle State = iota
	// StateDialing indicates this client is the caller awaiting pickup.
	StateDialing
	// StateRinging indicates this client is the callee and has not accepted.
	StateRinging
	// StateNegotiating indicates the call was accepted and SDP/ICE exchange
	// is in progress.
	StateNegotiating
	// StateActive indicates the remote media stream has arrived.
	StateActive
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateRinging:
		return "ringing"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// SignalPayload carries one unit of negotiation data across the relay,
// together with the sender's view of the call. Transient: it exists for a
// single signaling round-trip and is never persisted.
type SignalPayload struct {
	Signal      peer.SignalData `json:"sdp"`
	OngoingCall Session         `json:"ongoingCall"`
	IsCaller    bool            `json:"isCaller"`
}

// PeerData is the live peer connection of an accepted call. Created only
// after both sides committed to the call; Stream is populated
// asynchronously when the first remote track arrives.
type PeerData struct {
	Handle      PeerHandle
	Stream      *peer.RemoteStream
	Participant User
}

// PeerHandle is the narrow surface the state machine needs from a peer
// connection. *peer.Peer satisfies it; tests substitute mocks.
type PeerHandle interface {
	// HandleSignal applies remote negotiation data.
	HandleSignal(sig peer.SignalData) error

	// SetTrackEnabled pauses or resumes outgoing media of one kind.
	SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) error

	// Close tears down the connection. Idempotent.
	Close() error
}
