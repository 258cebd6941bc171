package peer

import "github.com/pion/webrtc/v4"

// Signal type identifiers carried in SignalData.Type.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalData is one unit of negotiation data produced by a peer connection:
// an SDP offer, an SDP answer, or a single trickled ICE candidate. The relay
// server never inspects it.
type SignalData struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}
