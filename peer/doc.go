// Package peer wraps a single pion/webrtc peer connection for a two-party
// call.
//
// A Peer is created once per accepted call and destroyed on hangup or ICE
// failure; it is never reused across calls. The offerer side generates the
// SDP offer and the answerer waits for it; roles are fixed at creation.
// Negotiation data (offer, answer, trickled ICE candidates) is surfaced
// through the OnSignal callback one emission at a time; the call state
// machine is responsible for relaying each emission to the remote side.
//
// Only STUN servers are configured. There is no TURN fallback, so peers
// behind symmetric NATs may fail to connect; the resulting ICE failure is
// reported through OnFailure and ends the call.
package peer
