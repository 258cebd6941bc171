// Package call implements the client-side call state machine: the single
// component allowed to create, mutate and destroy call state.
//
// A Manager owns at most one Session (the ongoing call) and at most one
// PeerData (the live peer connection) at a time. Every transition funnels
// through the Manager: user intents (Initiate, Join, Hangup) arrive as
// method calls, remote events arrive over the signaling transport and are
// consumed by a single dispatch goroutine, so no two inbound handlers ever
// interleave.
//
// States:
//
//	Idle        - no call
//	Dialing     - caller, waiting for pickup
//	Ringing     - callee, not yet accepted
//	Negotiating - accepted, SDP/ICE exchange in progress
//	Active      - remote media stream present
//
// Role assignment is deterministic: the original caller is always the SDP
// offerer and the callee always answers. The callee signals pickup with a
// callAccepted event; the caller creates its peer connection on receipt
// (or, if that event is lost, on the callee's first webrtcSignal, which
// implies acceptance).
//
// Signaling events for the same call may arrive out of order. Session
// snapshots carried by remote events are therefore merged field-wise into
// local state rather than overwriting it, and any signal arriving after the
// call was torn down is dropped.
package call
