package signaling

import "encoding/json"

// Event is the envelope for every message exchanged with the relay server.
// Op identifies the event type; Data is the op-specific payload, decoded by
// whichever component owns that op.
type Event struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Client → server ops, relayed to the addressed user.
const (
	// OpUserConnected announces this client to the relay after (re)connect.
	OpUserConnected = "user_connected"
	// OpCall asks the relay to ring the receiver. Payload: Participants.
	OpCall = "call"
	// OpCallAccepted tells the caller the callee picked up and negotiation
	// may start. Payload: the callee's call session snapshot.
	OpCallAccepted = "callAccepted"
	// OpWebRTCSignal relays one unit of SDP/ICE negotiation data.
	OpWebRTCSignal = "webrtcSignal"
	// OpHangup ends a call that reached negotiation or media flow.
	OpHangup = "hangup"
	// OpHangupDuringInitiation cancels a call before pickup, letting the
	// remote side distinguish "cancelled before pickup" from "ended".
	OpHangupDuringInitiation = "hangupDuringInitiation"
)

// Server → client ops.
const (
	// OpIncomingCall delivers a ring. Payload: Participants.
	OpIncomingCall = "incomingCall"
	// OpCallCancelled reports the remote party hung up or cancelled.
	OpCallCancelled = "callCancelled"
	// OpConnectionRequestReceived reports a new connection request.
	OpConnectionRequestReceived = "connectionRequestReceived"
	// OpConnectionRequestAccepted reports an accepted connection request.
	OpConnectionRequestAccepted = "connectionRequestAccepted"
)

// UserConnectedData is the OpUserConnected payload.
type UserConnectedData struct {
	UserID string `json:"userId"`
}

// CallCancelledData is the OpCallCancelled payload.
type CallCancelledData struct {
	Message string `json:"message"`
}

// ConnectionRequestData is the payload of both connection-request ops.
type ConnectionRequestData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
