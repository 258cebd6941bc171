// Package signaling maintains the client's long-lived websocket connection
// to the relay server and carries the typed call-signaling events over it.
//
// The relay is a black box that routes events between clients by user ID.
// On every (re)connect the client announces itself with a user_connected
// event so the relay can address it. Inbound events are fanned out two
// ways: per-op handlers registered with RegisterHandler, and subscription
// channels obtained from Subscribe; the call state machine consumes the
// latter from a single dispatch goroutine.
//
// A dropped connection is redialed with exponential backoff. The relay
// keeps no call state, so a reconnect cannot resume an in-flight call;
// the OnReconnect callback exists so the owner can invalidate one.
package signaling
