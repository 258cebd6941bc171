package call

import "errors"

// Sentinel errors for call operations. These enable reliable error
// classification with errors.Is().
var (
	// ErrCallAlreadyActive indicates a call already exists; the user must
	// hang up before initiating another.
	ErrCallAlreadyActive = errors.New("a call is already active")

	// ErrNoIncomingCall indicates Join was called with no ringing call.
	ErrNoIncomingCall = errors.New("no incoming call to join")

	// ErrMediaUnavailable indicates the local camera/microphone could not
	// be acquired. Not retryable without a new user action: permission
	// prompts require a fresh user gesture.
	ErrMediaUnavailable = errors.New("local media unavailable")

	// ErrCallEnded indicates the call was torn down while the operation
	// was in flight (remote cancel racing a local accept).
	ErrCallEnded = errors.New("call ended")

	// ErrManagerClosed indicates the manager was shut down.
	ErrManagerClosed = errors.New("call manager closed")
)
