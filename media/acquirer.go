package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sentinel errors for media acquisition.
var (
	// ErrCaptureUnsupported indicates no capture backend exists on this
	// platform and no custom CaptureFunc was supplied.
	ErrCaptureUnsupported = errors.New("media capture not supported on this platform")

	// ErrCaptureFailed indicates the capture backend could not open any
	// device. Permission prompts require a new user gesture, so callers
	// must not retry automatically.
	ErrCaptureFailed = errors.New("media capture failed")
)

// CaptureFunc opens the local camera and microphone and returns the captured
// stream. facingMode is a hint ("user" or "environment") honored where the
// platform can express it.
type CaptureFunc func(facingMode string) (*Stream, error)

// Acquirer owns the single local media stream for a client. It is the only
// component allowed to create or stop local streams; the call state machine
// asks it for the stream and reports termination through Release.
type Acquirer struct {
	mu      sync.Mutex
	capture CaptureFunc
	stream  *Stream
}

// NewAcquirer creates an Acquirer. If capture is nil the platform default
// is used (pion/mediadevices on Linux, unsupported elsewhere).
func NewAcquirer(capture CaptureFunc) *Acquirer {
	if capture == nil {
		capture = deviceCapture
	}
	return &Acquirer{capture: capture}
}

// GetLocalStream returns the local camera+microphone stream, opening it on
// first use. If a live stream already exists it is returned unchanged;
// no second capture session is ever opened while one is live.
//
// On failure the cached reference is cleared and an error is returned; the
// caller must treat this as "cannot proceed with the call" rather than a
// transient condition.
func (a *Acquirer) GetLocalStream(facingMode string) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil && !a.stream.Stopped() {
		logrus.WithFields(logrus.Fields{
			"function": "GetLocalStream",
		}).Debug("Reusing existing local stream")
		return a.stream, nil
	}

	// Drop any stale reference to a stopped stream before capturing.
	a.stream = nil

	stream, err := a.capture(facingMode)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "GetLocalStream",
			"facing_mode": facingMode,
			"error":       err.Error(),
		}).Warn("Local media capture failed")
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	a.stream = stream
	logrus.WithFields(logrus.Fields{
		"function":    "GetLocalStream",
		"track_count": len(stream.Tracks()),
		"has_video":   stream.HasVideo(),
	}).Info("Local stream acquired")

	return stream, nil
}

// Current returns the live local stream without opening one. ok is false
// when no stream has been acquired or the stream was already released.
func (a *Acquirer) Current() (stream *Stream, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil || a.stream.Stopped() {
		return nil, false
	}
	return a.stream, true
}

// Release stops every track of the current stream and clears the cached
// reference. It must be called on every call-termination path. Calling it
// with no live stream is a no-op.
func (a *Acquirer) Release() {
	a.mu.Lock()
	stream := a.stream
	a.stream = nil
	a.mu.Unlock()

	if stream == nil {
		return
	}
	stream.Stop()
	logrus.WithFields(logrus.Fields{
		"function": "Release",
	}).Info("Local stream released")
}
