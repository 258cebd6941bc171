// Package media manages acquisition of the local camera and microphone
// stream used by calls.
//
// The package enforces two rules the call core depends on:
//
//   - At most one live local stream exists per Acquirer. Repeated
//     GetLocalStream calls return the cached stream unchanged, so the user
//     is never prompted for device permission twice.
//   - Release must be invoked on every call-termination path. It stops every
//     track and clears the cache; skipping it leaks the camera and
//     microphone indicators.
//
// Actual device capture is platform-specific and pluggable: on Linux the
// default CaptureFunc drives pion/mediadevices (V4L2 camera, malgo
// microphone); elsewhere the embedding application must supply its own
// capture function.
package media
