//go:build linux

package media

import (
	"errors"
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/sirupsen/logrus"
)

// deviceCapture opens the local camera and microphone via pion/mediadevices
// (V4L2 camera, malgo microphone). Audio is requested unconditionally; video
// only when a video input device actually exists. facingMode is logged but
// V4L2 exposes no facing metadata, so it cannot influence device selection
// here.
//
// Capture is attempted with a fallback ladder: video+audio first, then
// audio-only, so a missing or busy camera does not prevent a voice call.
func deviceCapture(facingMode string) (*Stream, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	hasCamera := false
	for _, d := range mediadevices.EnumerateDevices() {
		logrus.WithFields(logrus.Fields{
			"function": "deviceCapture",
			"kind":     fmt.Sprintf("%v", d.Kind),
			"label":    d.Label,
		}).Debug("Found media device")
		if d.Kind == mediadevices.VideoInput {
			hasCamera = true
		}
	}
	if facingMode != "" {
		logrus.WithFields(logrus.Fields{
			"function":    "deviceCapture",
			"facing_mode": facingMode,
			"has_camera":  hasCamera,
		}).Debug("Facing mode requested")
	}

	type attempt struct {
		video bool
		label string
	}
	attempts := []attempt{{false, "audio-only"}}
	if hasCamera {
		attempts = []attempt{{true, "video+audio"}, {false, "audio-only"}}
	}

	var lastErr error
	for _, a := range attempts {
		constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Raw formats only: some cameras expose an MJPEG node that
				// produces malformed frames and poisons the VP8 encoder.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Min: 320, Ideal: 640, Max: 1280}
				c.Height = prop.IntRanged{Min: 240, Ideal: 480, Max: 720}
				c.FrameRate = prop.FloatRanged{Min: 10, Ideal: 30, Max: 30}
			}
		}

		ms, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			lastErr = err
			logrus.WithFields(logrus.Fields{
				"function": "deviceCapture",
				"attempt":  a.label,
				"error":    err.Error(),
			}).Warn("GetUserMedia attempt failed")
			continue
		}

		mdTracks := ms.GetTracks()
		tracks := make([]Track, 0, len(mdTracks))
		for _, t := range mdTracks {
			t.OnEnded(func(err error) {
				if err != nil {
					logrus.WithFields(logrus.Fields{
						"function": "deviceCapture",
						"error":    err.Error(),
					}).Warn("Local track ended")
				}
			})
			tracks = append(tracks, t)
		}

		logrus.WithFields(logrus.Fields{
			"function":    "deviceCapture",
			"attempt":     a.label,
			"track_count": len(tracks),
		}).Info("Local media captured")
		return NewStream(tracks), nil
	}

	if lastErr == nil {
		lastErr = errors.New("no capture attempt succeeded")
	}
	return nil, lastErr
}
