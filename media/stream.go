package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// Track is a local media track that can be attached to a peer connection
// and stopped when the call ends. Tracks produced by pion/mediadevices
// satisfy this interface directly.
type Track interface {
	webrtc.TrackLocal
	Close() error
}

// Stream is a bundle of locally captured audio/video tracks. It is the Go
// counterpart of the browser MediaStream handed out by getUserMedia: one
// live instance per client, reused across calls, stopped exactly once.
type Stream struct {
	mu      sync.Mutex
	tracks  []Track
	stopped bool
}

// NewStream wraps the given tracks in a Stream. The stream takes ownership:
// Stop closes every track.
func NewStream(tracks []Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns the tracks in this stream. The returned slice is a copy;
// the underlying tracks are shared.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// HasVideo reports whether the stream carries at least one video track.
func (s *Stream) HasVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return true
		}
	}
	return false
}

// Stop closes every track in the stream. Safe to call more than once;
// only the first call does anything.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tracks := s.tracks
	s.mu.Unlock()

	for _, t := range tracks {
		if err := t.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Stop",
				"track_id": t.ID(),
				"error":    err.Error(),
			}).Warn("Failed to close local track")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Stop",
		"track_count": len(tracks),
	}).Debug("Local stream stopped")
}

// Stopped reports whether Stop has been called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
