package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream collects the remote tracks that arrive for one remote media
// stream ID. It is created when the first remote track arrives, never
// synchronously with peer creation, and grows as further tracks of the
// same stream trickle in.
type RemoteStream struct {
	id string

	mu     sync.RWMutex
	tracks []*webrtc.TrackRemote
}

// ID returns the remote media stream identifier.
func (r *RemoteStream) ID() string {
	return r.id
}

// Tracks returns the remote tracks received so far. The slice is a copy.
func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*webrtc.TrackRemote, len(r.tracks))
	copy(out, r.tracks)
	return out
}

func (r *RemoteStream) addTrack(t *webrtc.TrackRemote) {
	r.mu.Lock()
	r.tracks = append(r.tracks, t)
	r.mu.Unlock()
}
