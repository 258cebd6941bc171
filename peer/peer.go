package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/lingopeer/callkit/media"
)

// Role fixes which side of the call drives SDP negotiation.
type Role int

const (
	// RoleOfferer generates the SDP offer. The original caller always
	// takes this role.
	RoleOfferer Role = iota
	// RoleAnswerer waits for the remote offer and answers it.
	RoleAnswerer
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "unknown"
	}
}

// Sentinel errors for peer operations.
var (
	// ErrPeerClosed indicates the peer connection was already closed.
	ErrPeerClosed = errors.New("peer connection closed")

	// ErrUnknownSignal indicates a signal with an unrecognized type.
	ErrUnknownSignal = errors.New("unknown signal type")
)

// Config carries peer connection settings.
type Config struct {
	// STUNServers are stun: URLs used for ICE candidate discovery.
	// No TURN relay is configured by design.
	STUNServers []string
}

// Callbacks are the peer's only outputs. All of them fire asynchronously
// from pion goroutines; none may be assumed to fire before New returns.
type Callbacks struct {
	// OnSignal fires each time negotiation produces data to send to the
	// remote side: once for the offer or answer, then once per trickled
	// ICE candidate.
	OnSignal func(SignalData)

	// OnRemoteStream fires exactly once per remote media stream, when its
	// first track arrives.
	OnRemoteStream func(*RemoteStream)

	// OnFailure fires at most once, when the ICE connection reaches
	// disconnected or failed. There is no automatic recovery.
	OnFailure func(error)
}

// Peer wraps one webrtc.PeerConnection for the duration of a single call.
type Peer struct {
	pc   *webrtc.PeerConnection
	role Role
	cb   Callbacks

	mu                sync.Mutex
	closed            bool
	failed            bool
	remoteDescription bool
	pendingCandidates []webrtc.ICECandidateInit
	remoteStreams     map[string]*RemoteStream
	senders           []trackSender
}

// trackSender pairs an RTP sender with its original local track so the
// track can be restored after muting.
type trackSender struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
}

// New creates a peer connection for one call. stream may be nil, in which
// case receive-only transceivers are added so the SDP still carries valid
// media sections. The offerer begins negotiating immediately; signal
// emissions arrive via cb.OnSignal.
func New(cfg Config, stream *media.Stream, role Role, cb Callbacks) (*Peer, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.STUNServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:            pc,
		role:          role,
		cb:            cb,
		remoteStreams: make(map[string]*RemoteStream),
	}

	if stream != nil {
		for _, t := range stream.Tracks() {
			sender, err := pc.AddTrack(t)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "New",
					"track_id": t.ID(),
					"error":    err.Error(),
				}).Warn("Failed to add local track")
				continue
			}
			p.senders = append(p.senders, trackSender{sender: sender, track: t})
		}
	} else {
		addRecvOnlyTransceivers(pc)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		p.emit(SignalData{Type: SignalCandidate, Candidate: &init})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.handleRemoteTrack(track)
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logrus.WithFields(logrus.Fields{
			"function": "OnICEConnectionStateChange",
			"role":     role.String(),
			"state":    state.String(),
		}).Debug("ICE connection state changed")

		if state == webrtc.ICEConnectionStateDisconnected || state == webrtc.ICEConnectionStateFailed {
			p.fail(fmt.Errorf("ice connection %s", state))
		}
	})

	logrus.WithFields(logrus.Fields{
		"function":  "New",
		"role":      role.String(),
		"has_media": stream != nil,
	}).Info("Peer connection created")

	if role == RoleOfferer {
		go p.negotiate()
	}

	return p, nil
}

// addRecvOnlyTransceivers adds recvonly transceivers for video and audio so
// CreateOffer/CreateAnswer always produce valid m-lines even without local
// media.
func addRecvOnlyTransceivers(pc *webrtc.PeerConnection) {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "addRecvOnlyTransceivers",
				"kind":     kind.String(),
				"error":    err.Error(),
			}).Warn("Failed to add recvonly transceiver")
		}
	}
}

// negotiate creates the offer and emits it. Runs in its own goroutine so
// signal emissions never overlap with the constructor.
func (p *Peer) negotiate() {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "negotiate",
			"error":    err.Error(),
		}).Error("CreateOffer failed")
		return
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "negotiate",
			"error":    err.Error(),
		}).Error("SetLocalDescription failed")
		return
	}
	p.emit(SignalData{Type: SignalOffer, SDP: offer.SDP})
}

// HandleSignal applies negotiation data received from the remote side.
// Candidates that arrive before the remote description are buffered and
// flushed once it is set, so out-of-order delivery is tolerated. Errors are
// reported to the caller for logging but do not end the call; only ICE
// failure does.
func (p *Peer) HandleSignal(sig SignalData) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPeerClosed
	}
	p.mu.Unlock()

	switch sig.Type {
	case SignalOffer:
		if p.role != RoleAnswerer {
			logrus.WithFields(logrus.Fields{
				"function": "HandleSignal",
				"role":     p.role.String(),
			}).Warn("Ignoring offer received by offerer")
			return nil
		}
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  sig.SDP,
		}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		p.flushPendingCandidates()

		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		p.emit(SignalData{Type: SignalAnswer, SDP: answer.SDP})
		return nil

	case SignalAnswer:
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  sig.SDP,
		}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		p.flushPendingCandidates()
		return nil

	case SignalCandidate:
		if sig.Candidate == nil {
			return fmt.Errorf("%w: candidate signal without candidate", ErrUnknownSignal)
		}
		p.mu.Lock()
		if !p.remoteDescription {
			p.pendingCandidates = append(p.pendingCandidates, *sig.Candidate)
			p.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "HandleSignal",
			}).Debug("Buffered early ICE candidate")
			return nil
		}
		p.mu.Unlock()
		if err := p.pc.AddICECandidate(*sig.Candidate); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignal, sig.Type)
	}
}

// flushPendingCandidates applies candidates that arrived before the remote
// description.
func (p *Peer) flushPendingCandidates() {
	p.mu.Lock()
	p.remoteDescription = true
	pending := p.pendingCandidates
	p.pendingCandidates = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "flushPendingCandidates",
				"error":    err.Error(),
			}).Warn("Failed to apply buffered ICE candidate")
		}
	}
}

// handleRemoteTrack registers a remote track and fires OnRemoteStream on the
// first track of each remote stream ID.
func (p *Peer) handleRemoteTrack(track *webrtc.TrackRemote) {
	p.mu.Lock()
	rs, seen := p.remoteStreams[track.StreamID()]
	if !seen {
		rs = &RemoteStream{id: track.StreamID()}
		p.remoteStreams[track.StreamID()] = rs
	}
	p.mu.Unlock()

	rs.addTrack(track)

	logrus.WithFields(logrus.Fields{
		"function":  "handleRemoteTrack",
		"stream_id": track.StreamID(),
		"kind":      track.Kind().String(),
		"new":       !seen,
	}).Info("Remote track arrived")

	if !seen && p.cb.OnRemoteStream != nil {
		p.cb.OnRemoteStream(rs)
	}
}

// emit forwards one signal emission unless the peer is closed.
func (p *Peer) emit(sig SignalData) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || p.cb.OnSignal == nil {
		return
	}
	p.cb.OnSignal(sig)
}

// fail reports ICE failure exactly once.
func (p *Peer) fail(err error) {
	p.mu.Lock()
	if p.failed || p.closed {
		p.mu.Unlock()
		return
	}
	p.failed = true
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "fail",
		"role":     p.role.String(),
		"error":    err.Error(),
	}).Warn("Peer connection failed")

	if p.cb.OnFailure != nil {
		p.cb.OnFailure(err)
	}
}

// SetTrackEnabled mutes or restores outgoing media of the given kind.
// Muting swaps the sender's track for nil so RTP stops flowing while the
// negotiated m-line stays in place; enabling swaps the original track
// back. Kinds with no local sender are a no-op.
func (p *Peer) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPeerClosed
	}
	senders := make([]trackSender, len(p.senders))
	copy(senders, p.senders)
	p.mu.Unlock()

	for _, ts := range senders {
		if ts.track.Kind() != kind {
			continue
		}
		var err error
		if enabled {
			err = ts.sender.ReplaceTrack(ts.track)
		} else {
			err = ts.sender.ReplaceTrack(nil)
		}
		if err != nil {
			return fmt.Errorf("replace %s track: %w", kind, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "SetTrackEnabled",
		"kind":     kind.String(),
		"enabled":  enabled,
	}).Debug("Outgoing track toggled")
	return nil
}

// Close tears down the underlying peer connection. Idempotent.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"role":     p.role.String(),
	}).Debug("Closing peer connection")

	return p.pc.Close()
}
