package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/lingopeer/callkit/media"
	"github.com/lingopeer/callkit/peer"
	"github.com/lingopeer/callkit/signaling"
)

// Transport is the surface the state machine needs from the signaling
// layer. *signaling.Client satisfies it; tests substitute mocks.
type Transport interface {
	// Send delivers one typed event to the relay for routing.
	Send(op string, payload any) error

	// Subscribe returns a channel of inbound relay events and a cancel
	// function. The channel closes when the transport shuts down.
	Subscribe() (<-chan signaling.Event, func())
}

// MediaSource is the surface the state machine needs from media
// acquisition. *media.Acquirer satisfies it.
type MediaSource interface {
	GetLocalStream(facingMode string) (*media.Stream, error)
	Current() (*media.Stream, bool)
	Release()
}

// PeerFactory creates the peer connection for an accepted call. The
// default factory wraps peer.New; tests inject mocks.
type PeerFactory func(cfg peer.Config, stream *media.Stream, role peer.Role, cb peer.Callbacks) (PeerHandle, error)

func defaultPeerFactory(cfg peer.Config, stream *media.Stream, role peer.Role, cb peer.Callbacks) (PeerHandle, error) {
	return peer.New(cfg, stream, role, cb)
}

// DefaultSTUNServers are used when Config.STUNServers is empty. Public
// STUN only; there is no TURN fallback in this system.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config carries the Manager's dependencies and settings.
type Config struct {
	// Self is the local user identity, read from the auth subsystem.
	Self User

	// Transport is the open signaling connection. Required.
	Transport Transport

	// Media owns the local camera/microphone stream. Required.
	Media MediaSource

	// NewPeer overrides peer creation. Nil means the real factory.
	NewPeer PeerFactory

	// STUNServers for ICE discovery. Empty means DefaultSTUNServers.
	STUNServers []string

	// FacingMode is a camera-selection hint passed through to media
	// acquisition ("user" or "environment").
	FacingMode string
}

// Manager is the call state machine. It owns the single Session and
// PeerData slots; no other component may mutate call state.
type Manager struct {
	self        User
	transport   Transport
	media       MediaSource
	newPeer     PeerFactory
	stunServers []string
	facingMode  string

	mu       sync.Mutex
	session  *Session
	peerData *PeerData
	state    State
	closed   bool

	audioMuted  bool
	videoHidden bool

	incomingCallback     func(Session)
	stateCallback        func(State)
	remoteStreamCallback func(*peer.RemoteStream)
	endedCallback        func(reason string)

	done chan struct{}
}

// NewManager creates a call manager and starts consuming signaling events
// immediately.
func NewManager(cfg Config) (*Manager, error) {
	logrus.WithFields(logrus.Fields{
		"function": "NewManager",
		"user_id":  cfg.Self.ID,
	}).Info("Creating call manager")

	if cfg.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if cfg.Media == nil {
		return nil, errors.New("media source cannot be nil")
	}
	if cfg.Self.ID == "" {
		return nil, errors.New("local user identity is required")
	}
	if cfg.NewPeer == nil {
		cfg.NewPeer = defaultPeerFactory
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = DefaultSTUNServers
	}

	m := &Manager{
		self:        cfg.Self,
		transport:   cfg.Transport,
		media:       cfg.Media,
		newPeer:     cfg.NewPeer,
		stunServers: cfg.STUNServers,
		facingMode:  cfg.FacingMode,
		state:       StateIdle,
		done:        make(chan struct{}),
	}

	go m.dispatchLoop()
	return m, nil
}

// SetIncomingCallCallback registers fn for incoming rings. The UI decides
// whether to Join or Hangup.
func (m *Manager) SetIncomingCallCallback(fn func(Session)) {
	m.mu.Lock()
	m.incomingCallback = fn
	m.mu.Unlock()
}

// SetStateCallback registers fn for state transitions.
func (m *Manager) SetStateCallback(fn func(State)) {
	m.mu.Lock()
	m.stateCallback = fn
	m.mu.Unlock()
}

// SetRemoteStreamCallback registers fn for remote media arrival.
func (m *Manager) SetRemoteStreamCallback(fn func(*peer.RemoteStream)) {
	m.mu.Lock()
	m.remoteStreamCallback = fn
	m.mu.Unlock()
}

// SetCallEndedCallback registers fn for call teardown, with a
// human-readable reason.
func (m *Manager) SetCallEndedCallback(fn func(reason string)) {
	m.mu.Lock()
	m.endedCallback = fn
	m.mu.Unlock()
}

// State returns the current call state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentSession returns a copy of the ongoing call record, if any.
func (m *Manager) CurrentSession() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// RemoteStream returns the remote media stream once the call is active.
func (m *Manager) RemoteStream() (*peer.RemoteStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peerData == nil || m.peerData.Stream == nil {
		return nil, false
	}
	return m.peerData.Stream, true
}

// Initiate starts an outbound call to receiver. The local stream is
// acquired first: if the user denies device access no call record is
// created and nothing is sent. At most one call may exist at a time;
// a second Initiate fails with ErrCallAlreadyActive.
func (m *Manager) Initiate(receiver User) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.session != nil {
		m.mu.Unlock()
		return ErrCallAlreadyActive
	}
	m.mu.Unlock()

	if _, err := m.media.GetLocalStream(m.facingMode); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "Initiate",
			"receiver_id": receiver.ID,
			"error":       err.Error(),
		}).Warn("Call aborted, local media unavailable")
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	// Media acquisition can take seconds (permission prompt); re-check the
	// singleton invariant before committing the record.
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return ErrCallAlreadyActive
	}
	participants := Participants{Caller: m.self, Receiver: receiver}
	sess := NewSession(participants, false)
	m.session = &sess
	fire := m.transitionLocked(StateDialing)
	m.mu.Unlock()
	runAll(fire)

	if err := m.transport.Send(signaling.OpCall, participants); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "Initiate",
			"receiver_id": receiver.ID,
			"error":       err.Error(),
		}).Error("Failed to send call event")
		m.teardown("signaling send failed", "")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Initiate",
		"call_id":     sess.ID,
		"receiver_id": receiver.ID,
	}).Info("Call initiated")
	return nil
}

// Join accepts the ringing incoming call: acquires local media, creates
// the answerer-side peer connection and tells the caller to start
// offering. Media failure clears the ringing state because the call
// cannot proceed without a device.
func (m *Manager) Join() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.session == nil || !m.session.Ringing {
		m.mu.Unlock()
		return ErrNoIncomingCall
	}
	// Merge rather than overwrite: signaling data for this call may have
	// arrived while the user was deciding, and must not be erased.
	*m.session = m.session.Merge(Session{Ringing: false})
	callID := m.session.ID
	caller := m.session.Participants.Caller
	fire := m.transitionLocked(StateNegotiating)
	m.mu.Unlock()
	runAll(fire)

	stream, err := m.media.GetLocalStream(m.facingMode)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Join",
			"call_id":  callID,
			"error":    err.Error(),
		}).Warn("Cannot join call, local media unavailable")
		m.teardown("media unavailable", "")
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	handle, err := m.newPeer(peer.Config{STUNServers: m.stunServers}, stream, peer.RoleAnswerer, m.peerCallbacks(false))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Join",
			"call_id":  callID,
			"error":    err.Error(),
		}).Error("Failed to create peer connection")
		m.teardown("peer setup failed", "")
		return err
	}

	m.mu.Lock()
	if m.session == nil {
		// Cancelled while the permission prompt was open.
		m.mu.Unlock()
		handle.Close()
		return ErrCallEnded
	}
	m.peerData = &PeerData{Handle: handle, Participant: caller}
	snapshot := *m.session
	audioMuted, videoHidden := m.audioMuted, m.videoHidden
	m.mu.Unlock()

	m.replayTrackFlags(handle, audioMuted, videoHidden)

	if err := m.transport.Send(signaling.OpCallAccepted, snapshot); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Join",
			"call_id":  callID,
			"error":    err.Error(),
		}).Error("Failed to send callAccepted")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Join",
		"call_id":   callID,
		"caller_id": caller.ID,
	}).Info("Call joined")
	return nil
}

// Hangup ends the ongoing call from any phase: closes the peer connection,
// releases local media, notifies the remote side and returns to Idle.
// Before pickup a hangupDuringInitiation event is emitted instead of
// hangup, so the remote side can distinguish "cancelled before pickup"
// from "ended after connecting". Calling Hangup with no call is a no-op.
func (m *Manager) Hangup() {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	hadPeer := m.peerData != nil
	m.mu.Unlock()

	op := signaling.OpHangupDuringInitiation
	if hadPeer {
		op = signaling.OpHangup
	}
	m.teardown("hangup", op)
}

// ToggleAudio flips outgoing audio muting. Returns the new muted state.
func (m *Manager) ToggleAudio() bool {
	return m.toggleTrack(webrtc.RTPCodecTypeAudio)
}

// ToggleVideo flips outgoing video. Returns the new hidden state.
func (m *Manager) ToggleVideo() bool {
	return m.toggleTrack(webrtc.RTPCodecTypeVideo)
}

func (m *Manager) toggleTrack(kind webrtc.RTPCodecType) bool {
	m.mu.Lock()
	var disabled *bool
	if kind == webrtc.RTPCodecTypeAudio {
		disabled = &m.audioMuted
	} else {
		disabled = &m.videoHidden
	}
	*disabled = !*disabled
	off := *disabled
	pd := m.peerData
	m.mu.Unlock()

	if pd != nil {
		if err := pd.Handle.SetTrackEnabled(kind, !off); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "toggleTrack",
				"kind":     kind.String(),
				"error":    err.Error(),
			}).Warn("Failed to toggle outgoing track")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "toggleTrack",
		"kind":     kind.String(),
		"disabled": off,
	}).Info("Outgoing track toggled")
	return off
}

// HandleTransportReset invalidates any in-flight call after the signaling
// connection was re-established. The relay holds no call state, so a call
// cannot survive a transport gap; both sides converge to Idle on their own.
func (m *Manager) HandleTransportReset() {
	m.teardown("signaling connection lost", "")
}

// Close shuts the manager down, tearing down any ongoing call first.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	hadPeer := m.peerData != nil
	hadSession := m.session != nil
	m.mu.Unlock()

	if hadSession {
		op := signaling.OpHangupDuringInitiation
		if hadPeer {
			op = signaling.OpHangup
		}
		m.teardown("client shutdown", op)
	}
	close(m.done)

	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"user_id":  m.self.ID,
	}).Info("Call manager closed")
}

// dispatchLoop consumes inbound signaling events. Running the handlers on
// one goroutine removes re-entrancy between them.
func (m *Manager) dispatchLoop() {
	ch, cancel := m.transport.Subscribe()
	defer cancel()

	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.dispatch(ev)
		}
	}
}

// dispatch decodes and routes one inbound event. Ops the call core does
// not own (connection requests etc.) are ignored here.
func (m *Manager) dispatch(ev signaling.Event) {
	switch ev.Op {
	case signaling.OpIncomingCall:
		var p Participants
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"op":       ev.Op,
				"error":    err.Error(),
			}).Warn("Malformed incomingCall payload")
			return
		}
		m.handleIncomingCall(p)

	case signaling.OpCallAccepted:
		var s Session
		if err := json.Unmarshal(ev.Data, &s); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"op":       ev.Op,
				"error":    err.Error(),
			}).Warn("Malformed callAccepted payload")
			return
		}
		m.handleCallAccepted(s)

	case signaling.OpWebRTCSignal:
		var sp SignalPayload
		if err := json.Unmarshal(ev.Data, &sp); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"op":       ev.Op,
				"error":    err.Error(),
			}).Warn("Malformed webrtcSignal payload")
			return
		}
		m.handleSignal(sp)

	case signaling.OpCallCancelled:
		var d signaling.CallCancelledData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			d.Message = "call cancelled"
		}
		m.handleCallCancelled(d.Message)
	}
}

// handleIncomingCall processes a ring delivered by the relay. A client
// already in a call replies busy (an immediate hangup for the new call)
// without touching its active session.
func (m *Manager) handleIncomingCall(p Participants) {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":  "handleIncomingCall",
			"caller_id": p.Caller.ID,
		}).Info("Busy, rejecting incoming call")
		busy := NewSession(p, true)
		if err := m.transport.Send(signaling.OpHangup, busy); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleIncomingCall",
				"error":    err.Error(),
			}).Warn("Failed to send busy reply")
		}
		return
	}

	sess := NewSession(p, true)
	m.session = &sess
	fire := m.transitionLocked(StateRinging)
	cb := m.incomingCallback
	snapshot := sess
	m.mu.Unlock()
	runAll(fire)

	logrus.WithFields(logrus.Fields{
		"function":  "handleIncomingCall",
		"call_id":   sess.ID,
		"caller_id": p.Caller.ID,
	}).Info("Incoming call")

	if cb != nil {
		cb(snapshot)
	}
}

// handleCallAccepted is the caller-side pickup notification: the callee
// accepted, so the offerer peer connection is created and negotiation
// starts.
func (m *Manager) handleCallAccepted(remote Session) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleCallAccepted",
		}).Debug("Dropping stale callAccepted")
		return
	}
	if m.peerData != nil {
		// Duplicate delivery; negotiation already running.
		*m.session = m.session.Merge(remote)
		m.mu.Unlock()
		return
	}
	if m.session.Participants.Caller.ID != m.self.ID {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleCallAccepted",
		}).Warn("callAccepted received by callee, ignoring")
		return
	}
	*m.session = m.session.Merge(remote)
	m.mu.Unlock()

	m.startOfferer()
}

// startOfferer creates the caller-side peer connection. The local stream
// must already exist from Initiate; without it negotiation cannot start.
func (m *Manager) startOfferer() {
	m.mu.Lock()
	if m.session == nil || m.peerData != nil {
		m.mu.Unlock()
		return
	}
	callID := m.session.ID
	receiver := m.session.Participants.Receiver
	fire := m.transitionLocked(StateNegotiating)
	m.mu.Unlock()
	runAll(fire)

	stream, ok := m.media.Current()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "startOfferer",
			"call_id":  callID,
		}).Error("No local stream, negotiation cannot start")
		return
	}

	handle, err := m.newPeer(peer.Config{STUNServers: m.stunServers}, stream, peer.RoleOfferer, m.peerCallbacks(true))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "startOfferer",
			"call_id":  callID,
			"error":    err.Error(),
		}).Error("Failed to create peer connection")
		return
	}

	m.mu.Lock()
	if m.session == nil || m.peerData != nil {
		m.mu.Unlock()
		handle.Close()
		return
	}
	m.peerData = &PeerData{Handle: handle, Participant: receiver}
	audioMuted, videoHidden := m.audioMuted, m.videoHidden
	m.mu.Unlock()

	m.replayTrackFlags(handle, audioMuted, videoHidden)

	logrus.WithFields(logrus.Fields{
		"function": "startOfferer",
		"call_id":  callID,
	}).Info("Offerer peer created")
}

// handleSignal routes one unit of remote negotiation data into the peer
// connection. A signal arriving after teardown is stale and dropped; it
// must never resurrect call state. On the caller side a signal arriving
// before callAccepted implies acceptance (events may reorder), so the
// offerer peer is created on demand.
func (m *Manager) handleSignal(sp SignalPayload) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleSignal",
		}).Debug("Dropping stale webrtcSignal")
		return
	}
	merged := m.session.Merge(sp.OngoingCall)
	if m.session.Ringing && m.peerData == nil {
		// Still ringing on the callee side. The caller's snapshot always
		// carries ringing=false; only a local Join may clear the ring.
		merged.Ringing = true
	}
	*m.session = merged
	pd := m.peerData
	isCaller := m.session.Participants.Caller.ID == m.self.ID
	m.mu.Unlock()

	if pd == nil {
		if !isCaller {
			logrus.WithFields(logrus.Fields{
				"function": "handleSignal",
			}).Warn("Signal before accept on callee side, dropping")
			return
		}
		m.startOfferer()
		m.mu.Lock()
		pd = m.peerData
		m.mu.Unlock()
		if pd == nil {
			return
		}
	}

	if err := pd.Handle.HandleSignal(sp.Signal); err != nil {
		// Negotiation errors do not end the call; only ICE failure does.
		logrus.WithFields(logrus.Fields{
			"function":    "handleSignal",
			"signal_type": sp.Signal.Type,
			"error":       err.Error(),
		}).Warn("Peer rejected signal")
	}
}

// handleCallCancelled processes the remote party hanging up or cancelling.
// Nothing is emitted back; replying would bounce cancels forever.
func (m *Manager) handleCallCancelled(message string) {
	if message == "" {
		message = "call cancelled by remote"
	}
	m.teardown(message, "")
}

// replayTrackFlags applies mute state chosen before the peer connection
// existed, so a toggle during ringing or dialing still takes effect.
func (m *Manager) replayTrackFlags(h PeerHandle, audioMuted, videoHidden bool) {
	if audioMuted {
		if err := h.SetTrackEnabled(webrtc.RTPCodecTypeAudio, false); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "replayTrackFlags",
				"error":    err.Error(),
			}).Warn("Failed to apply audio mute")
		}
	}
	if videoHidden {
		if err := h.SetTrackEnabled(webrtc.RTPCodecTypeVideo, false); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "replayTrackFlags",
				"error":    err.Error(),
			}).Warn("Failed to apply video hide")
		}
	}
}

// peerCallbacks builds the callback set wired from a peer connection back
// into the state machine.
func (m *Manager) peerCallbacks(isCaller bool) peer.Callbacks {
	return peer.Callbacks{
		OnSignal: func(sig peer.SignalData) {
			m.sendSignal(sig, isCaller)
		},
		OnRemoteStream: m.handleRemoteStream,
		OnFailure:      m.handlePeerFailure,
	}
}

// sendSignal forwards one local negotiation emission over the transport,
// tagged with the sender role and the current call snapshot.
func (m *Manager) sendSignal(sig peer.SignalData, isCaller bool) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	snapshot := *m.session
	m.mu.Unlock()

	payload := SignalPayload{Signal: sig, OngoingCall: snapshot, IsCaller: isCaller}
	if err := m.transport.Send(signaling.OpWebRTCSignal, payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "sendSignal",
			"signal_type": sig.Type,
			"error":       err.Error(),
		}).Warn("Failed to send webrtcSignal")
	}
}

// handleRemoteStream records the remote media stream and flips the call to
// Active. At most one remote stream is kept per call.
func (m *Manager) handleRemoteStream(rs *peer.RemoteStream) {
	m.mu.Lock()
	if m.peerData == nil || m.peerData.Stream != nil {
		m.mu.Unlock()
		return
	}
	m.peerData.Stream = rs
	fire := m.transitionLocked(StateActive)
	cb := m.remoteStreamCallback
	m.mu.Unlock()
	runAll(fire)

	logrus.WithFields(logrus.Fields{
		"function":  "handleRemoteStream",
		"stream_id": rs.ID(),
	}).Info("Call active, remote stream present")

	if cb != nil {
		cb(rs)
	}
}

// handlePeerFailure ends the call after ICE reached disconnected/failed.
// Each side detects the failure locally, so teardown does not depend on a
// signaling round-trip; the hangup event is still sent best-effort.
func (m *Manager) handlePeerFailure(err error) {
	logrus.WithFields(logrus.Fields{
		"function": "handlePeerFailure",
		"error":    err.Error(),
	}).Warn("Peer connection failed, hanging up")
	m.teardown("connection failed", signaling.OpHangup)
}

// teardown is the single exit path for every call-termination route. It
// closes the peer, releases local media, clears both state slots, emits
// notifyOp over the transport when non-empty, and fires the ended
// callback with reason.
func (m *Manager) teardown(reason, notifyOp string) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	snapshot := *m.session
	pd := m.peerData
	m.session = nil
	m.peerData = nil
	m.audioMuted = false
	m.videoHidden = false
	fire := m.transitionLocked(StateIdle)
	endCb := m.endedCallback
	m.mu.Unlock()

	if pd != nil {
		if err := pd.Handle.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "teardown",
				"error":    err.Error(),
			}).Warn("Peer close failed")
		}
	}
	m.media.Release()

	if notifyOp != "" {
		if err := m.transport.Send(notifyOp, snapshot); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "teardown",
				"op":       notifyOp,
				"error":    err.Error(),
			}).Warn("Failed to notify remote side")
		}
	}

	runAll(fire)

	logrus.WithFields(logrus.Fields{
		"function": "teardown",
		"call_id":  snapshot.ID,
		"reason":   reason,
	}).Info("Call torn down")

	if endCb != nil {
		endCb(reason)
	}
}

// transitionLocked updates the state and returns the callback to fire
// after the mutex is released, or nil when nothing changed. Callers must
// hold m.mu.
func (m *Manager) transitionLocked(s State) func() {
	if m.state == s {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"function": "transitionLocked",
		"from":     m.state.String(),
		"to":       s.String(),
	}).Debug("Call state transition")
	m.state = s
	cb := m.stateCallback
	if cb == nil {
		return nil
	}
	return func() { cb(s) }
}

// runAll invokes the non-nil deferred callbacks.
func runAll(fns ...func()) {
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}
