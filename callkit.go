// Package callkit implements the client-side call core of a
// language-exchange platform: one-to-one audio/video calls negotiated
// over a websocket relay, with the media flowing peer to peer.
//
// Example:
//
//	opts := callkit.NewOptions()
//	opts.RelayURL = "wss://relay.example.com/ws"
//
//	client, err := callkit.New(call.User{ID: "u-42", DisplayName: "Ada"}, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.OnIncomingCall(func(s call.Session) {
//	    fmt.Printf("incoming call from %s\n", s.Participants.Caller.DisplayName)
//	    client.Join()
//	})
//
//	client.OnRemoteStream(func(rs *peer.RemoteStream) {
//	    // hand tracks to the renderer
//	})
//
//	err = client.Call(call.User{ID: "u-7", DisplayName: "Lin"})
//	if err != nil {
//	    log.Fatal(err)
//	}
package callkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/lingopeer/callkit/call"
	"github.com/lingopeer/callkit/media"
	"github.com/lingopeer/callkit/notify"
	"github.com/lingopeer/callkit/peer"
	"github.com/lingopeer/callkit/signaling"
)

// Options contains configuration for creating a Client.
type Options struct {
	// RelayURL is the websocket URL of the signaling relay. Required.
	RelayURL string

	// STUNServers are stun: URLs for ICE discovery. Defaults to public
	// Google STUN. There is no TURN fallback.
	STUNServers []string

	// FacingMode is a camera-selection hint, "user" or "environment".
	FacingMode string

	// ReconnectMin and ReconnectMax bound the websocket reconnect
	// backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// PingInterval drives websocket keepalive.
	PingInterval time.Duration

	// LogLevel sets the logrus level for the whole process. Empty leaves
	// the level untouched.
	LogLevel string
}

// NewOptions creates an Options with default values.
func NewOptions() *Options {
	return &Options{
		STUNServers:  call.DefaultSTUNServers,
		FacingMode:   "user",
		ReconnectMin: time.Second,
		ReconnectMax: 30 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// OptionsFromEnv builds Options from CALLKIT_* environment variables,
// first loading the given .env files if any exist. Unset variables keep
// their defaults.
//
// Recognized keys: CALLKIT_RELAY_URL, CALLKIT_STUN_SERVERS (comma
// separated), CALLKIT_FACING_MODE, CALLKIT_RECONNECT_MIN,
// CALLKIT_RECONNECT_MAX, CALLKIT_PING_INTERVAL, CALLKIT_LOG_LEVEL.
func OptionsFromEnv(envFiles ...string) (*Options, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"function": "OptionsFromEnv",
			"error":    err.Error(),
		}).Debug("No .env file loaded")
	}

	opts := NewOptions()
	if v := os.Getenv("CALLKIT_RELAY_URL"); v != "" {
		opts.RelayURL = v
	}
	if v := os.Getenv("CALLKIT_STUN_SERVERS"); v != "" {
		var servers []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				servers = append(servers, s)
			}
		}
		opts.STUNServers = servers
	}
	if v := os.Getenv("CALLKIT_FACING_MODE"); v != "" {
		opts.FacingMode = v
	}
	if v := os.Getenv("CALLKIT_RECONNECT_MIN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse CALLKIT_RECONNECT_MIN: %w", err)
		}
		opts.ReconnectMin = d
	}
	if v := os.Getenv("CALLKIT_RECONNECT_MAX"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse CALLKIT_RECONNECT_MAX: %w", err)
		}
		opts.ReconnectMax = d
	}
	if v := os.Getenv("CALLKIT_PING_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse CALLKIT_PING_INTERVAL: %w", err)
		}
		opts.PingInterval = d
	}
	opts.LogLevel = os.Getenv("CALLKIT_LOG_LEVEL")

	return opts, nil
}

// Client ties the subsystems together: signaling transport, media
// acquisition, the call state machine and the notification queue.
type Client struct {
	self          call.User
	transport     *signaling.Client
	acquirer      *media.Acquirer
	calls         *call.Manager
	notifications *notify.Queue
}

// New connects to the relay and assembles a ready-to-use client for the
// given local user.
func New(self call.User, options *Options) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.LogLevel != "" {
		level, err := logrus.ParseLevel(options.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		logrus.SetLevel(level)
	}
	if self.ID == "" {
		return nil, errors.New("local user ID is required")
	}
	if options.RelayURL == "" {
		return nil, errors.New("relay URL is required")
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"user_id":  self.ID,
		"relay":    options.RelayURL,
	}).Info("Creating call client")

	transport, err := signaling.Dial(signaling.Config{
		URL:          options.RelayURL,
		UserID:       self.ID,
		ReconnectMin: options.ReconnectMin,
		ReconnectMax: options.ReconnectMax,
		PingInterval: options.PingInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	acquirer := media.NewAcquirer(nil)

	manager, err := call.NewManager(call.Config{
		Self:        self,
		Transport:   transport,
		Media:       acquirer,
		STUNServers: options.STUNServers,
		FacingMode:  options.FacingMode,
	})
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("create call manager: %w", err)
	}

	c := &Client{
		self:          self,
		transport:     transport,
		acquirer:      acquirer,
		calls:         manager,
		notifications: notify.NewQueue(),
	}

	// A call cannot survive a signaling gap; the relay is stateless.
	transport.SetReconnectCallback(manager.HandleTransportReset)

	transport.RegisterHandler(signaling.OpConnectionRequestReceived, func(data []byte) error {
		return c.queueNotification(notify.TypeReceived, data)
	})
	transport.RegisterHandler(signaling.OpConnectionRequestAccepted, func(data []byte) error {
		return c.queueNotification(notify.TypeAccept, data)
	})

	return c, nil
}

func (c *Client) queueNotification(t notify.Type, data []byte) error {
	var req signaling.ConnectionRequestData
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode connection request: %w", err)
	}
	c.notifications.Add(t, req.UserID, req.Username)
	return nil
}

// Call starts an outbound call to receiver.
func (c *Client) Call(receiver call.User) error {
	return c.calls.Initiate(receiver)
}

// Join accepts the currently ringing incoming call.
func (c *Client) Join() error {
	return c.calls.Join()
}

// Hangup ends the ongoing call, if any.
func (c *Client) Hangup() {
	c.calls.Hangup()
}

// ToggleAudio flips outgoing audio muting and returns the new muted state.
func (c *Client) ToggleAudio() bool {
	return c.calls.ToggleAudio()
}

// ToggleVideo flips outgoing video and returns the new hidden state.
func (c *Client) ToggleVideo() bool {
	return c.calls.ToggleVideo()
}

// OnIncomingCall registers fn for incoming rings.
func (c *Client) OnIncomingCall(fn func(call.Session)) {
	c.calls.SetIncomingCallCallback(fn)
}

// OnStateChange registers fn for call state transitions.
func (c *Client) OnStateChange(fn func(call.State)) {
	c.calls.SetStateCallback(fn)
}

// OnRemoteStream registers fn for remote media arrival.
func (c *Client) OnRemoteStream(fn func(*peer.RemoteStream)) {
	c.calls.SetRemoteStreamCallback(fn)
}

// OnCallEnded registers fn for call teardown.
func (c *Client) OnCallEnded(fn func(reason string)) {
	c.calls.SetCallEndedCallback(fn)
}

// Calls exposes the call state machine.
func (c *Client) Calls() *call.Manager {
	return c.calls
}

// Notifications exposes the pending notification queue.
func (c *Client) Notifications() *notify.Queue {
	return c.notifications
}

// Close hangs up any ongoing call and disconnects from the relay.
func (c *Client) Close() error {
	c.calls.Close()
	c.acquirer.Release()
	return c.transport.Close()
}
