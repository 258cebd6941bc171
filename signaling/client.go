package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Sentinel errors for transport operations.
var (
	// ErrNotConnected indicates the relay connection is down (a reconnect
	// may be in progress).
	ErrNotConnected = errors.New("not connected to relay")

	// ErrClosed indicates the client was shut down.
	ErrClosed = errors.New("signaling client closed")
)

// Handler processes the payload of one inbound event op.
type Handler func(data []byte) error

// Config carries relay connection settings.
type Config struct {
	// URL is the relay websocket endpoint, e.g. "wss://relay.example.com/ws".
	URL string

	// UserID identifies this client to the relay for event routing.
	UserID string

	// ReconnectMin/ReconnectMax bound the exponential redial backoff.
	// Defaults: 1s and 30s.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// PingInterval is the keepalive ping period. Default: 30s. The read
	// deadline is twice this, so a half-dead connection surfaces as a
	// read error and triggers a reconnect.
	PingInterval time.Duration

	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

// Client is one long-lived relay connection for an authenticated user.
type Client struct {
	cfg Config

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu          sync.Mutex
	handlers    map[string]Handler
	subs        map[int]chan Event
	nextSubID   int
	reconnectCb func()
	closed      bool

	done chan struct{}
}

// Dial connects to the relay, announces the user and starts the read and
// keepalive loops.
func Dial(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay URL cannot be empty")
	}
	if cfg.UserID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	c := &Client{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		subs:     make(map[int]chan Event),
		done:     make(chan struct{}),
	}

	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	c.setConn(conn)

	if err := c.announce(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("announce user: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"url":      cfg.URL,
		"user_id":  cfg.UserID,
	}).Info("Connected to relay")

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// RegisterHandler registers the handler for one inbound op. At most one
// handler per op; a second registration replaces the first.
func (c *Client) RegisterHandler(op string, h Handler) {
	c.mu.Lock()
	c.handlers[op] = h
	c.mu.Unlock()
}

// Subscribe returns a channel receiving every inbound event, and a cancel
// function. The channel is buffered; a consumer that falls far behind loses
// events (with a warning) rather than blocking the read loop. The channel
// is closed when the client shuts down.
func (c *Client) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// SetReconnectCallback registers fn to run after each successful reconnect,
// once the user has been re-announced. The relay holds no call state, so
// the owner should treat any in-flight call as lost.
func (c *Client) SetReconnectCallback(fn func()) {
	c.mu.Lock()
	c.reconnectCb = fn
	c.mu.Unlock()
}

// Send marshals payload and writes it to the relay under the given op.
// It fails with ErrClosed after Close and ErrNotConnected while a
// reconnect is in progress.
func (c *Client) Send(op string, payload any) error {
	if c.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", op, err)
	}
	raw, err := json.Marshal(Event{Op: op, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", op, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("write %s event: %w", op, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"op":       op,
	}).Trace("Event sent")
	return nil
}

// Close shuts down the client and closes all subscription channels.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	subs := c.subs
	c.subs = make(map[int]chan Event)
	c.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}

	c.writeMu.Lock()
	conn := c.conn
	c.conn = nil
	c.writeMu.Unlock()
	if conn != nil {
		conn.Close()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"user_id":  c.cfg.UserID,
	}).Info("Signaling client closed")
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) dial() (*websocket.Conn, error) {
	conn, _, err := c.cfg.Dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	deadline := 2 * c.cfg.PingInterval
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
}

func (c *Client) currentConn() *websocket.Conn {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn
}

// announce sends user_connected so the relay can route events to this client.
func (c *Client) announce() error {
	return c.Send(OpUserConnected, UserConnectedData{UserID: c.cfg.UserID})
}

// readLoop reads events off the websocket, dispatching each one, and runs
// the reconnect cycle when the connection drops.
func (c *Client) readLoop() {
	for {
		conn := c.currentConn()
		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err.Error(),
			}).Warn("Relay connection lost")
			conn.Close()
			c.setConn(nil)
			if !c.reconnect() {
				return
			}
			continue
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err.Error(),
			}).Warn("Discarding malformed relay event")
			continue
		}
		c.dispatch(ev)
	}
}

// dispatch routes one inbound event to the registered handler for its op
// and to every subscriber.
func (c *Client) dispatch(ev Event) {
	c.mu.Lock()
	h := c.handlers[ev.Op]
	subs := make([]chan Event, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "dispatch",
		"op":       ev.Op,
	}).Trace("Event received")

	if h != nil {
		if err := h(ev.Data); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"op":       ev.Op,
				"error":    err.Error(),
			}).Warn("Event handler failed")
		}
	}

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"op":       ev.Op,
			}).Warn("Subscriber full, dropping event")
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// client is closed. Returns false when closed.
func (c *Client) reconnect() bool {
	backoff := c.cfg.ReconnectMin
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		conn, err := c.dial()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "reconnect",
				"backoff":  backoff.String(),
				"error":    err.Error(),
			}).Warn("Relay redial failed")
			backoff *= 2
			if backoff > c.cfg.ReconnectMax {
				backoff = c.cfg.ReconnectMax
			}
			continue
		}

		c.setConn(conn)
		if err := c.announce(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "reconnect",
				"error":    err.Error(),
			}).Warn("Re-announce failed")
			conn.Close()
			c.setConn(nil)
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function": "reconnect",
			"user_id":  c.cfg.UserID,
		}).Info("Reconnected to relay")

		c.mu.Lock()
		cb := c.reconnectCb
		c.mu.Unlock()
		if cb != nil {
			cb()
		}
		return true
	}
}

// pingLoop sends keepalive pings. Write errors are left for readLoop to
// discover via the read deadline.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn := c.currentConn()
			if conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "pingLoop",
					"error":    err.Error(),
				}).Debug("Keepalive ping failed")
			}
		}
	}
}
