package signaling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer is a minimal relay double: it accepts websocket upgrades,
// records every inbound event and lets tests push events back.
type wsServer struct {
	srv      *httptest.Server
	received chan Event

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{received: make(chan Event, 32)}
	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		go func() {
			for {
				var ev Event
				if err := conn.ReadJSON(&ev); err != nil {
					return
				}
				s.received <- ev
			}
		}()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) push(t *testing.T, op string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	require.NoError(t, conn.WriteJSON(Event{Op: op, Data: data}))
}

func (s *wsServer) dropConn(i int) {
	s.mu.Lock()
	conn := s.conns[i]
	s.mu.Unlock()
	conn.Close()
}

func (s *wsServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *wsServer) waitEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-s.received:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func dialTestClient(t *testing.T, s *wsServer) *Client {
	t.Helper()
	c, err := Dial(Config{
		URL:          s.url(),
		UserID:       "user-1",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDialValidation(t *testing.T) {
	_, err := Dial(Config{UserID: "u"})
	assert.Error(t, err)

	_, err = Dial(Config{URL: "ws://localhost:1/ws"})
	assert.Error(t, err)
}

func TestDialAnnouncesUser(t *testing.T) {
	s := newWSServer(t)
	dialTestClient(t, s)

	ev := s.waitEvent(t)
	assert.Equal(t, OpUserConnected, ev.Op)

	var data UserConnectedData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "user-1", data.UserID)
}

func TestSendWritesEnvelope(t *testing.T) {
	s := newWSServer(t)
	c := dialTestClient(t, s)
	s.waitEvent(t) // announce

	require.NoError(t, c.Send(OpHangup, map[string]string{"id": "call-1"}))

	ev := s.waitEvent(t)
	assert.Equal(t, OpHangup, ev.Op)
	assert.JSONEq(t, `{"id":"call-1"}`, string(ev.Data))
}

func TestRegisteredHandlerReceivesPayload(t *testing.T) {
	s := newWSServer(t)
	c := dialTestClient(t, s)
	s.waitEvent(t)

	got := make(chan CallCancelledData, 1)
	c.RegisterHandler(OpCallCancelled, func(data []byte) error {
		var d CallCancelledData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		got <- d
		return nil
	})

	s.push(t, OpCallCancelled, CallCancelledData{Message: "gone"})

	select {
	case d := <-got:
		assert.Equal(t, "gone", d.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}
}

func TestSubscribeDeliversEvents(t *testing.T) {
	s := newWSServer(t)
	c := dialTestClient(t, s)
	s.waitEvent(t)

	ch, cancel := c.Subscribe()
	s.push(t, OpIncomingCall, map[string]string{"x": "y"})

	select {
	case ev := <-ch:
		assert.Equal(t, OpIncomingCall, ev.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received event")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")
}

func TestReconnectReannounces(t *testing.T) {
	s := newWSServer(t)
	c := dialTestClient(t, s)

	ev := s.waitEvent(t)
	require.Equal(t, OpUserConnected, ev.Op)

	reconnected := make(chan struct{}, 1)
	c.SetReconnectCallback(func() { reconnected <- struct{}{} })

	s.dropConn(0)

	// The redial produces a second connection and a fresh announce.
	ev = s.waitEvent(t)
	assert.Equal(t, OpUserConnected, ev.Op)
	require.Eventually(t, func() bool { return s.connCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect callback never fired")
	}

	// The new connection is usable.
	require.NoError(t, c.Send(OpCall, map[string]string{"to": "user-2"}))
	ev = s.waitEvent(t)
	assert.Equal(t, OpCall, ev.Op)
}

func TestSendAfterClose(t *testing.T) {
	s := newWSServer(t)
	c := dialTestClient(t, s)
	s.waitEvent(t)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(OpHangup, nil), ErrClosed)
	assert.NoError(t, c.Close(), "close is idempotent")
}

func TestSendWhileDisconnected(t *testing.T) {
	// Mid-reconnect the connection slot is empty but the client lives on.
	c := &Client{
		handlers: make(map[string]Handler),
		subs:     make(map[int]chan Event),
		done:     make(chan struct{}),
	}
	assert.ErrorIs(t, c.Send(OpHangup, nil), ErrNotConnected)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := newWSServer(t)
	c := dialTestClient(t, s)
	s.waitEvent(t)

	ch, _ := c.Subscribe()
	require.NoError(t, c.Close())

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed")
	}

	// A subscription after close is born closed.
	ch2, _ := c.Subscribe()
	_, open := <-ch2
	assert.False(t, open)
}
