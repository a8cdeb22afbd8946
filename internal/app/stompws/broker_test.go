package stompws

import (
	"context"
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

type stompFrame struct {
	command string
	headers map[string]string
	body    string
}

func parseFrames(data string) []stompFrame {
	var frames []stompFrame
	for _, raw := range strings.Split(data, "\x00") {
		raw = strings.TrimLeft(raw, "\r\n")
		if raw == "" {
			continue
		}

		head, body, _ := strings.Cut(raw, "\n\n")
		lines := strings.Split(head, "\n")

		f := stompFrame{command: strings.TrimSpace(lines[0]), headers: map[string]string{}, body: body}
		for _, line := range lines[1:] {
			if k, v, ok := strings.Cut(strings.TrimSuffix(line, "\r"), ":"); ok {
				if _, seen := f.headers[k]; !seen {
					f.headers[k] = v
				}
			}
		}
		frames = append(frames, f)
	}
	return frames
}

// fakeStompServer speaks just enough STOMP 1.2 to accept one subscription and push messages to it.
type fakeStompServer struct {
	*httptest.Server

	wantToken string
	upgrader  websocket.Upgrader

	mu          sync.Mutex
	handshake   http.Header
	connect     stompFrame
	subscribe   stompFrame
	unsubscribe bool

	subscribed chan *websocket.Conn
}

func newFakeStompServer(t *testing.T, wantToken string) *fakeStompServer {
	t.Helper()

	s := &fakeStompServer{wantToken: wantToken, subscribed: make(chan *websocket.Conn, 4)}
	s.upgrader.Subprotocols = []string{"v12.stomp"}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeStompServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *fakeStompServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.wantToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.handshake = r.Header.Clone()
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		for _, f := range parseFrames(string(data)) {
			switch f.command {
			case "CONNECT", "STOMP":
				s.mu.Lock()
				s.connect = f
				s.mu.Unlock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte("CONNECTED\nversion:1.2\nheart-beat:0,0\nserver:fake/1.0\n\n\x00"))

			case "SUBSCRIBE":
				s.mu.Lock()
				s.subscribe = f
				s.mu.Unlock()
				s.subscribed <- conn

			case "UNSUBSCRIBE":
				s.mu.Lock()
				s.unsubscribe = true
				s.mu.Unlock()
				if receipt := f.headers["receipt"]; receipt != "" {
					_ = conn.WriteMessage(websocket.TextMessage, []byte("RECEIPT\nreceipt-id:"+receipt+"\n\n\x00"))
				}

			case "DISCONNECT":
				if receipt := f.headers["receipt"]; receipt != "" {
					_ = conn.WriteMessage(websocket.TextMessage, []byte("RECEIPT\nreceipt-id:"+receipt+"\n\n\x00"))
				}
				return
			}
		}
	}
}

func (s *fakeStompServer) send(t *testing.T, conn *websocket.Conn, body string) {
	t.Helper()

	s.mu.Lock()
	sub := s.subscribe
	s.mu.Unlock()

	frame := "MESSAGE\n" +
		"subscription:" + sub.headers["id"] + "\n" +
		"message-id:m-" + body + "\n" +
		"destination:" + sub.headers["destination"] + "\n" +
		"content-type:text/plain\n\n" +
		body + "\x00"
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func waitSubscribed(t *testing.T, s *fakeStompServer) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.subscribed:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("broker never saw SUBSCRIBE")
		return nil
	}
}

func TestNew_RejectsBadURLs(t *testing.T) {
	for _, raw := range []string{"http://localhost/ws", "ws://", "::bad"} {
		_, err := New(Config{URL: raw})
		assert.Error(t, err, raw)
	}

	b, err := New(Config{URL: "wss://broker.example.com:8443/ws"})
	require.NoError(t, err)
	assert.Equal(t, "broker.example.com", b.host)
	assert.Equal(t, DefaultHandshakeTimeout, b.handshakeTimeout)
}

func TestBroker_SubscribeDeliversMessages(t *testing.T) {
	server := newFakeStompServer(t, "tok-1")

	b, err := New(Config{URL: server.wsURL(), HandshakeTimeout: 3 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := b.Subscribe(ctx, "tok-1", "/topic/rooms/42/deleted")
	require.NoError(t, err)

	conn := waitSubscribed(t, server)

	server.mu.Lock()
	assert.Equal(t, "Bearer tok-1", server.handshake.Get("Authorization"))
	assert.Equal(t, "Bearer tok-1", server.connect.headers["Authorization"])
	assert.Equal(t, "/topic/rooms/42/deleted", server.subscribe.headers["destination"])
	assert.NotEmpty(t, server.subscribe.headers["id"])
	server.mu.Unlock()

	server.send(t, conn, "gone")

	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok)
		assert.Equal(t, "/topic/rooms/42/deleted", msg.Topic)
		assert.Equal(t, "gone", string(msg.Body))
	case <-time.After(3 * time.Second):
		t.Fatal("no message delivered")
	}

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close(), "close is idempotent")

	_, open := <-sub.Messages()
	assert.False(t, open)
	assert.NoError(t, sub.Err())
}

func TestBroker_ServerDropEndsSubscription(t *testing.T) {
	server := newFakeStompServer(t, "tok-1")

	b, err := New(Config{URL: server.wsURL()})
	require.NoError(t, err)

	sub, err := b.Subscribe(context.Background(), "tok-1", "/topic/room-member/7/deleted")
	require.NoError(t, err)
	defer sub.Close()

	conn := waitSubscribed(t, server)
	require.NoError(t, conn.Close())

	select {
	case _, open := <-sub.Messages():
		assert.False(t, open)
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not end after the server dropped the connection")
	}
	assert.Error(t, sub.Err())
}

func TestBroker_RejectedHandshake(t *testing.T) {
	server := newFakeStompServer(t, "expected")

	b, err := New(Config{URL: server.wsURL()})
	require.NoError(t, err)

	_, err = b.Subscribe(context.Background(), "wrong", "/topic/rooms/1/deleted")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestBroker_DialHonorsContext(t *testing.T) {
	server := newFakeStompServer(t, "tok")

	b, err := New(Config{URL: server.wsURL()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Subscribe(ctx, "tok", "/topic/rooms/1/deleted")
	assert.Error(t, err)
}
