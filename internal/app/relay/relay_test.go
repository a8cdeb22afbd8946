package relay

import (
	"context"
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

	"eduportal/internal/app/presence"
	"eduportal/internal/pkg/errs"
)

type stubSub struct {
	ch        chan presence.Message
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *stubSub) Messages() <-chan presence.Message { return s.ch }
func (s *stubSub) Err() error                        { return nil }
func (s *stubSub) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type stubBroker struct {
	subs chan *stubSub
}

func (b *stubBroker) Subscribe(ctx context.Context, token, topic string) (presence.Subscription, error) {
	sub := &stubSub{ch: make(chan presence.Message), closed: make(chan struct{})}
	b.subs <- sub
	return sub, nil
}

func staticToken() (string, bool) { return "tok", true }

func serveRelay(t *testing.T, broker presence.Broker, p Policy) (*websocket.Conn, <-chan struct{}) {
	t.Helper()

	finished := make(chan struct{})
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		room, err := presence.NewRoomWatcher(broker, staticToken, "42")
		require.NoError(t, err)
		kick, err := presence.NewKickWatcher(broker, staticToken, "7")
		require.NoError(t, err)

		client := NewClient(conn, map[string]any{"room_id": "42"})
		go client.WritePump()
		go func() {
			defer close(finished)
			Run(r.Context(), client, Watchers{Room: room, Kick: kick}, p)
		}()
		client.ReadPump()
		<-finished
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, finished
}

func takeSubs(t *testing.T, b *stubBroker, n int) []*stubSub {
	t.Helper()
	subs := make([]*stubSub, 0, n)
	for len(subs) < n {
		select {
		case s := <-b.subs:
			subs = append(subs, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d subscriptions, want %d", len(subs), n)
		}
	}
	return subs
}

func TestRun_KickNoticeThenCloseCode(t *testing.T) {
	broker := &stubBroker{subs: make(chan *stubSub, 4)}
	conn, finished := serveRelay(t, broker, Policy{Countdown: 20 * time.Millisecond, RedirectTo: "/"})

	subs := takeSubs(t, broker, 2)

	for _, s := range subs {
		go func(s *stubSub) {
			select {
			case s.ch <- presence.Message{Body: []byte("Removed by host")}:
			case <-s.closed:
			}
		}(s)
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, []any{"ROOM_DELETED", "MEMBER_KICKED"}, raw["type"])
	assert.Equal(t, "Removed by host", raw["message"])
	assert.EqualValues(t, 1, raw["countdownSeconds"])
	wantCode := errs.ErrRoomDeleted
	if raw["type"] == "MEMBER_KICKED" {
		wantCode = errs.ErrSessionKicked
	}
	assert.EqualValues(t, wantCode, raw["code"])
	assert.Equal(t, "/", raw["redirectTo"])

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)

	if raw["type"] == "MEMBER_KICKED" {
		assert.Equal(t, CloseCodeKicked, closeErr.Code)
		assert.Equal(t, "7", raw["subjectId"])
	} else {
		assert.Equal(t, CloseCodeRoomDeleted, closeErr.Code)
		assert.Equal(t, "42", raw["subjectId"])
	}
	assert.Equal(t, "Removed by host", closeErr.Text)

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not finish")
	}
	for _, s := range subs {
		assert.Eventually(t, func() bool {
			select {
			case <-s.closed:
				return true
			default:
				return false
			}
		}, time.Second, time.Millisecond)
	}
}

func TestRun_BrowserLeavingStopsWatchers(t *testing.T) {
	broker := &stubBroker{subs: make(chan *stubSub, 4)}
	conn, finished := serveRelay(t, broker, Policy{Countdown: time.Minute, RedirectTo: "/"})

	subs := takeSubs(t, broker, 2)
	require.NoError(t, conn.Close())

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not notice the browser leaving")
	}

	for _, s := range subs {
		select {
		case <-s.closed:
		default:
			t.Fatal("subscription left open after the browser left")
		}
	}
}

func TestNewNotice(t *testing.T) {
	n := NewNotice(
		presence.Event{Kind: presence.RoomDeleted, SubjectID: "42", Message: "gone"},
		Policy{Countdown: 9500 * time.Millisecond, RedirectTo: "/home"},
	)
	assert.Equal(t, Notice{Type: presence.RoomDeleted, Code: errs.ErrRoomDeleted, SubjectID: "42", Message: "gone", CountdownSeconds: 10, RedirectTo: "/home"}, n)

	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ROOM_DELETED","code":2201,"subjectId":"42","message":"gone","countdownSeconds":10,"redirectTo":"/home"}`, string(data))

	assert.Equal(t, CloseCodeKicked, CloseCode(presence.MemberKicked))
	assert.Equal(t, CloseCodeRoomDeleted, CloseCode(presence.RoomDeleted))
}

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))

	long := strings.Repeat("é", 100)
	cut := truncateReason(long)
	assert.LessOrEqual(t, len(cut), 123)
	assert.True(t, strings.HasPrefix(long, cut))
	assert.Equal(t, 0, len(cut)%2, "no split runes")
}
