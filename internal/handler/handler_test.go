package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduportal/internal/app/auth"
	"eduportal/internal/app/authz"
	"eduportal/internal/app/presence"
	"eduportal/internal/app/relay"
	"eduportal/internal/app/session"
	"eduportal/internal/configs"
	"eduportal/internal/pkg/errs"
)

func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend"))
	require.NoError(t, err)
	return signed
}

type stubAuthenticator struct {
	token string
	err   error
}

func (s stubAuthenticator) Login(ctx context.Context, creds auth.Credentials) (string, error) {
	return s.token, s.err
}

type stubSub struct {
	topic     string
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
	mu     sync.Mutex
	tokens []string
	subs   chan *stubSub
}

func (b *stubBroker) Subscribe(ctx context.Context, token, topic string) (presence.Subscription, error) {
	b.mu.Lock()
	b.tokens = append(b.tokens, token)
	b.mu.Unlock()

	sub := &stubSub{topic: topic, ch: make(chan presence.Message), closed: make(chan struct{})}
	b.subs <- sub
	return sub, nil
}

type testEnv struct {
	server *httptest.Server
	store  *session.KVStore
	broker *stubBroker
}

func newTestEnv(t *testing.T, authenticator auth.Authenticator) *testEnv {
	t.Helper()

	cfg, err := configs.LoadFrom(map[string]string{
		"SESSION_FILE":       "/tmp/unused.json",
		"REDIRECT_COUNTDOWN": "20ms",
		"RECONNECT_DELAY":    "10ms",
		"LOGIN_BURST":        "3",
	})
	require.NoError(t, err)

	store := session.NewMemoryStore()
	broker := &stubBroker{subs: make(chan *stubSub, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deps := &AppDeps{
		Config:   cfg,
		Resolver: authz.NewResolver(store, nil, nil),
		Auth:     auth.NewService(authenticator, store),
		Broker:   broker,
	}

	server := httptest.NewServer(Router(ctx, deps))
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: store, broker: broker}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func noRedirect(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, envelope) {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{CheckRedirect: noRedirect}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	}
	return res, env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{})

	res, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 0, body.Code)
}

func TestSessionLifecycle(t *testing.T) {
	issued := mint(t, jwt.MapClaims{"userId": "u-1", "username": "alice", "scope": "ROLE_USER"})
	env := newTestEnv(t, stubAuthenticator{token: issued})

	_, body := env.do(t, http.MethodGet, "/api/session", "")
	assert.Equal(t, 0, body.Code)
	assert.JSONEq(t, `{"authenticated":false,"expired":false,"roles":[],"isAdmin":false,"isUser":false,"remember":false,"home":"/auth/login"}`, string(body.Data))

	res, body := env.do(t, http.MethodPost, "/api/session/login", `{"username":"alice","password":"pw","remember":false}`)
	require.Equal(t, http.StatusOK, res.StatusCode, body.Message)

	var identity map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &identity))
	assert.Equal(t, true, identity["authenticated"])
	assert.Equal(t, "u-1", identity["userId"])
	assert.Equal(t, true, identity["isUser"])
	assert.Equal(t, "/dashboard", identity["home"])

	sess, ok := env.store.Get()
	require.True(t, ok)
	assert.Equal(t, issued, sess.Token)

	_, body = env.do(t, http.MethodPost, "/api/session/logout", "")
	assert.Equal(t, 0, body.Code)

	_, ok = env.store.Get()
	assert.False(t, ok)
}

func TestLogin_Errors(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{err: errs.NewError(errs.ErrInvalidCredentials)})

	res, body := env.do(t, http.MethodPost, "/api/session/login", `{"username":"alice","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, errs.ErrInvalidCredentials, body.Code)

	res, body = env.do(t, http.MethodPost, "/api/session/login", `{"username":"alice","password":"pw","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, errs.ErrInvalidJSONFormat, body.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{err: errs.NewError(errs.ErrInvalidCredentials)})

	var last *http.Response
	var lastBody envelope
	for i := 0; i < 4; i++ {
		last, lastBody = env.do(t, http.MethodPost, "/api/session/login", `{"username":"a","password":"b"}`)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, errs.ErrRateLimitExceeded, lastBody.Code)
}

func TestListRoutes(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{})

	_, body := env.do(t, http.MethodGet, "/api/routes", "")

	var out struct {
		Routes []authz.Descriptor `json:"routes"`
		Home   string             `json:"home"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &out))
	assert.Equal(t, authz.LoginPath, out.Home)
	require.NotEmpty(t, out.Routes)
	for _, d := range out.Routes {
		assert.Equal(t, authz.AccessPublic, d.Access)
	}

	require.NoError(t, env.store.Set(session.Session{Token: mint(t, jwt.MapClaims{"scope": "ROLE_ADMIN"})}))
	_, body = env.do(t, http.MethodGet, "/api/routes", "")
	require.NoError(t, json.Unmarshal(body.Data, &out))
	assert.Equal(t, authz.AdminHomePath, out.Home)
}

func TestNavigate(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{})

	_, body := env.do(t, http.MethodGet, "/api/navigate?path="+url.QueryEscape("/rooms/42"), "")
	var out map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &out))
	assert.Equal(t, "redirected_with_return_url", out["outcome"])
	assert.Equal(t, "/rooms/42", out["returnUrl"])
	assert.Equal(t, "/auth/login?returnUrl=%2Frooms%2F42", out["location"])

	route, ok := out["route"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ROOM", route["key"])

	res, body := env.do(t, http.MethodGet, "/api/navigate?path=rooms", "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, errs.ErrInvalidParams, body.Code)
}

func returnURLOf(t *testing.T, res *http.Response) string {
	t.Helper()
	location, err := url.Parse(res.Header.Get("Location"))
	require.NoError(t, err)
	return location.Query().Get("returnUrl")
}

func TestNavigationGuard(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{})

	res, _ := env.do(t, http.MethodGet, "/app/rooms/42", "")
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/app/auth/login?returnUrl=%2Fapp%2Frooms%2F42", res.Header.Get("Location"))
	returnURL := returnURLOf(t, res)
	assert.Equal(t, "/app/rooms/42", returnURL)

	res, _ = env.do(t, http.MethodGet, "/app/rooms/42?tab=chat", "")
	assert.Equal(t, "/app/rooms/42?tab=chat", returnURLOf(t, res))

	res, body := env.do(t, http.MethodGet, "/app/auth/login", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 0, body.Code)

	require.NoError(t, env.store.Set(session.Session{Token: mint(t, jwt.MapClaims{"scope": "ROLE_USER"})}))

	res, _ = env.do(t, http.MethodGet, "/app/admin/users", "")
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/app/dashboard", res.Header.Get("Location"))

	res, body = env.do(t, http.MethodGet, returnURL, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body.Data), `"ROOM"`)

	res, _ = env.do(t, http.MethodGet, "/app/nowhere", "")
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/app/dashboard", res.Header.Get("Location"))
}

func TestPresence_RejectsWithoutSession(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{})

	res, body := env.do(t, http.MethodGet, "/ws/presence?roomId=42", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, errs.ErrUnauthorized, body.Code)

	require.NoError(t, env.store.Set(session.Session{Token: mint(t, jwt.MapClaims{"sub": "u", "exp": 1})}))
	res, body = env.do(t, http.MethodGet, "/ws/presence?roomId=42", "")
	assert.Equal(t, errs.ErrSessionStale, body.Code)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	require.NoError(t, env.store.Set(session.Session{Token: mint(t, jwt.MapClaims{"sub": "u"})}))
	res, body = env.do(t, http.MethodGet, "/ws/presence?roomId=../42", "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, errs.ErrInvalidTopicID, body.Code)
}

func TestPresence_RelaysRoomDeleted(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{})
	raw := mint(t, jwt.MapClaims{"userId": "7", "scope": "ROLE_USER"})
	require.NoError(t, env.store.Set(session.Session{Token: raw}))

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/presence?roomId=42"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var room *stubSub
	for room == nil {
		select {
		case sub := <-env.broker.subs:
			if sub.topic == "/topic/rooms/42/deleted" {
				room = sub
			}
		case <-time.After(2 * time.Second):
			t.Fatal("room subscription not opened")
		}
	}

	env.broker.mu.Lock()
	assert.Contains(t, env.broker.tokens, raw)
	env.broker.mu.Unlock()

	room.ch <- presence.Message{Topic: room.topic}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ROOM_DELETED","code":2201,"subjectId":"42","message":"This room has been deleted.","countdownSeconds":1,"redirectTo":"/"}`, string(data))

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, relay.CloseCodeRoomDeleted, closeErr.Code)

	assert.Eventually(t, func() bool {
		select {
		case <-room.closed:
			return true
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond)
}

func TestPresence_KickWatcherForEmailSubject(t *testing.T) {
	env := newTestEnv(t, stubAuthenticator{})
	raw := mint(t, jwt.MapClaims{"sub": "alice@example.com", "scope": "ROLE_USER"})
	require.NoError(t, env.store.Set(session.Session{Token: raw}))

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/presence?roomId=42"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var kick *stubSub
	for kick == nil {
		select {
		case sub := <-env.broker.subs:
			if sub.topic == "/topic/room-member/alice@example.com/deleted" {
				kick = sub
			}
		case <-time.After(2 * time.Second):
			t.Fatal("kick subscription not opened")
		}
	}

	kick.ch <- presence.Message{Topic: kick.topic, Body: []byte("Removed by host")}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"MEMBER_KICKED","code":3004,"subjectId":"alice@example.com","message":"Removed by host","countdownSeconds":1,"redirectTo":"/"}`, string(data))

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, relay.CloseCodeKicked, closeErr.Code)
}
