package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botinsta/pkg/auth"
	"botinsta/pkg/bot"
	"botinsta/pkg/config"
	"botinsta/pkg/hashtags"
	"botinsta/pkg/logger"
)

// stubProvider serves a fixed feed so jobs run without a network
type stubProvider struct{}

func (stubProvider) FetchPosts(ctx context.Context, account string, mode bot.Mode, target string, sort bot.Sort, cursor string) (*bot.PostsPage, error) {
	return &bot.PostsPage{Posts: []bot.Post{{ID: "p1"}}}, nil
}

func (stubProvider) FetchComments(ctx context.Context, account, postID, cursor string) (*bot.CommentsPage, error) {
	return &bot.CommentsPage{}, nil
}

func (stubProvider) LikeComment(ctx context.Context, account, commentID string) error {
	return nil
}

func (stubProvider) CheckSession(ctx context.Context, account string) error {
	return nil
}

type stubAccounts struct {
	mu      sync.Mutex
	deleted []string
}

func (s *stubAccounts) List() ([]*auth.Account, error) {
	return []*auth.Account{
		{Username: "acct", SessionID: "super_secret_session", CSRFToken: "super_secret_csrf"},
	}, nil
}

func (s *stubAccounts) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if username != "acct" {
		return errors.New("account not found")
	}
	s.deleted = append(s.deleted, username)
	return nil
}

func newTestServer(t *testing.T) (*Server, *bot.Registry, *Hub) {
	t.Helper()

	tags, err := hashtags.NewStore(filepath.Join(t.TempDir(), "hashtags.json"))
	require.NoError(t, err)

	hub := NewHub(0, logger.NewNopLogger())
	pacing := bot.Pacing{
		LikeDelay:        time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		RateLimitPause:   time.Millisecond,
		MaxProbeAttempts: 2,
	}
	registry := bot.NewRegistry(stubProvider{}, hub, nil, pacing, logger.NewNopLogger())
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	srv := New(config.ServerConfig{Addr: ":0"}, registry, tags, &stubAccounts{}, hub, logger.NewNopLogger())
	return srv, registry, hub
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, hub := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, hub.ServerID(), body["server_id"])
}

func TestStartStatusStopFlow(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/bot/start", bot.StartRequest{
		Account: "acct",
		Mode:    bot.ModeHashtag,
		Target:  "sunset",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var snap bot.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "acct", snap.Account)
	assert.Equal(t, "sunset", snap.Target)

	rec = doJSON(t, handler, http.MethodGet, "/api/bot/status?account=acct", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/bot/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"acct"`)

	rec = doJSON(t, handler, http.MethodPost, "/api/bot/stop", map[string]string{"account": "acct"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartValidationErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	// Missing target for hashtag mode
	rec := doJSON(t, handler, http.MethodPost, "/api/bot/start", bot.StartRequest{
		Account: "acct",
		Mode:    bot.ModeHashtag,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_input")

	// Malformed body
	req := httptest.NewRequest(http.MethodPost, "/api/bot/start", strings.NewReader("{broken"))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestStatusRequiresAccount(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/bot/status", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopUnknownAccountIsNoOp(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/bot/stop", map[string]string{"account": "ghost"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stopped"`)
}

func TestHashtagEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/hashtags", map[string]string{"hashtag": "#Sunset"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sunset"`)

	rec = doJSON(t, handler, http.MethodGet, "/api/hashtags", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sunset"`)

	rec = doJSON(t, handler, http.MethodDelete, "/api/hashtags/sunset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/hashtags/sunset", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountsAreSanitized(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"acct"`)
	assert.NotContains(t, rec.Body.String(), "super_secret_session")
	assert.NotContains(t, rec.Body.String(), "super_secret_csrf")
}

func TestAccountRemoval(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodDelete, "/api/accounts/acct", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/accounts/ghost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardServed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "botinsta")
}

func TestWebSocketReceivesJobEvents(t *testing.T) {
	srv, _, hub := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// First frame is the hello with the server instance ID
	var hello WSMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, hub.ServerID(), hello.ServerID)

	hub.Notify(bot.Event{Account: "acct", Status: bot.StatusLiked, Likes: 3, Timestamp: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "job_event", msg.Type)

	payload, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	var event bot.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "acct", event.Account)
	assert.Equal(t, bot.StatusLiked, event.Status)
	assert.Equal(t, int64(3), event.Likes)
}

func TestStalledClientDoesNotBlockNotify(t *testing.T) {
	srv, _, hub := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	// This client never reads; its socket and outbox fill up
	stalled, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer stalled.Close()

	healthy, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer healthy.Close()

	var received int64
	go func() {
		for {
			if _, _, err := healthy.ReadMessage(); err != nil {
				return
			}
			atomic.AddInt64(&received, 1)
		}
	}()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Flood padded events; Notify must stay cheap even while one
	// client stops draining
	padding := strings.Repeat("x", 8192)
	start := time.Now()
	for i := 0; i < 500; i++ {
		hub.Notify(bot.Event{Account: "acct", Status: bot.StatusLiked, Message: padding, Timestamp: time.Now()})
	}
	assert.Less(t, time.Since(start), 3*time.Second)

	// The stalled client is dropped; the healthy one keeps receiving
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A surviving client got every event plus the hello frame
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&received) >= 500
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubThrottlesProgressEvents(t *testing.T) {
	hub := NewHub(time.Hour, logger.NewNopLogger())

	// Progress events beyond the first are dropped
	assert.True(t, hub.allow(bot.Event{Account: "acct", Status: bot.StatusLiked}))
	assert.False(t, hub.allow(bot.Event{Account: "acct", Status: bot.StatusLiked}))

	// Lifecycle events always pass
	assert.True(t, hub.allow(bot.Event{Account: "acct", Status: bot.StatusPaused}))
	assert.True(t, hub.allow(bot.Event{Account: "acct", Status: bot.StatusError}))

	// Other accounts are unaffected
	assert.True(t, hub.allow(bot.Event{Account: "other", Status: bot.StatusLiked}))
}
