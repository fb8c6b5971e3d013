package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botinsta/pkg/auth"
	"botinsta/pkg/bot"
	"botinsta/pkg/config"
	errs "botinsta/pkg/errors"
	"botinsta/pkg/logger"
)

// staticCreds serves one account for any username
type staticCreds struct {
	account *auth.Account
}

func (s *staticCreds) Retrieve(username string) (*auth.Account, error) {
	return s.account, nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	creds := &staticCreds{account: &auth.Account{
		Username:  "acct",
		SessionID: "sid",
		CSRFToken: "csrf",
		DSUserID:  "42",
		UserAgent: "TestAgent/1.0",
	}}

	client := NewClient(config.InstagramConfig{
		BaseURL:           server.URL,
		RequestTimeout:    5 * time.Second,
		RequestsPerMinute: 1000,
		MaxRetries:        1,
	}, creds, logger.NewNopLogger())

	return client, server
}

func TestFetchTagFeed(t *testing.T) {
	var gotPath, gotCookie, gotAgent string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotCookie = r.Header.Get("Cookie")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{
			"status": "ok",
			"items": [
				{"pk": 111, "id": "111_9", "code": "AbC", "caption": {"text": "golden hour"}},
				{"pk": 222, "id": "222_9", "code": "DeF"}
			],
			"more_available": true,
			"next_max_id": "cursor-2"
		}`))
	}))

	page, err := client.FetchPosts(context.Background(), "acct", bot.ModeHashtag, "sunset", bot.SortRecent, "")
	require.NoError(t, err)

	require.Len(t, page.Posts, 2)
	assert.Equal(t, "111_9", page.Posts[0].ID)
	assert.Equal(t, "AbC", page.Posts[0].Code)
	assert.Equal(t, "golden hour", page.Posts[0].Caption)
	assert.Equal(t, "cursor-2", page.NextCursor)

	assert.Contains(t, gotPath, "/api/v1/feed/tag/sunset/")
	assert.Contains(t, gotPath, "tab=recent")
	assert.Contains(t, gotCookie, "sessionid=sid")
	assert.Contains(t, gotCookie, "ds_user_id=42")
	assert.Equal(t, "TestAgent/1.0", gotAgent)
}

func TestFetchTagFeedLastPage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "items": [{"pk": 1, "id": "1_1"}], "more_available": false, "next_max_id": "stale"}`))
	}))

	page, err := client.FetchPosts(context.Background(), "acct", bot.ModeHashtag, "sunset", bot.SortRecent, "cursor-1")
	require.NoError(t, err)

	// No cursor when the feed says nothing more is available
	assert.Empty(t, page.NextCursor)
}

func TestFetchExploreFeed(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/v1/discover/explore/")
		w.Write([]byte(`{
			"status": "ok",
			"items": [
				{"media": {"pk": 333, "id": "333_7", "code": "GhI"}},
				{"stories": {}},
				{"media": {"pk": 444, "id": "444_7", "code": "JkL"}}
			],
			"more_available": true,
			"next_max_id": 24
		}`))
	}))

	page, err := client.FetchPosts(context.Background(), "acct", bot.ModeExplore, "", "", "")
	require.NoError(t, err)

	// Non-media explore units are dropped
	require.Len(t, page.Posts, 2)
	assert.Equal(t, "333_7", page.Posts[0].ID)

	// Numeric cursors normalize to strings
	assert.Equal(t, "24", page.NextCursor)
}

func TestFetchComments(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/v1/media/111_9/comments/")
		w.Write([]byte(`{
			"status": "ok",
			"comments": [
				{"pk": 501, "user_id": 71, "user": {"username": "alice"}, "text": "nice", "comment_like_count": 3, "has_liked_comment": false},
				{"pk": 502, "user_id": 72, "user": {"username": "bob"}, "text": "wow", "has_liked_comment": true}
			],
			"has_more_comments": true,
			"next_min_id": "min-9"
		}`))
	}))

	page, err := client.FetchComments(context.Background(), "acct", "111_9", "")
	require.NoError(t, err)

	require.Len(t, page.Comments, 2)
	assert.Equal(t, "501", page.Comments[0].ID)
	assert.Equal(t, "71", page.Comments[0].UserID)
	assert.Equal(t, "alice", page.Comments[0].Username)
	assert.Equal(t, 3, page.Comments[0].LikeCount)
	assert.False(t, page.Comments[0].HasLiked)
	assert.True(t, page.Comments[1].HasLiked)
	assert.Equal(t, "min-9", page.NextCursor)
}

func TestLikeComment(t *testing.T) {
	var gotMethod, gotCSRF, gotContentType, gotBody string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCSRF = r.Header.Get("X-CSRFToken")
		gotContentType = r.Header.Get("Content-Type")
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotBody = string(body)
		assert.Contains(t, r.URL.Path, "/api/v1/media/501/comment_like/")
		w.Write([]byte(`{"status": "ok"}`))
	}))

	err := client.LikeComment(context.Background(), "acct", "501")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "csrf", gotCSRF)
	assert.Contains(t, gotContentType, "application/x-www-form-urlencoded")
	assert.Contains(t, gotBody, "comment_id=501")
}

func TestCheckSession(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/v1/accounts/current_user/")
		w.Write([]byte(`{"status": "ok", "user": {"pk": 42, "username": "acct"}}`))
	}))

	require.NoError(t, client.CheckSession(context.Background(), "acct"))
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"http 429", http.StatusTooManyRequests, `{"message": "rate limited"}`, errs.IsRateLimited},
		{"feedback in 400", http.StatusBadRequest, `{"status": "fail", "message": "feedback_required"}`, errs.IsRateLimited},
		{"spam in 200", http.StatusOK, `{"status": "fail", "message": "This was flagged as spam"}`, errs.IsRateLimited},
		{"login required", http.StatusBadRequest, `{"status": "fail", "message": "login_required"}`, errs.IsNotAuthenticated},
		{"http 401", http.StatusUnauthorized, `{}`, errs.IsNotAuthenticated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))

			err := client.LikeComment(context.Background(), "acct", "501")
			require.Error(t, err)
			assert.True(t, tc.check(err), "got %v", err)
		})
	}
}

func TestCheckResponseBadJSONBody(t *testing.T) {
	// A 200 with an HTML body is a provider error, not a crash
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!DOCTYPE html><html></html>"))
	}))

	err := client.CheckSession(context.Background(), "acct")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeProvider, errs.TypeOf(err))
}

func TestSanitizeUsername(t *testing.T) {
	assert.Equal(t, "user", SanitizeUsername("@user"))
	assert.Equal(t, "user", SanitizeUsername("user/ "))
	assert.True(t, IsValidUsername("some_user.99"))
	assert.False(t, IsValidUsername("bad name"))
	assert.False(t, IsValidUsername(strings.Repeat("a", 31)))
}
