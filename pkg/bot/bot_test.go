package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "botinsta/pkg/errors"
)

// fakeProvider serves a small in-memory feed and records like calls.
// Tests override the hook functions to inject failures.
type fakeProvider struct {
	mu         sync.Mutex
	posts      []Post
	comments   map[string][]Comment
	liked      map[string]bool
	likeCalls  []string
	sessionErr error

	likeHook  func(commentID string) error
	postsHook func(mode Mode, cursor string) (*PostsPage, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		posts: []Post{{ID: "p1"}},
		comments: map[string][]Comment{
			"p1": {
				{ID: "c1", Username: "alice", Text: "nice"},
				{ID: "c2", Username: "bob", Text: "wow"},
			},
		},
		liked: make(map[string]bool),
	}
}

func (f *fakeProvider) FetchPosts(ctx context.Context, account string, mode Mode, target string, sort Sort, cursor string) (*PostsPage, error) {
	f.mu.Lock()
	hook := f.postsHook
	f.mu.Unlock()
	if hook != nil {
		return hook(mode, cursor)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	posts := make([]Post, len(f.posts))
	copy(posts, f.posts)
	return &PostsPage{Posts: posts}, nil
}

func (f *fakeProvider) FetchComments(ctx context.Context, account, postID, cursor string) (*CommentsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var page CommentsPage
	for _, c := range f.comments[postID] {
		c.HasLiked = f.liked[c.ID]
		page.Comments = append(page.Comments, c)
	}
	return &page, nil
}

func (f *fakeProvider) LikeComment(ctx context.Context, account, commentID string) error {
	f.mu.Lock()
	hook := f.likeHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(commentID); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.likeCalls = append(f.likeCalls, commentID)
	f.liked[commentID] = true
	return nil
}

func (f *fakeProvider) CheckSession(ctx context.Context, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionErr
}

func (f *fakeProvider) likeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.likeCalls)
}

// eventRecorder captures job events for assertions
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Notify(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.events))
	for i, e := range r.events {
		out[i] = e.Status
	}
	return out
}

func (r *eventRecorder) saw(status Status) bool {
	for _, s := range r.statuses() {
		if s == status {
			return true
		}
	}
	return false
}

// memRecords is an in-memory RecordStore
type memRecords struct {
	mu      sync.Mutex
	records map[string]JobRecord
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[string]JobRecord)}
}

func (m *memRecords) Save(record JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Account] = record
	return nil
}

func (m *memRecords) Delete(account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, account)
	return nil
}

func (m *memRecords) List() ([]JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []JobRecord
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRecords) has(account string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[account]
	return ok
}

// testPacing is fast enough for tests but still exercises the delays
func testPacing() Pacing {
	return Pacing{
		LikeDelay:        time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		RateLimitPause:   time.Millisecond,
		MaxProbeAttempts: 3,
	}
}

func TestPacingLikeDelayDerivation(t *testing.T) {
	p := Pacing{TargetLikes: 700, Window: 12 * time.Hour}
	assert.Equal(t, 12*time.Hour/700, p.likeDelay())

	// Explicit delay wins over the derived one
	p.LikeDelay = 30 * time.Second
	assert.Equal(t, 30*time.Second, p.likeDelay())

	// Degenerate pacing falls back to a safe default
	assert.Equal(t, time.Minute, Pacing{}.likeDelay())
}

func TestParseStartAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	at, err := ParseStartAt("2025-06-02T08:30:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC), at)

	// Clock time later today stays today
	at, err = ParseStartAt("14:30", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC), at)

	// Clock time already past rolls to tomorrow
	at, err = ParseStartAt("09:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), at)

	// Empty means immediate
	at, err = ParseStartAt("", now)
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	_, err = ParseStartAt("not-a-time", now)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestJobLikesAllComments(t *testing.T) {
	provider := newFakeProvider()
	recorder := &eventRecorder{}
	reg := NewRegistry(provider, recorder, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeHashtag, Target: "sunset"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := reg.Status("acct")
		return err == nil && snap.Likes == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Already-liked comments are skipped on later sweeps
	time.Sleep(20 * time.Millisecond)
	snap, err := reg.Status("acct")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Likes)
	assert.True(t, recorder.saw(StatusLiked))
	assert.True(t, recorder.saw(StatusPostCompleted))
}

func TestStartRejectsInvalidInput(t *testing.T) {
	provider := newFakeProvider()
	reg := NewRegistry(provider, nil, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	cases := []StartRequest{
		// missing account
		{Mode: ModeHashtag, Target: "sunset"},
		// unknown mode
		{Account: "acct", Mode: "stories"},
		// hashtag without target
		{Account: "acct", Mode: ModeHashtag},
		// unknown sort
		{Account: "acct", Mode: ModeExplore, Sort: "loudest"},
		// bad start time
		{Account: "acct", Mode: ModeExplore, StartAt: "whenever"},
	}

	for _, req := range cases {
		_, err := reg.Start(req)
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err), "expected invalid input for %+v, got %v", req, err)
	}

	assert.Empty(t, reg.Active())
}

func TestStartSurfacesAuthenticationFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.sessionErr = errs.WithCode(errs.ErrorTypeNotAuthenticated, 401, "login required")
	reg := NewRegistry(provider, nil, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeExplore})
	require.Error(t, err)
	assert.True(t, errs.IsNotAuthenticated(err))
	assert.Empty(t, reg.Active())
}

func TestStopIsCooperative(t *testing.T) {
	provider := newFakeProvider()
	likeStarted := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	provider.likeHook = func(commentID string) error {
		once.Do(func() { close(likeStarted) })
		<-release
		return nil
	}

	recorder := &eventRecorder{}
	reg := NewRegistry(provider, recorder, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeExplore})
	require.NoError(t, err)

	<-likeStarted
	snap, err := reg.Stop("acct")
	require.NoError(t, err)
	assert.Equal(t, StateStopping, snap.State)

	// The in-flight like must complete before the job exits
	close(release)
	require.Eventually(t, func() bool {
		return provider.likeCount() >= 1 && recorder.saw(StatusStopped)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEmptyFeedEmitsIdleAndKeepsRunning(t *testing.T) {
	provider := newFakeProvider()
	provider.postsHook = func(mode Mode, cursor string) (*PostsPage, error) {
		return &PostsPage{}, nil
	}

	recorder := &eventRecorder{}
	reg := NewRegistry(provider, recorder, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeExplore})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return recorder.saw(StatusIdle)
	}, 2*time.Second, 5*time.Millisecond)

	snap, err := reg.Status("acct")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, int64(0), snap.Likes)
	assert.Equal(t, 0, provider.likeCount())
}

func TestCommentErrorDoesNotAbortPost(t *testing.T) {
	provider := newFakeProvider()
	provider.comments["p1"] = []Comment{
		{ID: "c1", Username: "a"},
		{ID: "c2", Username: "b"},
		{ID: "c3", Username: "c"},
		{ID: "c4", Username: "d"},
		{ID: "c5", Username: "e"},
	}
	provider.likeHook = func(commentID string) error {
		if commentID == "c3" {
			return errs.New(errs.ErrorTypeProvider, "comment deleted")
		}
		return nil
	}

	recorder := &eventRecorder{}
	reg := NewRegistry(provider, recorder, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeHashtag, Target: "sunset"})
	require.NoError(t, err)

	// The bad comment is skipped, the other four are liked
	require.Eventually(t, func() bool {
		snap, err := reg.Status("acct")
		return err == nil && snap.Likes == 4
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, recorder.saw(StatusError))
	assert.True(t, recorder.saw(StatusPostCompleted))

	snap, err := reg.Status("acct")
	require.NoError(t, err)
	assert.NotEqual(t, StateError, snap.State)
}

func TestRateLimitPauseAndResume(t *testing.T) {
	provider := newFakeProvider()
	var calls int
	var mu sync.Mutex
	provider.likeHook = func(commentID string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errs.WithCode(errs.ErrorTypeRateLimited, 429, "please wait")
		}
		return nil
	}

	recorder := &eventRecorder{}
	reg := NewRegistry(provider, recorder, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeExplore})
	require.NoError(t, err)

	// The probe likes c1 on the provider side, so the resumed sweep
	// only has c2 left: one counted like, two delivered likes.
	require.Eventually(t, func() bool {
		snap, err := reg.Status("acct")
		return err == nil && snap.Likes == 1 && provider.likeCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, recorder.saw(StatusPaused))

	snap, err := reg.Status("acct")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Likes)
}

func TestProbeWaitsFullRateLimitPause(t *testing.T) {
	provider := newFakeProvider()
	pacing := testPacing()
	pacing.RateLimitPause = 150 * time.Millisecond

	// After the rate limit the next like call must be the probe, no
	// earlier than the pause duration after the limit was signalled.
	var mu sync.Mutex
	var rateLimitedAt, probeAt time.Time
	provider.likeHook = func(commentID string) error {
		mu.Lock()
		defer mu.Unlock()
		if rateLimitedAt.IsZero() {
			rateLimitedAt = time.Now()
			return errs.WithCode(errs.ErrorTypeRateLimited, 429, "please wait")
		}
		if probeAt.IsZero() {
			probeAt = time.Now()
		}
		return nil
	}

	reg := NewRegistry(provider, nil, nil, pacing, nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeExplore})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !probeAt.IsZero()
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, probeAt.Sub(rateLimitedAt), pacing.RateLimitPause)
}

func TestRateLimitProbesAreBounded(t *testing.T) {
	provider := newFakeProvider()
	provider.likeHook = func(commentID string) error {
		return errs.WithCode(errs.ErrorTypeRateLimited, 429, "please wait")
	}

	recorder := &eventRecorder{}
	reg := NewRegistry(provider, recorder, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeExplore})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := reg.Status("acct")
		return err == nil && snap.State == StateError
	}, 2*time.Second, 5*time.Millisecond)

	snap, _ := reg.Status("acct")
	assert.Equal(t, int64(0), snap.Likes)
	assert.NotEmpty(t, snap.LastError)
	assert.True(t, recorder.saw(StatusError))
}

func TestExpiredSessionFailsJob(t *testing.T) {
	provider := newFakeProvider()
	provider.postsHook = func(mode Mode, cursor string) (*PostsPage, error) {
		return nil, errs.WithCode(errs.ErrorTypeNotAuthenticated, 401, "login required")
	}

	reg := NewRegistry(provider, nil, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeExplore})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := reg.Status("acct")
		return err == nil && snap.State == StateError
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartReplacesExistingJob(t *testing.T) {
	provider := newFakeProvider()
	reg := NewRegistry(provider, nil, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	first, err := reg.Start(StartRequest{Account: "acct", Mode: ModeHashtag, Target: "sunset"})
	require.NoError(t, err)
	assert.Equal(t, "sunset", first.Target)

	second, err := reg.Start(StartRequest{Account: "acct", Mode: ModeHashtag, Target: "sunrise"})
	require.NoError(t, err)
	assert.Equal(t, "sunrise", second.Target)

	active := reg.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "sunrise", active[0].Target)
}

func TestScheduledJobWaits(t *testing.T) {
	provider := newFakeProvider()
	reg := NewRegistry(provider, nil, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	startAt := time.Now().Add(time.Hour).Format(time.RFC3339)
	snap, err := reg.Start(StartRequest{Account: "acct", Mode: ModeExplore, StartAt: startAt})
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, snap.State)
	require.NotNil(t, snap.ScheduledAt)

	// No work happens while scheduled
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, provider.likeCount())

	// A scheduled job still stops cleanly
	_, err = reg.Stop("acct")
	require.NoError(t, err)
}

func TestStopDeletesRecordShutdownKeepsIt(t *testing.T) {
	provider := newFakeProvider()
	records := newMemRecords()
	reg := NewRegistry(provider, nil, records, testPacing(), nil)

	_, err := reg.Start(StartRequest{Account: "acct", Mode: ModeHashtag, Target: "sunset"})
	require.NoError(t, err)
	assert.True(t, records.has("acct"))

	_, err = reg.Stop("acct")
	require.NoError(t, err)
	assert.False(t, records.has("acct"))

	_, err = reg.Start(StartRequest{Account: "acct", Mode: ModeHashtag, Target: "sunset"})
	require.NoError(t, err)
	assert.True(t, records.has("acct"))

	// Process shutdown keeps the record so the job resumes next boot
	require.NoError(t, reg.Shutdown(context.Background()))
	assert.True(t, records.has("acct"))
}

func TestResumeRestartsPersistedJobs(t *testing.T) {
	provider := newFakeProvider()
	records := newMemRecords()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, records.Save(JobRecord{Account: "one", Mode: ModeHashtag, Target: "sunset", Sort: SortRecent}))
	require.NoError(t, records.Save(JobRecord{Account: "two", Mode: ModeExplore, ScheduledAt: &past}))

	reg := NewRegistry(provider, nil, records, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	require.NoError(t, reg.Resume())
	assert.Len(t, reg.Active(), 2)

	// A schedule already in the past starts immediately
	require.Eventually(t, func() bool {
		snap, err := reg.Status("two")
		return err == nil && snap.State != StateScheduled
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStatusUnknownAccount(t *testing.T) {
	reg := NewRegistry(newFakeProvider(), nil, nil, testPacing(), nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.Status("ghost")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	// Stopping a job that does not exist is a no-op, not an error
	snap, err := reg.Stop("ghost")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, snap.State)
}
