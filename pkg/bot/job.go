package bot

import (
	"fmt"
	"sync"
	"time"

	errs "botinsta/pkg/errors"
)

// State is the lifecycle state of a job
type State string

const (
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

// Pacing controls how fast a job likes comments and how it recovers
// from rate limits.
type Pacing struct {
	// TargetLikes is the number of likes to spread over Window
	TargetLikes int
	// Window is the period TargetLikes is spread over
	Window time.Duration
	// LikeDelay overrides the derived inter-like delay when set
	LikeDelay time.Duration
	// PollInterval is the sleep between feed sweeps when the feed is
	// exhausted
	PollInterval time.Duration
	// RateLimitPause is the sleep before each resume probe
	RateLimitPause time.Duration
	// MaxProbeAttempts bounds consecutive failed resume probes before
	// the job gives up and enters the error state
	MaxProbeAttempts int
}

// DefaultPacing mirrors a cautious human rhythm: 700 likes spread
// over 12 hours.
func DefaultPacing() Pacing {
	return Pacing{
		TargetLikes:      700,
		Window:           12 * time.Hour,
		PollInterval:     time.Minute,
		RateLimitPause:   4 * time.Hour,
		MaxProbeAttempts: 6,
	}
}

// likeDelay returns the effective delay between likes
func (p Pacing) likeDelay() time.Duration {
	if p.LikeDelay > 0 {
		return p.LikeDelay
	}
	if p.TargetLikes > 0 && p.Window > 0 {
		return p.Window / time.Duration(p.TargetLikes)
	}
	return time.Minute
}

// Job is one account's engagement job. A job is created by the
// Registry, driven by a single runner goroutine, and observed through
// Snapshot.
type Job struct {
	Account string
	Mode    Mode
	Target  string
	Sort    Sort
	Pacing  Pacing
	StartAt time.Time // zero means start immediately

	mu        sync.RWMutex
	state     State
	status    Status
	message   string
	likes     int64
	lastError string
	startedAt time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newJob(account string, mode Mode, target string, sort Sort, pacing Pacing, startAt time.Time) *Job {
	state := StateRunning
	if !startAt.IsZero() {
		state = StateScheduled
	}
	return &Job{
		Account: account,
		Mode:    mode,
		Target:  target,
		Sort:    sort,
		Pacing:  pacing,
		StartAt: startAt,
		state:   state,
		status:  StatusScheduled,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// RequestStop asks the job to stop at the next check point. In-flight
// provider calls are allowed to finish.
func (j *Job) RequestStop() {
	j.stopOnce.Do(func() {
		j.mu.Lock()
		if j.state != StateStopped && j.state != StateError {
			j.state = StateStopping
		}
		j.mu.Unlock()
		close(j.stopCh)
	})
}

// Done is closed when the runner goroutine has exited
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// stopRequested reports whether a stop has been asked for
func (j *Job) stopRequested() bool {
	select {
	case <-j.stopCh:
		return true
	default:
		return false
	}
}

// State returns the current lifecycle state
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Likes returns the number of likes delivered so far
func (j *Job) Likes() int64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.likes
}

func (j *Job) setState(state State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	// Stopping is sticky until the runner lands on a terminal state
	if j.state == StateStopping && state != StateStopped && state != StateError {
		return
	}
	j.state = state
}

func (j *Job) setStatus(status Status, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.message = message
}

func (j *Job) setError(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateError
	j.status = StatusError
	j.message = message
	j.lastError = message
}

func (j *Job) markStarted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.startedAt = time.Now()
}

func (j *Job) addLike() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.likes++
	return j.likes
}

// Snapshot is a point-in-time view of a job for the API and dashboard
type Snapshot struct {
	Account     string     `json:"account"`
	Mode        Mode       `json:"mode"`
	Target      string     `json:"target,omitempty"`
	Sort        Sort       `json:"sort,omitempty"`
	State       State      `json:"state"`
	Status      Status     `json:"status"`
	Message     string     `json:"message,omitempty"`
	Likes       int64      `json:"likes"`
	LastError   string     `json:"last_error,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

// Snapshot returns the current view of the job
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := Snapshot{
		Account:   j.Account,
		Mode:      j.Mode,
		Target:    j.Target,
		Sort:      j.Sort,
		State:     j.state,
		Status:    j.status,
		Message:   j.message,
		Likes:     j.likes,
		LastError: j.lastError,
	}
	if !j.StartAt.IsZero() {
		at := j.StartAt
		snap.ScheduledAt = &at
	}
	if !j.startedAt.IsZero() {
		at := j.startedAt
		snap.StartedAt = &at
	}
	return snap
}

// ParseStartAt parses a scheduled start time. Accepts RFC 3339 or a
// bare "HH:MM" clock time; a clock time already past today rolls over
// to tomorrow.
func ParseStartAt(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if at, err := time.Parse(time.RFC3339, value); err == nil {
		return at, nil
	}

	clock, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, errs.Newf(errs.ErrorTypeInvalidInput,
			"invalid start time %q: want RFC 3339 or HH:MM", value)
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// validateStartRequest checks the fields of a start request
func validateStartRequest(req StartRequest) error {
	if req.Account == "" {
		return errs.New(errs.ErrorTypeInvalidInput, "account is required")
	}
	if !req.Mode.Valid() {
		return errs.Newf(errs.ErrorTypeInvalidInput, "invalid mode %q", req.Mode)
	}
	if req.Mode == ModeHashtag && req.Target == "" {
		return errs.New(errs.ErrorTypeInvalidInput, "hashtag mode requires a target")
	}
	if req.Sort != "" && req.Sort != SortRecent && req.Sort != SortTop {
		return errs.Newf(errs.ErrorTypeInvalidInput, "invalid sort %q", req.Sort)
	}
	return nil
}

// String renders a short description for logs
func (j *Job) String() string {
	if j.Mode == ModeHashtag {
		return fmt.Sprintf("%s #%s", j.Account, j.Target)
	}
	return fmt.Sprintf("%s %s", j.Account, j.Mode)
}
