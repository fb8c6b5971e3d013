package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "botinsta/pkg/errors"
	"botinsta/pkg/logger"
)

// errStopRequested propagates a cooperative stop out of the work loop
var errStopRequested = errors.New("stop requested")

// runner drives a single job. One goroutine per job; all state changes
// flow through the Job's guarded setters so snapshots stay consistent.
type runner struct {
	job      *Job
	provider FeedProvider
	notifier Notifier
	log      logger.Logger
}

func newRunner(job *Job, provider FeedProvider, notifier Notifier, log logger.Logger) *runner {
	return &runner{
		job:      job,
		provider: provider,
		notifier: notifier,
		log:      log.WithField("account", job.Account),
	}
}

// run executes the job until it stops, errors out, or the context is
// cancelled. It owns the done channel.
func (r *runner) run(ctx context.Context) {
	defer close(r.job.done)

	if !r.job.StartAt.IsZero() {
		r.notify(StatusScheduled, fmt.Sprintf("Job scheduled for %s", r.job.StartAt.Format(time.RFC3339)))
		if !r.wait(ctx, time.Until(r.job.StartAt)) {
			r.finish()
			return
		}
	}

	r.job.markStarted()
	r.job.setState(StateRunning)
	r.notify(StatusRunning, "Job started")
	r.log.InfoWithFields("job started", map[string]interface{}{
		"mode":   string(r.job.Mode),
		"target": r.job.Target,
	})

	for {
		if r.job.stopRequested() || ctx.Err() != nil {
			r.finish()
			return
		}

		err := r.sweep(ctx)
		switch {
		case err == nil:
			// Feed exhausted, wait for fresh posts
			r.notify(StatusIdle, "Feed exhausted, waiting for new posts")
			if !r.wait(ctx, r.job.Pacing.PollInterval) {
				r.finish()
				return
			}

		case errors.Is(err, errStopRequested) || errors.Is(err, context.Canceled):
			r.finish()
			return

		case errs.IsRateLimited(err):
			if !r.pauseAndProbe(ctx) {
				return
			}

		case errs.IsNotAuthenticated(err):
			r.fail(fmt.Sprintf("session expired: %v", err))
			return

		default:
			// Transient provider trouble that survived retries. Log it
			// and try again after a poll interval.
			r.log.WithError(err).Warn("sweep failed, backing off")
			r.notify(StatusError, fmt.Sprintf("Provider error: %v", err))
			if !r.wait(ctx, r.job.Pacing.PollInterval) {
				r.finish()
				return
			}
		}
	}
}

// sweep walks the feed page by page and processes every post. Returns
// nil when the feed is exhausted.
func (r *runner) sweep(ctx context.Context) error {
	cursor := ""
	for {
		if r.job.stopRequested() {
			return errStopRequested
		}

		page, err := r.provider.FetchPosts(ctx, r.job.Account, r.job.Mode, r.job.Target, r.job.Sort, cursor)
		if err != nil {
			return err
		}

		for _, post := range page.Posts {
			if r.job.stopRequested() {
				return errStopRequested
			}
			if err := r.processPost(ctx, post); err != nil {
				return err
			}
			r.notifyPost(StatusPostCompleted, fmt.Sprintf("Finished post %s", post.ID), post)
		}

		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// processPost likes every comment on the post that the account has not
// already liked, waiting the pacing delay after each like. A failed
// like on one comment does not abort the rest of the post unless the
// failure is a rate limit or an expired session.
func (r *runner) processPost(ctx context.Context, post Post) error {
	r.notifyPost(StatusProcessing, fmt.Sprintf("Processing post %s", post.ID), post)

	page, err := r.provider.FetchComments(ctx, r.job.Account, post.ID, "")
	if err != nil {
		return err
	}

	for _, comment := range page.Comments {
		if r.job.stopRequested() {
			return errStopRequested
		}
		if comment.HasLiked {
			continue
		}

		r.notifyPost(StatusLiking, fmt.Sprintf("Liking comment by %s", comment.Username), post)
		if err := r.provider.LikeComment(ctx, r.job.Account, comment.ID); err != nil {
			if errs.IsRateLimited(err) || errs.IsNotAuthenticated(err) || errors.Is(err, context.Canceled) {
				return err
			}
			r.log.WithError(err).Warn("like failed, skipping comment")
			r.notifyPost(StatusError, fmt.Sprintf("Could not like comment by %s: %v", comment.Username, err), post)
			continue
		}

		likes := r.job.addLike()
		r.notifyPost(StatusLiked, fmt.Sprintf("Liked comment by %s", comment.Username), post)
		r.log.DebugWithFields("comment liked", map[string]interface{}{
			"comment_id": comment.ID,
			"likes":      likes,
		})

		if !r.wait(ctx, r.job.Pacing.likeDelay()) {
			return errStopRequested
		}
	}

	return nil
}

// pauseAndProbe handles a rate limit: pause, then send a single trial
// like through the explore feed. A successful probe resumes the job;
// MaxProbeAttempts consecutive failures park it in the error state.
// Returns true when the job may resume.
func (r *runner) pauseAndProbe(ctx context.Context) bool {
	pause := r.job.Pacing.RateLimitPause
	r.job.setState(StatePaused)
	r.notify(StatusPaused, fmt.Sprintf("Rate limited, pausing for %s", pause))
	logger.LogRateLimit(r.job.Account, int(pause.Seconds()))

	for attempt := 1; attempt <= r.job.Pacing.MaxProbeAttempts; attempt++ {
		if !r.wait(ctx, pause) {
			r.finish()
			return false
		}

		err := r.probe(ctx)
		if err == nil {
			r.job.setState(StateRunning)
			r.notify(StatusRunning, "Rate limit cleared, resuming")
			r.log.Info("resume probe succeeded")
			return true
		}

		if errs.IsNotAuthenticated(err) {
			r.fail(fmt.Sprintf("session expired during rate limit pause: %v", err))
			return false
		}

		r.log.WarnWithFields("resume probe failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		r.notify(StatusPaused, fmt.Sprintf("Still rate limited, probe %d/%d failed", attempt, r.job.Pacing.MaxProbeAttempts))
	}

	r.fail(fmt.Sprintf("rate limit did not clear after %d probes", r.job.Pacing.MaxProbeAttempts))
	return false
}

// probe sends one trial like: first comment of the first explore post.
// The like does not count toward the job's total.
func (r *runner) probe(ctx context.Context) error {
	page, err := r.provider.FetchPosts(ctx, r.job.Account, ModeExplore, "", "", "")
	if err != nil {
		return err
	}
	if len(page.Posts) == 0 {
		return errs.New(errs.ErrorTypeProvider, "explore feed returned no posts")
	}

	comments, err := r.provider.FetchComments(ctx, r.job.Account, page.Posts[0].ID, "")
	if err != nil {
		return err
	}
	for _, comment := range comments.Comments {
		if comment.HasLiked {
			continue
		}
		return r.provider.LikeComment(ctx, r.job.Account, comment.ID)
	}

	return errs.New(errs.ErrorTypeProvider, "no likeable comment for probe")
}

// wait sleeps for d, returning early with false when the job is asked
// to stop or the context ends.
func (r *runner) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !r.job.stopRequested() && ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-r.job.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// finish lands the job in the stopped state
func (r *runner) finish() {
	r.job.mu.Lock()
	r.job.state = StateStopped
	r.job.mu.Unlock()
	r.notify(StatusStopped, "Job stopped")
	r.log.InfoWithFields("job stopped", map[string]interface{}{
		"likes": r.job.Likes(),
	})
}

// fail lands the job in the error state
func (r *runner) fail(message string) {
	r.job.setError(message)
	r.notify(StatusError, message)
	r.log.ErrorWithFields("job failed", map[string]interface{}{
		"error": message,
	})
}

// notify records the status on the job and emits an event
func (r *runner) notify(status Status, message string) {
	r.job.setStatus(status, message)
	r.notifier.Notify(Event{
		Account:   r.job.Account,
		Status:    status,
		Message:   message,
		Likes:     r.job.Likes(),
		Timestamp: time.Now(),
	})
}

// notifyPost is notify with the post's public link attached
func (r *runner) notifyPost(status Status, message string, post Post) {
	r.job.setStatus(status, message)
	r.notifier.Notify(Event{
		Account:   r.job.Account,
		Status:    status,
		Message:   message,
		Likes:     r.job.Likes(),
		PostLink:  post.Link(),
		Timestamp: time.Now(),
	})
}
