package bot

import (
	"context"
	"sync"
	"time"

	errs "botinsta/pkg/errors"
	"botinsta/pkg/logger"
)

// JobRecord is the durable description of a job. Only the inputs are
// persisted; counters and states are rebuilt on resume.
type JobRecord struct {
	Account     string     `json:"account"`
	Mode        Mode       `json:"mode"`
	Target      string     `json:"target,omitempty"`
	Sort        Sort       `json:"sort,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// RecordStore persists job records across restarts
type RecordStore interface {
	Save(record JobRecord) error
	Delete(account string) error
	List() ([]JobRecord, error)
}

// StartRequest describes a job to start
type StartRequest struct {
	Account string `json:"account"`
	Mode    Mode   `json:"mode"`
	Target  string `json:"target,omitempty"`
	Sort    Sort   `json:"sort,omitempty"`
	// StartAt is an optional RFC 3339 timestamp or "HH:MM" clock time
	StartAt string `json:"start_at,omitempty"`
}

// Registry owns all jobs, at most one per account. Starting an account
// that already has a job replaces it.
type Registry struct {
	provider FeedProvider
	notifier Notifier
	records  RecordStore
	pacing   Pacing
	log      logger.Logger

	mu   sync.Mutex
	jobs map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. The notifier and record store may be
// nil; the registry substitutes no-op implementations.
func NewRegistry(provider FeedProvider, notifier Notifier, records RecordStore, pacing Pacing, log logger.Logger) *Registry {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if records == nil {
		records = nopRecordStore{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		provider: provider,
		notifier: notifier,
		records:  records,
		pacing:   pacing,
		log:      log,
		jobs:     make(map[string]*Job),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start validates the request, verifies the account session, replaces
// any existing job for the account, persists the record, and launches
// the runner. Invalid input and authentication failures surface here;
// everything else is reported through job events.
func (g *Registry) Start(req StartRequest) (Snapshot, error) {
	if err := validateStartRequest(req); err != nil {
		return Snapshot{}, err
	}

	startAt, err := ParseStartAt(req.StartAt, time.Now())
	if err != nil {
		return Snapshot{}, err
	}

	checkCtx, cancel := context.WithTimeout(g.ctx, 30*time.Second)
	defer cancel()
	if err := g.provider.CheckSession(checkCtx, req.Account); err != nil {
		if errs.IsNotAuthenticated(err) {
			return Snapshot{}, err
		}
		// Transient trouble is the runner's problem, not the caller's
		g.log.WithError(err).WithField("account", req.Account).Warn("session check inconclusive")
	}

	return g.launch(req, startAt, true)
}

// launch registers and starts a job. persist controls whether the
// record store is written; resume passes false since the record
// already exists.
func (g *Registry) launch(req StartRequest, startAt time.Time, persist bool) (Snapshot, error) {
	sort := req.Sort
	if req.Mode == ModeHashtag && sort == "" {
		sort = SortRecent
	}

	job := newJob(req.Account, req.Mode, req.Target, sort, g.pacing, startAt)

	g.mu.Lock()
	if existing, ok := g.jobs[req.Account]; ok {
		existing.RequestStop()
		g.log.WithField("account", req.Account).Info("replacing running job")
	}
	g.jobs[req.Account] = job
	g.mu.Unlock()

	if persist {
		record := JobRecord{
			Account: req.Account,
			Mode:    req.Mode,
			Target:  req.Target,
			Sort:    sort,
		}
		if !startAt.IsZero() {
			record.ScheduledAt = &startAt
		}
		if err := g.records.Save(record); err != nil {
			g.log.WithError(err).Warn("failed to persist job record")
		}
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		newRunner(job, g.provider, g.notifier, g.log).run(g.ctx)
	}()

	return job.Snapshot(), nil
}

// Stop asks the account's job to stop and removes its persisted
// record. The job finishes its in-flight call before exiting. Stopping
// an account with no job is a no-op, not an error.
func (g *Registry) Stop(account string) (Snapshot, error) {
	g.mu.Lock()
	job, ok := g.jobs[account]
	if ok {
		delete(g.jobs, account)
	}
	g.mu.Unlock()

	if err := g.records.Delete(account); err != nil {
		g.log.WithError(err).Warn("failed to delete job record")
	}

	if !ok {
		return Snapshot{Account: account, State: StateStopped, Status: StatusStopped}, nil
	}

	job.RequestStop()
	return job.Snapshot(), nil
}

// Status returns the snapshot for one account's job
func (g *Registry) Status(account string) (Snapshot, error) {
	g.mu.Lock()
	job, ok := g.jobs[account]
	g.mu.Unlock()

	if !ok {
		return Snapshot{}, errs.Newf(errs.ErrorTypeInvalidInput, "no job for account %q", account)
	}
	return job.Snapshot(), nil
}

// Active returns snapshots for every registered job. A job parked in
// the error state stays listed until it is stopped so its failure
// remains visible on the dashboard.
func (g *Registry) Active() []Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(g.jobs))
	for _, job := range g.jobs {
		snapshots = append(snapshots, job.Snapshot())
	}
	return snapshots
}

// Resume restarts every persisted job. Session checks are skipped; an
// expired session surfaces as a job error once the runner makes its
// first call. Scheduled times already past start immediately.
func (g *Registry) Resume() error {
	records, err := g.records.List()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, record := range records {
		req := StartRequest{
			Account: record.Account,
			Mode:    record.Mode,
			Target:  record.Target,
			Sort:    record.Sort,
		}
		if err := validateStartRequest(req); err != nil {
			g.log.WithError(err).WithField("account", record.Account).Warn("skipping invalid job record")
			continue
		}

		var startAt time.Time
		if record.ScheduledAt != nil && record.ScheduledAt.After(now) {
			startAt = *record.ScheduledAt
		}

		if _, err := g.launch(req, startAt, false); err != nil {
			g.log.WithError(err).WithField("account", record.Account).Warn("failed to resume job")
			continue
		}
		g.log.WithField("account", record.Account).Info("resumed persisted job")
	}

	return nil
}

// Shutdown stops all runners without touching persisted records, so
// jobs resume on the next start. Blocks until runners exit or the
// context ends.
func (g *Registry) Shutdown(ctx context.Context) error {
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nopRecordStore drops all records
type nopRecordStore struct{}

func (nopRecordStore) Save(JobRecord) error       { return nil }
func (nopRecordStore) Delete(string) error        { return nil }
func (nopRecordStore) List() ([]JobRecord, error) { return nil, nil }
