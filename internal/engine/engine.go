// Package engine runs batch research jobs: a bounded worker pool per job
// drains the pending rows through governed provider calls, grades results,
// escalates weak ones to a fallback provider under budget caps, derives
// email drafts, and persists progress so jobs survive restarts.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/north-cloud/prospect-research/internal/domain"
	"github.com/north-cloud/prospect-research/internal/events"
	"github.com/north-cloud/prospect-research/internal/logger"
	"github.com/north-cloud/prospect-research/internal/metrics"
	"github.com/north-cloud/prospect-research/internal/provider"
	"github.com/north-cloud/prospect-research/internal/ratelimit"
	"github.com/north-cloud/prospect-research/internal/store"
)

// Config holds the retry policy. The empty-response backoff is deliberately
// separate from the rate governor; it is a provider workaround, not a
// pressure signal.
type Config struct {
	MaxAttempts    int
	EmptyRetryBase time.Duration
	EmptyRetryCap  time.Duration
	// Workers overrides the per-provider pool size when positive.
	Workers int
}

// DefaultConfig returns the production retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		EmptyRetryBase: 2 * time.Second,
		EmptyRetryCap:  10 * time.Second,
	}
}

func (c *Config) setDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.EmptyRetryBase <= 0 {
		c.EmptyRetryBase = 2 * time.Second
	}
	if c.EmptyRetryCap <= 0 {
		c.EmptyRetryCap = 10 * time.Second
	}
}

// Fallback escalation defaults, applied when a job enables a fallback
// provider without tuning the caps.
const (
	DefaultFallbackThreshold  = 50
	DefaultFallbackBudgetUSD  = 2.0
	DefaultFallbackMaxPercent = 20
)

// Engine owns the active run set. One engine serves all jobs in the
// process; the governor it holds is shared across them so providers see a
// single admission-control lane each.
type Engine struct {
	store    *store.Store
	registry *provider.Registry
	governor *ratelimit.Governor
	metrics  *metrics.Metrics
	log      logger.Logger
	cfg      Config

	mu     sync.Mutex
	active map[string]*run
}

// New builds an engine. All collaborators are required except metrics,
// which defaults to a fresh set.
func New(st *store.Store, reg *provider.Registry, gov *ratelimit.Governor, m *metrics.Metrics, log logger.Logger, cfg Config) *Engine {
	cfg.setDefaults()
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		store:    st,
		registry: reg,
		governor: gov,
		metrics:  m,
		log:      log,
		cfg:      cfg,
		active:   make(map[string]*run),
	}
}

// Submit persists a new job with its rows and begins asynchronous
// execution. Rows arrive pending; the returned id is final.
func (e *Engine) Submit(ctx context.Context, job *domain.Job, rows []domain.Row) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("submit: job has no rows")
	}
	if _, err := e.registry.Get(job.Provider); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if job.Fallback != nil {
		applyFallbackDefaults(job.Fallback)
		if _, err := e.registry.Get(job.Fallback.Provider); err != nil {
			return "", fmt.Errorf("submit: fallback: %w", err)
		}
	}
	if job.Email != nil {
		if _, err := e.registry.Get(job.Email.Provider); err != nil {
			return "", fmt.Errorf("submit: email: %w", err)
		}
	}

	job.ID = uuid.NewString()
	job.Status = domain.JobQueued
	job.TotalRows = len(rows)
	for i := range rows {
		rows[i].JobID = job.ID
		rows[i].Idx = i
		rows[i].Status = domain.RowPending
		rows[i].Score = domain.UngradedScore
	}

	if err := e.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if err := e.store.InsertRows(ctx, rows); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	e.start(job.ID)
	return job.ID, nil
}

// Resume re-enters the run loop for a paused, errored, or queued job.
// Fails when the job is already running or can never run again.
func (e *Engine) Resume(ctx context.Context, jobID string) error {
	e.mu.Lock()
	_, running := e.active[jobID]
	e.mu.Unlock()
	if running {
		return fmt.Errorf("resume: job %s already running", jobID)
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if !job.Status.Resumable() {
		return fmt.Errorf("resume: job %s is %s", jobID, job.Status)
	}

	e.start(jobID)
	return nil
}

// Cancel requests a cooperative stop. An active run stops dispatching new
// rows; an inactive non-terminal job is marked cancelled directly.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	e.mu.Lock()
	r, running := e.active[jobID]
	e.mu.Unlock()
	if running {
		r.cancel()
		return nil
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if job.Status.Terminal() {
		return nil
	}
	if err := e.store.SetJobStatus(ctx, jobID, domain.JobCancelled); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return nil
}

// Running reports whether the job currently has an active run loop.
func (e *Engine) Running(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[jobID]
	return ok
}

// Subscription is one observer's view of a job: a replay of everything that
// already happened, then the live feed. Live is closed when the run ends or
// the observer is dropped; Cancel must be called when done.
type Subscription struct {
	History []events.Event
	Live    <-chan events.Event
	Cancel  func()
}

// Subscribe attaches an observer to a job. History carries a result event
// per completed row plus the terminal done event when the job already
// finished; Live streams events from the active run, or is an already
// closed channel when no run is active.
func (e *Engine) Subscribe(ctx context.Context, jobID string) (*Subscription, error) {
	// Attach the live channel before reading history so a row completing
	// in between lands in at least one of the two. Rows finishing during
	// the read may show up in both; result events are idempotent per idx.
	e.mu.Lock()
	r, running := e.active[jobID]
	e.mu.Unlock()

	live := closedEventChan()
	cancel := func() {}
	if running {
		live, cancel = r.broadcast.Subscribe()
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	completed, err := e.store.CompletedRows(ctx, jobID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	history := make([]events.Event, 0, len(completed)+1)
	for i := range completed {
		history = append(history, resultEvent(&completed[i], e.rowCost(job.Provider, &completed[i])))
	}
	if job.Status.Terminal() {
		history = append(history, doneEvent(job, tallyRows(completed)))
	}

	return &Subscription{History: history, Live: live, Cancel: cancel}, nil
}

func closedEventChan() <-chan events.Event {
	ch := make(chan events.Event)
	close(ch)
	return ch
}

// start registers a run context and launches the run loop. Registration
// happens before the goroutine so Subscribe sees the run immediately.
func (e *Engine) start(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[jobID]; ok {
		return
	}
	r := newRun(jobID)
	e.active[jobID] = r
	go e.runJob(r)
}

func (e *Engine) finish(r *run) {
	r.broadcast.Close()
	e.mu.Lock()
	delete(e.active, r.jobID)
	e.mu.Unlock()
}

func applyFallbackDefaults(fb *domain.FallbackConfig) {
	if fb.Threshold <= 0 {
		fb.Threshold = DefaultFallbackThreshold
	}
	if fb.BudgetUSD <= 0 {
		fb.BudgetUSD = DefaultFallbackBudgetUSD
	}
	if fb.MaxPercent <= 0 {
		fb.MaxPercent = DefaultFallbackMaxPercent
	}
}
