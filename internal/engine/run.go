package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/north-cloud/prospect-research/internal/domain"
	"github.com/north-cloud/prospect-research/internal/events"
	"github.com/north-cloud/prospect-research/internal/grading"
	"github.com/north-cloud/prospect-research/internal/logger"
	"github.com/north-cloud/prospect-research/internal/provider"
	"github.com/north-cloud/prospect-research/internal/templates"
)

// run is the transient context of one executing job: the cancellation flag
// and the event fan-out. It exists only while the run loop is live.
type run struct {
	jobID     string
	broadcast *events.Broadcaster
	cancelled atomic.Bool
}

func newRun(jobID string) *run {
	return &run{jobID: jobID, broadcast: events.NewBroadcaster()}
}

func (r *run) cancel() { r.cancelled.Store(true) }

// lane bundles everything needed to call one provider.
type lane struct {
	def        provider.Definition
	adapter    provider.Adapter
	credential string
}

// runState is the mutable per-run state shared by the workers. All counter
// updates and queue pops go through its mutex; each SaveJobProgress runs
// inside it so persisted counters are never torn.
type runState struct {
	mu sync.Mutex

	job     *domain.Job
	queue   []domain.Row
	next    int
	started time.Time
	baseSec float64

	primary  lane
	fallback *lane
	email    *lane

	emailSpend float64
	emails     int
	tiers      events.TierCounts
}

// pop hands out the next pending row, exclusively. Returns false when the
// queue is drained or cancellation was observed.
func (st *runState) pop(r *run) (*domain.Row, bool) {
	if r.cancelled.Load() {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.next >= len(st.queue) {
		return nil, false
	}
	row := &st.queue[st.next]
	st.next++
	return row, true
}

func (st *runState) remaining() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.queue) - st.next
}

// reserveFallback atomically claims one fallback call slot if neither the
// call cap nor the budget is exhausted. Claiming before calling keeps
// racing workers from overshooting the caps.
func (st *runState) reserveFallback(fb *domain.FallbackConfig) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	maxCalls := (st.job.TotalRows*fb.MaxPercent + 99) / 100
	if st.job.FallbackCalls >= maxCalls {
		return false
	}
	if st.job.FallbackSpend >= fb.BudgetUSD {
		return false
	}
	st.job.FallbackCalls++
	return true
}

// runJob is the run loop: credential check, replay, dispatch, finalize.
func (e *Engine) runJob(r *run) {
	ctx := context.Background()
	defer e.finish(r)

	job, err := e.store.GetJob(ctx, r.jobID)
	if err != nil {
		e.log.Error("load job", logger.String("job_id", r.jobID), logger.Error(err))
		return
	}

	st, fatal := e.prepare(ctx, r, job)
	if fatal {
		return
	}

	pending, err := e.store.PendingRows(ctx, job.ID)
	if err != nil {
		e.log.Error("load pending rows", logger.String("job_id", job.ID), logger.Error(err))
		return
	}
	if len(pending) == 0 {
		e.finalize(ctx, r, st, domain.JobComplete)
		return
	}
	st.queue = pending

	job.Status = domain.JobRunning
	if err := e.store.SaveJobProgress(ctx, job); err != nil {
		e.log.Error("mark running", logger.String("job_id", job.ID), logger.Error(err))
		return
	}

	e.metrics.ActiveJobs.Inc()
	defer e.metrics.ActiveJobs.Dec()

	e.replayHistory(ctx, r, job)

	workers := st.primary.def.Workers
	if e.cfg.Workers > 0 {
		workers = e.cfg.Workers
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	e.log.Info("job dispatch",
		logger.String("job_id", job.ID),
		logger.String("provider", job.Provider),
		logger.Int("pending", len(pending)),
		logger.Int("workers", workers))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, r, st)
		}()
	}
	wg.Wait()

	status := domain.JobComplete
	switch {
	case r.cancelled.Load():
		status = domain.JobCancelled
	case st.remaining() > 0:
		status = domain.JobPaused
	}
	e.finalize(ctx, r, st, status)
}

// prepare resolves providers and credentials. A missing primary credential
// is fatal before any work; missing fallback or email credentials only
// disable those features for the run.
func (e *Engine) prepare(ctx context.Context, r *run, job *domain.Job) (*runState, bool) {
	st := &runState{
		job:     job,
		started: time.Now(),
		baseSec: job.ElapsedSec,
	}

	primary, err := e.resolveLane(ctx, job.UserID, job.Provider)
	if err != nil {
		e.log.Warn("job aborted", logger.String("job_id", job.ID), logger.Error(err))
		r.broadcast.Publish(events.NewLog("error", err.Error()))
		r.broadcast.Publish(events.Event{Type: events.TypeDone, Data: events.Done{
			Type:   events.TypeDone,
			Status: string(domain.JobError),
		}})
		if err := e.store.SetJobStatus(ctx, job.ID, domain.JobError); err != nil {
			e.log.Error("mark error", logger.String("job_id", job.ID), logger.Error(err))
		}
		return nil, true
	}
	st.primary = *primary

	if job.Fallback != nil {
		fb, err := e.resolveLane(ctx, job.UserID, job.Fallback.Provider)
		if err != nil {
			e.log.Warn("fallback disabled", logger.String("job_id", job.ID), logger.Error(err))
			r.broadcast.Publish(events.NewLog("warn", "fallback disabled: "+err.Error()))
		} else {
			st.fallback = fb
		}
	}
	if job.Email != nil {
		em, err := e.resolveLane(ctx, job.UserID, job.Email.Provider)
		if err != nil {
			e.log.Warn("email drafts disabled", logger.String("job_id", job.ID), logger.Error(err))
			r.broadcast.Publish(events.NewLog("warn", "email drafts disabled: "+err.Error()))
		} else {
			st.email = em
		}
	}
	return st, false
}

func (e *Engine) resolveLane(ctx context.Context, userID int64, providerID string) (*lane, error) {
	def, err := e.registry.Get(providerID)
	if err != nil {
		return nil, err
	}
	adapter, err := e.registry.Adapter(providerID)
	if err != nil {
		return nil, err
	}
	cred, err := e.store.GetKey(ctx, userID, def.CredentialName)
	if err != nil {
		return nil, err
	}
	if cred == "" {
		return nil, fmt.Errorf("no %s configured for provider %s", def.CredentialName, providerID)
	}
	return &lane{def: def, adapter: adapter, credential: cred}, nil
}

// replayHistory re-emits every completed row so observers attached before
// dispatch see the full picture on resume.
func (e *Engine) replayHistory(ctx context.Context, r *run, job *domain.Job) {
	completed, err := e.store.CompletedRows(ctx, job.ID)
	if err != nil {
		e.log.Error("replay history", logger.String("job_id", job.ID), logger.Error(err))
		return
	}
	for i := range completed {
		r.broadcast.Publish(resultEvent(&completed[i], e.rowCost(job.Provider, &completed[i])))
	}
	current := ""
	if len(completed) > 0 {
		current = "Resuming..."
	}
	r.broadcast.Publish(events.NewProgress(job.Succeeded, job.Failed, job.TotalRows, current))
}

// worker drains the shared queue, pacing between rows with the governor's
// current lane delay.
func (e *Engine) worker(ctx context.Context, r *run, st *runState) {
	for {
		row, ok := st.pop(r)
		if !ok {
			return
		}
		e.processRow(ctx, r, st, row)
		if st.remaining() > 0 && !r.cancelled.Load() {
			time.Sleep(e.governor.Delay(st.job.Provider))
		}
	}
}

// processRow runs the retry loop for one row. Rate limits back off through
// the governor; empty responses back off on their own fixed schedule; any
// other provider error is terminal for the row.
func (e *Engine) processRow(ctx context.Context, r *run, st *runState, row *domain.Row) {
	job := st.job
	st.mu.Lock()
	succeeded, failed := job.Succeeded, job.Failed
	st.mu.Unlock()
	r.broadcast.Publish(events.NewProgress(succeeded, failed, job.TotalRows, row.Label))

	req := provider.Request{
		Prompt:       row.Prompt,
		SystemPrompt: job.SystemPrompt,
		UseWebSearch: job.UseWebSearch && st.primary.def.WebSearch,
		Credential:   st.primary.credential,
	}

	lastErr := ""
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		row.Attempts = attempt
		res, err := st.primary.adapter.Generate(ctx, st.primary.def, req)
		if err == nil {
			e.completeRow(ctx, r, st, row, res)
			return
		}
		lastErr = err.Error()

		if rle, ok := provider.IsRateLimit(err); ok {
			wait := e.governor.ObserveRateLimit(job.Provider, rle.RetryAfter)
			e.metrics.RecordRateLimit(job.Provider)
			snap := e.governor.Snapshot(job.Provider)
			r.broadcast.Publish(events.NewLog("warn", fmt.Sprintf(
				"Rate limit %q, retry in %ds (%d/%d)",
				row.Label, int(wait.Seconds()+0.5), attempt, e.cfg.MaxAttempts)))
			r.broadcast.Publish(events.NewRateInfo(snap.Delay.Milliseconds(), snap.Hits))
			if r.cancelled.Load() {
				break
			}
			time.Sleep(wait)
			continue
		}

		if provider.IsEmptyResponse(err) {
			wait := e.cfg.EmptyRetryBase * time.Duration(attempt)
			if wait > e.cfg.EmptyRetryCap {
				wait = e.cfg.EmptyRetryCap
			}
			r.broadcast.Publish(events.NewLog("warn", fmt.Sprintf(
				"Empty response %q, retry %d/%d in %.0fs",
				row.Label, attempt, e.cfg.MaxAttempts, wait.Seconds())))
			if r.cancelled.Load() {
				break
			}
			time.Sleep(wait)
			continue
		}

		e.failRow(ctx, r, st, row, lastErr)
		return
	}

	if lastErr == "" {
		lastErr = "Max retries"
	}
	e.failRow(ctx, r, st, row, lastErr)
}

// completeRow grades the result, escalates to the fallback lane when the
// job allows and the score is under the threshold, derives the email draft,
// then persists and announces the row.
func (e *Engine) completeRow(ctx context.Context, r *run, st *runState, row *domain.Row, res *provider.Result) {
	job := st.job
	text := res.Text
	grade := grading.Grade(text, job.TemplateID)

	if st.fallback != nil && grade.Score < job.Fallback.Threshold && st.reserveFallback(job.Fallback) {
		fbText, fbGrade, spend, err := e.escalate(ctx, st, row)
		st.mu.Lock()
		job.FallbackSpend += spend
		st.mu.Unlock()
		e.metrics.FallbackCalls.Inc()
		e.metrics.RecordSpend(st.fallback.def.ID, spend)
		switch {
		case err != nil:
			r.broadcast.Publish(events.NewLog("warn", fmt.Sprintf(
				"Fallback failed %q: %s", row.Label, err)))
		case fbGrade.Score > grade.Score:
			text, grade = fbText, fbGrade
			row.FallbackUsed = true
		}
	}

	row.Status = domain.RowSuccess
	row.Research = text
	row.ErrorMsg = ""
	row.Usage = res.Usage
	row.Score = grade.Score
	row.Tier = grade.Tier

	if st.email != nil && grade.Tier != domain.TierWeak {
		e.draftEmail(ctx, r, st, row, text)
	}

	if err := e.store.SaveRow(ctx, row); err != nil {
		e.log.Error("save row", logger.String("job_id", job.ID), logger.Int("idx", row.Idx), logger.Error(err))
	}

	st.mu.Lock()
	job.Succeeded++
	job.Usage.Add(res.Usage)
	job.CostUSD = st.primary.def.Cost(job.Usage) + st.emailSpend
	job.ElapsedSec = st.baseSec + time.Since(st.started).Seconds()
	switch grade.Tier {
	case domain.TierStrong:
		st.tiers.Strong++
	case domain.TierModerate:
		st.tiers.Moderate++
	default:
		st.tiers.Weak++
	}
	if err := e.store.SaveJobProgress(ctx, job); err != nil {
		e.log.Error("save progress", logger.String("job_id", job.ID), logger.Error(err))
	}
	succeeded, failed := job.Succeeded, job.Failed
	st.mu.Unlock()

	e.governor.ObserveSuccess(job.Provider)
	e.metrics.RecordRow(string(domain.RowSuccess), job.Provider)
	e.metrics.RecordSpend(st.primary.def.ID, st.primary.def.Cost(res.Usage))

	r.broadcast.Publish(resultEvent(row, st.primary.def.Cost(row.Usage)))
	r.broadcast.Publish(events.NewProgress(succeeded, failed, job.TotalRows, row.Label))
}

// escalate issues one governed call through the fallback lane and grades
// it. Spend counts whether or not the result is kept.
func (e *Engine) escalate(ctx context.Context, st *runState, row *domain.Row) (string, grading.Result, float64, error) {
	fb := st.fallback
	time.Sleep(e.governor.Delay(fb.def.ID))

	res, err := fb.adapter.Generate(ctx, fb.def, provider.Request{
		Prompt:       row.Prompt,
		SystemPrompt: st.job.SystemPrompt,
		UseWebSearch: st.job.UseWebSearch && fb.def.WebSearch,
		Credential:   fb.credential,
	})
	if err != nil {
		if rle, ok := provider.IsRateLimit(err); ok {
			e.governor.ObserveRateLimit(fb.def.ID, rle.RetryAfter)
			e.metrics.RecordRateLimit(fb.def.ID)
		}
		return "", grading.Result{}, 0, err
	}

	e.governor.ObserveSuccess(fb.def.ID)
	return res.Text, grading.Grade(res.Text, st.job.TemplateID), fb.def.Cost(res.Usage), nil
}

// draftEmail synthesizes the outreach draft from the kept research text.
// Failure marks the row but never affects its status or score.
func (e *Engine) draftEmail(ctx context.Context, r *run, st *runState, row *domain.Row, research string) {
	em := st.email
	prompt := templates.BuildEmailPrompt(research, st.job.Email.Framework, st.job.Email.SenderName, st.job.Email.SenderOffer)

	res, err := em.adapter.Generate(ctx, em.def, provider.Request{
		Prompt:     prompt,
		Credential: em.credential,
	})
	if err != nil {
		row.EmailFailed = true
		r.broadcast.Publish(events.NewLog("warn", fmt.Sprintf(
			"Email draft failed %q: %s", row.Label, err)))
		return
	}

	row.EmailDraft = res.Text
	row.EmailFailed = false
	e.metrics.EmailDrafts.Inc()
	e.metrics.RecordSpend(em.def.ID, em.def.Cost(res.Usage))

	st.mu.Lock()
	st.emailSpend += em.def.Cost(res.Usage)
	st.emails++
	st.mu.Unlock()

	r.broadcast.Publish(events.NewEmail(row.Idx, row.Label, res.Text))
}

func (e *Engine) failRow(ctx context.Context, r *run, st *runState, row *domain.Row, msg string) {
	job := st.job

	row.Status = domain.RowError
	row.ErrorMsg = msg
	row.Research = ""
	row.Tier = domain.TierError
	if err := e.store.SaveRow(ctx, row); err != nil {
		e.log.Error("save row", logger.String("job_id", job.ID), logger.Int("idx", row.Idx), logger.Error(err))
	}

	st.mu.Lock()
	job.Failed++
	job.ElapsedSec = st.baseSec + time.Since(st.started).Seconds()
	if err := e.store.SaveJobProgress(ctx, job); err != nil {
		e.log.Error("save progress", logger.String("job_id", job.ID), logger.Error(err))
	}
	succeeded, failed := job.Succeeded, job.Failed
	st.mu.Unlock()

	e.metrics.RecordRow(string(domain.RowError), job.Provider)

	r.broadcast.Publish(resultEvent(row, 0))
	r.broadcast.Publish(events.NewProgress(succeeded, failed, job.TotalRows, row.Label))
}

// finalize persists the terminal state and emits the done event with full
// aggregates. The tier breakdown is re-tallied from the store so resumed
// runs count rows finished in earlier passes.
func (e *Engine) finalize(ctx context.Context, r *run, st *runState, status domain.JobStatus) {
	job := st.job

	st.mu.Lock()
	job.Status = status
	job.ElapsedSec = st.baseSec + time.Since(st.started).Seconds()
	if err := e.store.SaveJobProgress(ctx, job); err != nil {
		e.log.Error("finalize job", logger.String("job_id", job.ID), logger.Error(err))
	}
	st.mu.Unlock()

	tally := aggregates{tiers: st.tiers, emails: st.emails}
	if completed, err := e.store.CompletedRows(ctx, job.ID); err == nil {
		tally = tallyRows(completed)
	}

	e.log.Info("job finished",
		logger.String("job_id", job.ID),
		logger.String("status", string(status)),
		logger.Int("succeeded", job.Succeeded),
		logger.Int("failed", job.Failed),
		logger.Float64("cost_usd", job.CostUSD))

	r.broadcast.Publish(doneEvent(job, tally))
}

type aggregates struct {
	tiers  events.TierCounts
	emails int
}

func tallyRows(rows []domain.Row) aggregates {
	var agg aggregates
	for i := range rows {
		switch rows[i].Tier {
		case domain.TierStrong:
			agg.tiers.Strong++
		case domain.TierModerate:
			agg.tiers.Moderate++
		case domain.TierWeak:
			agg.tiers.Weak++
		}
		if rows[i].EmailDraft != "" {
			agg.emails++
		}
	}
	return agg
}

// rowCost prices a row's usage at the given provider's rates.
func (e *Engine) rowCost(providerID string, row *domain.Row) float64 {
	def, err := e.registry.Get(providerID)
	if err != nil {
		return 0
	}
	return def.Cost(row.Usage)
}

func resultEvent(row *domain.Row, cost float64) events.Event {
	return events.Event{Type: events.TypeResult, Data: events.Result{
		Type:         events.TypeResult,
		Idx:          row.Idx,
		Label:        row.Label,
		Status:       string(row.Status),
		Research:     row.Research,
		Error:        row.ErrorMsg,
		InputTokens:  row.Usage.Input,
		OutputTokens: row.Usage.Output,
		Score:        row.Score,
		Tier:         string(row.Tier),
		FallbackUsed: row.FallbackUsed,
		CostUSD:      cost,
	}}
}

func doneEvent(job *domain.Job, agg aggregates) events.Event {
	return events.Event{Type: events.TypeDone, Data: events.Done{
		Type:          events.TypeDone,
		Status:        string(job.Status),
		Succeeded:     job.Succeeded,
		Failed:        job.Failed,
		Elapsed:       fmt.Sprintf("%.1f", job.ElapsedSec),
		Cost:          fmt.Sprintf("%.4f", job.CostUSD),
		TotalTokens:   job.Usage.Total(),
		CacheRead:     job.Usage.CacheRead,
		CacheWrite:    job.Usage.CacheWrite,
		Tiers:         agg.tiers,
		Emails:        agg.emails,
		FallbackCalls: job.FallbackCalls,
		FallbackSpend: job.FallbackSpend,
	}}
}
