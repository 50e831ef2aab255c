// Package domain holds the core job and row model shared by the store,
// engine, and API layers.
package domain

import "time"

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

// Job lifecycle states. The only re-entrant transition is paused -> running.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobComplete  JobStatus = "complete"
	JobCancelled JobStatus = "cancelled"
	JobError     JobStatus = "error"
)

// Terminal reports whether the job can never run again.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobCancelled
}

// Resumable reports whether a job with no active run loop may re-enter the
// run loop. A persisted running status without a live run is a crashed run
// and counts as resumable.
func (s JobStatus) Resumable() bool {
	return !s.Terminal()
}

// FallbackConfig enables low-quality escalation to a second provider.
type FallbackConfig struct {
	Provider   string  `json:"provider"`
	Threshold  int     `json:"threshold"`   // escalate rows scoring below this
	BudgetUSD  float64 `json:"budget_usd"`  // hard cap on fallback spend
	MaxPercent int     `json:"max_percent"` // cap on ceil(total*pct/100) fallback calls
}

// EmailConfig enables derived email drafts for non-weak rows.
type EmailConfig struct {
	Provider    string `json:"provider"`
	Framework   string `json:"framework"` // persuasion framework id
	SenderName  string `json:"sender_name"`
	SenderOffer string `json:"sender_offer"`
}

// TokenUsage accumulates provider-reported token counters.
type TokenUsage struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	CacheRead  int64 `json:"cache_read"`
	CacheWrite int64 `json:"cache_write"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.CacheRead += other.CacheRead
	u.CacheWrite += other.CacheWrite
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 {
	return u.Input + u.Output
}

// Job identifies one batch run of prospect research rows.
type Job struct {
	ID           string
	UserID       int64
	Name         string
	Provider     string
	TemplateID   string
	SystemPrompt string
	UseWebSearch bool
	ColumnMap    map[string]string

	TotalRows int
	Succeeded int
	Failed    int
	Status    JobStatus

	Usage         TokenUsage
	CostUSD       float64
	ElapsedSec    float64
	FallbackSpend float64
	FallbackCalls int

	Fallback *FallbackConfig
	Email    *EmailConfig

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CountersValid checks the core progress invariant.
func (j *Job) CountersValid() bool {
	return j.Succeeded >= 0 && j.Failed >= 0 && j.Succeeded+j.Failed <= j.TotalRows
}
