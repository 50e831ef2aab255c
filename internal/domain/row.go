package domain

// RowStatus is the state of a single work item within a job.
type RowStatus string

// Row states. A row moves pending -> success|error exactly once per engine
// pass; resumption re-queues only rows still pending.
const (
	RowPending RowStatus = "pending"
	RowSuccess RowStatus = "success"
	RowError   RowStatus = "error"
)

// Tier is the coarse quality bucket derived from a numeric grade.
type Tier string

// Quality tiers.
const (
	TierWeak     Tier = "weak"
	TierModerate Tier = "moderate"
	TierStrong   Tier = "strong"
	TierError    Tier = "error"
)

// UngradedScore marks a row that has not been graded yet.
const UngradedScore = -1

// Row is one unit of work (one prospect) within a job.
type Row struct {
	JobID  string
	Idx    int
	Label  string
	Prompt string

	Status   RowStatus
	Research string
	ErrorMsg string
	Usage    TokenUsage

	Score        int
	Tier         Tier
	FallbackUsed bool
	Attempts     int

	EmailDraft  string
	EmailFailed bool
}
