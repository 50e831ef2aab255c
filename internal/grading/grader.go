// Package grading scores generated research text against the originating
// task type. Scoring is a pipeline of independent rules, each contributing a
// bounded number of points; the sum is clamped to [0,100] and bucketed into
// tiers. Grading is deterministic and makes no external calls.
package grading

import (
	"strings"

	"github.com/north-cloud/prospect-research/internal/domain"
)

// Tier thresholds.
const (
	StrongThreshold   = 75
	ModerateThreshold = 45
)

// minUsableLength is the character count below which text is graded 0/weak.
const minUsableLength = 30

// disqualifiedScore is the grade for an explicit investor disqualification.
// A short "Not an Investor" reply is a valid, moderately-confident answer for
// the VC due-diligence task, not a failure.
const disqualifiedScore = 75

// investorTaskID is the template whose disqualification special case applies.
const investorTaskID = "vc-research"

// maxDisqualifiedLength bounds how long an explicit disqualification reply
// can be; longer texts mentioning the phrase get graded normally.
const maxDisqualifiedLength = 200

// Result is the outcome of grading one text.
type Result struct {
	Score int         `json:"score"`
	Tier  domain.Tier `json:"tier"`
}

// rule is one bounded scoring signal.
type rule struct {
	name  string
	cap   int
	score func(text, lower string) int
}

// The pipeline. Caps sum to 100.
var rules = []rule{
	{name: "length", cap: lengthCap, score: scoreLength},
	{name: "structure", cap: structureCap, score: scoreStructure},
	{name: "information", cap: informationCap, score: scoreInformation},
	{name: "hedging", cap: hedgingCap, score: scoreHedging},
	{name: "recency", cap: recencyCap, score: scoreRecency},
}

// Grade scores text for the given task type (template id).
func Grade(text, taskType string) Result {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if len(trimmed) < minUsableLength {
		return Result{Score: 0, Tier: domain.TierWeak}
	}

	if taskType == investorTaskID && isDisqualification(lower) {
		return Result{Score: disqualifiedScore, Tier: domain.TierModerate}
	}

	total := 0
	for _, r := range rules {
		pts := r.score(trimmed, lower)
		if pts > r.cap {
			pts = r.cap
		}
		if pts < 0 {
			pts = 0
		}
		total += pts
	}

	if total > 100 {
		total = 100
	}
	return Result{Score: total, Tier: TierFor(total)}
}

// TierFor maps a clamped score to its tier bucket.
func TierFor(score int) domain.Tier {
	switch {
	case score >= StrongThreshold:
		return domain.TierStrong
	case score >= ModerateThreshold:
		return domain.TierModerate
	default:
		return domain.TierWeak
	}
}

// isDisqualification detects a short explicit "not an investor" reply.
func isDisqualification(lower string) bool {
	return len(lower) <= maxDisqualifiedLength && strings.Contains(lower, "not an investor")
}
