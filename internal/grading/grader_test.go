package grading

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/north-cloud/prospect-research/internal/domain"
)

// structuredBrief builds a realistic research brief with hard data and markup.
func structuredBrief() string {
	return strings.Repeat("Acme Corp builds warehouse robotics for mid-market 3PLs. ", 12) + `
## Company Snapshot
Acme Corp recently announced a $25M Series B at a $120M valuation in March 2025.
1. Revenue grew 80% year over year.
2. Expanded to three new markets after the funding round.
- **Hiring surge**: 40 open roles, mostly robotics engineers.
- Source: https://acme.example/press partnership with Maersk announced.
`
}

func TestGrade_EmptyText(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t  "},
		{"under thirty chars", "No results."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Grade(tt.text, "b2b-outreach")
			assert.Equal(t, 0, got.Score)
			assert.Equal(t, domain.TierWeak, got.Tier)
		})
	}
}

func TestGrade_Deterministic(t *testing.T) {
	text := structuredBrief()
	first := Grade(text, "b2b-outreach")
	second := Grade(text, "b2b-outreach")
	assert.Equal(t, first, second, "same text and task must grade identically")
}

func TestGrade_StructuredBriefScoresStrong(t *testing.T) {
	got := Grade(structuredBrief(), "b2b-outreach")
	assert.GreaterOrEqual(t, got.Score, StrongThreshold)
	assert.Equal(t, domain.TierStrong, got.Tier)
}

func TestGrade_InvestorDisqualification(t *testing.T) {
	got := Grade("Not an Investor. This company does not invest in startups.", investorTaskID)
	assert.Equal(t, disqualifiedScore, got.Score)
	assert.Equal(t, domain.TierModerate, got.Tier)
}

func TestGrade_DisqualificationOnlyForInvestorTask(t *testing.T) {
	text := "Not an Investor. This company does not invest in startups."
	got := Grade(text, "b2b-outreach")
	assert.NotEqual(t, disqualifiedScore, got.Score, "special case must not leak to other task types")
}

func TestGrade_LongInvestorTextGradedNormally(t *testing.T) {
	// A full brief that merely mentions the phrase is not a disqualification.
	text := structuredBrief() + " One analyst claimed they are not an investor, which is wrong."
	got := Grade(text, investorTaskID)
	assert.NotEqual(t, disqualifiedScore, got.Score)
	assert.Equal(t, domain.TierStrong, got.Tier)
}

func TestGrade_HedgingLowersScore(t *testing.T) {
	base := structuredBrief()
	hedged := base + " I could not find revenue data. Details are not publicly available."

	clean := Grade(base, "b2b-outreach")
	withHedge := Grade(hedged, "b2b-outreach")
	assert.Less(t, withHedge.Score, clean.Score)
}

func TestGrade_HedgingPenaltyDiminishes(t *testing.T) {
	// Each additional occurrence must cost no more than the previous one.
	base := strings.Repeat("Plain filler text about the company and its market position. ", 10)
	prev := Grade(base, "b2b-outreach").Score
	prevDrop := -1
	for i := 1; i <= 4; i++ {
		text := base + strings.Repeat(" could not find", i)
		score := Grade(text, "b2b-outreach").Score
		drop := prev - score
		if prevDrop >= 0 {
			assert.LessOrEqual(t, drop, prevDrop, "occurrence %d should cost no more than the one before", i)
		}
		prev = score
		prevDrop = drop
	}
}

func TestGrade_ScoreClamped(t *testing.T) {
	// Pile every signal on thick; score must stay within [0,100].
	text := structuredBrief() + strings.Repeat(" $5M raised 2025 https://x.example 40% series b recently announced launched partnership", 20)
	got := Grade(text, "b2b-outreach")
	assert.LessOrEqual(t, got.Score, 100)
	assert.GreaterOrEqual(t, got.Score, 0)
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score int
		want  domain.Tier
	}{
		{0, domain.TierWeak},
		{44, domain.TierWeak},
		{45, domain.TierModerate},
		{74, domain.TierModerate},
		{75, domain.TierStrong},
		{100, domain.TierStrong},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.score), "score %d", tt.score)
	}
}

func TestScoreRules_IndividualCaps(t *testing.T) {
	lower := func(s string) string { return strings.ToLower(s) }

	t.Run("structure capped", func(t *testing.T) {
		text := strings.Repeat("## Heading\n1. item\n- bullet\n**bold** ", 50)
		pts := scoreStructure(text, lower(text))
		assert.Greater(t, pts, structureCap, "raw rule exceeds cap, pipeline clamps it")
	})

	t.Run("information counts concrete data", func(t *testing.T) {
		text := "Raised $12.5M in 2024, grew 35%, see https://example.com, series a."
		pts := scoreInformation(text, lower(text))
		assert.GreaterOrEqual(t, pts, 5*informationHitPoints)
	})

	t.Run("no hedging keeps full cap", func(t *testing.T) {
		text := "Solid company with strong growth."
		assert.Equal(t, hedgingCap, scoreHedging(text, lower(text)))
	})
}
