package grading

import (
	"regexp"
	"strings"
)

// Per-rule point caps. They sum to 100.
const (
	lengthCap      = 25
	structureCap   = 20
	informationCap = 25
	hedgingCap     = 15
	recencyCap     = 15
)

// Length tiers in characters.
const (
	lengthTierShort  = 100
	lengthTierBasic  = 300
	lengthTierSolid  = 600
	lengthTierStrong = 1200
	lengthTierDeep   = 2000
)

// scoreLength rewards longer research up to a cap. Length is a weak proxy for
// depth but correlates well enough to anchor the pipeline.
func scoreLength(text, _ string) int {
	n := len(text)
	switch {
	case n >= lengthTierDeep:
		return 25
	case n >= lengthTierStrong:
		return 20
	case n >= lengthTierSolid:
		return 15
	case n >= lengthTierBasic:
		return 10
	case n >= lengthTierShort:
		return 5
	default:
		return 0
	}
}

var (
	headingPattern  = regexp.MustCompile(`(?m)^#{1,4}\s+\S`)
	numberedPattern = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	bulletPattern   = regexp.MustCompile(`(?m)^\s*[-*]\s+\S`)
)

// structureMarkerPoints is awarded per markup marker found.
const structureMarkerPoints = 2

// scoreStructure rewards markdown structure: headings, numbered lists,
// bullets, bold markers. Structured briefs export and filter better.
func scoreStructure(text, _ string) int {
	markers := len(headingPattern.FindAllString(text, -1))
	markers += len(numberedPattern.FindAllString(text, -1))
	markers += len(bulletPattern.FindAllString(text, -1))
	markers += strings.Count(text, "**") / 2
	return markers * structureMarkerPoints
}

var (
	currencyPattern = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?\s*(?:[kKmMbB](?:illion)?)?`)
	yearPattern     = regexp.MustCompile(`\b20\d{2}\b`)
	urlPattern      = regexp.MustCompile(`https?://\S+|www\.\S+`)
	percentPattern  = regexp.MustCompile(`\b\d+(?:\.\d+)?%`)
)

// Funding-stage vocabulary counted as hard information.
var fundingKeywords = []string{
	"seed round", "pre-seed", "series a", "series b", "series c", "series d",
	"funding round", "raised", "valuation", "acquisition", "acquired", "ipo",
}

// informationHitPoints is awarded per concrete data point found.
const informationHitPoints = 3

// scoreInformation rewards concrete data: currency amounts, years, URLs,
// percentages, funding-stage language.
func scoreInformation(text, lower string) int {
	hits := len(currencyPattern.FindAllString(text, -1))
	hits += len(yearPattern.FindAllString(text, -1))
	hits += len(urlPattern.FindAllString(text, -1))
	hits += len(percentPattern.FindAllString(text, -1))
	for _, kw := range fundingKeywords {
		hits += strings.Count(lower, kw)
	}
	return hits * informationHitPoints
}

// Hedging phrases signal the model found nothing and padded the answer.
var hedgingPhrases = []string{
	"could not find",
	"couldn't find",
	"unable to find",
	"not publicly available",
	"no public information",
	"no information available",
	"limited information",
	"i don't have",
	"it is unclear",
	"it's unclear",
}

// firstHedgePenalty is the penalty for the first hedging occurrence; each
// subsequent occurrence costs half the previous one (diminishing).
const firstHedgePenalty = 8

// scoreHedging starts from the full cap and subtracts a diminishing penalty
// per hedging occurrence. A brief with no hedging keeps all 15 points.
func scoreHedging(_, lower string) int {
	occurrences := 0
	for _, p := range hedgingPhrases {
		occurrences += strings.Count(lower, p)
	}

	pts := hedgingCap
	penalty := firstHedgePenalty
	for i := 0; i < occurrences; i++ {
		pts -= penalty
		if penalty > 1 {
			penalty /= 2
		}
	}
	return pts
}

// Trigger-event vocabulary: recent activity worth referencing in outreach.
var recencyKeywords = []string{
	"recently", "announced", "launched", "last month", "this year",
	"new funding", "just raised", "expansion", "expanded", "partnership",
	"hired", "hiring surge", "leadership change", "appointed",
}

// recencyHitPoints is awarded per trigger keyword found.
const recencyHitPoints = 3

// scoreRecency rewards trigger-event language.
func scoreRecency(_, lower string) int {
	hits := 0
	for _, kw := range recencyKeywords {
		hits += strings.Count(lower, kw)
	}
	return hits * recencyHitPoints
}
