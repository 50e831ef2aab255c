package events

// Event type names as they appear on the wire in the SSE `data` payload.
const (
	TypeProgress = "progress"
	TypeResult   = "result"
	TypeLog      = "log"
	TypeRateInfo = "rate_info"
	TypeEmail    = "email"
	TypeDone     = "done"
)

// Event is a single job event. Data is one of the payload structs below and
// marshals to the client as a flat JSON object including the type field.
type Event struct {
	Type string
	Data any
}

// Progress reports counters after each state change. Current names the row
// being worked when one is in flight.
type Progress struct {
	Type      string `json:"type"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Current   string `json:"current,omitempty"`
}

// Result carries one row outcome, terminal or replayed.
type Result struct {
	Type         string  `json:"type"`
	Idx          int     `json:"idx"`
	Label        string  `json:"company"`
	Status       string  `json:"status"`
	Research     string  `json:"research,omitempty"`
	Error        string  `json:"error,omitempty"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	Score        int     `json:"score"`
	Tier         string  `json:"tier,omitempty"`
	FallbackUsed bool    `json:"fallbackUsed,omitempty"`
	CostUSD      float64 `json:"cost,omitempty"`
}

// Log is a human-readable line for the job console.
type Log struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

// RateInfo reports the governor lane state after a rate-limit hit.
type RateInfo struct {
	Type    string `json:"type"`
	DelayMS int64  `json:"delay"`
	Hits    int    `json:"hits"`
}

// Email reports a generated draft for a row.
type Email struct {
	Type  string `json:"type"`
	Idx   int    `json:"idx"`
	Label string `json:"company"`
	Draft string `json:"draft"`
}

// TierCounts breaks results down by quality tier.
type TierCounts struct {
	Strong   int `json:"strong"`
	Moderate int `json:"moderate"`
	Weak     int `json:"weak"`
}

// Done is the terminal event for a run. Elapsed and Cost are formatted
// strings so clients render them verbatim.
type Done struct {
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Succeeded     int        `json:"succeeded"`
	Failed        int        `json:"failed"`
	Elapsed       string     `json:"elapsed,omitempty"`
	Cost          string     `json:"cost,omitempty"`
	TotalTokens   int64      `json:"totalTokens"`
	CacheRead     int64      `json:"cacheRead"`
	CacheWrite    int64      `json:"cacheWrite"`
	Tiers         TierCounts `json:"tiers"`
	Emails        int        `json:"emails"`
	FallbackCalls int        `json:"fallbackCalls"`
	FallbackSpend float64    `json:"fallbackSpend"`
}

// NewProgress builds a progress event.
func NewProgress(succeeded, failed, total int, current string) Event {
	return Event{Type: TypeProgress, Data: Progress{
		Type:      TypeProgress,
		Succeeded: succeeded,
		Failed:    failed,
		Total:     total,
		Current:   current,
	}}
}

// NewLog builds a log event.
func NewLog(level, msg string) Event {
	return Event{Type: TypeLog, Data: Log{Type: TypeLog, Level: level, Message: msg}}
}

// NewRateInfo builds a rate_info event.
func NewRateInfo(delayMS int64, hits int) Event {
	return Event{Type: TypeRateInfo, Data: RateInfo{Type: TypeRateInfo, DelayMS: delayMS, Hits: hits}}
}

// NewEmail builds an email event.
func NewEmail(idx int, label, draft string) Event {
	return Event{Type: TypeEmail, Data: Email{Type: TypeEmail, Idx: idx, Label: label, Draft: draft}}
}
