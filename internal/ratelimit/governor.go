// Package ratelimit implements the per-provider adaptive delay governor.
//
// Each upstream provider gets one shared admission-control lane: every worker
// of every job using that provider observes and mutates the same delay state.
// The controller is AIMD-shaped — rate-limit hits at least double the delay,
// sustained success decays it back toward the floor.
package ratelimit

import (
	"sync"
	"time"
)

// Controller defaults.
const (
	DefaultMinDelay     = 300 * time.Millisecond
	DefaultMaxDelay     = 60 * time.Second
	DefaultInitialDelay = 1 * time.Second

	// decaySuccesses is the consecutive-success run that triggers decay.
	decaySuccesses = 5
	// decayFactor shrinks the delay after a success run.
	decayFactor = 0.8
	// suggestedMargin scales a server-suggested retry delay for safety.
	suggestedMargin = 1.2
)

// Snapshot is a read-only view of one provider's lane, used for rate_info
// events and stats endpoints.
type Snapshot struct {
	Delay                time.Duration `json:"delay_ms"`
	Hits                 int           `json:"hits"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
}

type lane struct {
	delay     time.Duration
	min       time.Duration
	max       time.Duration
	successes int
	hits      int
}

// Governor holds per-provider delay state for the lifetime of the process.
// It is safe for concurrent use by workers across all jobs.
type Governor struct {
	mu    sync.Mutex
	lanes map[string]*lane

	minDelay     time.Duration
	maxDelay     time.Duration
	initialDelay time.Duration
}

// NewGovernor creates a governor with default controller constants.
func NewGovernor() *Governor {
	return &Governor{
		lanes:        make(map[string]*lane),
		minDelay:     DefaultMinDelay,
		maxDelay:     DefaultMaxDelay,
		initialDelay: DefaultInitialDelay,
	}
}

// NewGovernorWith creates a governor with explicit controller constants.
func NewGovernorWith(min, max, initial time.Duration) *Governor {
	return &Governor{
		lanes:        make(map[string]*lane),
		minDelay:     min,
		maxDelay:     max,
		initialDelay: initial,
	}
}

// lane returns the state for a provider, creating it on first use.
// Caller must hold g.mu.
func (g *Governor) laneFor(provider string) *lane {
	l, ok := g.lanes[provider]
	if !ok {
		l = &lane{delay: g.initialDelay, min: g.minDelay, max: g.maxDelay}
		g.lanes[provider] = l
	}
	return l
}

// ObserveRateLimit records a rate-limit hit and returns the delay to wait
// before the next call. The new delay is the larger of double the current
// delay and the server-suggested wait scaled by 20%, clamped to the ceiling.
func (g *Governor) ObserveRateLimit(provider string, suggested time.Duration) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := g.laneFor(provider)
	l.successes = 0
	l.hits++

	next := l.delay * 2
	if suggested > 0 {
		scaled := time.Duration(float64(suggested) * suggestedMargin)
		if scaled > next {
			next = scaled
		}
	}
	if next > l.max {
		next = l.max
	}
	l.delay = next
	return l.delay
}

// ObserveSuccess records a successful call. Five consecutive successes decay
// the delay by 20%, clamped to the floor, and reset the run counter.
func (g *Governor) ObserveSuccess(provider string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := g.laneFor(provider)
	l.successes++
	if l.successes >= decaySuccesses && l.delay > l.min {
		decayed := time.Duration(float64(l.delay) * decayFactor)
		if decayed < l.min {
			decayed = l.min
		}
		l.delay = decayed
		l.successes = 0
	}
}

// Delay returns the current inter-call delay for a provider.
func (g *Governor) Delay(provider string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.laneFor(provider).delay
}

// Snapshot returns a copy of the provider's lane state.
func (g *Governor) Snapshot(provider string) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	l := g.laneFor(provider)
	return Snapshot{Delay: l.delay, Hits: l.hits, ConsecutiveSuccesses: l.successes}
}
