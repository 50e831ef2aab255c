package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRateLimit_DoublesDelay(t *testing.T) {
	g := NewGovernor()

	got := g.ObserveRateLimit("gemini", 0)
	assert.Equal(t, 2*time.Second, got, "initial 1s delay should double")

	got = g.ObserveRateLimit("gemini", 0)
	assert.Equal(t, 4*time.Second, got)
}

func TestObserveRateLimit_HonorsSuggestedWait(t *testing.T) {
	g := NewGovernor()

	// Suggested 30s beats doubling 1s -> 2s; scaled up by 20%.
	got := g.ObserveRateLimit("gemini", 30*time.Second)
	assert.Equal(t, 36*time.Second, got)
}

func TestObserveRateLimit_SuggestedSmallerThanDouble(t *testing.T) {
	g := NewGovernor()

	got := g.ObserveRateLimit("claude", 500*time.Millisecond)
	assert.Equal(t, 2*time.Second, got, "doubling wins when suggested*1.2 is smaller")
}

func TestObserveRateLimit_ClampsToCeiling(t *testing.T) {
	g := NewGovernor()

	var got time.Duration
	for i := 0; i < 10; i++ {
		got = g.ObserveRateLimit("gemini", 0)
	}
	assert.Equal(t, DefaultMaxDelay, got)

	got = g.ObserveRateLimit("gemini", 10*time.Minute)
	assert.Equal(t, DefaultMaxDelay, got, "suggested wait is clamped too")
}

func TestObserveSuccess_DecaysAfterFiveInARow(t *testing.T) {
	g := NewGovernor()
	g.ObserveRateLimit("openai", 0) // delay now 2s

	for i := 0; i < 4; i++ {
		g.ObserveSuccess("openai")
		assert.Equal(t, 2*time.Second, g.Delay("openai"), "no decay before run of 5 (i=%d)", i)
	}

	g.ObserveSuccess("openai")
	assert.Equal(t, 1600*time.Millisecond, g.Delay("openai"), "fifth success decays by exactly 20%")

	snap := g.Snapshot("openai")
	assert.Equal(t, 0, snap.ConsecutiveSuccesses, "run counter resets after decay")
}

func TestObserveSuccess_ClampsToFloor(t *testing.T) {
	g := NewGovernor()

	// Delay starts at 1s; repeated success runs must never go below the floor.
	for i := 0; i < 100; i++ {
		g.ObserveSuccess("deepseek")
	}
	assert.GreaterOrEqual(t, g.Delay("deepseek"), DefaultMinDelay)
	assert.Equal(t, DefaultMinDelay, g.Delay("deepseek"))
}

func TestRateLimitResetsSuccessRun(t *testing.T) {
	g := NewGovernor()

	for i := 0; i < 4; i++ {
		g.ObserveSuccess("gemini")
	}
	g.ObserveRateLimit("gemini", 0)
	g.ObserveSuccess("gemini")

	snap := g.Snapshot("gemini")
	assert.Equal(t, 1, snap.ConsecutiveSuccesses, "hit resets the success run")
	assert.Equal(t, 1, snap.Hits)
}

func TestLanesAreIndependent(t *testing.T) {
	g := NewGovernor()

	g.ObserveRateLimit("gemini", 0)
	assert.Equal(t, 2*time.Second, g.Delay("gemini"))
	assert.Equal(t, DefaultInitialDelay, g.Delay("claude"), "one provider's hits must not slow another")
}

func TestConcurrentObservers(t *testing.T) {
	g := NewGovernor()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				g.ObserveSuccess("claude")
				g.ObserveRateLimit("claude", 0)
				_ = g.Delay("claude")
			}
		}()
	}
	wg.Wait()

	snap := g.Snapshot("claude")
	require.Equal(t, 1600, snap.Hits, "no lost hit updates under concurrency")
}
