// Package provider defines the uniform call contract over the external
// text-generation services and the registry of known providers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/north-cloud/prospect-research/internal/domain"
)

// Request is one generation call.
type Request struct {
	Prompt       string
	SystemPrompt string
	UseWebSearch bool
	Credential   string
}

// Result is the successful outcome of a generation call.
type Result struct {
	Text  string
	Usage domain.TokenUsage
}

// Adapter is the capability interface over one provider family. An adapter
// must not mutate any shared state; its only side effect is the outbound
// network call.
type Adapter interface {
	// Generate runs one prompt through the provider. Failures are either a
	// *RateLimitError (retryable with backoff) or a *ProviderError
	// (terminal per attempt, unless Empty).
	Generate(ctx context.Context, def Definition, req Request) (*Result, error)
}

// RateLimitError signals the provider rejected the call under load. The
// caller should back off and retry the same row.
type RateLimitError struct {
	// RetryAfter is the server-suggested wait, zero when not supplied.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// ProviderError is an application-level failure: bad request, quota
// exhausted, malformed response. Not retryable except the Empty sub-case.
type ProviderError struct {
	Message string
	// Empty marks the grounded-but-textless response some providers return
	// when web search produced citations without a text part. Retryable with
	// a fixed escalating delay, not counted as a rate-limit hit.
	Empty bool
}

func (e *ProviderError) Error() string { return e.Message }

// IsRateLimit reports whether err is a rate-limit rejection.
func IsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// IsEmptyResponse reports whether err is the retryable empty-response case.
func IsEmptyResponse(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Empty
}
