package provider

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/north-cloud/prospect-research/internal/domain"
)

// maxOutputTokens bounds every generation call.
const maxOutputTokens = 4000

// anthropicAdapter calls the Anthropic Messages API through the official SDK.
// The system prompt is marked ephemeral-cacheable: every row of a job shares
// the same system prompt, so cache reads dominate after the first row.
type anthropicAdapter struct{}

func newAnthropicAdapter() *anthropicAdapter {
	return &anthropicAdapter{}
}

func (a *anthropicAdapter) Generate(ctx context.Context, def Definition, req Request) (*Result, error) {
	client := anthropic.NewClient(option.WithAPIKey(req.Credential))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(def.Model),
		MaxTokens: maxOutputTokens,
		System: []anthropic.TextBlockParam{
			{
				Text:         req.SystemPrompt,
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.UseWebSearch && def.WebSearch {
		params.Tools = []anthropic.ToolUnionParam{
			{OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{}},
		}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(text.Text)
		}
	}

	usage := domain.TokenUsage{
		Input:      msg.Usage.InputTokens,
		Output:     msg.Usage.OutputTokens,
		CacheRead:  msg.Usage.CacheReadInputTokens,
		CacheWrite: msg.Usage.CacheCreationInputTokens,
	}

	text := strings.TrimSpace(sb.String())
	if text == "" && usage.Output == 0 {
		return nil, &ProviderError{Message: "empty response from " + def.DisplayName, Empty: true}
	}
	return &Result{Text: text, Usage: usage}, nil
}

// classifyAnthropicError maps SDK errors onto the adapter taxonomy.
// 429 and 529 (overloaded) are both backoff signals.
func classifyAnthropicError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusTooManyRequests, 529:
			return &RateLimitError{RetryAfter: retryAfterHeader(apierr.Response)}
		default:
			return &ProviderError{Message: apierr.Error()}
		}
	}
	return &ProviderError{Message: err.Error()}
}

// retryAfterHeader parses a Retry-After header in seconds, zero when absent.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
