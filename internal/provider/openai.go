package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/north-cloud/prospect-research/internal/domain"
)

// openaiAdapter calls OpenAI-compatible chat-completions endpoints. DeepSeek
// shares the wire format, so one adapter serves both.
type openaiAdapter struct {
	client *http.Client
}

func newOpenAIAdapter() *openaiAdapter {
	return &openaiAdapter{client: &http.Client{Timeout: callTimeout}}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (o *openaiAdapter) Generate(ctx context.Context, def Definition, req Request) (*Result, error) {
	body := map[string]any{
		"model": def.Model,
		"messages": []openaiMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
	}
	// gpt-5 family renamed the output-token parameter.
	if strings.HasPrefix(def.Model, "gpt-5") {
		body["max_completion_tokens"] = maxOutputTokens
	} else {
		body["max_tokens"] = maxOutputTokens
	}
	if req.UseWebSearch && def.WebSearch {
		body["tools"] = []map[string]any{{"type": "web_search_preview"}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		def.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("%s request: %v", def.ID, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: retryAfterHeader(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Message: readAPIError(resp.Body, def.ID, resp.StatusCode)}
	}

	var data openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("decode response: %v", err)}
	}

	var text string
	if len(data.Choices) > 0 {
		text = strings.TrimSpace(data.Choices[0].Message.Content)
	}
	usage := domain.TokenUsage{
		Input:  data.Usage.PromptTokens,
		Output: data.Usage.CompletionTokens,
	}

	if text == "" && usage.Output == 0 {
		return nil, &ProviderError{Message: "empty response from " + def.DisplayName, Empty: true}
	}
	return &Result{Text: text, Usage: usage}, nil
}
