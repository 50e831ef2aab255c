package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/north-cloud/prospect-research/internal/domain"
)

// callTimeout bounds one REST generation call. Grounded web-search calls can
// run long; the transport still needs an upper bound.
const callTimeout = 180 * time.Second

// geminiAdapter calls the Gemini generateContent REST endpoint.
type geminiAdapter struct {
	client *http.Client
}

func newGeminiAdapter() *geminiAdapter {
	return &geminiAdapter{client: &http.Client{Timeout: callTimeout}}
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  map[string]any   `json:"generationConfig,omitempty"`
	Tools             []map[string]any `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// citationMarker strips inline [cite: N] markers from grounded responses.
var citationMarker = regexp.MustCompile(`\s*\[cite:\s*[\d,\s]+\]`)

// retryInPattern extracts a server-suggested wait from quota error text.
var retryInPattern = regexp.MustCompile(`(?i)retry in ([\d.]+)s`)

func (g *geminiAdapter) Generate(ctx context.Context, def Definition, req Request) (*Result, error) {
	body := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: map[string]any{"maxOutputTokens": maxOutputTokens},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if req.UseWebSearch && def.WebSearch {
		body.Tools = []map[string]any{{"google_search": map[string]any{}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", def.BaseURL, def.Model, req.Credential)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("gemini request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, classifyGemini429(resp.Body)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Message: readAPIError(resp.Body, "gemini", resp.StatusCode)}
	}

	var data geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("decode response: %v", err)}
	}

	text := extractGeminiText(data)
	usage := domain.TokenUsage{
		Input:  data.UsageMetadata.PromptTokenCount,
		Output: data.UsageMetadata.CandidatesTokenCount,
	}

	// Grounding-only output: the API succeeded but every part was citation
	// scaffolding. Retryable — a second attempt often returns usable text.
	if text == "" && usage.Output == 0 {
		return nil, &ProviderError{Message: "empty response from " + def.DisplayName, Empty: true}
	}
	return &Result{Text: text, Usage: usage}, nil
}

// extractGeminiText joins all candidate text parts, preferring a clean
// non-cited block when one exists, and strips citation markers.
func extractGeminiText(data geminiResponse) string {
	if len(data.Candidates) == 0 {
		return ""
	}

	var all []string
	for _, p := range data.Candidates[0].Content.Parts {
		if p.Text != "" {
			all = append(all, p.Text)
		}
	}
	if len(all) == 0 {
		return ""
	}

	for _, t := range all {
		if !strings.Contains(t, "[cite:") {
			return strings.TrimSpace(citationMarker.ReplaceAllString(t, ""))
		}
	}
	joined := strings.Join(all, "\n")
	return strings.TrimSpace(citationMarker.ReplaceAllString(joined, ""))
}

// classifyGemini429 distinguishes exhausted quota (terminal) from transient
// rate limiting, and extracts a suggested retry delay when the error text
// carries one.
func classifyGemini429(body io.Reader) error {
	msg := readErrorMessage(body)
	if strings.Contains(msg, "quota") || strings.Contains(msg, "limit: 0") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return &ProviderError{Message: "gemini quota exhausted"}
	}

	retryAfter := 30 * time.Second
	if m := retryInPattern.FindStringSubmatch(msg); len(m) == 2 {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil && secs > 0 {
			retryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	return &RateLimitError{RetryAfter: retryAfter}
}

// readErrorMessage pulls the error.message field from an API error body,
// falling back to the raw body.
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 1<<16))
	if err != nil {
		return ""
	}
	var parsed geminiErrorBody
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(raw)
}

// readAPIError formats a non-OK response into a provider error message.
func readAPIError(body io.Reader, provider string, status int) string {
	if msg := readErrorMessage(body); msg != "" {
		return msg
	}
	return fmt.Sprintf("%s returned status %d", provider, status)
}
