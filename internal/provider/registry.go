package provider

import (
	"fmt"

	"github.com/north-cloud/prospect-research/internal/domain"
)

// Wire format families.
const (
	formatAnthropic = "anthropic"
	formatGemini    = "gemini"
	formatOpenAI    = "openai"
)

// CostRates are published per-million-token prices in USD. Cache rates are
// zero for providers without discount pricing.
type CostRates struct {
	InputPerMTok      float64 `json:"input"`
	OutputPerMTok     float64 `json:"output"`
	CacheReadPerMTok  float64 `json:"cache_read"`
	CacheWritePerMTok float64 `json:"cache_write"`
	WebSearchPerCall  float64 `json:"web_search_per_call"`
}

// Definition is the static configuration of one provider.
type Definition struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"name"`
	Model          string    `json:"model"`
	Format         string    `json:"-"`
	BaseURL        string    `json:"-"`
	Costs          CostRates `json:"costs"`
	WebSearch      bool      `json:"web_search"`
	CredentialName string    `json:"credential_name"`
	// Workers is the engine pool size; tuned lower for stricter quotas.
	Workers int `json:"-"`
}

// Cost computes the cumulative USD cost for the given token usage.
func (d Definition) Cost(u domain.TokenUsage) float64 {
	const mtok = 1e6
	return float64(u.Input)/mtok*d.Costs.InputPerMTok +
		float64(u.Output)/mtok*d.Costs.OutputPerMTok +
		float64(u.CacheRead)/mtok*d.Costs.CacheReadPerMTok +
		float64(u.CacheWrite)/mtok*d.Costs.CacheWritePerMTok
}

// Registry maps provider ids to definitions and adapters.
type Registry struct {
	defs     map[string]Definition
	adapters map[string]Adapter
}

// NewRegistry builds the default registry with one adapter per wire format.
func NewRegistry() *Registry {
	r := &Registry{
		defs:     make(map[string]Definition),
		adapters: make(map[string]Adapter),
	}
	r.adapters[formatAnthropic] = newAnthropicAdapter()
	r.adapters[formatGemini] = newGeminiAdapter()
	r.adapters[formatOpenAI] = newOpenAIAdapter()

	for _, def := range builtinDefinitions() {
		r.defs[def.ID] = def
	}
	return r
}

// Register adds or replaces a provider definition. Used by tests to install
// fake providers.
func (r *Registry) Register(def Definition, adapter Adapter) {
	r.defs[def.ID] = def
	if adapter != nil {
		r.adapters[def.Format] = adapter
	}
}

// Get returns the definition for a provider id.
func (r *Registry) Get(id string) (Definition, error) {
	def, ok := r.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("unknown provider %q", id)
	}
	return def, nil
}

// Adapter returns the adapter for a provider id.
func (r *Registry) Adapter(id string) (Adapter, error) {
	def, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	a, ok := r.adapters[def.Format]
	if !ok {
		return nil, fmt.Errorf("no adapter for format %q", def.Format)
	}
	return a, nil
}

// All returns every registered definition.
func (r *Registry) All() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// CredentialNames returns the distinct credential names accepted by /setkey.
func (r *Registry) CredentialNames() map[string]bool {
	names := make(map[string]bool)
	for _, d := range r.defs {
		names[d.CredentialName] = true
	}
	return names
}

// builtinDefinitions holds the published provider catalog. Costs are static
// per-provider constants, not computed.
func builtinDefinitions() []Definition {
	return []Definition{
		{
			ID:          "gemini",
			DisplayName: "Gemini 2.5 Flash",
			Model:       "gemini-2.5-flash",
			Format:      formatGemini,
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Costs: CostRates{
				InputPerMTok:     0.15,
				OutputPerMTok:    0.60,
				WebSearchPerCall: 0.035,
			},
			WebSearch:      true,
			CredentialName: "GEMINI_API_KEY",
			Workers:        3,
		},
		{
			ID:          "claude",
			DisplayName: "Claude Sonnet 4",
			Model:       "claude-sonnet-4-20250514",
			Format:      formatAnthropic,
			Costs: CostRates{
				InputPerMTok:      3,
				OutputPerMTok:     15,
				CacheReadPerMTok:  0.30,
				CacheWritePerMTok: 3.75,
				WebSearchPerCall:  0.015,
			},
			WebSearch:      true,
			CredentialName: "ANTHROPIC_API_KEY",
			Workers:        4,
		},
		{
			ID:          "haiku",
			DisplayName: "Claude Haiku 4.5",
			Model:       "claude-haiku-4-5-20251001",
			Format:      formatAnthropic,
			Costs: CostRates{
				InputPerMTok:      1,
				OutputPerMTok:     5,
				CacheReadPerMTok:  0.10,
				CacheWritePerMTok: 1.25,
				WebSearchPerCall:  0.005,
			},
			WebSearch:      true,
			CredentialName: "ANTHROPIC_API_KEY",
			Workers:        5,
		},
		{
			ID:          "gpt5",
			DisplayName: "GPT-5",
			Model:       "gpt-5",
			Format:      formatOpenAI,
			BaseURL:     "https://api.openai.com/v1",
			Costs: CostRates{
				InputPerMTok:     1.25,
				OutputPerMTok:    10,
				WebSearchPerCall: 0.018,
			},
			WebSearch:      true,
			CredentialName: "OPENAI_API_KEY",
			Workers:        4,
		},
		{
			ID:          "openai",
			DisplayName: "GPT-4o Mini",
			Model:       "gpt-4o-mini",
			Format:      formatOpenAI,
			BaseURL:     "https://api.openai.com/v1",
			Costs: CostRates{
				InputPerMTok:  0.15,
				OutputPerMTok: 0.60,
			},
			CredentialName: "OPENAI_API_KEY",
			Workers:        5,
		},
		{
			ID:          "deepseek",
			DisplayName: "DeepSeek V3",
			Model:       "deepseek-chat",
			Format:      formatOpenAI,
			BaseURL:     "https://api.deepseek.com/v1",
			Costs: CostRates{
				InputPerMTok:  0.56,
				OutputPerMTok: 1.68,
			},
			CredentialName: "DEEPSEEK_API_KEY",
			Workers:        3,
		},
	}
}
