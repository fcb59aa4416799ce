// Package registry provides the model capability database.
//
// The registry merges two data sources:
//
//  1. **Built-in defaults** — the known model tables for OpenAI,
//     Anthropic, Gemini, and Ollama (context window, cost per 1K
//     tokens, capability tags).
//
//  2. **Ollama discovery** — live queries to a local Ollama daemon
//     (GET /api/tags) so locally pulled models show up without
//     configuration. Refreshed periodically while running.
//
// The orchestrator uses the registry to pick default models, check
// tool feature requirements, and estimate call cost.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/pkg/models"
)

const defaultRefreshInterval = 1 * time.Hour

// Registry is a thread-safe model capability database.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*models.ModelInfo // key: "provider/model"

	client    *http.Client
	ollamaURL string // empty disables discovery
	stopCh    chan struct{}
	running   bool
}

// New creates a registry seeded with the built-in model tables.
// ollamaURL enables local model discovery; pass "" to disable.
func New(ollamaURL string) *Registry {
	r := &Registry{
		models:    make(map[string]*models.ModelInfo),
		client:    &http.Client{Timeout: 10 * time.Second},
		ollamaURL: ollamaURL,
		stopCh:    make(chan struct{}),
	}
	r.loadBuiltinDefaults()
	return r
}

// Start begins the background Ollama discovery loop.
func (r *Registry) Start(ctx context.Context) {
	if r.running || r.ollamaURL == "" {
		return
	}
	r.running = true

	go func() {
		if err := r.discoverOllama(ctx); err != nil {
			log.Debug().Err(err).Msg("Registry: ollama discovery unavailable")
		}
		ticker := time.NewTicker(defaultRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.discoverOllama(ctx); err != nil {
					log.Debug().Err(err).Msg("Registry: ollama discovery failed")
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Str("ollama", r.ollamaURL).Msg("Model registry started")
}

// Stop halts background discovery.
func (r *Registry) Stop() {
	if r.running {
		close(r.stopCh)
		r.running = false
	}
}

// ── Lookups ──────────────────────────────────────────────────

func key(p models.Provider, model string) string {
	return string(p) + "/" + model
}

// Lookup returns the capability record for a provider/model pair.
func (r *Registry) Lookup(provider models.Provider, model string) (*models.ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[key(provider, model)]
	return m, ok
}

// ListModels returns all known models, ordered by provider then name.
func (r *Registry) ListModels() []*models.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ListByCapability returns every model carrying the given tag.
func (r *Registry) ListByCapability(cap string) []*models.ModelInfo {
	var out []*models.ModelInfo
	for _, m := range r.ListModels() {
		if m.HasCapability(cap) {
			out = append(out, m)
		}
	}
	return out
}

// DefaultModel returns the configured first-choice model per provider.
func (r *Registry) DefaultModel(provider models.Provider) string {
	switch provider {
	case models.ProviderOpenAI:
		return "gpt-3.5-turbo"
	case models.ProviderAnthropic:
		return "claude-3-sonnet"
	case models.ProviderGemini:
		return "gemini-pro"
	case models.ProviderOllama:
		return "llama2"
	}
	return ""
}

// EstimateCost returns the dollar cost for the given token count.
// Unknown models cost zero.
func (r *Registry) EstimateCost(provider models.Provider, model string, tokens int) float64 {
	m, ok := r.Lookup(provider, model)
	if !ok {
		return 0
	}
	return float64(tokens) / 1000.0 * m.CostPer1K
}

// Register adds or replaces a model record.
func (r *Registry) Register(m *models.ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[key(m.Provider, m.Name)] = m
}

// ── Tool feature requirements ────────────────────────────────

// featureRequirements maps tool → level → required capability tags.
// Magic level is the lightweight profile; genie level is the full one.
var featureRequirements = map[string]map[string][]string{
	"text_assistant": {
		"magic": {"text"},
		"genie": {"text", "conversation"},
	},
	"task_breakdown": {
		"magic": {"text"},
		"genie": {"text", "analysis"},
	},
	"routine_optimizer": {
		"magic": {"text"},
		"genie": {"text", "analysis"},
	},
	"code_helper": {
		"magic": {"text"},
		"genie": {"text", "code"},
	},
	"document_analyzer": {
		"magic": {"text"},
		"genie": {"text", "analysis", "long_context"},
	},
}

// SupportsFeature reports whether any of the provider's models satisfy
// the capability requirements of the tool at the given level.
func (r *Registry) SupportsFeature(provider models.Provider, tool, level string) bool {
	reqs, ok := featureRequirements[tool]
	if !ok {
		return true // unknown tools have no requirements
	}
	caps, ok := reqs[strings.ToLower(level)]
	if !ok {
		return true
	}
	for _, m := range r.ListModels() {
		if m.Provider != provider {
			continue
		}
		satisfied := true
		for _, c := range caps {
			if !m.HasCapability(c) {
				satisfied = false
				break
			}
		}
		if satisfied {
			return true
		}
	}
	return false
}

// ── Built-in defaults ────────────────────────────────────────

func (r *Registry) loadBuiltinDefaults() {
	builtin := []*models.ModelInfo{
		{Provider: models.ProviderOpenAI, Name: "gpt-3.5-turbo", MaxTokens: 4096, CostPer1K: 0.002,
			Capabilities: []string{"text", "conversation"}},
		{Provider: models.ProviderOpenAI, Name: "gpt-4", MaxTokens: 8192, CostPer1K: 0.03,
			Capabilities: []string{"text", "conversation", "analysis"}},
		{Provider: models.ProviderOpenAI, Name: "gpt-4-turbo", MaxTokens: 128000, CostPer1K: 0.01,
			Capabilities: []string{"text", "conversation", "analysis", "long_context"}},

		{Provider: models.ProviderAnthropic, Name: "claude-3-haiku", MaxTokens: 200000, CostPer1K: 0.00025,
			Capabilities: []string{"text", "conversation", "long_context"}},
		{Provider: models.ProviderAnthropic, Name: "claude-3-sonnet", MaxTokens: 200000, CostPer1K: 0.003,
			Capabilities: []string{"text", "conversation", "analysis", "long_context"}},
		{Provider: models.ProviderAnthropic, Name: "claude-3-opus", MaxTokens: 200000, CostPer1K: 0.015,
			Capabilities: []string{"text", "conversation", "analysis", "long_context", "complex_reasoning"}},

		{Provider: models.ProviderGemini, Name: "gemini-pro", MaxTokens: 32768, CostPer1K: 0.0005,
			Capabilities: []string{"text", "conversation", "analysis"}},
		{Provider: models.ProviderGemini, Name: "gemini-pro-vision", MaxTokens: 16384, CostPer1K: 0.0025,
			Capabilities: []string{"text", "conversation", "vision"}},

		{Provider: models.ProviderOllama, Name: "llama2", MaxTokens: 4096, CostPer1K: 0,
			Capabilities: []string{"text", "conversation"}},
		{Provider: models.ProviderOllama, Name: "mistral", MaxTokens: 8192, CostPer1K: 0,
			Capabilities: []string{"text", "conversation"}},
		{Provider: models.ProviderOllama, Name: "codellama", MaxTokens: 16384, CostPer1K: 0,
			Capabilities: []string{"text", "conversation", "code"}},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range builtin {
		r.models[key(m.Provider, m.Name)] = m
	}
}

// ── Ollama discovery ─────────────────────────────────────────

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// discoverOllama registers models the local Ollama daemon serves.
func (r *Registry) discoverOllama(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.ollamaURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, m := range tags.Models {
		name := strings.TrimSuffix(m.Name, ":latest")
		k := key(models.ProviderOllama, name)
		if _, exists := r.models[k]; exists {
			continue
		}
		r.models[k] = &models.ModelInfo{
			Provider:     models.ProviderOllama,
			Name:         name,
			MaxTokens:    4096,
			CostPer1K:    0,
			Capabilities: []string{"text", "conversation"},
		}
		added++
	}
	if added > 0 {
		log.Info().Int("models", added).Msg("Registry: discovered local ollama models")
	}
	return nil
}
