// Package contracts defines the service interfaces of the orchestrator.
//
// The API handlers depend on these interfaces rather than the concrete
// implementations in internal/, so an alternative implementation (or a
// test double) can be wired in at the composition root without touching
// handler code.
package contracts

import (
	"context"
	"time"

	"github.com/easygenie/orchestrator/pkg/models"
)

// ── Provider drivers ─────────────────────────────────────────

// DriverRequest is the provider-neutral call shape. Drivers translate
// it into each provider's wire format.
type DriverRequest struct {
	Model       string
	Messages    []models.ChatMessage
	System      string
	Temperature float64
	MaxTokens   int
}

// DriverResponse is the provider-neutral call result.
type DriverResponse struct {
	Content string
	Model   string
	Usage   models.TokenUsage
}

// ProviderDriver adapts one upstream AI provider. Implementations live
// in internal/providers, one file per provider. Adding a provider means
// implementing this interface and registering it; the orchestrator
// never switches on provider kind.
type ProviderDriver interface {
	// Kind returns the provider this driver serves.
	Kind() models.Provider

	// Call sends one chat completion request.
	Call(ctx context.Context, cfg models.ProviderConfig, req *DriverRequest) (*DriverResponse, error)

	// HealthCheck probes the provider with a minimal request.
	HealthCheck(ctx context.Context, cfg models.ProviderConfig) error
}

// ── Persistence ──────────────────────────────────────────────

// Persistence is the durable storage boundary. The memory store keeps
// JSON snapshots on disk; the postgres store uses pgx.
type Persistence interface {
	SaveContextEntry(ctx context.Context, e *models.ContextEntry) error
	LoadContextEntries(ctx context.Context, userID string) ([]*models.ContextEntry, error)
	DeleteContextBefore(ctx context.Context, cutoff time.Time) (int, error)

	SaveSession(ctx context.Context, s *models.Session) error
	LoadSession(ctx context.Context, id string) (*models.Session, error)

	SavePreferences(ctx context.Context, p *models.Preferences) error
	LoadPreferences(ctx context.Context, userID string) (*models.Preferences, error)

	SaveLearningSnapshot(ctx context.Context, data []byte) error
	LoadLearningSnapshot(ctx context.Context) ([]byte, error)

	Close() error
}

// ── Services ─────────────────────────────────────────────────

// OrchestratorService is the full request pipeline.
type OrchestratorService interface {
	// Process runs the advanced pipeline: context gathering, prompt
	// optimization, routing, quality gating, adaptation. Provider
	// failures degrade to a low-confidence apology response, not an
	// error. An exhausted rate limit is the exception: it surfaces as
	// a *limiter.RateLimitError without retry or fallback.
	Process(ctx context.Context, req *models.Request) (*models.Response, error)

	// MakeRequest is the direct path: one provider call with caching
	// and rate limiting only.
	MakeRequest(ctx context.Context, req *models.BasicRequest) (*models.BasicResponse, error)

	// Canned helpers built on MakeRequest.
	AnalyzeText(ctx context.Context, text string) (*models.BasicResponse, error)
	BreakDownTask(ctx context.Context, task string) (*models.BasicResponse, error)
	OptimizeRoutine(ctx context.Context, routine string) (*models.BasicResponse, error)

	// Status reports provider health, metrics, and cache/limiter stats.
	Status(ctx context.Context) map[string]any

	// Metrics returns the running performance snapshot.
	Metrics() *models.Metrics

	// ClearCache drops all cached responses.
	ClearCache()
}

// ContextService manages sessions, context entries, and preferences.
type ContextService interface {
	StartSession(ctx context.Context, userID string) (*models.Session, error)
	// EndSession flushes the session to the store and drops it from
	// the in-memory map.
	EndSession(ctx context.Context, sessionID string) error
	AddEntry(ctx context.Context, e *models.ContextEntry) error
	Relevant(ctx context.Context, q *models.ContextQuery) ([]*models.ContextEntry, error)
	RecordTurn(ctx context.Context, sessionID string, turn models.ConversationTurn) error
	Preferences(ctx context.Context, userID string) (*models.Preferences, error)
	SetPreferences(ctx context.Context, p *models.Preferences) error
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// LearningService records outcomes and produces recommendations.
type LearningService interface {
	// Record is called for every assessed interaction, successful or
	// not: the quality trend always gains a point, while the pattern
	// table only moves on success.
	Record(userID, tool, operation string, mode models.Mode, provider models.Provider, strategies []models.Strategy, assessment *models.QualityAssessment, success bool)
	Recommendations(userID, tool string) *models.Recommendations
	TopPatterns() []*models.AdaptationPattern
	TrimTrends(max int)
}

// RegistryService answers model capability and cost questions.
type RegistryService interface {
	Lookup(provider models.Provider, model string) (*models.ModelInfo, bool)
	ListModels() []*models.ModelInfo
	ListByCapability(cap string) []*models.ModelInfo
	DefaultModel(provider models.Provider) string
	EstimateCost(provider models.Provider, model string, tokens int) float64
	SupportsFeature(provider models.Provider, tool, level string) bool
}
