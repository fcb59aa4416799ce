// Package models holds the shared domain types for the Easy Genie
// AI orchestrator: requests and responses, context entries, quality
// assessments, provider configuration, and learning patterns.
package models

import (
	"strings"
	"time"
)

// ── Providers ────────────────────────────────────────────────

// Provider identifies an upstream AI service.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
)

// ParseProvider normalizes a provider name. Unknown names are returned
// lowercased so callers can still report them.
func ParseProvider(s string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether p is one of the built-in providers.
func (p Provider) Known() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama:
		return true
	}
	return false
}

// ProviderConfig holds the connection settings for one provider.
type ProviderConfig struct {
	Kind    Provider      `json:"kind"`
	APIKey  string        `json:"-"`
	BaseURL string        `json:"base_url"`
	Model   string        `json:"model"`
	Enabled bool          `json:"enabled"`
	Timeout time.Duration `json:"timeout"`
}

// ProviderHealth is the last observed health state of a provider.
type ProviderHealth struct {
	Kind      Provider  `json:"kind"`
	Healthy   bool      `json:"healthy"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ── Chat wire types ──────────────────────────────────────────

// ChatRole is the author of a chat message.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is a single turn in a provider conversation.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// TokenUsage reports prompt/completion token consumption for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ── Modes and strategies ─────────────────────────────────────

// Mode selects the orchestration profile. Magic is the lightweight
// profile (fast, minimal shaping); Genie is the full pipeline with
// context injection and persona adaptation.
type Mode string

const (
	ModeMagic Mode = "magic"
	ModeGenie Mode = "genie"
)

// Strategy is a prompt optimization strategy.
type Strategy string

const (
	StrategyContextInjection        Strategy = "context_injection"
	StrategyPersonaAdaptation       Strategy = "persona_adaptation"
	StrategyExampleEnhancement      Strategy = "example_enhancement"
	StrategyConstraintSpecification Strategy = "constraint_specification"
	StrategyOutputFormatting        Strategy = "output_formatting"
	StrategyChainOfThought          Strategy = "chain_of_thought"
)

// DefaultStrategies returns the optimization strategies a mode starts
// with before learning adjusts them.
func DefaultStrategies(m Mode) []Strategy {
	if m == ModeMagic {
		return []Strategy{StrategyOutputFormatting}
	}
	return []Strategy{
		StrategyContextInjection,
		StrategyPersonaAdaptation,
		StrategyExampleEnhancement,
	}
}

// QualityThresholds returns the per-metric floor a mode requires.
func QualityThresholds(m Mode) map[Metric]float64 {
	if m == ModeMagic {
		return map[Metric]float64{
			MetricRelevance: 0.6,
			MetricClarity:   0.6,
		}
	}
	return map[Metric]float64{
		MetricRelevance:    0.8,
		MetricCompleteness: 0.7,
		MetricClarity:      0.8,
	}
}

// ── Requests and responses ───────────────────────────────────

// Request is the advanced-pipeline request: the orchestrator gathers
// context, optimizes the prompt, routes, and quality-gates the answer.
type Request struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id,omitempty"`
	Tool      string   `json:"tool"`
	Operation string   `json:"operation"`
	Prompt    string   `json:"prompt"`
	Mode      Mode     `json:"mode"`
	Provider  Provider `json:"provider,omitempty"` // preferred, not binding
	Model     string   `json:"model,omitempty"`

	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`

	// Pipeline knobs. Zero values take the configured defaults.
	RetryCount       int        `json:"retry_count,omitempty"`
	QualityThreshold float64    `json:"quality_threshold,omitempty"`
	Strategies       []Strategy `json:"strategies,omitempty"`
	ContextScopes    []Scope    `json:"context_scopes,omitempty"`

	// QualityRequirements sets per-metric floors for this request. Nil
	// takes the mode defaults; an explicit empty map disables the
	// per-metric gate, leaving only the overall threshold.
	QualityRequirements map[Metric]float64 `json:"quality_requirements,omitempty"`

	// Requirement hints passed through to strategies.
	TimeLimit  string `json:"time_limit,omitempty"`
	Complexity string `json:"complexity,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Response is the advanced-pipeline result. Provider failures degrade
// into an apology response rather than an error.
type Response struct {
	RequestID string   `json:"request_id"`
	Content   string   `json:"content"`
	Provider  Provider `json:"provider"`
	Model     string   `json:"model"`
	Mode      Mode     `json:"mode"`

	Usage            TokenUsage    `json:"usage"`
	ProcessingTime   time.Duration `json:"processing_time"`
	Confidence       float64       `json:"confidence"`
	MeetsRequirement bool          `json:"meets_requirements"`
	CacheHit         bool          `json:"cache_hit"`
	FallbackUsed     bool          `json:"fallback_used"`
	Retries          int           `json:"retries"`

	AppliedStrategies []Strategy         `json:"applied_strategies,omitempty"`
	Quality           *QualityAssessment `json:"quality,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// BasicRequest is the direct path: one provider call with caching and
// rate limiting but no optimization or quality gating.
type BasicRequest struct {
	Provider    Provider      `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// BasicResponse is the direct-path result.
type BasicResponse struct {
	Content        string        `json:"content"`
	Provider       Provider      `json:"provider"`
	Model          string        `json:"model"`
	Usage          TokenUsage    `json:"usage"`
	ProcessingTime time.Duration `json:"processing_time"`
	CacheHit       bool          `json:"cache_hit"`
}

// ── Context management ───────────────────────────────────────

// ContextType classifies a context entry.
type ContextType string

const (
	ContextUserPreference ContextType = "user_preference"
	ContextConversation   ContextType = "conversation"
	ContextTaskHistory    ContextType = "task_history"
	ContextToolUsage      ContextType = "tool_usage"
	ContextSession        ContextType = "session"
	ContextGlobal         ContextType = "global"
)

// Scope controls how long a context entry lives and whether it is
// persisted across restarts.
type Scope string

const (
	ScopeSession    Scope = "session"
	ScopeDaily      Scope = "daily"
	ScopeWeekly     Scope = "weekly"
	ScopeMonthly    Scope = "monthly"
	ScopePersistent Scope = "persistent"
)

// Persisted reports whether entries in this scope survive restarts.
func (s Scope) Persisted() bool {
	switch s {
	case ScopePersistent, ScopeMonthly, ScopeWeekly:
		return true
	}
	return false
}

// DefaultScopes is the context window consulted when a request does
// not name its own scopes.
func DefaultScopes() []Scope {
	return []Scope{ScopeSession, ScopePersistent}
}

// ContextEntry is one remembered fact, preference, or usage record.
type ContextEntry struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	SessionID    string      `json:"session_id,omitempty"`
	Type         ContextType `json:"type"`
	Scope        Scope       `json:"scope"`
	Content      string      `json:"content"`
	Tags         []string    `json:"tags,omitempty"`
	Relevance    float64     `json:"relevance"`
	AccessCount  int         `json:"access_count"`
	CreatedAt    time.Time   `json:"created_at"`
	LastAccessed time.Time   `json:"last_accessed,omitempty"`
}

// ContextQuery selects relevant context for one request.
type ContextQuery struct {
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id,omitempty"`
	Tool      string  `json:"tool"`
	Operation string  `json:"operation"`
	Scopes    []Scope `json:"scopes,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

// ConversationTurn is one prompt/response pair in a session history.
type ConversationTurn struct {
	Tool      string    `json:"tool"`
	Operation string    `json:"operation"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Provider  Provider  `json:"provider"`
	Quality   float64   `json:"quality"`
	Rating    int       `json:"rating,omitempty"` // explicit user rating 1-5
	CreatedAt time.Time `json:"created_at"`
}

// Session tracks one user's daily working session.
type Session struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	StartedAt    time.Time          `json:"started_at"`
	LastActive   time.Time          `json:"last_active"`
	Interactions int                `json:"interactions"`
	History      []ConversationTurn `json:"history,omitempty"`
}

// Preferences shape persona adaptation and output formatting.
type Preferences struct {
	UserID            string    `json:"user_id"`
	ExperienceLevel   string    `json:"experience_level,omitempty"`   // beginner|intermediate|advanced
	LearningStyle     string    `json:"learning_style,omitempty"`     // visual|practical|analytical
	ResponseStyle     string    `json:"response_style,omitempty"`     // concise|detailed
	ExplanationDetail string    `json:"explanation_detail,omitempty"` // low|medium|high|detailed
	OutputFormat      string    `json:"output_format,omitempty"`      // structured_json|numbered_list|bullet_points|paragraph_form|table_format
	UpdatedAt         time.Time `json:"updated_at"`
}

// ── Quality assessment ───────────────────────────────────────

// Metric names one quality dimension scored by the analyzer.
type Metric string

const (
	MetricRelevance     Metric = "relevance"
	MetricCompleteness  Metric = "completeness"
	MetricClarity       Metric = "clarity"
	MetricAccuracy      Metric = "accuracy"
	MetricUsefulness    Metric = "usefulness"
	MetricCoherence     Metric = "coherence"
	MetricSpecificity   Metric = "specificity"
	MetricActionability Metric = "actionability"
)

// QualityLevel buckets an overall score.
type QualityLevel string

const (
	QualityExcellent  QualityLevel = "excellent"  // >= 0.9
	QualityGood       QualityLevel = "good"       // >= 0.7
	QualityAcceptable QualityLevel = "acceptable" // >= 0.5
	QualityPoor       QualityLevel = "poor"
)

// LevelFor maps an overall score to its quality bucket.
func LevelFor(score float64) QualityLevel {
	switch {
	case score >= 0.9:
		return QualityExcellent
	case score >= 0.7:
		return QualityGood
	case score >= 0.5:
		return QualityAcceptable
	default:
		return QualityPoor
	}
}

// Issue flags a detected response defect.
type Issue string

const (
	IssueTooGeneric      Issue = "too_generic"
	IssueIncomplete      Issue = "incomplete"
	IssueExcessiveLength Issue = "excessive_length"
	IssuePoorStructure   Issue = "poor_structure"
	IssueUnclearLanguage Issue = "unclear_language"
	IssueOffTopic        Issue = "off_topic"
)

// QualityAssessment is the analyzer's verdict on one response.
type QualityAssessment struct {
	Overall     float64            `json:"overall"`
	Level       QualityLevel       `json:"level"`
	Scores      map[Metric]float64 `json:"scores"`
	Issues      []Issue            `json:"issues,omitempty"`
	Suggestions []string           `json:"suggestions,omitempty"`
	Confidence  float64            `json:"confidence"`
	AssessedAt  time.Time          `json:"assessed_at"`
}

// MeetsThresholds reports whether every thresholded metric clears its
// floor. Metrics absent from the score map fail closed.
func (a *QualityAssessment) MeetsThresholds(thresholds map[Metric]float64) bool {
	for m, floor := range thresholds {
		score, ok := a.Scores[m]
		if !ok || score < floor {
			return false
		}
	}
	return true
}

// ── Capability registry ──────────────────────────────────────

// ModelInfo describes one model a provider serves.
type ModelInfo struct {
	Provider     Provider `json:"provider"`
	Name         string   `json:"name"`
	MaxTokens    int      `json:"max_tokens"`
	CostPer1K    float64  `json:"cost_per_1k_tokens"`
	Capabilities []string `json:"capabilities"`
}

// HasCapability reports whether the model carries the named tag.
func (m *ModelInfo) HasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ── Learning engine ──────────────────────────────────────────

// AdaptationPattern aggregates outcomes for one tool/operation/mode.
type AdaptationPattern struct {
	Key               string     `json:"key"` // tool_operation_mode
	Count             int        `json:"count"`
	AvgQuality        float64    `json:"avg_quality"`
	BestStrategies    []Strategy `json:"best_strategies,omitempty"`
	PreferredProvider Provider   `json:"preferred_provider,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// QualityTrendPoint is one sample in the rolling quality history.
type QualityTrendPoint struct {
	UserID    string    `json:"user_id,omitempty"`
	Tool      string    `json:"tool"`
	Mode      Mode      `json:"mode"`
	Quality   float64   `json:"quality"`
	Provider  Provider  `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// Recommendations is the learning engine's advice for a tool.
type Recommendations struct {
	Tool                  string     `json:"tool"`
	SuggestedMode         Mode       `json:"suggested_mode"`
	HybridSuggested       bool       `json:"hybrid_suggested"`
	BestProvider          Provider   `json:"best_provider"`
	RecommendedStrategies []Strategy `json:"recommended_strategies,omitempty"`
	QualityInsight        string     `json:"quality_insight"` // improving|declining|stable
}

// ── Service metrics ──────────────────────────────────────────

// Metrics is the orchestrator's running performance snapshot.
type Metrics struct {
	TotalRequests      int64              `json:"total_requests"`
	SuccessfulRequests int64              `json:"successful_requests"`
	FailedRequests     int64              `json:"failed_requests"`
	CacheHits          int64              `json:"cache_hits"`
	AvgQuality         float64            `json:"avg_quality"`
	AvgResponseTime    time.Duration      `json:"avg_response_time"`
	ProviderUsage      map[Provider]int64 `json:"provider_usage"`
	ModeUsage          map[Mode]int64     `json:"mode_usage"`
}

// ── Analytics events ─────────────────────────────────────────

// EventKind classifies an analytics event.
type EventKind string

const (
	EventInteraction   EventKind = "interaction"
	EventProviderError EventKind = "provider_error"
	EventQualityAlert  EventKind = "quality_alert"
)

// Event is a fire-and-forget analytics record. Dispatch never blocks
// the request path.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	UserID    string         `json:"user_id,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Provider  Provider       `json:"provider,omitempty"`
	Mode      Mode           `json:"mode,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
