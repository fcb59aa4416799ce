// Package orchestrator runs the full request pipeline: context
// gathering, prompt optimization, provider routing with fallback,
// quality gating with retries, and adaptation recording.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/internal/analytics"
	"github.com/easygenie/orchestrator/internal/analyzer"
	"github.com/easygenie/orchestrator/internal/cache"
	"github.com/easygenie/orchestrator/internal/limiter"
	"github.com/easygenie/orchestrator/internal/optimizer"
	"github.com/easygenie/orchestrator/internal/providers"
	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"
)

const (
	defaultRetryCount       = 3
	defaultQualityThreshold = 0.6
	qualityAlertFloor       = 0.4
	cachedConfidence        = 0.9
	apologyConfidence       = 0.1
	historyWindow           = 20
)

const apologyContent = "I apologize, but I was unable to produce a reliable answer for this request. Please try again, or rephrase the request."

// Options are the tunable pipeline defaults, usually from config.
type Options struct {
	DefaultMode      models.Mode
	RetryCount       int
	QualityThreshold float64
	QualityGateExpr  string
}

// Orchestrator wires the pipeline's collaborators together.
type Orchestrator struct {
	drivers       *providers.Registry
	contextMgr    contracts.ContextService
	optimizer     *optimizer.Optimizer
	analyzer      *analyzer.Analyzer
	learning      contracts.LearningService
	registry      contracts.RegistryService
	basicCache    *cache.Cache
	advancedCache *cache.Cache
	limiter       *limiter.Limiter
	analytics     *analytics.Service

	opts     Options
	gateProg *vm.Program // compiled QualityGateExpr, nil when unset

	healthMu sync.RWMutex
	healthy  map[models.Provider]bool

	metricsMu sync.Mutex
	metrics   models.Metrics

	now func() time.Time // test hook
}

// New builds an orchestrator. A bad quality gate expression is logged
// and ignored rather than failing startup.
func New(
	drivers *providers.Registry,
	ctxMgr contracts.ContextService,
	opt *optimizer.Optimizer,
	an *analyzer.Analyzer,
	learn contracts.LearningService,
	reg contracts.RegistryService,
	basicCache, advancedCache *cache.Cache,
	lim *limiter.Limiter,
	sink *analytics.Service,
	opts Options,
) *Orchestrator {
	if opts.RetryCount <= 0 {
		opts.RetryCount = defaultRetryCount
	}
	if opts.QualityThreshold <= 0 {
		opts.QualityThreshold = defaultQualityThreshold
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = models.ModeGenie
	}

	o := &Orchestrator{
		drivers:       drivers,
		contextMgr:    ctxMgr,
		optimizer:     opt,
		analyzer:      an,
		learning:      learn,
		registry:      reg,
		basicCache:    basicCache,
		advancedCache: advancedCache,
		limiter:       lim,
		analytics:     sink,
		opts:          opts,
		healthy:       make(map[models.Provider]bool),
		now:           time.Now,
	}
	o.metrics.ProviderUsage = make(map[models.Provider]int64)
	o.metrics.ModeUsage = make(map[models.Mode]int64)

	// Configured providers start healthy; failures flip them until the
	// next successful call or health check.
	for _, kind := range drivers.List() {
		o.healthy[kind] = drivers.Enabled(kind)
	}

	if opts.QualityGateExpr != "" {
		prog, err := expr.Compile(opts.QualityGateExpr, expr.AsBool())
		if err != nil {
			log.Error().Err(err).Str("expr", opts.QualityGateExpr).Msg("Quality gate expression invalid, using mode thresholds")
		} else {
			o.gateProg = prog
		}
	}
	return o
}

// ── Advanced pipeline ────────────────────────────────────────

// Process runs the full pipeline for one request. The returned error
// is reserved for caller mistakes (empty prompt) and exhausted rate
// limits (*limiter.RateLimitError, never retried); provider failures
// degrade to the apology response.
func (o *Orchestrator) Process(ctx context.Context, req *models.Request) (*models.Response, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("orchestrator: empty prompt")
	}
	start := o.now()
	o.normalize(req)

	session, err := o.contextMgr.StartSession(ctx, req.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user", req.UserID).Msg("Session start failed, continuing without")
	} else {
		req.SessionID = session.ID
	}

	prefs, err := o.contextMgr.Preferences(ctx, req.UserID)
	if err != nil {
		prefs = &models.Preferences{UserID: req.UserID}
	}
	relevant, err := o.contextMgr.Relevant(ctx, &models.ContextQuery{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Tool:      req.Tool,
		Operation: req.Operation,
		Scopes:    req.ContextScopes,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Context gathering failed, continuing without")
	}

	strategies := req.Strategies
	if len(strategies) == 0 {
		strategies = models.DefaultStrategies(req.Mode)
	}

	history := o.history(req.SessionID)
	opt := o.optimize(req, prefs, relevant, history, strategies, false)

	provider := o.selectProvider(req.Provider, req.Mode)
	resp, assessment, err := o.attemptLoop(ctx, req, prefs, relevant, history, strategies, opt, provider, start)
	if err != nil {
		return nil, err
	}

	o.recordOutcome(ctx, req, resp, assessment, start)
	return resp, nil
}

// attemptLoop calls the provider and retries while the quality gate
// fails: the first retry switches provider, the second re-optimizes
// with chain-of-thought, later ones keep the escalated setup. An
// exhausted rate limit aborts the loop with the typed error.
func (o *Orchestrator) attemptLoop(
	ctx context.Context,
	req *models.Request,
	prefs *models.Preferences,
	relevant []*models.ContextEntry,
	history []models.ConversationTurn,
	strategies []models.Strategy,
	opt *optimizer.Result,
	provider models.Provider,
	start time.Time,
) (*models.Response, *models.QualityAssessment, error) {
	var (
		resp       *models.Response
		assessment *models.QualityAssessment
		retries    int
	)

	for {
		model := req.Model
		if model == "" {
			model = o.registry.DefaultModel(provider)
		}

		content, usage, cacheHit, key, callErr := o.callWithCache(ctx, provider, model, opt.Optimized, req.Temperature, req.MaxTokens)
		if callErr != nil {
			var rateErr *limiter.RateLimitError
			if errors.As(callErr, &rateErr) {
				return nil, nil, rateErr
			}
			o.markHealth(provider, false)
			o.publishProviderError(req, provider, callErr)

			if retries >= req.RetryCount {
				return o.apology(req, provider, model, retries, opt, start), nil, nil
			}
			retries++
			provider = o.nextAttempt(req, prefs, relevant, history, &strategies, &opt, provider, retries)
			continue
		}
		o.markHealth(provider, true)

		if cacheHit {
			return &models.Response{
				RequestID:         req.ID,
				Content:           content,
				Provider:          provider,
				Model:             model,
				Mode:              req.Mode,
				Usage:             models.TokenUsage{},
				ProcessingTime:    o.now().Sub(start),
				Confidence:        cachedConfidence,
				MeetsRequirement:  true,
				CacheHit:          true,
				FallbackUsed:      retries > 0,
				Retries:           retries,
				AppliedStrategies: opt.Applied,
				CreatedAt:         o.now(),
			}, nil, nil
		}

		assessment = o.analyzer.Assess(&analyzer.Input{
			Response:  content,
			Prompt:    req.Prompt,
			Tool:      req.Tool,
			Operation: req.Operation,
		})
		meets := o.gatePasses(req, assessment)

		// Only gate-passing responses are cached; a rejected answer
		// must never satisfy a later lookup.
		if meets {
			o.advancedCache.Put(key, content, provider, model)
		}

		resp = &models.Response{
			RequestID:         req.ID,
			Content:           content,
			Provider:          provider,
			Model:             model,
			Mode:              req.Mode,
			Usage:             usage,
			ProcessingTime:    o.now().Sub(start),
			Confidence:        opt.Confidence,
			MeetsRequirement:  meets,
			FallbackUsed:      retries > 0,
			Retries:           retries,
			AppliedStrategies: opt.Applied,
			Quality:           assessment,
			CreatedAt:         o.now(),
		}

		if meets || retries >= req.RetryCount {
			return resp, assessment, nil
		}
		retries++
		provider = o.nextAttempt(req, prefs, relevant, history, &strategies, &opt, provider, retries)
	}
}

// nextAttempt escalates the retry setup and returns the provider for
// the next attempt.
func (o *Orchestrator) nextAttempt(
	req *models.Request,
	prefs *models.Preferences,
	relevant []*models.ContextEntry,
	history []models.ConversationTurn,
	strategies *[]models.Strategy,
	opt **optimizer.Result,
	current models.Provider,
	retry int,
) models.Provider {
	switch retry {
	case 1:
		if fb, ok := o.fallbackProvider(current); ok {
			return fb
		}
	case 2:
		*strategies = optimizer.WithChainOfThought(*strategies)
		*opt = o.optimize(req, prefs, relevant, history, *strategies, true)
	}
	return current
}

// optimize runs the optimizer over the original prompt.
func (o *Orchestrator) optimize(
	req *models.Request,
	prefs *models.Preferences,
	relevant []*models.ContextEntry,
	history []models.ConversationTurn,
	strategies []models.Strategy,
	forceCoT bool,
) *optimizer.Result {
	return o.optimizer.Optimize(&optimizer.Input{
		Prompt:              req.Prompt,
		Tool:                req.Tool,
		Operation:           req.Operation,
		MaxTokens:           req.MaxTokens,
		TimeLimit:           req.TimeLimit,
		Complexity:          req.Complexity,
		Preferences:         prefs,
		Context:             relevant,
		History:             history,
		Now:                 o.now(),
		ForceChainOfThought: forceCoT,
	}, strategies)
}

// callWithCache checks the advanced cache, rate-limits, then calls the
// provider with bounded exponential backoff on transport errors. The
// returned key lets the caller cache the response once it clears the
// quality gate.
func (o *Orchestrator) callWithCache(ctx context.Context, provider models.Provider, model, prompt string, temperature float64, maxTokens int) (string, models.TokenUsage, bool, string, error) {
	messages := []models.ChatMessage{{Role: models.RoleUser, Content: prompt}}
	key := cache.Fingerprint(provider, model, messages, "", temperature)

	if hit, ok := o.advancedCache.Get(key); ok {
		return hit.Content, models.TokenUsage{}, true, key, nil
	}

	driver, cfg, ok := o.drivers.Get(provider)
	if !ok || !cfg.Enabled {
		return "", models.TokenUsage{}, false, key, fmt.Errorf("orchestrator: provider %s not configured", provider)
	}

	if err := o.limiter.Admit(provider); err != nil {
		return "", models.TokenUsage{}, false, key, err
	}

	var resp *contracts.DriverResponse
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		var callErr error
		resp, callErr = driver.Call(ctx, cfg, &contracts.DriverRequest{
			Model:       model,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		return callErr
	}, bo)
	if err != nil {
		return "", models.TokenUsage{}, false, key, err
	}

	return resp.Content, resp.Usage, false, key, nil
}

// gatePasses applies the quality gate: the operator expression when
// configured, otherwise the per-mode thresholds plus the overall floor.
func (o *Orchestrator) gatePasses(req *models.Request, assessment *models.QualityAssessment) bool {
	if o.gateProg != nil {
		env := make(map[string]any, len(assessment.Scores)+1)
		for m, s := range assessment.Scores {
			env[string(m)] = s
		}
		env["overall"] = assessment.Overall
		out, err := expr.Run(o.gateProg, env)
		if err != nil {
			log.Warn().Err(err).Msg("Quality gate expression failed, falling back to thresholds")
		} else if pass, ok := out.(bool); ok {
			return pass
		}
	}

	if !assessment.MeetsThresholds(req.QualityRequirements) {
		return false
	}
	return assessment.Overall >= req.QualityThreshold
}

// apology is the degraded response after all retries failed.
func (o *Orchestrator) apology(req *models.Request, provider models.Provider, model string, retries int, opt *optimizer.Result, start time.Time) *models.Response {
	return &models.Response{
		RequestID:         req.ID,
		Content:           apologyContent,
		Provider:          provider,
		Model:             model,
		Mode:              req.Mode,
		ProcessingTime:    o.now().Sub(start),
		Confidence:        apologyConfidence,
		MeetsRequirement:  false,
		FallbackUsed:      retries > 0,
		Retries:           retries,
		AppliedStrategies: opt.Applied,
		CreatedAt:         o.now(),
	}
}

// recordOutcome folds the response into metrics, learning, session
// history, and analytics.
func (o *Orchestrator) recordOutcome(ctx context.Context, req *models.Request, resp *models.Response, assessment *models.QualityAssessment, start time.Time) {
	elapsed := o.now().Sub(start)

	o.metricsMu.Lock()
	o.metrics.TotalRequests++
	if resp.MeetsRequirement {
		o.metrics.SuccessfulRequests++
	} else {
		o.metrics.FailedRequests++
	}
	if resp.CacheHit {
		o.metrics.CacheHits++
	}
	o.metrics.ProviderUsage[resp.Provider]++
	o.metrics.ModeUsage[req.Mode]++
	n := float64(o.metrics.TotalRequests)
	if assessment != nil {
		o.metrics.AvgQuality = (o.metrics.AvgQuality*(n-1) + assessment.Overall) / n
	}
	o.metrics.AvgResponseTime = time.Duration((float64(o.metrics.AvgResponseTime)*(n-1) + float64(elapsed)) / n)
	o.metricsMu.Unlock()

	if assessment != nil {
		o.learning.Record(req.UserID, req.Tool, req.Operation, req.Mode, resp.Provider, resp.AppliedStrategies, assessment, resp.MeetsRequirement)
	}

	if req.SessionID != "" {
		quality := 0.0
		if assessment != nil {
			quality = assessment.Overall
		}
		turn := models.ConversationTurn{
			Tool:      req.Tool,
			Operation: req.Operation,
			Prompt:    req.Prompt,
			Response:  resp.Content,
			Provider:  resp.Provider,
			Quality:   quality,
			CreatedAt: o.now(),
		}
		if err := o.contextMgr.RecordTurn(ctx, req.SessionID, turn); err != nil {
			log.Warn().Err(err).Str("session", req.SessionID).Msg("Turn recording failed")
		}
	}

	o.publishInteraction(req, resp, assessment, elapsed)
	if assessment != nil && assessment.Overall < qualityAlertFloor {
		o.analytics.Publish(&models.Event{
			Kind:      models.EventQualityAlert,
			UserID:    req.UserID,
			Tool:      req.Tool,
			Operation: req.Operation,
			Provider:  resp.Provider,
			Mode:      req.Mode,
			Fields:    map[string]any{"quality": assessment.Overall},
		})
	}
}

// normalize fills request defaults in place.
func (o *Orchestrator) normalize(req *models.Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	if req.Mode == "" {
		req.Mode = o.opts.DefaultMode
	}
	if req.RetryCount <= 0 {
		req.RetryCount = o.opts.RetryCount
	}
	if req.QualityThreshold <= 0 {
		req.QualityThreshold = o.opts.QualityThreshold
	}
	if req.QualityRequirements == nil {
		req.QualityRequirements = models.QualityThresholds(req.Mode)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = o.now()
	}
}

// history pulls the recent conversation window for optimization.
func (o *Orchestrator) history(sessionID string) []models.ConversationTurn {
	if sessionID == "" {
		return nil
	}
	type historian interface {
		History(sessionID string, n int) []models.ConversationTurn
	}
	if h, ok := o.contextMgr.(historian); ok {
		return h.History(sessionID, historyWindow)
	}
	return nil
}
