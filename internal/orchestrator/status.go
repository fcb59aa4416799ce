package orchestrator

import (
	"context"
	"time"

	"github.com/easygenie/orchestrator/pkg/models"
)

// Status reports provider health, metrics, and cache/limiter stats.
func (o *Orchestrator) Status(ctx context.Context) map[string]any {
	return map[string]any{
		"providers":      o.HealthCheck(ctx),
		"metrics":        o.Metrics(),
		"cache_basic":    o.basicCache.Stats(),
		"cache_advanced": o.advancedCache.Stats(),
		"rate_limits":    o.limiter.Stats(),
		"optimizer":      o.optimizer.Stats(),
		"checked_at":     o.now().Format(time.RFC3339),
	}
}

// Metrics returns a copy of the running counters.
func (o *Orchestrator) Metrics() *models.Metrics {
	o.metricsMu.Lock()
	defer o.metricsMu.Unlock()

	out := o.metrics
	out.ProviderUsage = make(map[models.Provider]int64, len(o.metrics.ProviderUsage))
	for k, v := range o.metrics.ProviderUsage {
		out.ProviderUsage[k] = v
	}
	out.ModeUsage = make(map[models.Mode]int64, len(o.metrics.ModeUsage))
	for k, v := range o.metrics.ModeUsage {
		out.ModeUsage[k] = v
	}
	return &out
}

// ClearCache drops both response caches.
func (o *Orchestrator) ClearCache() {
	o.basicCache.Clear()
	o.advancedCache.Clear()
}

// SweepCaches removes expired entries; the retention janitor calls it.
func (o *Orchestrator) SweepCaches() int {
	return o.basicCache.Sweep() + o.advancedCache.Sweep()
}

// ── Analytics publishing ─────────────────────────────────────

func (o *Orchestrator) publishInteraction(req *models.Request, resp *models.Response, assessment *models.QualityAssessment, elapsed time.Duration) {
	fields := map[string]any{
		"cache_hit":     resp.CacheHit,
		"fallback_used": resp.FallbackUsed,
		"retries":       resp.Retries,
		"duration_ms":   elapsed.Milliseconds(),
		"meets":         resp.MeetsRequirement,
	}
	if assessment != nil {
		fields["quality"] = assessment.Overall
		fields["quality_level"] = assessment.Level
	}
	o.analytics.Publish(&models.Event{
		Kind:      models.EventInteraction,
		UserID:    req.UserID,
		Tool:      req.Tool,
		Operation: req.Operation,
		Provider:  resp.Provider,
		Mode:      req.Mode,
		Fields:    fields,
	})
}

func (o *Orchestrator) publishProviderError(req *models.Request, provider models.Provider, err error) {
	o.analytics.Publish(&models.Event{
		Kind:      models.EventProviderError,
		UserID:    req.UserID,
		Tool:      req.Tool,
		Operation: req.Operation,
		Provider:  provider,
		Mode:      req.Mode,
		Fields:    map[string]any{"error": err.Error()},
	})
}
