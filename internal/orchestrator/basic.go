package orchestrator

import (
	"context"
	"fmt"

	"github.com/easygenie/orchestrator/internal/cache"
	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"
)

// ── Basic path ───────────────────────────────────────────────

// MakeRequest is the direct path: one provider call with caching and
// rate limiting, no optimization or quality gating. Unlike Process it
// surfaces provider errors to the caller; an exhausted rate limit
// fails fast with a *limiter.RateLimitError.
func (o *Orchestrator) MakeRequest(ctx context.Context, req *models.BasicRequest) (*models.BasicResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("orchestrator: no messages")
	}
	start := o.now()

	provider := req.Provider
	if provider == "" {
		provider = o.selectProvider("", models.ModeMagic)
	}
	model := req.Model
	if model == "" {
		model = o.registry.DefaultModel(provider)
	}

	key := cache.Fingerprint(provider, model, req.Messages, req.System, req.Temperature)
	if hit, ok := o.basicCache.Get(key); ok {
		return &models.BasicResponse{
			Content:        hit.Content,
			Provider:       hit.Provider,
			Model:          hit.Model,
			ProcessingTime: o.now().Sub(start),
			CacheHit:       true,
		}, nil
	}

	driver, cfg, ok := o.drivers.Get(provider)
	if !ok || !cfg.Enabled {
		return nil, fmt.Errorf("orchestrator: provider %s not configured", provider)
	}
	if err := o.limiter.Admit(provider); err != nil {
		return nil, err
	}

	resp, err := driver.Call(ctx, cfg, &contracts.DriverRequest{
		Model:       model,
		Messages:    req.Messages,
		System:      req.System,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		o.markHealth(provider, false)
		return nil, err
	}
	o.markHealth(provider, true)

	o.basicCache.Put(key, resp.Content, provider, resp.Model)
	return &models.BasicResponse{
		Content:        resp.Content,
		Provider:       provider,
		Model:          resp.Model,
		Usage:          resp.Usage,
		ProcessingTime: o.now().Sub(start),
	}, nil
}

// ── Canned helpers ───────────────────────────────────────────

// AnalyzeText summarizes themes, tone, and suggestions for a text.
func (o *Orchestrator) AnalyzeText(ctx context.Context, text string) (*models.BasicResponse, error) {
	prompt := "Analyze the following text. Identify the main themes, the tone, and up to three concrete suggestions for improvement.\n\nText:\n" + text
	return o.MakeRequest(ctx, &models.BasicRequest{
		Messages:    []models.ChatMessage{{Role: models.RoleUser, Content: prompt}},
		Temperature: 0.3,
	})
}

// BreakDownTask decomposes a task into ordered, actionable steps.
func (o *Orchestrator) BreakDownTask(ctx context.Context, task string) (*models.BasicResponse, error) {
	prompt := "Break the following task into a numbered list of small, actionable steps. Keep each step under one sentence.\n\nTask:\n" + task
	return o.MakeRequest(ctx, &models.BasicRequest{
		Messages:    []models.ChatMessage{{Role: models.RoleUser, Content: prompt}},
		Temperature: 0.4,
	})
}

// OptimizeRoutine suggests improvements to a described routine.
func (o *Orchestrator) OptimizeRoutine(ctx context.Context, routine string) (*models.BasicResponse, error) {
	prompt := "Review the following routine and suggest a more efficient ordering, steps to drop, and steps to combine. Explain each change briefly.\n\nRoutine:\n" + routine
	return o.MakeRequest(ctx, &models.BasicRequest{
		Messages:    []models.ChatMessage{{Role: models.RoleUser, Content: prompt}},
		Temperature: 0.5,
	})
}
