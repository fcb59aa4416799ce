package optimizer_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easygenie/orchestrator/internal/optimizer"
	"github.com/easygenie/orchestrator/pkg/models"
)

func TestOptimize_NoStrategiesPassesThrough(t *testing.T) {
	o := optimizer.New()
	res := o.Optimize(&optimizer.Input{Prompt: "summarize this document"}, nil)

	require.NotNil(t, res)
	assert.Equal(t, "summarize this document", res.Optimized)
	assert.Empty(t, res.Applied)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestOptimize_ContextInjection(t *testing.T) {
	o := optimizer.New()
	in := &optimizer.Input{
		Prompt:      "write a standup update",
		Tool:        "text_assistant",
		Preferences: &models.Preferences{ExperienceLevel: "beginner"},
		Context: []*models.ContextEntry{
			{Content: "works on the billing team", Tags: []string{"text_assistant"}},
			{Content: "unrelated note", Tags: []string{"code_helper"}},
		},
		Now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	res := o.Optimize(in, []models.Strategy{models.StrategyContextInjection})

	assert.Contains(t, res.Optimized, "User experience level: beginner")
	assert.Contains(t, res.Optimized, "morning session")
	assert.Contains(t, res.Optimized, "works on the billing team")
	assert.NotContains(t, res.Optimized, "unrelated note", "entries tagged for other tools must be skipped")
	assert.True(t, strings.HasSuffix(res.Optimized, "write a standup update"), "preamble goes before the prompt")
	assert.Equal(t, []models.Strategy{models.StrategyContextInjection}, res.Applied)
}

func TestOptimize_PersonaAdaptation(t *testing.T) {
	o := optimizer.New()
	in := &optimizer.Input{
		Prompt: "explain goroutines",
		Preferences: &models.Preferences{
			ExperienceLevel: "advanced",
			LearningStyle:   "analytical",
			ResponseStyle:   "concise",
		},
	}
	res := o.Optimize(in, []models.Strategy{models.StrategyPersonaAdaptation})

	assert.Contains(t, res.Optimized, "Additional Instructions:")
	assert.Contains(t, res.Optimized, "Be direct and technical.")
	assert.Contains(t, res.Optimized, "trade-offs")
	assert.Contains(t, res.Optimized, "Keep the response concise.")
}

func TestOptimize_ExampleEnhancement(t *testing.T) {
	o := optimizer.New()
	history := []models.ConversationTurn{
		{Tool: "text_assistant", Prompt: "old good", Response: "old answer", Rating: 5},
		{Tool: "text_assistant", Prompt: "badly rated", Response: "meh", Rating: 2},
		{Tool: "code_helper", Prompt: "other tool", Response: "irrelevant", Rating: 5},
	}
	res := o.Optimize(
		&optimizer.Input{Prompt: "draft an email", Tool: "text_assistant", History: history},
		[]models.Strategy{models.StrategyExampleEnhancement},
	)

	assert.Contains(t, res.Optimized, "old good")
	assert.NotContains(t, res.Optimized, "badly rated")
	assert.NotContains(t, res.Optimized, "other tool")
}

func TestOptimize_ConstraintSpecification(t *testing.T) {
	o := optimizer.New()
	res := o.Optimize(
		&optimizer.Input{Prompt: "plan the launch", TimeLimit: "5 minutes", Complexity: "low", MaxTokens: 400},
		[]models.Strategy{models.StrategyConstraintSpecification},
	)

	assert.Contains(t, res.Optimized, "Constraints:")
	assert.Contains(t, res.Optimized, "complete within 5 minutes")
	assert.Contains(t, res.Optimized, "keep complexity low")
	assert.Contains(t, res.Optimized, "stay under roughly 300 words")
}

func TestOptimize_OutputFormatting(t *testing.T) {
	o := optimizer.New()
	res := o.Optimize(
		&optimizer.Input{Prompt: "list my tasks", Preferences: &models.Preferences{OutputFormat: "numbered_list"}},
		[]models.Strategy{models.StrategyOutputFormatting},
	)
	assert.Contains(t, res.Optimized, "Respond as a numbered list.")
}

func TestOptimize_ChainOfThoughtGates(t *testing.T) {
	o := optimizer.New()
	strategies := []models.Strategy{models.StrategyChainOfThought}

	// No trigger: strategy requested but the heuristics hold it back.
	res := o.Optimize(&optimizer.Input{Prompt: "quick question"}, strategies)
	assert.NotContains(t, res.Optimized, "step by step")
	assert.Empty(t, res.Applied)

	// Complex operation triggers it.
	res = o.Optimize(&optimizer.Input{Prompt: "quick question", Operation: "complex_analysis"}, strategies)
	assert.Contains(t, res.Optimized, "step by step")

	// The retry path forces it regardless of preferences.
	res = o.Optimize(&optimizer.Input{Prompt: "quick question", ForceChainOfThought: true}, strategies)
	assert.Contains(t, res.Optimized, "step by step")
}

func TestOptimize_Idempotent(t *testing.T) {
	o := optimizer.New()
	in := func() *optimizer.Input {
		return &optimizer.Input{
			Prompt:      "review this plan",
			Preferences: &models.Preferences{ExperienceLevel: "beginner"},
			Now:         time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		}
	}
	strategies := models.DefaultStrategies(models.ModeGenie)

	first := o.Optimize(in(), strategies)
	second := o.Optimize(in(), strategies)
	assert.Equal(t, first.Optimized, second.Optimized, "re-running must not stack transformations")
	assert.Equal(t, first.Original, second.Original)
}

func TestConfidence_GrowsWithStrategies(t *testing.T) {
	o := optimizer.New()

	plain := o.Optimize(&optimizer.Input{Prompt: "hello world, long enough prompt"}, nil)
	enriched := o.Optimize(&optimizer.Input{
		Prompt:      "hello world, long enough prompt",
		Preferences: &models.Preferences{ExperienceLevel: "beginner", OutputFormat: "bullet_points"},
	}, []models.Strategy{models.StrategyPersonaAdaptation, models.StrategyOutputFormatting})

	require.Len(t, enriched.Applied, 2)
	assert.Greater(t, enriched.Confidence, plain.Confidence)
	assert.LessOrEqual(t, enriched.Confidence, 1.0)
}

func TestEstimatedTokens(t *testing.T) {
	o := optimizer.New()
	res := o.Optimize(&optimizer.Input{Prompt: strings.Repeat("a", 400)}, nil)
	assert.Equal(t, 100, res.EstimatedTokens)
}

func TestWithChainOfThought(t *testing.T) {
	base := []models.Strategy{models.StrategyContextInjection}

	got := optimizer.WithChainOfThought(base)
	require.Len(t, got, 2)
	assert.Equal(t, models.StrategyChainOfThought, got[1])

	// Already present: returned unchanged.
	again := optimizer.WithChainOfThought(got)
	assert.Len(t, again, 2)
}

func TestStats(t *testing.T) {
	o := optimizer.New()
	o.Optimize(&optimizer.Input{
		Prompt:      "first",
		Preferences: &models.Preferences{OutputFormat: "bullet_points"},
	}, []models.Strategy{models.StrategyOutputFormatting})
	o.Optimize(&optimizer.Input{Prompt: "second"}, nil)

	stats := o.Stats()
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.StrategyUsage[models.StrategyOutputFormatting])
}
