// Package optimizer rewrites prompts before they reach a provider.
//
// Six strategies are applied in a fixed order, each one a pure
// transformation over the optimization state. A strategy applies only
// when its inputs are present (preferences, context, history), so an
// empty environment passes the prompt through untouched. Optimization
// is idempotent: every run starts from the original prompt, never from
// a previous run's output.
package optimizer

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/pkg/models"
)

// Input carries everything a strategy may consult.
type Input struct {
	Prompt      string
	Tool        string
	Operation   string
	MaxTokens   int
	TimeLimit   string
	Complexity  string
	Preferences *models.Preferences
	Context     []*models.ContextEntry
	History     []models.ConversationTurn
	Now         time.Time

	// ForceChainOfThought applies the chain-of-thought strategy even
	// when no preference heuristic triggers it. The retry path sets it.
	ForceChainOfThought bool
}

// Result is the optimization outcome.
type Result struct {
	Original        string            `json:"original"`
	Optimized       string            `json:"optimized"`
	Applied         []models.Strategy `json:"applied"`
	Confidence      float64           `json:"confidence"`
	EstimatedTokens int               `json:"estimated_tokens"`
}

// state is threaded through the strategy chain.
type state struct {
	in      *Input
	prompt  string
	applied []models.Strategy
}

type strategyFunc func(*state) error

// Stats tracks optimizer usage across the process lifetime.
type Stats struct {
	Total          int64                     `json:"total"`
	AvgImprovement float64                   `json:"avg_improvement"`
	StrategyUsage  map[models.Strategy]int64 `json:"strategy_usage"`
}

// Optimizer applies prompt strategies and tracks usage stats.
type Optimizer struct {
	mu    sync.Mutex
	stats Stats
}

// New creates an optimizer.
func New() *Optimizer {
	return &Optimizer{stats: Stats{StrategyUsage: make(map[models.Strategy]int64)}}
}

// order fixes the application sequence regardless of the order the
// caller lists strategies in.
var order = []models.Strategy{
	models.StrategyContextInjection,
	models.StrategyPersonaAdaptation,
	models.StrategyExampleEnhancement,
	models.StrategyConstraintSpecification,
	models.StrategyOutputFormatting,
	models.StrategyChainOfThought,
}

var strategyFuncs = map[models.Strategy]strategyFunc{
	models.StrategyContextInjection:        applyContextInjection,
	models.StrategyPersonaAdaptation:       applyPersonaAdaptation,
	models.StrategyExampleEnhancement:      applyExampleEnhancement,
	models.StrategyConstraintSpecification: applyConstraintSpecification,
	models.StrategyOutputFormatting:        applyOutputFormatting,
	models.StrategyChainOfThought:          applyChainOfThought,
}

// Optimize runs the requested strategies over the input prompt.
// Strategy failures fail open: the original prompt comes back with an
// empty applied list.
func (o *Optimizer) Optimize(in *Input, strategies []models.Strategy) *Result {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	requested := make(map[models.Strategy]bool, len(strategies))
	for _, s := range strategies {
		requested[s] = true
	}

	st := &state{in: in, prompt: in.Prompt}
	for _, name := range order {
		if !requested[name] {
			continue
		}
		fn, ok := strategyFuncs[name]
		if !ok {
			continue
		}
		before := st.prompt
		if err := fn(st); err != nil {
			log.Warn().Err(err).Str("strategy", string(name)).Msg("Strategy failed, reverting optimization")
			return &Result{
				Original:        in.Prompt,
				Optimized:       in.Prompt,
				Confidence:      0,
				EstimatedTokens: estimateTokens(in.Prompt),
			}
		}
		if st.prompt != before {
			st.applied = append(st.applied, name)
		}
	}

	res := &Result{
		Original:        in.Prompt,
		Optimized:       st.prompt,
		Applied:         st.applied,
		Confidence:      confidence(in.Prompt, st.prompt, st.applied),
		EstimatedTokens: estimateTokens(st.prompt),
	}
	o.record(res)
	return res
}

// confidence estimates how much the optimization should help: a base
// of 0.5, a bonus per applied strategy, a length-growth bonus, and an
// extra bump for the high-value strategies.
func confidence(original, optimized string, applied []models.Strategy) float64 {
	c := 0.5 + 0.1*float64(len(applied))

	if len(original) > 0 {
		ratio := float64(len(optimized)) / float64(len(original))
		growth := (ratio - 1.0) * 0.1
		if growth > 0.2 {
			growth = 0.2
		}
		if growth > 0 {
			c += growth
		}
	}

	for _, s := range applied {
		switch s {
		case models.StrategyContextInjection, models.StrategyPersonaAdaptation, models.StrategyChainOfThought:
			c += 0.05
		}
	}

	if c > 1.0 {
		c = 1.0
	}
	return c
}

// estimateTokens approximates token count at 4 characters per token.
func estimateTokens(s string) int {
	return len(s) / 4
}

func (o *Optimizer) record(res *Result) {
	improvement := 0.0
	if len(res.Original) > 0 {
		improvement = float64(len(res.Optimized)-len(res.Original)) / float64(len(res.Original))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Total++
	n := float64(o.stats.Total)
	o.stats.AvgImprovement = (o.stats.AvgImprovement*(n-1) + improvement) / n
	for _, s := range res.Applied {
		o.stats.StrategyUsage[s]++
	}
}

// Stats returns a copy of the usage counters.
func (o *Optimizer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	usage := make(map[models.Strategy]int64, len(o.stats.StrategyUsage))
	for k, v := range o.stats.StrategyUsage {
		usage[k] = v
	}
	return Stats{Total: o.stats.Total, AvgImprovement: o.stats.AvgImprovement, StrategyUsage: usage}
}

// WithChainOfThought returns strategies extended with chain-of-thought
// if not already present. The retry path uses this before
// re-optimizing from the original prompt.
func WithChainOfThought(strategies []models.Strategy) []models.Strategy {
	for _, s := range strategies {
		if s == models.StrategyChainOfThought {
			return strategies
		}
	}
	out := make([]models.Strategy, len(strategies), len(strategies)+1)
	copy(out, strategies)
	return append(out, models.StrategyChainOfThought)
}

// containsFold is a case-insensitive substring check strategies share.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
