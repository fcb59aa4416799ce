// Package learning aggregates interaction outcomes into adaptation
// patterns and turns them into routing and strategy recommendations.
//
// Patterns are keyed by tool, operation, and mode. Each successful
// interaction moves the pattern's running-average quality, unions the
// applied strategies into its best-known set, and records the last
// provider that worked. Every assessed interaction, successful or not,
// appends to a rolling quality trend (capped at the most recent 1000
// points) that backs the per-user improving/declining insight.
package learning

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"
)

const (
	maxTrendPoints    = 1000
	minPatternCount   = 5 // patterns below this are not reported
	maxTopPatterns    = 10
	recentWindow      = 10 // trend points compared against the overall average
	modePreferenceGap = 0.1
)

// Engine is the learning service. State is guarded by mu and
// snapshotted to the persistence layer on mutation.
type Engine struct {
	mu       sync.RWMutex
	patterns map[string]*models.AdaptationPattern
	trends   []models.QualityTrendPoint

	store contracts.Persistence
	now   func() time.Time // test hook
}

// snapshot is the persisted shape.
type snapshot struct {
	Patterns map[string]*models.AdaptationPattern `json:"patterns"`
	Trends   []models.QualityTrendPoint           `json:"trends"`
}

// New creates an engine, restoring any persisted snapshot.
func New(ctx context.Context, p contracts.Persistence) *Engine {
	e := &Engine{
		patterns: make(map[string]*models.AdaptationPattern),
		store:    p,
		now:      time.Now,
	}
	if data, err := p.LoadLearningSnapshot(ctx); err == nil {
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			if snap.Patterns != nil {
				e.patterns = snap.Patterns
			}
			e.trends = snap.Trends
			log.Info().Int("patterns", len(e.patterns)).Msg("Learning state restored")
		}
	}
	return e
}

// PatternKey builds the canonical pattern key.
func PatternKey(tool, operation string, mode models.Mode) string {
	return strings.ToLower(tool) + "_" + strings.ToLower(operation) + "_" + string(mode)
}

// Record folds one interaction outcome into the engine. The quality
// trend gains a point for every assessed interaction; the pattern
// table only moves when the interaction succeeded. Nil assessments are
// ignored entirely.
func (e *Engine) Record(userID, tool, operation string, mode models.Mode, provider models.Provider, strategies []models.Strategy, assessment *models.QualityAssessment, success bool) {
	if assessment == nil {
		return
	}
	now := e.now()

	e.mu.Lock()
	if success {
		key := PatternKey(tool, operation, mode)
		p, ok := e.patterns[key]
		if !ok {
			p = &models.AdaptationPattern{Key: key}
			e.patterns[key] = p
		}
		p.Count++
		n := float64(p.Count)
		p.AvgQuality = (p.AvgQuality*(n-1) + assessment.Overall) / n
		p.BestStrategies = unionStrategies(p.BestStrategies, strategies)
		if provider != "" {
			p.PreferredProvider = provider
		}
		p.UpdatedAt = now
	}

	e.trends = append(e.trends, models.QualityTrendPoint{
		UserID:    userID,
		Tool:      tool,
		Mode:      mode,
		Quality:   assessment.Overall,
		Provider:  provider,
		CreatedAt: now,
	})
	if len(e.trends) > maxTrendPoints {
		e.trends = e.trends[len(e.trends)-maxTrendPoints:]
	}
	e.mu.Unlock()

	e.persist()
}

func unionStrategies(existing, incoming []models.Strategy) []models.Strategy {
	seen := make(map[models.Strategy]bool, len(existing))
	out := existing
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range incoming {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Recommendations derives advice for a tool from its patterns. The
// quality insight is scoped to the user's own trend when userID is
// set.
func (e *Engine) Recommendations(userID, tool string) *models.Recommendations {
	e.mu.RLock()
	defer e.mu.RUnlock()

	prefix := strings.ToLower(tool) + "_"

	var (
		genieSum, magicSum     float64
		genieCount, magicCount int
		strategies             []models.Strategy
		bestProvider           models.Provider
		bestProviderQuality    float64
	)
	for key, p := range e.patterns {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		switch {
		case strings.HasSuffix(key, "_"+string(models.ModeGenie)):
			genieSum += p.AvgQuality * float64(p.Count)
			genieCount += p.Count
		case strings.HasSuffix(key, "_"+string(models.ModeMagic)):
			magicSum += p.AvgQuality * float64(p.Count)
			magicCount += p.Count
		}
		strategies = unionStrategies(strategies, p.BestStrategies)
		if p.PreferredProvider != "" && p.AvgQuality > bestProviderQuality {
			bestProviderQuality = p.AvgQuality
			bestProvider = p.PreferredProvider
		}
	}

	rec := &models.Recommendations{
		Tool:                  tool,
		SuggestedMode:         models.ModeGenie,
		BestProvider:          models.ProviderOpenAI,
		RecommendedStrategies: strategies,
		QualityInsight:        e.qualityInsightLocked(userID, tool),
	}
	if bestProvider != "" {
		rec.BestProvider = bestProvider
	}

	genieAvg := avg(genieSum, genieCount)
	magicAvg := avg(magicSum, magicCount)
	switch {
	case genieAvg-magicAvg > modePreferenceGap:
		rec.SuggestedMode = models.ModeGenie
	case magicAvg-genieAvg > modePreferenceGap:
		rec.SuggestedMode = models.ModeMagic
	default:
		// Close call: keep the default but flag both profiles as viable.
		rec.HybridSuggested = true
	}
	return rec
}

func avg(sum float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// qualityInsightLocked compares the recent trend window against the
// overall average, filtered to the user and tool when given. Caller
// holds at least a read lock.
func (e *Engine) qualityInsightLocked(userID, tool string) string {
	var all, recent []float64
	for _, t := range e.trends {
		if tool != "" && !strings.EqualFold(t.Tool, tool) {
			continue
		}
		if userID != "" && t.UserID != userID {
			continue
		}
		all = append(all, t.Quality)
	}
	if len(all) < 2 {
		return "stable"
	}
	start := len(all) - recentWindow
	if start < 0 {
		start = 0
	}
	recent = all[start:]

	overall := mean(all)
	recentAvg := mean(recent)
	switch {
	case recentAvg > overall+0.05:
		return "improving"
	case recentAvg < overall-0.05:
		return "declining"
	default:
		return "stable"
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// TopPatterns returns the proven patterns: seen at least five times,
// sorted by quality, capped at ten.
func (e *Engine) TopPatterns() []*models.AdaptationPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*models.AdaptationPattern
	for _, p := range e.patterns {
		if p.Count >= minPatternCount {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgQuality != out[j].AvgQuality {
			return out[i].AvgQuality > out[j].AvgQuality
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > maxTopPatterns {
		out = out[:maxTopPatterns]
	}
	return out
}

// Pattern returns a single pattern by key, if known.
func (e *Engine) Pattern(tool, operation string, mode models.Mode) (*models.AdaptationPattern, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.patterns[PatternKey(tool, operation, mode)]
	return p, ok
}

// TrimTrends drops trend points beyond max; the janitor calls this.
func (e *Engine) TrimTrends(max int) {
	e.mu.Lock()
	if max > 0 && len(e.trends) > max {
		e.trends = e.trends[len(e.trends)-max:]
	}
	e.mu.Unlock()
	e.persist()
}

// persist writes the current state through the store.
func (e *Engine) persist() {
	e.mu.RLock()
	data, err := json.Marshal(snapshot{Patterns: e.patterns, Trends: e.trends})
	e.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Learning snapshot marshal failed")
		return
	}
	if err := e.store.SaveLearningSnapshot(context.Background(), data); err != nil {
		log.Warn().Err(err).Msg("Learning snapshot persist failed")
	}
}
