// Package analyzer scores AI responses across eight quality metrics
// and aggregates them into a weighted overall assessment.
//
// Scoring is heuristic and entirely local: term overlap, pattern
// matching, and structural checks. No provider call is needed to
// assess a response, which keeps the quality gate cheap enough to run
// on every request.
package analyzer

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/pkg/models"
)

// Weights is the fixed metric weighting used for the overall score.
// The values sum to 1.0.
var Weights = map[models.Metric]float64{
	models.MetricRelevance:     0.25,
	models.MetricCompleteness:  0.20,
	models.MetricClarity:       0.15,
	models.MetricUsefulness:    0.15,
	models.MetricAccuracy:      0.10,
	models.MetricCoherence:     0.08,
	models.MetricSpecificity:   0.04,
	models.MetricActionability: 0.03,
}

// Input is everything the analyzer consults for one assessment.
type Input struct {
	Response  string
	Prompt    string
	Tool      string
	Operation string
}

// Analyzer scores responses. It is stateless apart from counters.
type Analyzer struct {
	mu       sync.Mutex
	assessed int64

	now func() time.Time // test hook
}

// New creates an analyzer.
func New() *Analyzer {
	return &Analyzer{now: time.Now}
}

// Assess scores the response. It never returns an error: if scoring
// panics (malformed regex input never should, but belt and braces for
// the request path), the neutral acceptable assessment comes back with
// low confidence.
func (a *Analyzer) Assess(in *Input) (assessment *models.QualityAssessment) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Quality assessment failed, returning neutral")
			assessment = a.neutral()
		}
	}()

	scores := map[models.Metric]float64{
		models.MetricRelevance:     scoreRelevance(in),
		models.MetricCompleteness:  scoreCompleteness(in.Response),
		models.MetricClarity:       scoreClarity(in.Response),
		models.MetricAccuracy:      scoreAccuracy(in.Response),
		models.MetricUsefulness:    scoreUsefulness(in.Response),
		models.MetricCoherence:     scoreCoherence(in.Response),
		models.MetricSpecificity:   scoreSpecificity(in.Response),
		models.MetricActionability: scoreActionability(in.Response),
	}

	overall := Overall(scores)
	issues := detectIssues(in, scores)

	assessment = &models.QualityAssessment{
		Overall:     overall,
		Level:       models.LevelFor(overall),
		Scores:      scores,
		Issues:      issues,
		Suggestions: suggestions(issues),
		Confidence:  assessConfidence(in.Response, scores, issues),
		AssessedAt:  a.now(),
	}

	a.mu.Lock()
	a.assessed++
	a.mu.Unlock()
	return assessment
}

// Overall computes the weighted dot product of the metric scores.
func Overall(scores map[models.Metric]float64) float64 {
	total := 0.0
	for metric, weight := range Weights {
		total += scores[metric] * weight
	}
	return total
}

// neutral is the fail-open assessment.
func (a *Analyzer) neutral() *models.QualityAssessment {
	scores := make(map[models.Metric]float64, len(Weights))
	for m := range Weights {
		scores[m] = 0.5
	}
	return &models.QualityAssessment{
		Overall:    0.5,
		Level:      models.QualityAcceptable,
		Scores:     scores,
		Confidence: 0.3,
		AssessedAt: a.now(),
	}
}

// assessConfidence estimates how much to trust the assessment itself.
// Longer responses give the heuristics more signal; widely spread
// metric scores suggest an unusual response the heuristics may
// misread; each detected issue is concrete evidence.
func assessConfidence(response string, scores map[models.Metric]float64, issues []models.Issue) float64 {
	c := 0.7

	lengthBonus := float64(len(response)) / 1000.0
	if lengthBonus > 0.2 {
		lengthBonus = 0.2
	}
	c += lengthBonus

	c -= math.Min(0.3, 2*variance(scores))

	c += math.Min(0.1, 0.02*float64(len(issues)))

	if c < 0.1 {
		c = 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

func variance(scores map[models.Metric]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	v := 0.0
	for _, s := range scores {
		d := s - mean
		v += d * d
	}
	return v / float64(len(scores))
}

// clamp01 bounds a metric score to [0, 1].
func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
