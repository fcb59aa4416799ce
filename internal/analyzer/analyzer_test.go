package analyzer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easygenie/orchestrator/internal/analyzer"
	"github.com/easygenie/orchestrator/pkg/models"
)

func TestWeights_SumToOne(t *testing.T) {
	sum := 0.0
	for _, w := range analyzer.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestOverall_WeightedDotProduct(t *testing.T) {
	scores := map[models.Metric]float64{
		models.MetricRelevance:     1.0,
		models.MetricCompleteness:  0.5,
		models.MetricClarity:       0.5,
		models.MetricUsefulness:    0.5,
		models.MetricAccuracy:      1.0,
		models.MetricCoherence:     1.0,
		models.MetricSpecificity:   0.0,
		models.MetricActionability: 0.0,
	}
	// 0.25 + 0.10 + 0.075 + 0.075 + 0.10 + 0.08 = 0.68
	assert.InDelta(t, 0.68, analyzer.Overall(scores), 1e-9)
}

func TestAssess_GoodResponse(t *testing.T) {
	a := analyzer.New()
	response := strings.Join([]string{
		"To configure the backup schedule, you can follow these steps.",
		"1. Open the settings panel and select the backup tab.",
		"2. Set the schedule to run daily at a quiet hour, for example 02:00.",
		"3. Check the retention window and set it to 30 days.",
		"Specifically, the daily schedule keeps restore points small.",
		"In summary, a daily schedule with a 30 day retention covers most needs.",
	}, "\n")

	got := a.Assess(&analyzer.Input{
		Prompt:   "how do I configure the backup schedule",
		Response: response,
	})
	require.NotNil(t, got)

	assert.Len(t, got.Scores, 8, "every metric must be scored")
	for metric, score := range got.Scores {
		assert.GreaterOrEqual(t, score, 0.0, "metric %s below range", metric)
		assert.LessOrEqual(t, score, 1.0, "metric %s above range", metric)
	}
	assert.InDelta(t, analyzer.Overall(got.Scores), got.Overall, 1e-9)
	assert.GreaterOrEqual(t, got.Overall, 0.5)
	assert.Empty(t, got.Issues)
	assert.False(t, got.AssessedAt.IsZero())
}

func TestAssess_DetectsShortResponse(t *testing.T) {
	a := analyzer.New()
	got := a.Assess(&analyzer.Input{Prompt: "explain the deployment pipeline", Response: "It works."})

	assert.Contains(t, got.Issues, models.IssueIncomplete)
	assert.Contains(t, got.Issues, models.IssueOffTopic)
	assert.NotEmpty(t, got.Suggestions)
	assert.Equal(t, len(got.Issues), len(got.Suggestions), "one suggestion per issue")
}

func TestAssess_DetectsGenericResponse(t *testing.T) {
	a := analyzer.New()
	response := "It depends on your situation. There are many approaches and in general " +
		"it is important to consider the context before choosing between the various options available to you."

	got := a.Assess(&analyzer.Input{Prompt: "which database should the inventory service use", Response: response})
	assert.Contains(t, got.Issues, models.IssueTooGeneric)
}

func TestAssess_DetectsPoorStructure(t *testing.T) {
	a := analyzer.New()
	// Long single-block answer with no lists, headings, or numbering.
	sentence := "the service keeps running and the answer keeps going without any visible structure to hold it together "
	got := a.Assess(&analyzer.Input{
		Prompt:   "describe the service",
		Response: strings.Repeat(sentence, 8),
	})
	assert.Contains(t, got.Issues, models.IssuePoorStructure)
}

func TestLevelBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  models.QualityLevel
	}{
		{0.95, models.QualityExcellent},
		{0.9, models.QualityExcellent},
		{0.75, models.QualityGood},
		{0.5, models.QualityAcceptable},
		{0.2, models.QualityPoor},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.LevelFor(tc.score), "score %v", tc.score)
	}
}

func TestAssess_ConfidenceBounds(t *testing.T) {
	a := analyzer.New()

	short := a.Assess(&analyzer.Input{Prompt: "p", Response: "ok"})
	long := a.Assess(&analyzer.Input{
		Prompt:   "explain the caching layer design",
		Response: strings.Repeat("The caching layer stores responses keyed by request fingerprint. ", 30),
	})

	for _, got := range []*models.QualityAssessment{short, long} {
		assert.GreaterOrEqual(t, got.Confidence, 0.1)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}
}

func TestMeetsThresholds(t *testing.T) {
	a := &models.QualityAssessment{Scores: map[models.Metric]float64{
		models.MetricRelevance: 0.85,
		models.MetricClarity:   0.7,
	}}

	assert.True(t, a.MeetsThresholds(map[models.Metric]float64{
		models.MetricRelevance: 0.8,
		models.MetricClarity:   0.6,
	}))
	assert.False(t, a.MeetsThresholds(map[models.Metric]float64{
		models.MetricClarity: 0.8,
	}))
	// Metrics missing from the score map fail closed.
	assert.False(t, a.MeetsThresholds(map[models.Metric]float64{
		models.MetricCompleteness: 0.1,
	}))
}
