package contextmgr

import (
	"time"

	"github.com/easygenie/orchestrator/pkg/models"
)

// relevanceFloor is the minimum score an entry needs to be returned.
const relevanceFloor = 0.3

// relevanceScore rates how useful an entry is for the query.
//
// The score is additive: tag matches on tool and operation dominate,
// recency and access frequency add smaller boosts, and two entry types
// (preferences and task history) carry a standing bonus. The result is
// clamped to 1.0.
func relevanceScore(e *models.ContextEntry, q *models.ContextQuery, now time.Time) float64 {
	score := 0.0

	if q.Tool != "" && hasTag(e, q.Tool) {
		score += 0.4
	}
	if q.Operation != "" && hasTag(e, q.Operation) {
		score += 0.3
	}
	if q.SessionID != "" && e.SessionID == q.SessionID {
		score += 0.2
	}

	switch age := now.Sub(e.CreatedAt); {
	case age < 30*time.Minute:
		score += 0.3
	case age < 2*time.Hour:
		score += 0.2
	case age < 24*time.Hour:
		score += 0.1
	}

	if e.AccessCount > 5 {
		score += 0.1
	} else if e.AccessCount > 2 {
		score += 0.05
	}

	switch e.Type {
	case models.ContextUserPreference:
		score += 0.2
	case models.ContextTaskHistory:
		score += 0.15
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func hasTag(e *models.ContextEntry, tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
