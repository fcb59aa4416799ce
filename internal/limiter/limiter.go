// Package limiter enforces per-provider request rate limits with a
// sliding 60-second window of call timestamps.
package limiter

import (
	"fmt"
	"sync"
	"time"

	"github.com/easygenie/orchestrator/pkg/models"
)

const window = time.Minute

// RateLimitError reports an exhausted provider window. Callers surface
// it without retrying; RetryAfter says when the window frees a slot.
type RateLimitError struct {
	Provider   models.Provider
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("limiter: %s rate limit of %d/min exceeded, retry in %s", e.Provider, e.Limit, e.RetryAfter.Round(time.Millisecond))
}

// DefaultLimits is the built-in requests-per-minute table.
var DefaultLimits = map[models.Provider]int{
	models.ProviderOpenAI:    60,
	models.ProviderAnthropic: 50,
	models.ProviderGemini:    60,
	models.ProviderOllama:    1000,
}

// Stats is one provider's limiter snapshot.
type Stats struct {
	Limit     int `json:"limit"`
	InWindow  int `json:"in_window"`
	Remaining int `json:"remaining"`
}

// Limiter tracks call timestamps per provider.
type Limiter struct {
	mu     sync.Mutex
	limits map[models.Provider]int
	calls  map[models.Provider][]time.Time

	now func() time.Time // test hook
}

// New creates a limiter with the default table; overrides with a
// positive value replace the default for that provider.
func New(overrides map[models.Provider]int) *Limiter {
	limits := make(map[models.Provider]int, len(DefaultLimits))
	for p, n := range DefaultLimits {
		limits[p] = n
	}
	for p, n := range overrides {
		if n > 0 {
			limits[p] = n
		}
	}
	return &Limiter{
		limits: limits,
		calls:  make(map[models.Provider][]time.Time),
		now:    time.Now,
	}
}

// Allow records a call if the provider has window budget left and
// reports whether it was admitted.
func (l *Limiter) Allow(provider models.Provider) bool {
	return l.Admit(provider) == nil
}

// Admit records a call if the provider has window budget left. An
// exhausted window fails fast with a *RateLimitError; Admit never
// blocks.
func (l *Limiter) Admit(provider models.Provider) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[provider]
	if !ok {
		// Unknown providers are not limited.
		return nil
	}

	now := l.now()
	recent := l.prune(provider, now)
	if len(recent) >= limit {
		return &RateLimitError{
			Provider:   provider,
			Limit:      limit,
			RetryAfter: recent[0].Add(window).Sub(now),
		}
	}
	l.calls[provider] = append(recent, now)
	return nil
}

// prune drops timestamps outside the window. Caller holds the lock.
func (l *Limiter) prune(provider models.Provider, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	recent := l.calls[provider][:0]
	for _, t := range l.calls[provider] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	l.calls[provider] = recent
	return recent
}

// Stats returns per-provider window usage.
func (l *Limiter) Stats() map[models.Provider]Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make(map[models.Provider]Stats, len(l.limits))
	for p, limit := range l.limits {
		in := len(l.prune(p, now))
		out[p] = Stats{Limit: limit, InWindow: in, Remaining: limit - in}
	}
	return out
}
