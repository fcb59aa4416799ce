package limiter

import (
	"errors"
	"testing"
	"time"

	"github.com/easygenie/orchestrator/pkg/models"
)

func TestAllow_UpToLimit(t *testing.T) {
	l := New(map[models.Provider]int{models.ProviderOpenAI: 3})

	for i := 0; i < 3; i++ {
		if !l.Allow(models.ProviderOpenAI) {
			t.Fatalf("Allow() call %d denied below the limit", i+1)
		}
	}
	if l.Allow(models.ProviderOpenAI) {
		t.Error("Allow() should deny once the window is full")
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	l := New(map[models.Provider]int{models.ProviderAnthropic: 2})
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow(models.ProviderAnthropic)
	l.Allow(models.ProviderAnthropic)
	if l.Allow(models.ProviderAnthropic) {
		t.Fatal("Allow() should deny at the limit")
	}

	// A minute later the window is empty again.
	now = now.Add(61 * time.Second)
	if !l.Allow(models.ProviderAnthropic) {
		t.Error("Allow() should admit after the window slides past old calls")
	}
}

func TestAllow_UnknownProviderUnlimited(t *testing.T) {
	l := New(nil)
	for i := 0; i < 100; i++ {
		if !l.Allow(models.Provider("experimental")) {
			t.Fatal("unknown providers should not be limited")
		}
	}
}

func TestNew_Overrides(t *testing.T) {
	l := New(map[models.Provider]int{models.ProviderOpenAI: 5})

	stats := l.Stats()
	if stats[models.ProviderOpenAI].Limit != 5 {
		t.Errorf("override limit = %d, want 5", stats[models.ProviderOpenAI].Limit)
	}
	// Non-overridden providers keep the defaults.
	if stats[models.ProviderAnthropic].Limit != DefaultLimits[models.ProviderAnthropic] {
		t.Errorf("anthropic limit = %d, want default %d",
			stats[models.ProviderAnthropic].Limit, DefaultLimits[models.ProviderAnthropic])
	}
}

func TestAdmit_WithBudget(t *testing.T) {
	l := New(nil)
	if err := l.Admit(models.ProviderOpenAI); err != nil {
		t.Errorf("Admit() with budget = %v, want nil", err)
	}
}

func TestAdmit_ExhaustedFailsFastWithTypedError(t *testing.T) {
	l := New(map[models.Provider]int{models.ProviderOpenAI: 1})
	now := time.Now()
	l.now = func() time.Time { return now }

	if err := l.Admit(models.ProviderOpenAI); err != nil {
		t.Fatalf("first Admit() = %v, want nil", err)
	}

	now = now.Add(10 * time.Second)
	err := l.Admit(models.ProviderOpenAI)
	if err == nil {
		t.Fatal("Admit() on a full window should fail")
	}
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("Admit() error = %T, want *RateLimitError", err)
	}
	if rateErr.Provider != models.ProviderOpenAI || rateErr.Limit != 1 {
		t.Errorf("RateLimitError = %+v", rateErr)
	}
	// The oldest call is 10s in; the window frees it 50s from now.
	if rateErr.RetryAfter != 50*time.Second {
		t.Errorf("RetryAfter = %v, want 50s", rateErr.RetryAfter)
	}
}

func TestStats(t *testing.T) {
	l := New(nil)
	l.Allow(models.ProviderGemini)
	l.Allow(models.ProviderGemini)

	s := l.Stats()[models.ProviderGemini]
	if s.InWindow != 2 {
		t.Errorf("Stats().InWindow = %d, want 2", s.InWindow)
	}
	if s.Remaining != s.Limit-2 {
		t.Errorf("Stats().Remaining = %d, want %d", s.Remaining, s.Limit-2)
	}
}
