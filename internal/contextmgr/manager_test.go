package contextmgr

import (
	"context"
	"testing"
	"time"

	"github.com/easygenie/orchestrator/internal/store"
	"github.com/easygenie/orchestrator/pkg/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s := store.NewMemoryStore("") // no disk persistence in tests
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestSessionID(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	got := SessionID("alice", at)
	if got != "alice_20250314" {
		t.Errorf("SessionID() = %q, want %q", got, "alice_20250314")
	}
}

func TestStartSession_ResumesSameDay(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s1, err := m.StartSession(ctx, "alice")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	s2, err := m.StartSession(ctx, "alice")
	if err != nil {
		t.Fatalf("StartSession() second call error = %v", err)
	}
	if s1.ID != s2.ID {
		t.Errorf("same-day sessions differ: %q vs %q", s1.ID, s2.ID)
	}
	if s2.Interactions != 2 {
		t.Errorf("Interactions = %d, want 2 after resume", s2.Interactions)
	}
}

func TestStartSession_IdleRestart(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	s1, _ := m.StartSession(ctx, "alice")
	s1.History = append(s1.History, models.ConversationTurn{Prompt: "old"})

	// Same calendar day, but idle past the limit: history resets.
	now = now.Add(3 * time.Hour)
	s2, _ := m.StartSession(ctx, "alice")
	if len(s2.History) != 0 {
		t.Errorf("idle restart kept %d history turns, want 0", len(s2.History))
	}
	if s2.Interactions != 1 {
		t.Errorf("Interactions = %d, want 1 after restart", s2.Interactions)
	}
}

func TestEndSession_FlushesAndRemoves(t *testing.T) {
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	m := New(s)
	ctx := context.Background()

	sess, _ := m.StartSession(ctx, "alice")
	if err := m.RecordTurn(ctx, sess.ID, models.ConversationTurn{Prompt: "hi"}); err != nil {
		t.Fatalf("RecordTurn() error = %v", err)
	}

	if err := m.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	// Gone from the in-memory map.
	if err := m.RecordTurn(ctx, sess.ID, models.ConversationTurn{Prompt: "late"}); err == nil {
		t.Error("RecordTurn() after EndSession should fail")
	}

	// But flushed to the store, history intact.
	loaded, err := s.LoadSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadSession() after EndSession error = %v", err)
	}
	if len(loaded.History) != 1 {
		t.Errorf("persisted history = %d turns, want 1", len(loaded.History))
	}
}

func TestEndSession_Unknown(t *testing.T) {
	m := newTestManager(t)
	if err := m.EndSession(context.Background(), "nobody_20250101"); err == nil {
		t.Error("EndSession() on an unknown session should fail")
	}
}

func TestSweepIdleSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	idle, _ := m.StartSession(ctx, "alice")

	now = now.Add(3 * time.Hour)
	active, _ := m.StartSession(ctx, "bob")

	if ended := m.SweepIdleSessions(ctx); ended != 1 {
		t.Fatalf("SweepIdleSessions() = %d, want 1", ended)
	}
	if err := m.RecordTurn(ctx, idle.ID, models.ConversationTurn{}); err == nil {
		t.Error("idle session should be gone after the sweep")
	}
	if err := m.RecordTurn(ctx, active.ID, models.ConversationTurn{}); err != nil {
		t.Errorf("active session swept: %v", err)
	}
}

func TestRecordTurnAndHistory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	s, _ := m.StartSession(ctx, "alice")
	for i := 0; i < 3; i++ {
		turn := models.ConversationTurn{Tool: "text_assistant", Prompt: "p", Response: "r"}
		if err := m.RecordTurn(ctx, s.ID, turn); err != nil {
			t.Fatalf("RecordTurn() error = %v", err)
		}
	}

	if got := m.History(s.ID, 2); len(got) != 2 {
		t.Errorf("History(2) returned %d turns, want 2", len(got))
	}
	if got := m.History(s.ID, 0); len(got) != 3 {
		t.Errorf("History(0) returned %d turns, want all 3", len(got))
	}
}

func TestRecordTurn_UnknownSession(t *testing.T) {
	m := newTestManager(t)
	err := m.RecordTurn(context.Background(), "nope_20250101", models.ConversationTurn{})
	if err == nil {
		t.Error("RecordTurn() on unknown session should error")
	}
}

// ─── Relevance scoring ───────────────────────────────────────

func TestRelevanceScore_ClampedToOne(t *testing.T) {
	now := time.Now()
	e := &models.ContextEntry{
		SessionID:   "s1",
		Type:        models.ContextUserPreference,
		Tags:        []string{"text_assistant", "summarize"},
		AccessCount: 6,
		CreatedAt:   now.Add(-5 * time.Minute),
	}
	q := &models.ContextQuery{Tool: "text_assistant", Operation: "summarize", SessionID: "s1"}

	// 0.4 + 0.3 + 0.2 + 0.3 + 0.1 + 0.2 would be 1.5 unclamped.
	if got := relevanceScore(e, q, now); got != 1.0 {
		t.Errorf("relevanceScore() = %v, want clamped 1.0", got)
	}
}

func TestRelevanceScore_RecencyBuckets(t *testing.T) {
	now := time.Now()
	q := &models.ContextQuery{}

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{10 * time.Minute, 0.3},
		{time.Hour, 0.2},
		{10 * time.Hour, 0.1},
		{48 * time.Hour, 0.0},
	}
	for _, tc := range cases {
		e := &models.ContextEntry{CreatedAt: now.Add(-tc.age)}
		if got := relevanceScore(e, q, now); got != tc.want {
			t.Errorf("relevanceScore(age=%v) = %v, want %v", tc.age, got, tc.want)
		}
	}
}

func TestRelevant_FiltersAndRanks(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	// Strong match: tool tag + fresh.
	strong := &models.ContextEntry{
		UserID: "alice", Scope: models.ScopeSession,
		Content: "prefers short answers", Tags: []string{"text_assistant"},
		CreatedAt: now.Add(-5 * time.Minute),
	}
	// Weak: stale with no tags, lands under the floor.
	weak := &models.ContextEntry{
		UserID: "alice", Scope: models.ScopeSession,
		Content: "stale note", CreatedAt: now.Add(-72 * time.Hour),
	}
	// Different user, never returned.
	other := &models.ContextEntry{
		UserID: "bob", Scope: models.ScopeSession,
		Content: "bob's note", Tags: []string{"text_assistant"},
		CreatedAt: now,
	}
	for _, e := range []*models.ContextEntry{strong, weak, other} {
		if err := m.AddEntry(ctx, e); err != nil {
			t.Fatalf("AddEntry() error = %v", err)
		}
	}

	got, err := m.Relevant(ctx, &models.ContextQuery{UserID: "alice", Tool: "text_assistant"})
	if err != nil {
		t.Fatalf("Relevant() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Relevant() returned %d entries, want 1", len(got))
	}
	if got[0].Content != "prefers short answers" {
		t.Errorf("Relevant()[0].Content = %q", got[0].Content)
	}
	if got[0].AccessCount != 1 {
		t.Errorf("returned entry AccessCount = %d, want bumped to 1", got[0].AccessCount)
	}
}

func TestAddEntry_Validation(t *testing.T) {
	m := newTestManager(t)
	if err := m.AddEntry(context.Background(), &models.ContextEntry{UserID: "alice"}); err == nil {
		t.Error("AddEntry() with empty content should error")
	}

	e := &models.ContextEntry{UserID: "alice", Content: "x", Scope: models.ScopeSession}
	if err := m.AddEntry(context.Background(), e); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if e.ID == "" {
		t.Error("AddEntry() should assign an id")
	}
	if e.CreatedAt.IsZero() {
		t.Error("AddEntry() should stamp CreatedAt")
	}
}

func TestCleanupOlderThan_SparesPersistent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	old := now.Add(-40 * 24 * time.Hour)
	m.AddEntry(ctx, &models.ContextEntry{UserID: "alice", Content: "old session note", Scope: models.ScopeSession, CreatedAt: old})
	m.AddEntry(ctx, &models.ContextEntry{UserID: "alice", Content: "keep forever", Scope: models.ScopePersistent, CreatedAt: old})
	m.AddEntry(ctx, &models.ContextEntry{UserID: "alice", Content: "recent", Scope: models.ScopeSession, CreatedAt: now})

	removed, err := m.CleanupOlderThan(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOlderThan() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupOlderThan() removed = %d, want 1", removed)
	}
}

func TestPreferences_DefaultWhenUnset(t *testing.T) {
	m := newTestManager(t)
	p, err := m.Preferences(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Preferences() error = %v", err)
	}
	if p.UserID != "nobody" || p.ExperienceLevel != "" {
		t.Errorf("Preferences() for unknown user = %+v, want empty defaults", p)
	}
}

func TestSetPreferences_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	in := &models.Preferences{UserID: "alice", ExperienceLevel: "advanced", OutputFormat: "bullet_points"}
	if err := m.SetPreferences(ctx, in); err != nil {
		t.Fatalf("SetPreferences() error = %v", err)
	}

	got, err := m.Preferences(ctx, "alice")
	if err != nil {
		t.Fatalf("Preferences() error = %v", err)
	}
	if got.ExperienceLevel != "advanced" {
		t.Errorf("ExperienceLevel = %q, want %q", got.ExperienceLevel, "advanced")
	}
	if got.UpdatedAt.IsZero() {
		t.Error("SetPreferences() should stamp UpdatedAt")
	}

	if err := m.SetPreferences(ctx, &models.Preferences{}); err == nil {
		t.Error("SetPreferences() without a user id should error")
	}
}
