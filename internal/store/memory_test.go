package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/easygenie/orchestrator/internal/store"
	"github.com/easygenie/orchestrator/pkg/models"
)

// newTestStore creates a store without disk persistence.
func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── Context entries ─────────────────────────────────────────

func TestSaveAndLoadContextEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &models.ContextEntry{
		ID: "e1", UserID: "alice", Scope: models.ScopePersistent,
		Content: "prefers metric units", CreatedAt: time.Now(),
	}
	if err := s.SaveContextEntry(ctx, e); err != nil {
		t.Fatalf("SaveContextEntry() error = %v", err)
	}

	got, err := s.LoadContextEntries(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadContextEntries() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "prefers metric units" {
		t.Errorf("LoadContextEntries() = %+v", got)
	}

	// Other users see nothing.
	if got, _ := s.LoadContextEntries(ctx, "bob"); len(got) != 0 {
		t.Errorf("LoadContextEntries() for other user = %d entries, want 0", len(got))
	}
}

func TestSaveContextEntry_UpsertsByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveContextEntry(ctx, &models.ContextEntry{ID: "e1", UserID: "alice", Content: "v1"})
	s.SaveContextEntry(ctx, &models.ContextEntry{ID: "e1", UserID: "alice", Content: "v2"})

	got, _ := s.LoadContextEntries(ctx, "alice")
	if len(got) != 1 {
		t.Fatalf("upsert produced %d entries, want 1", len(got))
	}
	if got[0].Content != "v2" {
		t.Errorf("Content = %q, want v2", got[0].Content)
	}
}

func TestDeleteContextBefore_SparesPersistent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	s.SaveContextEntry(ctx, &models.ContextEntry{ID: "e1", UserID: "alice", Scope: models.ScopeSession, CreatedAt: old})
	s.SaveContextEntry(ctx, &models.ContextEntry{ID: "e2", UserID: "alice", Scope: models.ScopePersistent, CreatedAt: old})
	s.SaveContextEntry(ctx, &models.ContextEntry{ID: "e3", UserID: "alice", Scope: models.ScopeSession, CreatedAt: time.Now()})

	removed, err := s.DeleteContextBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteContextBefore() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteContextBefore() removed = %d, want 1", removed)
	}
	got, _ := s.LoadContextEntries(ctx, "alice")
	if len(got) != 2 {
		t.Errorf("remaining entries = %d, want 2", len(got))
	}
}

// ─── Sessions ────────────────────────────────────────────────

func TestSaveAndLoadSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{ID: "alice_20250314", UserID: "alice", StartedAt: time.Now()}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := s.LoadSession(ctx, "alice_20250314")
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if got.UserID != "alice" {
		t.Errorf("LoadSession().UserID = %q", got.UserID)
	}
}

func TestLoadSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadSession(context.Background(), "missing")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("LoadSession() error = %v, want *ErrNotFound", err)
	}
}

// ─── Preferences ─────────────────────────────────────────────

func TestPreferencesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadPreferences(ctx, "alice"); err == nil {
		t.Error("LoadPreferences() before save should return not found")
	}

	p := &models.Preferences{UserID: "alice", ExperienceLevel: "beginner"}
	if err := s.SavePreferences(ctx, p); err != nil {
		t.Fatalf("SavePreferences() error = %v", err)
	}
	got, err := s.LoadPreferences(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadPreferences() error = %v", err)
	}
	if got.ExperienceLevel != "beginner" {
		t.Errorf("ExperienceLevel = %q", got.ExperienceLevel)
	}
}

// ─── Learning snapshot ───────────────────────────────────────

func TestLearningSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadLearningSnapshot(ctx); err == nil {
		t.Error("LoadLearningSnapshot() before save should return not found")
	}

	if err := s.SaveLearningSnapshot(ctx, []byte(`{"patterns":{}}`)); err != nil {
		t.Fatalf("SaveLearningSnapshot() error = %v", err)
	}
	got, err := s.LoadLearningSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadLearningSnapshot() error = %v", err)
	}
	if string(got) != `{"patterns":{}}` {
		t.Errorf("snapshot = %s", got)
	}
}

// ─── Disk snapshots ──────────────────────────────────────────

func TestSnapshotSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1 := store.NewMemoryStore(dir)
	s1.SaveContextEntry(ctx, &models.ContextEntry{ID: "e1", UserID: "alice", Scope: models.ScopePersistent, Content: "kept"})
	s1.SavePreferences(ctx, &models.Preferences{UserID: "alice", LearningStyle: "practical"})
	s1.Close() // flushes the final snapshot

	s2 := store.NewMemoryStore(dir)
	defer s2.Close()

	entries, err := s2.LoadContextEntries(ctx, "alice")
	if err != nil || len(entries) != 1 {
		t.Fatalf("after restart: entries = %v, err = %v", entries, err)
	}
	if entries[0].Content != "kept" {
		t.Errorf("restored Content = %q", entries[0].Content)
	}
	prefs, err := s2.LoadPreferences(ctx, "alice")
	if err != nil {
		t.Fatalf("after restart: LoadPreferences() error = %v", err)
	}
	if prefs.LearningStyle != "practical" {
		t.Errorf("restored LearningStyle = %q", prefs.LearningStyle)
	}
}
