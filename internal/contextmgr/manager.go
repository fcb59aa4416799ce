// Package contextmgr manages user sessions, remembered context
// entries, and preferences.
//
// Sessions are daily: the session id derives from the user id and the
// current date, so one user accumulates one session per day. Context
// entries are held in memory with scope-based persistence — only
// weekly, monthly, and persistent scopes survive restarts.
package contextmgr

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/internal/store"
	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"
)

const (
	maxEntries       = 10000
	evictionKeep     = 0.8 // fraction kept when over capacity
	maxHistoryTurns  = 1000
	sessionIdleLimit = 2 * time.Hour
	defaultLimit     = 10
)

// Manager is the context service. All maps are guarded by mu; session
// write-through happens under the lock (the in-memory copy is
// canonical), entry and preference writes happen outside it.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	entries  []*models.ContextEntry
	prefs    map[string]*models.Preferences

	store contracts.Persistence
	now   func() time.Time // test hook
}

// New creates a manager backed by the given persistence layer.
// Persisted entries are loaded lazily per user on first access.
func New(p contracts.Persistence) *Manager {
	return &Manager{
		sessions: make(map[string]*models.Session),
		entries:  make([]*models.ContextEntry, 0),
		prefs:    make(map[string]*models.Preferences),
		store:    p,
		now:      time.Now,
	}
}

// SessionID derives the daily session id for a user.
func SessionID(userID string, t time.Time) string {
	return userID + "_" + t.Format("20060102")
}

// ── Sessions ─────────────────────────────────────────────────

// StartSession returns the user's session for today, creating or
// resuming as needed. An idle session past the timeout restarts with a
// fresh history.
func (m *Manager) StartSession(ctx context.Context, userID string) (*models.Session, error) {
	now := m.now()
	id := SessionID(userID, now)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		// Try the persisted copy before minting a new one.
		if loaded, err := m.store.LoadSession(ctx, id); err == nil {
			s = loaded
			m.sessions[id] = s
			ok = true
		}
	}
	if ok && now.Sub(s.LastActive) <= sessionIdleLimit {
		s.LastActive = now
		s.Interactions++
		m.persistSession(ctx, s)
		return s, nil
	}

	s = &models.Session{
		ID:           id,
		UserID:       userID,
		StartedAt:    now,
		LastActive:   now,
		Interactions: 1,
	}
	m.sessions[id] = s
	m.persistSession(ctx, s)
	log.Debug().Str("session", id).Str("user", userID).Msg("Session started")
	return s, nil
}

// EndSession flushes a session to the store and removes it from the
// in-memory map.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return &store.ErrNotFound{Entity: "session", Key: sessionID}
	}
	s.LastActive = m.now()
	m.persistSession(ctx, s)
	delete(m.sessions, sessionID)
	log.Debug().Str("session", sessionID).Msg("Session ended")
	return nil
}

// SweepIdleSessions ends every session idle past the timeout and
// reports how many were flushed. The retention janitor drives this.
func (m *Manager) SweepIdleSessions(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	ended := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastActive) > sessionIdleLimit {
			m.persistSession(ctx, s)
			delete(m.sessions, id)
			ended++
		}
	}
	return ended
}

// RecordTurn appends a conversation turn, dropping the oldest past the
// history cap.
func (m *Manager) RecordTurn(ctx context.Context, sessionID string, turn models.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return &store.ErrNotFound{Entity: "session", Key: sessionID}
	}
	s.History = append(s.History, turn)
	if len(s.History) > maxHistoryTurns {
		s.History = s.History[len(s.History)-maxHistoryTurns:]
	}
	s.LastActive = m.now()
	m.persistSession(ctx, s)
	return nil
}

// History returns a copy of the most recent n turns of a session.
func (m *Manager) History(sessionID string, n int) []models.ConversationTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	h := s.History
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]models.ConversationTurn, len(h))
	copy(out, h)
	return out
}

// persistSession writes through to the store. Caller holds the lock;
// failures are logged, not returned — the in-memory copy is canonical.
func (m *Manager) persistSession(ctx context.Context, s *models.Session) {
	if err := m.store.SaveSession(ctx, s); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("Session persist failed")
	}
}

// ── Context entries ──────────────────────────────────────────

// AddEntry stores a context entry, evicting low-value entries past the
// capacity cap. Only persisting scopes are written through.
func (m *Manager) AddEntry(ctx context.Context, e *models.ContextEntry) error {
	if e.Content == "" {
		return errors.New("contextmgr: empty entry content")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}

	m.mu.Lock()
	m.entries = append(m.entries, e)
	if len(m.entries) > maxEntries {
		m.evictLocked()
	}
	m.mu.Unlock()

	if e.Scope.Persisted() {
		if err := m.store.SaveContextEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("entry", e.ID).Msg("Entry persist failed")
		}
	}
	return nil
}

// evictLocked keeps the top fraction of entries ranked by relevance,
// breaking ties by most recent access. Caller holds the lock.
func (m *Manager) evictLocked() {
	sort.Slice(m.entries, func(i, j int) bool {
		a, b := m.entries[i], m.entries[j]
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		return lastTouched(a).After(lastTouched(b))
	})
	keep := int(float64(maxEntries) * evictionKeep)
	if keep < len(m.entries) {
		m.entries = m.entries[:keep]
	}
}

func lastTouched(e *models.ContextEntry) time.Time {
	if !e.LastAccessed.IsZero() {
		return e.LastAccessed
	}
	return e.CreatedAt
}

// LoadUser pulls a user's persisted entries into memory. Safe to call
// repeatedly; already-loaded entries are skipped.
func (m *Manager) LoadUser(ctx context.Context, userID string) error {
	persisted, err := m.store.LoadContextEntries(ctx, userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	known := make(map[string]bool, len(m.entries))
	for _, e := range m.entries {
		known[e.ID] = true
	}
	for _, e := range persisted {
		if !known[e.ID] {
			m.entries = append(m.entries, e)
		}
	}
	return nil
}

// Relevant scores the user's entries against the query and returns the
// top matches above the relevance floor. Returned entries get their
// access count bumped.
func (m *Manager) Relevant(ctx context.Context, q *models.ContextQuery) ([]*models.ContextEntry, error) {
	if err := m.LoadUser(ctx, q.UserID); err != nil {
		log.Warn().Err(err).Str("user", q.UserID).Msg("Context load failed, using in-memory only")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	scopes := q.Scopes
	if len(scopes) == 0 {
		scopes = models.DefaultScopes()
	}
	inScope := make(map[models.Scope]bool, len(scopes))
	for _, s := range scopes {
		inScope[s] = true
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	type scored struct {
		entry *models.ContextEntry
		score float64
	}
	var matches []scored
	for _, e := range m.entries {
		if e.UserID != q.UserID || !inScope[e.Scope] {
			continue
		}
		score := relevanceScore(e, q, now)
		if score >= relevanceFloor {
			matches = append(matches, scored{entry: e, score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entry.CreatedAt.After(matches[j].entry.CreatedAt)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]*models.ContextEntry, len(matches))
	for i, s := range matches {
		s.entry.AccessCount++
		s.entry.LastAccessed = now
		out[i] = s.entry
	}
	return out, nil
}

// CleanupOlderThan drops non-persistent entries older than age, in
// memory and in the store.
func (m *Manager) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := m.now().Add(-age)

	m.mu.Lock()
	kept := m.entries[:0]
	removed := 0
	for _, e := range m.entries {
		if e.Scope == models.ScopePersistent || !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		} else {
			removed++
		}
	}
	m.entries = kept
	m.mu.Unlock()

	stored, err := m.store.DeleteContextBefore(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	if removed > 0 || stored > 0 {
		log.Info().Int("memory", removed).Int("store", stored).Msg("Context cleanup")
	}
	return removed, nil
}

// ── Preferences ──────────────────────────────────────────────

// Preferences returns the user's preferences, falling back to the
// store and then to empty defaults.
func (m *Manager) Preferences(ctx context.Context, userID string) (*models.Preferences, error) {
	m.mu.RLock()
	p, ok := m.prefs[userID]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	loaded, err := m.store.LoadPreferences(ctx, userID)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			return &models.Preferences{UserID: userID}, nil
		}
		return nil, err
	}

	m.mu.Lock()
	m.prefs[userID] = loaded
	m.mu.Unlock()
	return loaded, nil
}

// SetPreferences replaces the user's preferences and persists them.
func (m *Manager) SetPreferences(ctx context.Context, p *models.Preferences) error {
	if p.UserID == "" {
		return errors.New("contextmgr: preferences need a user id")
	}
	p.UpdatedAt = m.now()

	m.mu.Lock()
	m.prefs[p.UserID] = p
	m.mu.Unlock()

	return m.store.SavePreferences(ctx, p)
}
