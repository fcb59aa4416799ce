// Package store — in-memory Persistence implementation.
// Used when PostgreSQL is not configured (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/easygenie/orchestrator/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Entries     map[string][]*models.ContextEntry `json:"entries"` // key: user_id
	Sessions    map[string]*models.Session        `json:"sessions"`
	Preferences map[string]*models.Preferences    `json:"preferences"`
	Learning    json.RawMessage                   `json:"learning,omitempty"`
}

// MemoryStore implements contracts.Persistence with in-memory maps.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string][]*models.ContextEntry // key: user_id
	sessions    map[string]*models.Session        // key: session id
	preferences map[string]*models.Preferences    // key: user_id
	learning    json.RawMessage

	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{}
	closeOnce    sync.Once
}

// NewMemoryStore creates an in-memory store persisting snapshots under
// dataDir. An empty dataDir disables persistence.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		entries:     make(map[string][]*models.ContextEntry),
		sessions:    make(map[string]*models.Session),
		preferences: make(map[string]*models.Preferences),
		saveCh:      make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Entries:     m.entries,
		Sessions:    m.sessions,
		Preferences: m.preferences,
		Learning:    m.learning,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Entries != nil {
		m.entries = snap.Entries
	}
	if snap.Sessions != nil {
		m.sessions = snap.Sessions
	}
	if snap.Preferences != nil {
		m.preferences = snap.Preferences
	}
	m.learning = snap.Learning
}

// ── Context entries ──────────────────────────────────────────

func (m *MemoryStore) SaveContextEntry(_ context.Context, e *models.ContextEntry) error {
	m.mu.Lock()
	list := m.entries[e.UserID]
	replaced := false
	for i, existing := range list {
		if existing.ID == e.ID {
			list[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, e)
	}
	m.entries[e.UserID] = list
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) LoadContextEntries(_ context.Context, userID string) ([]*models.ContextEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.entries[userID]
	out := make([]*models.ContextEntry, len(list))
	copy(out, list)
	return out, nil
}

func (m *MemoryStore) DeleteContextBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	removed := 0
	for user, list := range m.entries {
		kept := list[:0]
		for _, e := range list {
			if e.Scope == models.ScopePersistent || !e.CreatedAt.Before(cutoff) {
				kept = append(kept, e)
			} else {
				removed++
			}
		}
		m.entries[user] = kept
	}
	m.mu.Unlock()

	if removed > 0 {
		m.requestSave()
	}
	return removed, nil
}

// ── Sessions ─────────────────────────────────────────────────

func (m *MemoryStore) SaveSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) LoadSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	return s, nil
}

// ── Preferences ──────────────────────────────────────────────

func (m *MemoryStore) SavePreferences(_ context.Context, p *models.Preferences) error {
	m.mu.Lock()
	m.preferences[p.UserID] = p
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) LoadPreferences(_ context.Context, userID string) (*models.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.preferences[userID]
	if !ok {
		return nil, &ErrNotFound{Entity: "preferences", Key: userID}
	}
	return p, nil
}

// ── Learning snapshot ────────────────────────────────────────

func (m *MemoryStore) SaveLearningSnapshot(_ context.Context, data []byte) error {
	m.mu.Lock()
	m.learning = append(json.RawMessage(nil), data...)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) LoadLearningSnapshot(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.learning) == 0 {
		return nil, &ErrNotFound{Entity: "learning snapshot", Key: "singleton"}
	}
	return append([]byte(nil), m.learning...), nil
}

// Close flushes a final snapshot and stops the background saver.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}
