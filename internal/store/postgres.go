// Package store — PostgreSQL Persistence implementation backed by pgx.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/pkg/models"
)

// PostgresStore implements contracts.Persistence on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS context_entries (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	session_id    TEXT NOT NULL DEFAULT '',
	entry_type    TEXT NOT NULL,
	scope         TEXT NOT NULL,
	content       TEXT NOT NULL,
	tags          JSONB NOT NULL DEFAULT '[]',
	relevance     DOUBLE PRECISION NOT NULL DEFAULT 0,
	access_count  INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	last_accessed TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_context_entries_user ON context_entries (user_id);
CREATE INDEX IF NOT EXISTS idx_context_entries_created ON context_entries (created_at);

CREATE TABLE IF NOT EXISTS sessions (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	doc     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
	user_id TEXT PRIMARY KEY,
	doc     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_snapshots (
	id         INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewPostgresStore connects to PostgreSQL and bootstraps the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	log.Info().Msg("Postgres store configured")
	return &PostgresStore{pool: pool}, nil
}

// ── Context entries ──────────────────────────────────────────

func (p *PostgresStore) SaveContextEntry(ctx context.Context, e *models.ContextEntry) error {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	var lastAccessed *time.Time
	if !e.LastAccessed.IsZero() {
		lastAccessed = &e.LastAccessed
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO context_entries
			(id, user_id, session_id, entry_type, scope, content, tags, relevance, access_count, created_at, last_accessed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			tags = EXCLUDED.tags,
			relevance = EXCLUDED.relevance,
			access_count = EXCLUDED.access_count,
			last_accessed = EXCLUDED.last_accessed`,
		e.ID, e.UserID, e.SessionID, string(e.Type), string(e.Scope), e.Content,
		tags, e.Relevance, e.AccessCount, e.CreatedAt, lastAccessed)
	return err
}

func (p *PostgresStore) LoadContextEntries(ctx context.Context, userID string) ([]*models.ContextEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, session_id, entry_type, scope, content, tags, relevance, access_count, created_at, last_accessed
		FROM context_entries WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ContextEntry
	for rows.Next() {
		var (
			e            models.ContextEntry
			entryType    string
			scope        string
			tags         []byte
			lastAccessed *time.Time
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &entryType, &scope,
			&e.Content, &tags, &e.Relevance, &e.AccessCount, &e.CreatedAt, &lastAccessed); err != nil {
			return nil, err
		}
		e.Type = models.ContextType(entryType)
		e.Scope = models.Scope(scope)
		if err := json.Unmarshal(tags, &e.Tags); err != nil {
			e.Tags = nil
		}
		if lastAccessed != nil {
			e.LastAccessed = *lastAccessed
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteContextBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM context_entries
		WHERE created_at < $1 AND scope <> $2`,
		cutoff, string(models.ScopePersistent))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ── Sessions ─────────────────────────────────────────────────

func (p *PostgresStore) SaveSession(ctx context.Context, s *models.Session) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, doc) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		s.ID, s.UserID, doc)
	return err
}

func (p *PostgresStore) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM sessions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	if err != nil {
		return nil, err
	}
	var s models.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// ── Preferences ──────────────────────────────────────────────

func (p *PostgresStore) SavePreferences(ctx context.Context, prefs *models.Preferences) error {
	doc, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO preferences (user_id, doc) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET doc = EXCLUDED.doc`,
		prefs.UserID, doc)
	return err
}

func (p *PostgresStore) LoadPreferences(ctx context.Context, userID string) (*models.Preferences, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM preferences WHERE user_id = $1`, userID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "preferences", Key: userID}
	}
	if err != nil {
		return nil, err
	}
	var prefs models.Preferences
	if err := json.Unmarshal(doc, &prefs); err != nil {
		return nil, fmt.Errorf("unmarshal preferences: %w", err)
	}
	return &prefs, nil
}

// ── Learning snapshot ────────────────────────────────────────

func (p *PostgresStore) SaveLearningSnapshot(ctx context.Context, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO learning_snapshots (id, doc, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, data)
	return err
}

func (p *PostgresStore) LoadLearningSnapshot(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM learning_snapshots WHERE id = 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "learning snapshot", Key: "singleton"}
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
