// Package postgres implements store.Store backed by Postgres, for
// deployments that outgrow the embedded SQLite file.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/emberchat/emberchat/internal/catalog"
	"github.com/emberchat/emberchat/internal/store"
)

// Store implements store.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens a Postgres-backed store using the provided DSN.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS characters (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	persona TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	character_id TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
	title TEXT,
	metadata TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS models (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	built_in BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_sessions_character ON sessions(character_id);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateCharacter(ctx context.Context, c store.Character) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (id, name, persona, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Persona, orNow(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert character: %w", err)
	}
	return nil
}

func (s *Store) GetCharacter(ctx context.Context, id string) (store.Character, error) {
	var c store.Character
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, persona, created_at FROM characters WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Persona, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Character{}, store.ErrNotFound
	}
	if err != nil {
		return store.Character{}, fmt.Errorf("select character: %w", err)
	}
	return c, nil
}

func (s *Store) ListCharacters(ctx context.Context) ([]store.Character, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, persona, created_at FROM characters ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()
	var out []store.Character
	for rows.Next() {
		var c store.Character
		if err := rows.Scan(&c.ID, &c.Name, &c.Persona, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateSession(ctx context.Context, sess store.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, character_id, title, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.CharacterID, sess.Title, sess.Metadata, orNow(sess.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (store.Session, error) {
	var sess store.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, character_id, title, metadata, created_at FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.CharacterID, &sess.Title, &sess.Metadata, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Session{}, store.ErrNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("select session: %w", err)
	}
	return sess, nil
}

func (s *Store) AppendMessage(ctx context.Context, m store.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, text, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, m.Role, m.Text, orNow(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, text, created_at FROM messages WHERE session_id = $1 ORDER BY seq`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SeedModel(ctx context.Context, ref catalog.ModelRef) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO models (id, label, kind, built_in) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (label) DO NOTHING`,
		ref.ID, ref.Label, string(ref.Kind), ref.BuiltIn)
	if err != nil {
		return fmt.Errorf("seed model: %w", err)
	}
	return nil
}

func (s *Store) CreateModel(ctx context.Context, ref catalog.ModelRef) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO models (id, label, kind, built_in) VALUES ($1, $2, $3, $4)`,
		ref.ID, ref.Label, string(ref.Kind), ref.BuiltIn)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

func (s *Store) GetModel(ctx context.Context, id string) (catalog.ModelRef, error) {
	var (
		ref  catalog.ModelRef
		kind string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, kind, built_in FROM models WHERE id = $1 OR label = $1`, id).
		Scan(&ref.ID, &ref.Label, &kind, &ref.BuiltIn)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ModelRef{}, store.ErrNotFound
	}
	if err != nil {
		return catalog.ModelRef{}, fmt.Errorf("select model: %w", err)
	}
	ref.Kind = catalog.BackendKind(kind)
	return ref, nil
}

func (s *Store) ListModels(ctx context.Context) ([]catalog.ModelRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, kind, built_in FROM models ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()
	var out []catalog.ModelRef
	for rows.Next() {
		var (
			ref  catalog.ModelRef
			kind string
		)
		if err := rows.Scan(&ref.ID, &ref.Label, &kind, &ref.BuiltIn); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		ref.Kind = catalog.BackendKind(kind)
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *Store) DeleteModel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = $1 AND built_in = FALSE`, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
