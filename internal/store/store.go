// Package store defines the persistence boundary for characters, sessions,
// messages and the model catalog.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/emberchat/emberchat/internal/catalog"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("store: not found")

// Character is a stored chat character.
type Character struct {
	ID        string
	Name      string
	Persona   string
	CreatedAt time.Time
}

// Session is one conversation with a character.
type Session struct {
	ID          string
	CharacterID string
	Title       string
	// Metadata holds free-form session notes fed into the system prompt.
	Metadata  string
	CreatedAt time.Time
}

// Message is one conversation turn. Rows are appended in conversation order
// and listed back in the same order; that ordering is load-bearing.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Text      string
	CreatedAt time.Time
}

// Store is the persistence interface shared by the SQLite and Postgres
// implementations.
type Store interface {
	CreateCharacter(ctx context.Context, c Character) error
	GetCharacter(ctx context.Context, id string) (Character, error)
	ListCharacters(ctx context.Context) ([]Character, error)

	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)

	AppendMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)

	// SeedModel inserts a catalog entry unless one with the same label exists.
	SeedModel(ctx context.Context, ref catalog.ModelRef) error
	CreateModel(ctx context.Context, ref catalog.ModelRef) error
	GetModel(ctx context.Context, id string) (catalog.ModelRef, error)
	ListModels(ctx context.Context) ([]catalog.ModelRef, error)
	// DeleteModel removes a catalog entry. Callers consult the router's
	// AssertDeletable first; the store itself refuses built-in rows as a last
	// line of defense.
	DeleteModel(ctx context.Context, id string) error

	Close() error
}
