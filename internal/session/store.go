// Package session persists debate sessions and serializes writers per session.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/agora/internal/debate"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned by Save when the stored version moved since the session was read.
	ErrConflict = errors.New("session was modified concurrently")
)

// Store is the durable record of debate sessions. Implementations return deep copies;
// a caller mutating a returned session never affects stored state until Save.
type Store interface {
	Create(ctx context.Context, topic string, userPosition, aiPosition debate.Position) (*debate.Session, error)
	Get(ctx context.Context, sessionID string) (*debate.Session, error)
	// Save persists s when s.Version matches the stored version. On success s.Version and
	// s.UpdatedAt are advanced in place.
	Save(ctx context.Context, s *debate.Session) error
	Delete(ctx context.Context, sessionID string) error
	// PurgeIdle removes sessions not updated since before and reports how many were removed.
	PurgeIdle(ctx context.Context, before time.Time) (int, error)
	Count(ctx context.Context) (int, error)
	Driver() string
	Close() error
}

// Migrator is implemented by stores backed by a schema.
type Migrator interface {
	Migrate(ctx context.Context) ([]int64, error)
}

func newSession(topic string, userPosition, aiPosition debate.Position) *debate.Session {
	now := time.Now().UTC()
	return &debate.Session{
		ID:           uuid.NewString(),
		Topic:        strings.TrimSpace(topic),
		UserPosition: userPosition,
		AIPosition:   aiPosition,
		Phase:        debate.PhaseSetup,
		Turns:        []debate.Turn{},
		Metadata:     map[string]string{},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
