package session

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/agora/internal/debate"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*debate.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*debate.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, topic string, userPosition, aiPosition debate.Position) (*debate.Session, error) {
	sess := newSession(topic, userPosition, aiPosition)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess.Clone(), nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID string) (*debate.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, sess *debate.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[sess.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != sess.Version {
		return ErrConflict
	}
	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) PurgeIdle(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(before) {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged, nil
}

func (s *InMemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

func (s *InMemoryStore) Driver() string { return "memory" }

func (s *InMemoryStore) Close() error { return nil }
