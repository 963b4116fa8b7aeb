// Package inmem provides an in-memory implementation of session.Store.
//
// It is intended for tests and local development. Production deployments should
// use a durable implementation (for example features/session/mongo).
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"goa.design/aide/runtime/agent/session"
)

// Store is an in-memory implementation of session.Store.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
}

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]session.Session)}
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(_ context.Context, id string, createdAt time.Time, settings session.Settings) (session.Session, error) {
	if id == "" {
		return session.Session{}, errors.New("session id is required")
	}
	if createdAt.IsZero() {
		return session.Session{}, errors.New("created_at is required")
	}
	if err := settings.Validate(); err != nil {
		return session.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.sessions[id]; dup {
		return session.Session{}, session.ErrDuplicateSession
	}
	out := session.Session{
		ID:            id,
		Status:        session.StatusRunning,
		MaxIterations: settings.MaxIterations,
		MaxDuration:   settings.MaxDuration,
		GrantedScopes: append([]string(nil), settings.GrantedScopes...),
		CreatedAt:     createdAt.UTC(),
	}
	s.sessions[id] = out
	return cloneSession(out), nil
}

// LoadSession implements session.Store.
func (s *Store) LoadSession(_ context.Context, id string) (session.Session, error) {
	if id == "" {
		return session.Session{}, errors.New("session id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, ok := s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	return cloneSession(existing), nil
}

// AppendTurn implements session.Store.
func (s *Store) AppendTurn(_ context.Context, id string, turn session.Turn) (session.Turn, error) {
	if id == "" {
		return session.Turn{}, errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[id]
	if !ok {
		return session.Turn{}, session.ErrSessionNotFound
	}
	if existing.Status.Terminal() {
		return session.Turn{}, session.ErrSessionEnded
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	} else {
		turn.CreatedAt = turn.CreatedAt.UTC()
	}
	if last, ok := existing.LastTurn(); ok && turn.CreatedAt.Before(last.CreatedAt) {
		return session.Turn{}, session.ErrTurnOutOfOrder
	}
	existing.Turns = append(existing.Turns, turn)
	s.sessions[id] = existing
	return turn, nil
}

// SetIterations implements session.Store.
func (s *Store) SetIterations(_ context.Context, id string, iterations int) error {
	if iterations < 0 {
		return errors.New("iterations must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	existing.Iterations = iterations
	s.sessions[id] = existing
	return nil
}

// EndSession implements session.Store.
func (s *Store) EndSession(_ context.Context, id string, status session.Status, reason session.Reason, endedAt time.Time) (session.Session, error) {
	if id == "" {
		return session.Session{}, errors.New("session id is required")
	}
	if !status.Terminal() {
		return session.Session{}, errors.New("status must be terminal")
	}
	if endedAt.IsZero() {
		return session.Session{}, errors.New("ended_at is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if existing.Status.Terminal() {
		if existing.Status == status {
			return cloneSession(existing), nil
		}
		return session.Session{}, session.ErrSessionEnded
	}
	at := endedAt.UTC()
	existing.Status = status
	existing.Reason = reason
	existing.EndedAt = &at
	s.sessions[id] = existing
	return cloneSession(existing), nil
}

func cloneSession(in session.Session) session.Session {
	out := in
	out.Turns = append([]session.Turn(nil), in.Turns...)
	out.GrantedScopes = append([]string(nil), in.GrantedScopes...)
	if in.EndedAt != nil {
		at := *in.EndedAt
		out.EndedAt = &at
	}
	return out
}
