package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

// Store persists sessions and their turns.
type Store interface {
	// SaveSession inserts or updates session metadata. Turns are ignored.
	SaveSession(ctx context.Context, session chat.Session) error
	// GetSession returns session metadata without turns, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	// ListSessions returns the owner's sessions, most recently updated first.
	ListSessions(ctx context.Context, ownerID string) ([]chat.Session, error)
	// AppendTurn adds a turn and bumps the session's UpdatedAt.
	AppendTurn(ctx context.Context, turn chat.Turn) error
	// ListTurns returns a session's turns in insertion order.
	ListTurns(ctx context.Context, sessionID string) ([]chat.Turn, error)
	// DeleteSession removes a session and its turns.
	DeleteSession(ctx context.Context, sessionID string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	turns    map[string][]chat.Turn
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		turns:    make(map[string][]chat.Turn),
	}
}

func (s *MemoryStore) SaveSession(_ context.Context, session chat.Session) error {
	session.Turns = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	if _, ok := s.turns[session.ID]; !ok {
		s.turns[session.ID] = make([]chat.Turn, 0, 16)
	}
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, ownerID string) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]chat.Session, 0)
	for _, session := range s.sessions {
		if session.OwnerID == ownerID {
			sessions = append(sessions, session)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, turn chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[turn.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	turn.Links = append([]chat.Link(nil), turn.Links...)
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	if turn.CreatedAt.After(session.UpdatedAt) {
		session.UpdatedAt = turn.CreatedAt
		s.sessions[turn.SessionID] = session
	}
	return nil
}

func (s *MemoryStore) ListTurns(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	return nil
}

var _ Store = (*MemoryStore)(nil)

func nowUTC() time.Time {
	return time.Now().UTC()
}
