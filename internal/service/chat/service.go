package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

var (
	ErrOwnerRequired   = errors.New("owner id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRole     = errors.New("message role must be user or assistant")
	ErrEmptyContent    = errors.New("message content is required")
)

const (
	titleMaxRunes = 60
	defaultTitle  = "New conversation"
)

// Service encapsulates conversation state management. Every operation is scoped
// to an owner; sessions of other owners behave as if they did not exist.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a chat service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: nowUTC}
}

// CreateSession provisions a session. The title falls back to one derived from
// firstMessage, and is filled in from the first user turn when both are empty.
func (s *Service) CreateSession(ctx context.Context, ownerID, title, firstMessage string) (chat.Session, error) {
	if ownerID == "" {
		return chat.Session{}, ErrOwnerRequired
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = DeriveTitle(firstMessage)
	}

	now := s.now()
	session := chat.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return chat.Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// ListSessions returns the owner's sessions without turns.
func (s *Service) ListSessions(ctx context.Context, ownerID string) ([]chat.Session, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	return s.store.ListSessions(ctx, ownerID)
}

// GetSession retrieves a session together with its turns.
func (s *Service) GetSession(ctx context.Context, ownerID, sessionID string) (chat.Session, error) {
	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return chat.Session{}, err
	}

	turns, err := s.store.ListTurns(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	session.Turns = turns
	if session.Title == "" {
		session.Title = defaultTitle
	}
	return session, nil
}

// SaveTurn appends a finalized turn to the session history.
func (s *Service) SaveTurn(ctx context.Context, ownerID, sessionID string, role chat.Role, content string, links []chat.Link) (chat.Turn, error) {
	if !role.Valid() {
		return chat.Turn{}, ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return chat.Turn{}, ErrEmptyContent
	}

	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return chat.Turn{}, err
	}

	turn := chat.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Links:     links,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendTurn(ctx, turn); err != nil {
		return chat.Turn{}, fmt.Errorf("append turn: %w", err)
	}

	if session.Title == "" && role == chat.RoleUser {
		session.Title = DeriveTitle(content)
		session.UpdatedAt = turn.CreatedAt
		if err := s.store.SaveSession(ctx, session); err != nil {
			return chat.Turn{}, fmt.Errorf("save session title: %w", err)
		}
	}
	return turn, nil
}

// DeleteSession discards a session and all of its turns.
func (s *Service) DeleteSession(ctx context.Context, ownerID, sessionID string) error {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return err
	}
	return s.store.DeleteSession(ctx, sessionID)
}

func (s *Service) ownedSession(ctx context.Context, ownerID, sessionID string) (chat.Session, error) {
	if ownerID == "" {
		return chat.Session{}, ErrOwnerRequired
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	if session.OwnerID != ownerID {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// DeriveTitle builds a session title from a user message: whitespace is
// collapsed and the result is cut to 60 runes with a trailing ellipsis.
func DeriveTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if title == "" {
		return ""
	}
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "…"
}
