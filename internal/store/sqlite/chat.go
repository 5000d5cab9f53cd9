package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-lingo/backend/internal/service/chat"
)

var _ chatservice.Store = (*Store)(nil)

// SaveSession inserts or updates session metadata.
func (s *Store) SaveSession(ctx context.Context, session chat.Session) error {
	query := `
	INSERT INTO chat_sessions (id, owner_id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.OwnerID, session.Title,
		session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession retrieves session metadata by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_sessions WHERE id = ?`, sessionID)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, chatservice.ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// ListSessions returns the owner's sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, ownerID string) ([]chat.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_sessions WHERE owner_id = ?
		ORDER BY updated_at DESC, id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]chat.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// AppendTurn adds a turn and bumps the session's updated_at.
func (s *Store) AppendTurn(ctx context.Context, turn chat.Turn) error {
	var linksJSON sql.NullString
	if len(turn.Links) > 0 {
		data, err := json.Marshal(turn.Links)
		if err != nil {
			return fmt.Errorf("encode links: %w", err)
		}
		linksJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE chat_sessions SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
		turn.CreatedAt.UnixNano(), turn.SessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return chatservice.ErrSessionNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_turns (id, session_id, role, content, links_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, string(turn.Role), turn.Content, linksJSON, turn.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return tx.Commit()
}

// ListTurns returns a session's turns in insertion order.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, links_json, created_at
		FROM chat_turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := make([]chat.Turn, 0)
	for rows.Next() {
		var (
			turn      chat.Turn
			role      string
			linksJSON sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&turn.ID, &turn.SessionID, &role, &turn.Content, &linksJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.Role = chat.Role(role)
		turn.CreatedAt = time.Unix(0, createdAt).UTC()
		if linksJSON.Valid && linksJSON.String != "" {
			if err := json.Unmarshal([]byte(linksJSON.String), &turn.Links); err != nil {
				return nil, fmt.Errorf("decode links of turn %s: %w", turn.ID, err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// DeleteSession removes a session and its turns.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return chatservice.ErrSessionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (chat.Session, error) {
	var (
		session              chat.Session
		createdAt, updatedAt int64
	)
	if err := row.Scan(&session.ID, &session.OwnerID, &session.Title, &createdAt, &updatedAt); err != nil {
		return chat.Session{}, err
	}
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	session.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return session, nil
}
