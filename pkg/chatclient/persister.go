package chatclient

import (
	"context"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

// Persister stores finalized turns of a conversation.
type Persister interface {
	// CreateSession opens a session for a conversation whose first user turn is firstMessage.
	CreateSession(ctx context.Context, firstMessage string) (string, error)
	Save(ctx context.Context, sessionID string, role chat.Role, content string, links []chat.Link) error
}

// HTTPPersister saves turns through the backend session API.
type HTTPPersister struct {
	client *Client
}

// NewHTTPPersister creates a Persister backed by client.
func NewHTTPPersister(client *Client) *HTTPPersister {
	return &HTTPPersister{client: client}
}

func (p *HTTPPersister) CreateSession(ctx context.Context, firstMessage string) (string, error) {
	session, err := p.client.CreateSession(ctx, "", firstMessage)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

func (p *HTTPPersister) Save(ctx context.Context, sessionID string, role chat.Role, content string, links []chat.Link) error {
	_, err := p.client.SaveTurn(ctx, sessionID, role, content, links)
	return err
}
