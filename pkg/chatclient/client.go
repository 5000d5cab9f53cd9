package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

const (
	dataPrefix   = "data:"
	maxEventSize = 1 << 20
	maxErrorBody = 4 << 10
)

// ErrStreamTruncated is returned when the server closes a stream without a terminal event.
var ErrStreamTruncated = errors.New("chatclient: stream ended before done")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chatclient: server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("chatclient: server returned status %d: %s", e.StatusCode, e.Message)
}

// Message is one conversation entry sent to the relay.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a relay call.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Mode     string    `json:"mode,omitempty"`
}

// Client talks to the z-lingo backend over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the backend at baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// streams are bounded by ctx, not by a client timeout
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream posts req to the relay and calls handle for every decoded event in
// order. It returns after the terminal event, when handle returns an error, or
// when the transport fails. An error event is delivered to handle, not returned.
func (c *Client) Stream(ctx context.Context, req ChatRequest, handle func(chat.StreamEvent) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("open chat stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeStatusError(resp)
	}

	return readEvents(resp.Body, handle)
}

func readEvents(r io.Reader, handle func(chat.StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])

		var wire chat.WireEvent
		if err := json.Unmarshal([]byte(payload), &wire); err != nil {
			continue
		}
		event, ok := wire.Event()
		if !ok {
			continue
		}
		if err := handle(event); err != nil {
			return err
		}
		if event.Terminal() {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read chat stream: %w", err)
	}
	return ErrStreamTruncated
}

// CreateSession creates a session. An empty title is derived from firstMessage.
func (c *Client) CreateSession(ctx context.Context, title, firstMessage string) (chat.Session, error) {
	payload := map[string]string{"title": title, "firstMessage": firstMessage}
	var session chat.Session
	err := c.doJSON(ctx, http.MethodPost, "/api/chat/sessions", payload, &session)
	return session, err
}

// ListSessions returns the caller's sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context) ([]chat.Session, error) {
	var sessions []chat.Session
	err := c.doJSON(ctx, http.MethodGet, "/api/chat/sessions", nil, &sessions)
	return sessions, err
}

// GetSession returns a session with its turns.
func (c *Client) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var session chat.Session
	err := c.doJSON(ctx, http.MethodGet, "/api/chat/sessions/"+url.PathEscape(sessionID), nil, &session)
	return session, err
}

// SaveTurn persists one finalized turn.
func (c *Client) SaveTurn(ctx context.Context, sessionID string, role chat.Role, content string, links []chat.Link) (chat.Turn, error) {
	payload := struct {
		Role    chat.Role   `json:"role"`
		Content string      `json:"content"`
		Links   []chat.Link `json:"links,omitempty"`
	}{Role: role, Content: content, Links: links}

	var turn chat.Turn
	err := c.doJSON(ctx, http.MethodPost, "/api/chat/sessions/"+url.PathEscape(sessionID)+"/messages", payload, &turn)
	return turn, err
}

// DeleteSession removes a session and its turns.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/chat/sessions/"+url.PathEscape(sessionID), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(req.Context(), 30*time.Second)
	defer cancel()

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeStatusError(resp)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		message = envelope.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}
