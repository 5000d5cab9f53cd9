package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

func collect(t *testing.T, c *Client) ([]chat.StreamEvent, error) {
	t.Helper()
	var events []chat.StreamEvent
	err := c.Stream(context.Background(), ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}}, func(e chat.StreamEvent) error {
		events = append(events, e)
		return nil
	})
	return events, err
}

func TestClientStreamDecodesEvents(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/stream", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"content\":\"{\\\"mess\"}\n\n")
		io.WriteString(w, ": heartbeat\n\n")
		io.WriteString(w, "data: {\"message\":\"Hi\"}\n\n")
		io.WriteString(w, "data: {\"navigationLinks\":[{\"label\":\"Unit 1\",\"url\":\"/units/5\"}]}\n\n")
		io.WriteString(w, "data: {\"done\":true}\n\n")
		io.WriteString(w, "data: {\"content\":\"ignored\"}\n\n")
	}))
	defer srv.Close()

	events, err := collect(t, New(srv.URL, "tok"))
	require.NoError(t, err)
	assert.Equal(t, "m", got.Model)

	require.Len(t, events, 4)
	assert.Equal(t, chat.DeltaEvent(`{"mess`), events[0])
	assert.Equal(t, chat.MessageEvent("Hi"), events[1])
	assert.Equal(t, chat.LinksEvent([]chat.Link{{Label: "Unit 1", URL: "/units/5"}}), events[2])
	assert.Equal(t, chat.DoneEvent(), events[3])
}

func TestClientStreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":"model provider returned status 429"}`)
	}))
	defer srv.Close()

	_, err := collect(t, New(srv.URL, "tok"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "model provider returned status 429", statusErr.Message)
}

func TestClientStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"content\":\"partial\"}\n\n")
	}))
	defer srv.Close()

	events, err := collect(t, New(srv.URL, ""))
	assert.ErrorIs(t, err, ErrStreamTruncated)
	assert.Len(t, events, 1)
}

func TestClientStreamStopsOnHandlerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("data: {\"content\":\"x\"}\n\n", 3))
		io.WriteString(w, "data: {\"done\":true}\n\n")
	}))
	defer srv.Close()

	stop := errors.New("stop")
	calls := 0
	err := New(srv.URL, "").Stream(context.Background(), ChatRequest{}, func(chat.StreamEvent) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestClientSessionAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "hello there", body["firstMessage"])
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(chat.Session{ID: "s1", Title: "hello there"})
		case http.MethodGet:
			json.NewEncoder(w).Encode([]chat.Session{{ID: "s1"}})
		}
	})
	mux.HandleFunc("/api/chat/sessions/s1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Role    chat.Role   `json:"role"`
			Content string      `json:"content"`
			Links   []chat.Link `json:"links"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(chat.Turn{ID: "t1", SessionID: "s1", Role: body.Role, Content: body.Content, Links: body.Links})
	})
	mux.HandleFunc("/api/chat/sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(chat.Session{ID: "s1", Turns: []chat.Turn{{ID: "t1"}}})
	})
	mux.HandleFunc("/api/chat/sessions/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"session not found"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL+"/", "tok")

	session, err := c.CreateSession(ctx, "", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	turn, err := c.SaveTurn(ctx, "s1", chat.RoleAssistant, "Hi", []chat.Link{{Label: "Unit 1", URL: "/units/5"}})
	require.NoError(t, err)
	assert.Equal(t, chat.RoleAssistant, turn.Role)
	assert.Len(t, turn.Links, 1)

	full, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, full.Turns, 1)

	require.NoError(t, c.DeleteSession(ctx, "s1"))

	_, err = c.GetSession(ctx, "missing")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "session not found", statusErr.Message)
}
