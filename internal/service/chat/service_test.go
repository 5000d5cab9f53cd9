package chat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-lingo/backend/internal/model/chat"
	chat "github.com/zhouzirui/z-lingo/backend/internal/service/chat"
)

func TestServiceSessionLifecycle(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1", "", "  How do I   say hello? ")
	require.NoError(t, err)
	assert.Equal(t, "How do I say hello?", session.Title)

	_, err = svc.SaveTurn(ctx, "u1", session.ID, model.RoleUser, "How do I say hello?", nil)
	require.NoError(t, err)
	links := []model.Link{{Label: "Saying Hello", URL: "/lessons/1/vocabulary"}}
	_, err = svc.SaveTurn(ctx, "u1", session.ID, model.RoleAssistant, "Try this lesson.", links)
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, "u1", session.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, model.RoleUser, got.Turns[0].Role)
	assert.Equal(t, links, got.Turns[1].Links)

	list, err := svc.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Turns)

	require.NoError(t, svc.DeleteSession(ctx, "u1", session.ID))
	_, err = svc.GetSession(ctx, "u1", session.ID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestServiceIsOwnerScoped(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1", "Mine", "")
	require.NoError(t, err)

	_, err = svc.GetSession(ctx, "u2", session.ID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
	_, err = svc.SaveTurn(ctx, "u2", session.ID, model.RoleUser, "hi", nil)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(ctx, "u2", session.ID), chat.ErrSessionNotFound)

	list, err := svc.ListSessions(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestServiceTitleFromFirstUserTurn(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1", "", "")
	require.NoError(t, err)
	assert.Empty(t, session.Title)

	_, err = svc.SaveTurn(ctx, "u1", session.ID, model.RoleUser, "Recommend a reading lesson", nil)
	require.NoError(t, err)
	_, err = svc.SaveTurn(ctx, "u1", session.ID, model.RoleUser, "Something else", nil)
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, "u1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Recommend a reading lesson", got.Title)
}

func TestServiceRejectsInvalidTurns(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1", "t", "")
	require.NoError(t, err)

	_, err = svc.SaveTurn(ctx, "u1", session.ID, model.Role("system"), "x", nil)
	assert.ErrorIs(t, err, chat.ErrInvalidRole)
	_, err = svc.SaveTurn(ctx, "u1", session.ID, model.RoleUser, "   ", nil)
	assert.ErrorIs(t, err, chat.ErrEmptyContent)
	_, err = svc.SaveTurn(ctx, "u1", "missing", model.RoleUser, "hi", nil)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
	_, err = svc.CreateSession(ctx, "", "t", "")
	assert.ErrorIs(t, err, chat.ErrOwnerRequired)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "", chat.DeriveTitle("  \n "))
	assert.Equal(t, "a b", chat.DeriveTitle("a\n\tb"))

	long := strings.Repeat("词", 70)
	title := chat.DeriveTitle(long)
	assert.Equal(t, strings.Repeat("词", 60)+"…", title)
}

func TestMemoryStoreListsMostRecentFirst(t *testing.T) {
	store := chat.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveSession(ctx, model.Session{ID: "a", OwnerID: "u1", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, store.SaveSession(ctx, model.Session{ID: "b", OwnerID: "u1", CreatedAt: base, UpdatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.AppendTurn(ctx, model.Turn{ID: "t1", SessionID: "a", Role: model.RoleUser, Content: "hi", CreatedAt: base.Add(time.Hour)}))

	list, err := store.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}
