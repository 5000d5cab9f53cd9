package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverWellFormedEnvelope(t *testing.T) {
	env := Recover(`{"message": "Hi there", "navigationLinks": [{"label": "Unit 1", "url": "/units/5"}]}`)

	assert.Equal(t, PathJSON, env.Path)
	assert.True(t, env.HasMessage)
	assert.Equal(t, "Hi there", env.Message)
	require.Len(t, env.Candidates, 1)
	assert.Equal(t, "/units/5", env.Candidates[0].URL)
}

func TestRecoverStripsFenceAndSurroundingText(t *testing.T) {
	env := Recover("```json\n{\"message\": \"fenced\"}\n```")
	assert.Equal(t, PathJSON, env.Path)
	assert.Equal(t, "fenced", env.Message)

	env = Recover(`Sure thing! {"message": "inner"} hope that helps`)
	assert.Equal(t, "inner", env.Message)
}

func TestRecoverRepairsMissingClosingBraces(t *testing.T) {
	env := Recover(`{"message": "Hi", "meta": {"a": {"b": 1}`)

	assert.Equal(t, PathRepaired, env.Path)
	assert.Equal(t, "Hi", env.Message)
}

func TestRecoverDoesNotRepairArrays(t *testing.T) {
	raw := `{"message": "Hi", "navigationLinks": [{"label": "Book", "url": "/books/1"}`
	env := Recover(raw)

	assert.Equal(t, PathFallback, env.Path)
	assert.False(t, env.HasMessage)
	assert.Empty(t, env.Candidates)
}

func TestRecoverFallsBackToMarkdownLinks(t *testing.T) {
	env := Recover("Sure! [Practice here](/lessons/12/practice) or [Unit](/units/3).")

	assert.Equal(t, PathFallback, env.Path)
	assert.False(t, env.HasMessage)
	require.Len(t, env.Candidates, 2)
	assert.Equal(t, "Practice here", env.Candidates[0].Label)
	assert.Equal(t, "/lessons/12/practice", env.Candidates[0].URL)
}

func TestRecoverIgnoresNonStringMessage(t *testing.T) {
	env := Recover(`{"message": 42, "navigationLinks": "nope"}`)

	assert.Equal(t, PathJSON, env.Path)
	assert.False(t, env.HasMessage)
	assert.Empty(t, env.Candidates)
}

func TestRecoverEmptyInput(t *testing.T) {
	env := Recover("   ")
	assert.Equal(t, PathFallback, env.Path)
	assert.Empty(t, env.Candidates)
}
