package links

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

func newTestValidator() *Validator {
	store := catalog.NewMemoryStore(catalog.Outline{
		Books: []catalog.Book{{ID: 1, Title: "Everyday English"}},
		Units: []catalog.Unit{{ID: 5, BookID: 1, Title: "Unit 1"}},
		Lessons: []catalog.Lesson{
			{ID: 10, UnitID: 5, Title: "Colours", Type: catalog.LessonVocabulary},
			{ID: 12, UnitID: 5, Title: "A Letter Home", Type: catalog.LessonReading},
			{ID: 14, UnitID: 5, Title: "At the Market", Type: catalog.LessonConversation},
		},
	})
	return NewValidator(store, zerolog.Nop())
}

func validateOne(t *testing.T, v *Validator, label, url string) ([]chat.Link, Stats) {
	t.Helper()
	return v.Validate(context.Background(), []Candidate{NewCandidate(label, url)})
}

func TestValidateRewritesLessonModeToActualType(t *testing.T) {
	v := newTestValidator()

	cases := []struct {
		url  string
		want string
	}{
		{"/lessons/12/vocabulary", "/lessons/12/reading"},
		{"/lessons/12/conversation", "/lessons/12/reading"},
		{"/lessons/14/reading", "/lessons/14/conversation"},
		{"/lessons/10/reading", "/lessons/10/vocabulary"},
	}
	for _, tc := range cases {
		got, stats := validateOne(t, v, "Lesson", tc.url)
		require.Len(t, got, 1, tc.url)
		assert.Equal(t, tc.want, got[0].URL, tc.url)
		assert.Equal(t, 1, stats.Rewritten, tc.url)
	}
}

func TestValidateAcceptsMatchingLessonMode(t *testing.T) {
	v := newTestValidator()

	for _, url := range []string{"/lessons/10/vocabulary", "/lessons/10/practice", "/lessons/10/test", "/lessons/12/reading"} {
		got, stats := validateOne(t, v, "Lesson", url)
		require.Len(t, got, 1, url)
		assert.Equal(t, url, got[0].URL)
		assert.Equal(t, 1, stats.Accepted, url)
	}
}

func TestValidateDropsPracticeForNonVocabularyLessons(t *testing.T) {
	v := newTestValidator()

	for _, url := range []string{"/lessons/12/practice", "/lessons/14/test"} {
		got, stats := validateOne(t, v, "Practice here", url)
		assert.Empty(t, got, url)
		assert.Equal(t, 1, stats.Dropped, url)
	}
}

func TestValidateResolvesUnknownIDsByLabel(t *testing.T) {
	v := newTestValidator()

	got, _ := validateOne(t, v, "Unit 1", "/units/999")
	require.Equal(t, []chat.Link{{Label: "Unit 1", URL: "/units/5"}}, got)

	got, _ = validateOne(t, v, "everyday english", "/books/42")
	require.Equal(t, []chat.Link{{Label: "everyday english", URL: "/books/1"}}, got)

	got, _ = validateOne(t, v, "colours", "/lessons/77/practice")
	require.Equal(t, []chat.Link{{Label: "colours", URL: "/lessons/10/practice"}}, got)

	got, _ = validateOne(t, v, "A Letter Home", "/lessons/77/vocabulary")
	require.Equal(t, []chat.Link{{Label: "A Letter Home", URL: "/lessons/12/reading"}}, got)
}

func TestValidateDropsUnresolvableLinks(t *testing.T) {
	v := newTestValidator()

	cases := []struct{ label, url string }{
		{"Unknown", "/units/999"},
		{"Unknown", "/books/abc"},
		{"Unknown", "/lessons/500/reading"},
		{"A Letter Home", "/lessons/500/practice"},
	}
	for _, tc := range cases {
		got, _ := validateOne(t, v, tc.label, tc.url)
		assert.Empty(t, got, tc.url)
	}
}

func TestValidateRejectsMalformedCandidates(t *testing.T) {
	v := newTestValidator()

	candidates := []Candidate{
		{Label: "", URL: "/units/5"},
		{Label: "   ", URL: "/units/5"},
		{Label: 42.0, URL: "/units/5"},
		{Label: "Unit", URL: nil},
		{Label: "External", URL: "https://example.com"},
		{Label: "Sneaky", URL: "//example.com/units/5"},
		{},
	}
	got, stats := v.Validate(context.Background(), candidates)
	assert.Empty(t, got)
	assert.Equal(t, len(candidates), stats.Dropped)
}

func TestValidatePassesGenericInternalPaths(t *testing.T) {
	v := newTestValidator()

	got, stats := validateOne(t, v, " Dashboard ", " /dashboard ")
	require.Equal(t, []chat.Link{{Label: "Dashboard", URL: "/dashboard"}}, got)
	assert.Equal(t, 1, stats.Accepted)
}

func TestValidateNormalizesCatalogPaths(t *testing.T) {
	v := newTestValidator()

	cases := []struct {
		label string
		url   string
		want  []chat.Link
	}{
		{label: "X", url: "/lessons/12/practice/"},
		{label: "X", url: "/lessons/12/Practice"},
		{label: "X", url: "/LESSONS/12/TEST"},
		{label: "X", url: "/lessons/999/test/"},
		{label: "X", url: "/units/999/"},
		{label: "X", url: "/books/999/"},
		{label: "X", url: "/lessons/12"},
		{label: "X", url: "/lessons/12/reading/extra"},
		{label: "X", url: "/lessons/12/quiz"},
		{label: "X", url: "/units/5/lessons"},
		{label: "X", url: "/units"},
		{label: "X", url: "/units/5/", want: []chat.Link{{Label: "X", URL: "/units/5"}}},
		{label: "X", url: "/Books/1", want: []chat.Link{{Label: "X", URL: "/books/1"}}},
		{label: "X", url: "/lessons/12/Reading/", want: []chat.Link{{Label: "X", URL: "/lessons/12/reading"}}},
		{label: "X", url: "/lessons/10/Practice", want: []chat.Link{{Label: "X", URL: "/lessons/10/practice"}}},
		{label: "Unit 1", url: "/units/999/", want: []chat.Link{{Label: "Unit 1", URL: "/units/5"}}},
	}

	for _, tc := range cases {
		got, _ := validateOne(t, v, tc.label, tc.url)
		if tc.want == nil {
			assert.Empty(t, got, tc.url)
			continue
		}
		assert.Equal(t, tc.want, got, tc.url)
	}
}

func TestValidatePreservesOrder(t *testing.T) {
	v := newTestValidator()

	got, stats := v.Validate(context.Background(), []Candidate{
		NewCandidate("Book", "/books/1"),
		NewCandidate("Gone", "/units/404"),
		NewCandidate("Unit 1", "/units/5"),
		NewCandidate("Vocab", "/lessons/10/vocabulary"),
	})
	require.Equal(t, []chat.Link{
		{Label: "Book", URL: "/books/1"},
		{Label: "Unit 1", URL: "/units/5"},
		{Label: "Vocab", URL: "/lessons/10/vocabulary"},
	}, got)
	assert.Equal(t, Stats{Accepted: 3, Dropped: 1}, stats)
}

func TestValidateIsIdempotent(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	first, _ := v.Validate(ctx, []Candidate{
		NewCandidate("Unit 1", "/units/999"),
		NewCandidate("Lesson", "/lessons/12/vocabulary"),
		NewCandidate("Colours", "/lessons/10/test"),
		NewCandidate("Home", "/"),
	})
	second, stats := v.Validate(ctx, CandidatesFromLinks(first))
	assert.Equal(t, first, second)
	assert.Zero(t, stats.Rewritten)
	assert.Zero(t, stats.Dropped)
}

func TestCandidatesFromJSON(t *testing.T) {
	got := CandidatesFromJSON([]any{
		map[string]any{"label": "Unit 1", "url": "/units/5"},
		"not an object",
	})
	require.Len(t, got, 2)
	assert.Equal(t, "Unit 1", got[0].Label)
	assert.Nil(t, got[1].URL)
}

type failingStore struct {
	catalog.Store
}

func (failingStore) UnitByID(context.Context, int64) (catalog.Unit, error) {
	return catalog.Unit{}, errors.New("connection refused")
}

func TestValidateDropsOnCatalogFailure(t *testing.T) {
	v := NewValidator(failingStore{Store: catalog.NewMemoryStore(catalog.Seed())}, zerolog.Nop())

	got, stats := validateOne(t, v, "Greetings", "/units/1")
	assert.Empty(t, got)
	assert.Equal(t, 1, stats.Dropped)
}
