package links

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
	"github.com/zhouzirui/z-lingo/backend/internal/model/chat"
)

// Outcome records what the validator did with one candidate.
type Outcome string

const (
	Accepted  Outcome = "accepted"
	Rewritten Outcome = "rewritten"
	Dropped   Outcome = "dropped"
)

// Stats counts outcomes of one Validate call.
type Stats struct {
	Accepted  int
	Rewritten int
	Dropped   int
}

func (s *Stats) add(o Outcome) {
	switch o {
	case Accepted:
		s.Accepted++
	case Rewritten:
		s.Rewritten++
	default:
		s.Dropped++
	}
}

// Lesson page modes accepted in /lessons/{id}/{mode}.
const (
	modePractice = "practice"
	modeTest     = "test"
)

var lessonModes = map[string]bool{
	string(catalog.LessonVocabulary):   true,
	string(catalog.LessonReading):      true,
	string(catalog.LessonConversation): true,
	modePractice:                       true,
	modeTest:                           true,
}

// Validator checks candidate links against the live catalog and rewrites or drops
// entries so that every returned link resolves to a correctly typed resource.
type Validator struct {
	catalog catalog.Store
	logger  zerolog.Logger
}

// NewValidator creates a validator backed by the given catalog.
func NewValidator(store catalog.Store, logger zerolog.Logger) *Validator {
	return &Validator{
		catalog: store,
		logger:  logger.With().Str("component", "links").Logger(),
	}
}

// Validate returns the surviving links in input order. Lookups run sequentially.
func (v *Validator) Validate(ctx context.Context, candidates []Candidate) ([]chat.Link, Stats) {
	var stats Stats
	out := make([]chat.Link, 0, len(candidates))
	for _, candidate := range candidates {
		link, outcome := v.resolve(ctx, candidate)
		stats.add(outcome)
		if outcome == Dropped {
			continue
		}
		out = append(out, link)
	}
	return out, stats
}

func (v *Validator) resolve(ctx context.Context, candidate Candidate) (chat.Link, Outcome) {
	label, ok := nonEmptyString(candidate.Label)
	if !ok {
		return chat.Link{}, Dropped
	}
	url, ok := nonEmptyString(candidate.URL)
	if !ok {
		return chat.Link{}, Dropped
	}
	if !strings.HasPrefix(url, "/") || strings.HasPrefix(url, "//") {
		return chat.Link{}, Dropped
	}

	path := url
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}

	// Catalog paths are classified by their first segment, ignoring case and
	// trailing slashes. Anything under a catalog prefix that does not parse is dropped.
	segments := strings.Split(strings.Trim(path, "/"), "/")

	var (
		resolved string
		err      error
	)
	switch strings.ToLower(segments[0]) {
	case "lessons":
		if len(segments) != 3 || !lessonModes[strings.ToLower(segments[2])] {
			return chat.Link{}, Dropped
		}
		resolved, err = v.resolveLesson(ctx, segments[1], strings.ToLower(segments[2]), label)
	case "units":
		if len(segments) != 2 {
			return chat.Link{}, Dropped
		}
		resolved, err = v.resolveEntity(ctx, segments[1], label, "units", v.unitByID, v.unitByTitle)
	case "books":
		if len(segments) != 2 {
			return chat.Link{}, Dropped
		}
		resolved, err = v.resolveEntity(ctx, segments[1], label, "books", v.bookByID, v.bookByTitle)
	default:
		return chat.Link{Label: label, URL: url}, Accepted
	}

	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) && !errors.Is(err, errModeNotAllowed) {
			v.logger.Warn().Err(err).Str("url", url).Msg("catalog lookup failed, dropping link")
		}
		return chat.Link{}, Dropped
	}
	if resolved == path {
		return chat.Link{Label: label, URL: url}, Accepted
	}
	return chat.Link{Label: label, URL: resolved}, Rewritten
}

var errModeNotAllowed = errors.New("mode not allowed for lesson type")

func (v *Validator) resolveLesson(ctx context.Context, rawID, mode, label string) (string, error) {
	if id, ok := parseID(rawID); ok {
		lesson, err := v.catalog.LessonByID(ctx, id)
		if err == nil {
			return lessonURL(lesson, mode)
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return "", fmt.Errorf("lesson %d: %w", id, err)
		}
	}

	lesson, err := v.catalog.FindLessonByTitle(ctx, label)
	if err != nil {
		return "", err
	}
	return lessonURL(lesson, mode)
}

// lessonURL builds the canonical path for a lesson. practice and test only exist
// for vocabulary lessons; every other mode follows the lesson's declared type.
func lessonURL(lesson catalog.Lesson, mode string) (string, error) {
	lessonType, ok := catalog.ParseLessonType(string(lesson.Type))
	if !ok {
		return "", fmt.Errorf("lesson %d has unknown type %q", lesson.ID, lesson.Type)
	}
	if mode == modePractice || mode == modeTest {
		if lessonType != catalog.LessonVocabulary {
			return "", errModeNotAllowed
		}
		return fmt.Sprintf("/lessons/%d/%s", lesson.ID, mode), nil
	}
	return fmt.Sprintf("/lessons/%d/%s", lesson.ID, lessonType), nil
}

type idLookup func(ctx context.Context, id int64) (int64, error)
type titleLookup func(ctx context.Context, title string) (int64, error)

func (v *Validator) resolveEntity(ctx context.Context, rawID, label, segment string, byID idLookup, byTitle titleLookup) (string, error) {
	if id, ok := parseID(rawID); ok {
		found, err := byID(ctx, id)
		if err == nil {
			return fmt.Sprintf("/%s/%d", segment, found), nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return "", fmt.Errorf("%s %d: %w", segment, id, err)
		}
	}

	found, err := byTitle(ctx, label)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/%s/%d", segment, found), nil
}

func (v *Validator) unitByID(ctx context.Context, id int64) (int64, error) {
	unit, err := v.catalog.UnitByID(ctx, id)
	return unit.ID, err
}

func (v *Validator) unitByTitle(ctx context.Context, title string) (int64, error) {
	unit, err := v.catalog.FindUnitByTitle(ctx, title)
	return unit.ID, err
}

func (v *Validator) bookByID(ctx context.Context, id int64) (int64, error) {
	book, err := v.catalog.BookByID(ctx, id)
	return book.ID, err
}

func (v *Validator) bookByTitle(ctx context.Context, title string) (int64, error) {
	book, err := v.catalog.FindBookByTitle(ctx, title)
	return book.ID, err
}

func nonEmptyString(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
