package catalog

import (
	"context"
	"strings"
)

// Store exposes read-only catalog lookups. Title lookups are case-insensitive exact matches.
type Store interface {
	BookByID(ctx context.Context, id int64) (Book, error)
	UnitByID(ctx context.Context, id int64) (Unit, error)
	LessonByID(ctx context.Context, id int64) (Lesson, error)
	FindBookByTitle(ctx context.Context, title string) (Book, error)
	FindUnitByTitle(ctx context.Context, title string) (Unit, error)
	FindLessonByTitle(ctx context.Context, title string) (Lesson, error)
	Outline(ctx context.Context) (Outline, error)
}

// MemoryStore implements Store with in-memory slices, suitable for development and tests.
type MemoryStore struct {
	outline Outline
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied outline.
func NewMemoryStore(outline Outline) *MemoryStore {
	return &MemoryStore{outline: Outline{
		Books:   append([]Book(nil), outline.Books...),
		Units:   append([]Unit(nil), outline.Units...),
		Lessons: append([]Lesson(nil), outline.Lessons...),
	}}
}

func (s *MemoryStore) BookByID(_ context.Context, id int64) (Book, error) {
	for _, item := range s.outline.Books {
		if item.ID == id {
			return item, nil
		}
	}
	return Book{}, ErrNotFound
}

func (s *MemoryStore) UnitByID(_ context.Context, id int64) (Unit, error) {
	for _, item := range s.outline.Units {
		if item.ID == id {
			return item, nil
		}
	}
	return Unit{}, ErrNotFound
}

func (s *MemoryStore) LessonByID(_ context.Context, id int64) (Lesson, error) {
	for _, item := range s.outline.Lessons {
		if item.ID == id {
			return item, nil
		}
	}
	return Lesson{}, ErrNotFound
}

func (s *MemoryStore) FindBookByTitle(_ context.Context, title string) (Book, error) {
	for _, item := range s.outline.Books {
		if TitleMatches(item.Title, title) {
			return item, nil
		}
	}
	return Book{}, ErrNotFound
}

func (s *MemoryStore) FindUnitByTitle(_ context.Context, title string) (Unit, error) {
	for _, item := range s.outline.Units {
		if TitleMatches(item.Title, title) {
			return item, nil
		}
	}
	return Unit{}, ErrNotFound
}

func (s *MemoryStore) FindLessonByTitle(_ context.Context, title string) (Lesson, error) {
	for _, item := range s.outline.Lessons {
		if TitleMatches(item.Title, title) {
			return item, nil
		}
	}
	return Lesson{}, ErrNotFound
}

// Outline returns a copy of the whole catalog.
func (s *MemoryStore) Outline(_ context.Context) (Outline, error) {
	return NewMemoryStore(s.outline).outline, nil
}

// TitleMatches compares a stored title against a user or model supplied label.
func TitleMatches(stored, label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(stored), label)
}
