package catalog

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by Store lookups that match nothing.
var ErrNotFound = errors.New("catalog entry not found")

// LessonType is the declared kind of a lesson. It doubles as the lesson's page mode.
type LessonType string

const (
	LessonVocabulary   LessonType = "vocabulary"
	LessonReading      LessonType = "reading"
	LessonConversation LessonType = "conversation"
)

// ParseLessonType normalizes a stored type value.
func ParseLessonType(raw string) (LessonType, bool) {
	switch LessonType(strings.ToLower(strings.TrimSpace(raw))) {
	case LessonVocabulary:
		return LessonVocabulary, true
	case LessonReading:
		return LessonReading, true
	case LessonConversation:
		return LessonConversation, true
	default:
		return "", false
	}
}

// Book is the top level of the content hierarchy.
type Book struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Unit belongs to a book.
type Unit struct {
	ID     int64  `json:"id"`
	BookID int64  `json:"bookId"`
	Title  string `json:"title"`
}

// Lesson belongs to a unit.
type Lesson struct {
	ID     int64      `json:"id"`
	UnitID int64      `json:"unitId"`
	Title  string     `json:"title"`
	Type   LessonType `json:"type"`
}

// Outline is the full catalog snapshot used to ground prompts.
type Outline struct {
	Books   []Book   `json:"books"`
	Units   []Unit   `json:"units"`
	Lessons []Lesson `json:"lessons"`
}
