package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
)

var _ catalog.Store = (*Store)(nil)

// SeedCatalog loads outline when the catalog tables are empty.
func (s *Store) SeedCatalog(ctx context.Context, outline catalog.Outline) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&count); err != nil {
		return fmt.Errorf("count books: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, book := range outline.Books {
		if _, err := tx.ExecContext(ctx, `INSERT INTO books (id, title) VALUES (?, ?)`, book.ID, book.Title); err != nil {
			return fmt.Errorf("insert book %d: %w", book.ID, err)
		}
	}
	for _, unit := range outline.Units {
		if _, err := tx.ExecContext(ctx, `INSERT INTO units (id, book_id, title) VALUES (?, ?, ?)`, unit.ID, unit.BookID, unit.Title); err != nil {
			return fmt.Errorf("insert unit %d: %w", unit.ID, err)
		}
	}
	for _, lesson := range outline.Lessons {
		if _, err := tx.ExecContext(ctx, `INSERT INTO lessons (id, unit_id, title, type) VALUES (?, ?, ?, ?)`,
			lesson.ID, lesson.UnitID, lesson.Title, string(lesson.Type)); err != nil {
			return fmt.Errorf("insert lesson %d: %w", lesson.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) BookByID(ctx context.Context, id int64) (catalog.Book, error) {
	var book catalog.Book
	err := s.db.QueryRowContext(ctx, `SELECT id, title FROM books WHERE id = ?`, id).Scan(&book.ID, &book.Title)
	if err != nil {
		return catalog.Book{}, notFound(err, "book")
	}
	return book, nil
}

func (s *Store) UnitByID(ctx context.Context, id int64) (catalog.Unit, error) {
	var unit catalog.Unit
	err := s.db.QueryRowContext(ctx, `SELECT id, book_id, title FROM units WHERE id = ?`, id).Scan(&unit.ID, &unit.BookID, &unit.Title)
	if err != nil {
		return catalog.Unit{}, notFound(err, "unit")
	}
	return unit, nil
}

func (s *Store) LessonByID(ctx context.Context, id int64) (catalog.Lesson, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, unit_id, title, type FROM lessons WHERE id = ?`, id)
	lesson, err := scanLesson(row)
	if err != nil {
		return catalog.Lesson{}, notFound(err, "lesson")
	}
	return lesson, nil
}

// Title lookups compare in Go so matching follows catalog.TitleMatches exactly.

func (s *Store) FindBookByTitle(ctx context.Context, title string) (catalog.Book, error) {
	outline, err := s.Outline(ctx)
	if err != nil {
		return catalog.Book{}, err
	}
	for _, book := range outline.Books {
		if catalog.TitleMatches(book.Title, title) {
			return book, nil
		}
	}
	return catalog.Book{}, catalog.ErrNotFound
}

func (s *Store) FindUnitByTitle(ctx context.Context, title string) (catalog.Unit, error) {
	outline, err := s.Outline(ctx)
	if err != nil {
		return catalog.Unit{}, err
	}
	for _, unit := range outline.Units {
		if catalog.TitleMatches(unit.Title, title) {
			return unit, nil
		}
	}
	return catalog.Unit{}, catalog.ErrNotFound
}

func (s *Store) FindLessonByTitle(ctx context.Context, title string) (catalog.Lesson, error) {
	outline, err := s.Outline(ctx)
	if err != nil {
		return catalog.Lesson{}, err
	}
	for _, lesson := range outline.Lessons {
		if catalog.TitleMatches(lesson.Title, title) {
			return lesson, nil
		}
	}
	return catalog.Lesson{}, catalog.ErrNotFound
}

// Outline returns every book, unit and lesson ordered by id.
func (s *Store) Outline(ctx context.Context) (catalog.Outline, error) {
	outline := catalog.Outline{
		Books:   make([]catalog.Book, 0),
		Units:   make([]catalog.Unit, 0),
		Lessons: make([]catalog.Lesson, 0),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM books ORDER BY id`)
	if err != nil {
		return catalog.Outline{}, fmt.Errorf("query books: %w", err)
	}
	for rows.Next() {
		var book catalog.Book
		if err := rows.Scan(&book.ID, &book.Title); err != nil {
			rows.Close()
			return catalog.Outline{}, fmt.Errorf("scan book row: %w", err)
		}
		outline.Books = append(outline.Books, book)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT id, book_id, title FROM units ORDER BY id`)
	if err != nil {
		return catalog.Outline{}, fmt.Errorf("query units: %w", err)
	}
	for rows.Next() {
		var unit catalog.Unit
		if err := rows.Scan(&unit.ID, &unit.BookID, &unit.Title); err != nil {
			rows.Close()
			return catalog.Outline{}, fmt.Errorf("scan unit row: %w", err)
		}
		outline.Units = append(outline.Units, unit)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT id, unit_id, title, type FROM lessons ORDER BY id`)
	if err != nil {
		return catalog.Outline{}, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return catalog.Outline{}, fmt.Errorf("scan lesson row: %w", err)
		}
		outline.Lessons = append(outline.Lessons, lesson)
	}
	return outline, rows.Err()
}

func scanLesson(row rowScanner) (catalog.Lesson, error) {
	var (
		lesson  catalog.Lesson
		rawType string
	)
	if err := row.Scan(&lesson.ID, &lesson.UnitID, &lesson.Title, &rawType); err != nil {
		return catalog.Lesson{}, err
	}
	lessonType, ok := catalog.ParseLessonType(rawType)
	if !ok {
		return catalog.Lesson{}, fmt.Errorf("lesson %d has unknown type %q", lesson.ID, rawType)
	}
	lesson.Type = lessonType
	return lesson, nil
}

func notFound(err error, kind string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ErrNotFound
	}
	return fmt.Errorf("query %s: %w", kind, err)
}
