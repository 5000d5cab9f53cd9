// Package supabase reads the course catalog from Supabase (PostgREST).
package supabase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/supabase-community/supabase-go"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
)

// Config holds Supabase connection configuration
type Config struct {
	URL    string
	APIKey string
}

// Catalog implements catalog.Store over the books, units and lessons tables.
type Catalog struct {
	client *supabase.Client
}

var _ catalog.Store = (*Catalog)(nil)

type bookRow struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type unitRow struct {
	ID     int64  `json:"id"`
	BookID int64  `json:"book_id"`
	Title  string `json:"title"`
}

type lessonRow struct {
	ID     int64  `json:"id"`
	UnitID int64  `json:"unit_id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
}

// New creates a Supabase backed catalog.
func New(cfg Config) (*Catalog, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Catalog{client: client}, nil
}

func (c *Catalog) BookByID(ctx context.Context, id int64) (catalog.Book, error) {
	var rows []bookRow
	if err := c.selectByID("books", id, &rows); err != nil {
		return catalog.Book{}, err
	}
	if len(rows) == 0 {
		return catalog.Book{}, catalog.ErrNotFound
	}
	return rows[0].book(), nil
}

func (c *Catalog) UnitByID(ctx context.Context, id int64) (catalog.Unit, error) {
	var rows []unitRow
	if err := c.selectByID("units", id, &rows); err != nil {
		return catalog.Unit{}, err
	}
	if len(rows) == 0 {
		return catalog.Unit{}, catalog.ErrNotFound
	}
	return rows[0].unit(), nil
}

func (c *Catalog) LessonByID(ctx context.Context, id int64) (catalog.Lesson, error) {
	var rows []lessonRow
	if err := c.selectByID("lessons", id, &rows); err != nil {
		return catalog.Lesson{}, err
	}
	if len(rows) == 0 {
		return catalog.Lesson{}, catalog.ErrNotFound
	}
	return rows[0].lesson()
}

func (c *Catalog) FindBookByTitle(ctx context.Context, title string) (catalog.Book, error) {
	var rows []bookRow
	if err := c.selectByTitle("books", title, &rows); err != nil {
		return catalog.Book{}, err
	}
	for _, row := range rows {
		if catalog.TitleMatches(row.Title, title) {
			return row.book(), nil
		}
	}
	return catalog.Book{}, catalog.ErrNotFound
}

func (c *Catalog) FindUnitByTitle(ctx context.Context, title string) (catalog.Unit, error) {
	var rows []unitRow
	if err := c.selectByTitle("units", title, &rows); err != nil {
		return catalog.Unit{}, err
	}
	for _, row := range rows {
		if catalog.TitleMatches(row.Title, title) {
			return row.unit(), nil
		}
	}
	return catalog.Unit{}, catalog.ErrNotFound
}

func (c *Catalog) FindLessonByTitle(ctx context.Context, title string) (catalog.Lesson, error) {
	var rows []lessonRow
	if err := c.selectByTitle("lessons", title, &rows); err != nil {
		return catalog.Lesson{}, err
	}
	for _, row := range rows {
		if catalog.TitleMatches(row.Title, title) {
			return row.lesson()
		}
	}
	return catalog.Lesson{}, catalog.ErrNotFound
}

// Outline loads all three tables, ordered by id.
func (c *Catalog) Outline(ctx context.Context) (catalog.Outline, error) {
	var (
		books   []bookRow
		units   []unitRow
		lessons []lessonRow
	)
	if err := c.selectAll("books", &books); err != nil {
		return catalog.Outline{}, err
	}
	if err := c.selectAll("units", &units); err != nil {
		return catalog.Outline{}, err
	}
	if err := c.selectAll("lessons", &lessons); err != nil {
		return catalog.Outline{}, err
	}

	outline := catalog.Outline{
		Books:   make([]catalog.Book, 0, len(books)),
		Units:   make([]catalog.Unit, 0, len(units)),
		Lessons: make([]catalog.Lesson, 0, len(lessons)),
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].ID < lessons[j].ID })

	for _, row := range books {
		outline.Books = append(outline.Books, row.book())
	}
	for _, row := range units {
		outline.Units = append(outline.Units, row.unit())
	}
	for _, row := range lessons {
		lesson, err := row.lesson()
		if err != nil {
			return catalog.Outline{}, err
		}
		outline.Lessons = append(outline.Lessons, lesson)
	}
	return outline, nil
}

func (c *Catalog) selectByID(table string, id int64, dest any) error {
	_, err := c.client.From(table).
		Select("*", "", false).
		Eq("id", strconv.FormatInt(id, 10)).
		ExecuteTo(dest)
	if err != nil {
		return fmt.Errorf("failed to get %s by id: %w", table, err)
	}
	return nil
}

// selectByTitle narrows rows with a case-insensitive match; callers still apply
// catalog.TitleMatches. Labels with pattern characters fall back to a full scan.
func (c *Catalog) selectByTitle(table, title string, dest any) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	if strings.ContainsAny(title, `%_*\,()`) {
		return c.selectAll(table, dest)
	}

	_, err := c.client.From(table).
		Select("*", "", false).
		Ilike("title", title).
		ExecuteTo(dest)
	if err != nil {
		return fmt.Errorf("failed to get %s by title: %w", table, err)
	}
	return nil
}

func (c *Catalog) selectAll(table string, dest any) error {
	_, err := c.client.From(table).
		Select("*", "", false).
		ExecuteTo(dest)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", table, err)
	}
	return nil
}

func (r bookRow) book() catalog.Book {
	return catalog.Book{ID: r.ID, Title: r.Title}
}

func (r unitRow) unit() catalog.Unit {
	return catalog.Unit{ID: r.ID, BookID: r.BookID, Title: r.Title}
}

func (r lessonRow) lesson() (catalog.Lesson, error) {
	lessonType, ok := catalog.ParseLessonType(r.Type)
	if !ok {
		return catalog.Lesson{}, fmt.Errorf("lesson %d has unknown type %q", r.ID, r.Type)
	}
	return catalog.Lesson{ID: r.ID, UnitID: r.UnitID, Title: r.Title, Type: lessonType}, nil
}
