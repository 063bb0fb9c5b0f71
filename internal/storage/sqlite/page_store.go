// Package sqlite provides a single-file PageStore for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/pageindex/internal/crawler"
)

const pageColumns = `id, url, title, meta_description, last_crawled_at, invalidated_at, invalidation_reason, created_at`

// Config controls where the database lives and what it is seeded with.
type Config struct {
	Path     string
	SeedURLs []string
	// Clock stamps created_at; defaults to UTC wall time.
	Clock crawler.Clock
}

// PageStore implements crawler.PageStore on SQLite. Times are stored as Unix
// microseconds so NULL-first ordering and range filters stay numeric.
type PageStore struct {
	db    *sql.DB
	seeds []string
	now   func() time.Time
}

// Open opens or creates the database at cfg.Path and creates the schema.
func Open(ctx context.Context, cfg Config) (*PageStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection also serializes workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	now := func() time.Time { return time.Now().UTC() }
	if cfg.Clock != nil {
		now = cfg.Clock.Now
	}
	store := &PageStore{db: db, seeds: append([]string(nil), cfg.SeedURLs...), now: now}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *PageStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the pages table and its frontier index.
func (s *PageStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		meta_description TEXT,
		last_crawled_at INTEGER,
		invalidated_at INTEGER,
		invalidation_reason TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS pages_frontier_idx ON pages(last_crawled_at, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create pages table: %w", err)
	}
	return nil
}

// ListEligiblePages returns never-crawled pages first, then the oldest crawled.
// SQLite sorts NULL before any value in ascending order.
func (s *PageStore) ListEligiblePages(ctx context.Context, now time.Time, recrawlAfter time.Duration) ([]crawler.Page, error) {
	query := `SELECT ` + pageColumns + `
	FROM pages
	WHERE invalidated_at IS NULL
		AND (last_crawled_at IS NULL OR last_crawled_at <= ?)
	ORDER BY last_crawled_at ASC, created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, now.Add(-recrawlAfter).UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("query eligible pages: %w", err)
	}
	return collectPages(rows)
}

// SeedIfEmpty inserts the seed URLs only when the table has no rows.
func (s *PageStore) SeedIfEmpty(ctx context.Context) error {
	if len(s.seeds) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&count); err != nil {
			return fmt.Errorf("count pages: %w", err)
		}
		if count > 0 {
			return nil
		}
		return insertURLs(ctx, tx, s.seeds, s.now())
	})
}

// RecordOutgoingURLs inserts unknown URLs and ignores existing ones.
func (s *PageStore) RecordOutgoingURLs(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertURLs(ctx, tx, urls, s.now())
	})
}

// MarkCrawled stores title, meta description and crawl time for url.
func (s *PageStore) MarkCrawled(ctx context.Context, url string, result crawler.CrawlResult) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET title = ?, meta_description = ?, last_crawled_at = ? WHERE url = ?`,
		nullString(result.Title), nullString(result.MetaDescription), result.CrawledAt.UnixMicro(), url)
	if err != nil {
		return fmt.Errorf("mark crawled: %w", err)
	}
	return requireRow(res, "mark crawled", url)
}

// MarkInvalid records why url will not be crawled again.
func (s *PageStore) MarkInvalid(ctx context.Context, url string, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET invalidated_at = ?, invalidation_reason = ? WHERE url = ?`,
		at.UnixMicro(), reason, url)
	if err != nil {
		return fmt.Errorf("mark invalid: %w", err)
	}
	return requireRow(res, "mark invalid", url)
}

// GetPage fetches a page by ID.
func (s *PageStore) GetPage(ctx context.Context, id int64) (crawler.Page, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Page{}, fmt.Errorf("get page %d: %w", id, crawler.ErrPageNotFound)
	}
	if err != nil {
		return crawler.Page{}, fmt.Errorf("scan page %d: %w", id, err)
	}
	return page, nil
}

// GetPages fetches the known pages among ids, preserving the order of ids.
func (s *PageStore) GetPages(ctx context.Context, ids []int64) ([]crawler.Page, error) {
	if len(ids) == 0 {
		return []crawler.Page{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	found, err := collectPages(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]crawler.Page, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	pages := make([]crawler.Page, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

func (s *PageStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertURLs(ctx context.Context, tx *sql.Tx, urls []string, createdAt time.Time) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pages (url, created_at) VALUES (?, ?) ON CONFLICT(url) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, u, createdAt.UnixMicro()); err != nil {
			return fmt.Errorf("insert page %s: %w", u, err)
		}
	}
	return nil
}

func requireRow(res sql.Result, op, url string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, url, crawler.ErrPageNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (crawler.Page, error) {
	var (
		p                    crawler.Page
		title, desc, reason  sql.NullString
		crawled, invalidated sql.NullInt64
		created              int64
	)
	if err := row.Scan(&p.ID, &p.URL, &title, &desc, &crawled, &invalidated, &reason, &created); err != nil {
		return crawler.Page{}, err
	}
	p.Title = stringPtr(title)
	p.MetaDescription = stringPtr(desc)
	p.InvalidationReason = stringPtr(reason)
	p.LastCrawledAt = timePtr(crawled)
	p.InvalidatedAt = timePtr(invalidated)
	p.CreatedAt = time.UnixMicro(created).UTC()
	return p, nil
}

func collectPages(rows *sql.Rows) ([]crawler.Page, error) {
	defer func() { _ = rows.Close() }()
	pages := []crawler.Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := time.UnixMicro(ni.Int64).UTC()
	return &t
}
