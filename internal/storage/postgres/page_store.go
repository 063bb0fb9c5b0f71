package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

const pageColumns = `id, url, title, meta_description, last_crawled_at, invalidated_at, invalidation_reason, created_at`

// PageStore implements crawler.PageStore on a pages table.
type PageStore struct {
	db    querier
	seeds []string
}

// NewPageStore constructs a PageStore over db (a *pgxpool.Pool in production).
func NewPageStore(db querier, seedURLs []string) (*PageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PageStore{db: db, seeds: append([]string(nil), seedURLs...)}, nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// EnsureSchema creates the pages table and its frontier index.
func (s *PageStore) EnsureSchema(ctx context.Context) error {
	return execAll(ctx, s.db, []string{
		`CREATE TABLE IF NOT EXISTS pages (
	id BIGSERIAL PRIMARY KEY,
	url VARCHAR(2048) NOT NULL UNIQUE,
	title TEXT,
	meta_description TEXT,
	last_crawled_at TIMESTAMPTZ,
	invalidated_at TIMESTAMPTZ,
	invalidation_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS pages_frontier_idx
	ON pages (last_crawled_at NULLS FIRST, created_at)
	WHERE invalidated_at IS NULL`,
	})
}

// ListEligiblePages returns never-crawled pages first, then the oldest crawled.
func (s *PageStore) ListEligiblePages(ctx context.Context, now time.Time, recrawlAfter time.Duration) ([]crawler.Page, error) {
	query := `SELECT ` + pageColumns + `
FROM pages
WHERE invalidated_at IS NULL
	AND (last_crawled_at IS NULL OR last_crawled_at <= $1)
ORDER BY last_crawled_at ASC NULLS FIRST, created_at ASC, id ASC`

	rows, err := s.db.Query(ctx, query, now.Add(-recrawlAfter))
	if err != nil {
		return nil, fmt.Errorf("query eligible pages: %w", err)
	}
	pages, err := pgx.CollectRows(rows, scanPage)
	if err != nil {
		return nil, fmt.Errorf("scan eligible pages: %w", err)
	}
	return pages, nil
}

// SeedIfEmpty inserts the seed URLs only when the table has no rows.
func (s *PageStore) SeedIfEmpty(ctx context.Context) error {
	if len(s.seeds) == 0 {
		return nil
	}
	query := `INSERT INTO pages (url)
SELECT u FROM unnest($1::text[]) AS u
WHERE NOT EXISTS (SELECT 1 FROM pages)
ON CONFLICT (url) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, s.seeds); err != nil {
		return fmt.Errorf("seed pages: %w", err)
	}
	return nil
}

// RecordOutgoingURLs inserts unknown URLs and ignores existing ones.
func (s *PageStore) RecordOutgoingURLs(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	query := `INSERT INTO pages (url)
SELECT u FROM unnest($1::text[]) AS u
ON CONFLICT (url) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, urls); err != nil {
		return fmt.Errorf("insert outgoing urls: %w", err)
	}
	return nil
}

// MarkCrawled stores title, meta description and crawl time for url.
func (s *PageStore) MarkCrawled(ctx context.Context, url string, result crawler.CrawlResult) error {
	query := `UPDATE pages
SET title = $2, meta_description = $3, last_crawled_at = $4
WHERE url = $1`
	tag, err := s.db.Exec(ctx, query, url, result.Title, result.MetaDescription, result.CrawledAt)
	if err != nil {
		return fmt.Errorf("mark crawled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark crawled %s: %w", url, crawler.ErrPageNotFound)
	}
	return nil
}

// MarkInvalid records why url will not be crawled again.
func (s *PageStore) MarkInvalid(ctx context.Context, url string, reason string, at time.Time) error {
	query := `UPDATE pages
SET invalidated_at = $2, invalidation_reason = $3
WHERE url = $1`
	tag, err := s.db.Exec(ctx, query, url, at, reason)
	if err != nil {
		return fmt.Errorf("mark invalid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark invalid %s: %w", url, crawler.ErrPageNotFound)
	}
	return nil
}

// GetPage fetches a page by ID.
func (s *PageStore) GetPage(ctx context.Context, id int64) (crawler.Page, error) {
	rows, err := s.db.Query(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("query page %d: %w", id, err)
	}
	page, err := pgx.CollectExactlyOneRow(rows, scanPage)
	if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := s.db.Query(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	found, err := pgx.CollectRows(rows, scanPage)
	if err != nil {
		return nil, fmt.Errorf("scan pages: %w", err)
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

func scanPage(row pgx.CollectableRow) (crawler.Page, error) {
	var p crawler.Page
	err := row.Scan(
		&p.ID,
		&p.URL,
		&p.Title,
		&p.MetaDescription,
		&p.LastCrawledAt,
		&p.InvalidatedAt,
		&p.InvalidationReason,
		&p.CreatedAt,
	)
	return p, err
}
