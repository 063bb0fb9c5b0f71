package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

// PageStore keeps page rows in a map keyed by ID, with a URL index for
// dedup. It implements crawler.PageStore.
type PageStore struct {
	mu     sync.RWMutex
	nextID int64
	pages  map[int64]crawler.Page
	byURL  map[string]int64
	seeds  []string
	now    func() time.Time
}

// NewPageStore constructs a PageStore that seeds seedURLs when empty.
func NewPageStore(seedURLs []string, clock crawler.Clock) *PageStore {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &PageStore{
		pages: make(map[int64]crawler.Page),
		byURL: make(map[string]int64),
		seeds: append([]string(nil), seedURLs...),
		now:   now,
	}
}

// ListEligiblePages returns the frontier: never-crawled pages first, then by
// oldest crawl, ties broken by creation time and ID.
func (s *PageStore) ListEligiblePages(_ context.Context, now time.Time, recrawlAfter time.Duration) ([]crawler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eligible := make([]crawler.Page, 0, len(s.pages))
	for _, p := range s.pages {
		if p.Eligible(now, recrawlAfter) {
			eligible = append(eligible, p)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		switch {
		case a.LastCrawledAt == nil && b.LastCrawledAt != nil:
			return true
		case a.LastCrawledAt != nil && b.LastCrawledAt == nil:
			return false
		case a.LastCrawledAt != nil && !a.LastCrawledAt.Equal(*b.LastCrawledAt):
			return a.LastCrawledAt.Before(*b.LastCrawledAt)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID < b.ID
		}
	})
	return eligible, nil
}

// SeedIfEmpty inserts the seed URLs when the store holds no pages at all.
func (s *PageStore) SeedIfEmpty(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) > 0 {
		return nil
	}
	for _, u := range s.seeds {
		s.insertLocked(u)
	}
	return nil
}

// RecordOutgoingURLs inserts URLs that are not yet known.
func (s *PageStore) RecordOutgoingURLs(_ context.Context, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		s.insertLocked(u)
	}
	return nil
}

// MarkCrawled stores the crawl result on the page with the given URL.
func (s *PageStore) MarkCrawled(_ context.Context, url string, result crawler.CrawlResult) error {
	return s.update(url, func(p *crawler.Page) {
		crawledAt := result.CrawledAt
		p.Title = result.Title
		p.MetaDescription = result.MetaDescription
		p.LastCrawledAt = &crawledAt
	})
}

// MarkInvalid excludes the page with the given URL from future crawls.
func (s *PageStore) MarkInvalid(_ context.Context, url string, reason string, at time.Time) error {
	return s.update(url, func(p *crawler.Page) {
		p.InvalidatedAt = &at
		p.InvalidationReason = &reason
	})
}

// GetPage returns the page with id or crawler.ErrPageNotFound.
func (s *PageStore) GetPage(_ context.Context, id int64) (crawler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	if !ok {
		return crawler.Page{}, fmt.Errorf("get page %d: %w", id, crawler.ErrPageNotFound)
	}
	return p, nil
}

// GetPages returns the known pages among ids in the order given.
func (s *PageStore) GetPages(_ context.Context, ids []int64) ([]crawler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := make([]crawler.Page, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.pages[id]; ok {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

// PageByURL looks a page up by its canonical URL.
func (s *PageStore) PageByURL(url string) (crawler.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	if !ok {
		return crawler.Page{}, false
	}
	return s.pages[id], true
}

// Len returns the number of stored pages.
func (s *PageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

func (s *PageStore) insertLocked(url string) {
	if url == "" {
		return
	}
	if _, exists := s.byURL[url]; exists {
		return
	}
	s.nextID++
	s.pages[s.nextID] = crawler.Page{ID: s.nextID, URL: url, CreatedAt: s.now()}
	s.byURL[url] = s.nextID
}

func (s *PageStore) update(url string, fn func(*crawler.Page)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byURL[url]
	if !ok {
		return fmt.Errorf("update page %s: %w", url, crawler.ErrPageNotFound)
	}
	p := s.pages[id]
	fn(&p)
	s.pages[id] = p
	return nil
}
