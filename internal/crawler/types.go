package crawler

import (
	"time"
)

// MaxURLLength is the longest page URL the page stores accept.
const MaxURLLength = 2048

// Page is a row owned by the page store.
type Page struct {
	ID                 int64      `json:"id"`
	URL                string     `json:"url"`
	Title              *string    `json:"title,omitempty"`
	MetaDescription    *string    `json:"meta_description,omitempty"`
	LastCrawledAt      *time.Time `json:"last_crawled_at,omitempty"`
	InvalidatedAt      *time.Time `json:"invalidated_at,omitempty"`
	InvalidationReason *string    `json:"invalidation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Eligible reports whether the page belongs to the crawl frontier at now.
// Invalidated pages are never eligible; crawled pages become eligible again
// once recrawlAfter has elapsed since their last crawl.
func (p Page) Eligible(now time.Time, recrawlAfter time.Duration) bool {
	if p.InvalidatedAt != nil {
		return false
	}
	if p.LastCrawledAt == nil {
		return true
	}
	return !p.LastCrawledAt.After(now.Add(-recrawlAfter))
}

// PageData is the parser's projection of a fetched HTML document.
type PageData struct {
	Title           *string
	MetaDescription *string
	Text            string
	// OutgoingURLs holds canonical URLs in first-occurrence order, without duplicates.
	OutgoingURLs []string
}

// Chunk is a token window of a page's text decoded back to a string.
type Chunk struct {
	PageID int64
	Index  int
	Text   string
	Tokens int
}

// Key returns the vector-store key for the chunk.
func (c Chunk) Key() string {
	return VectorKey(c.PageID, c.Index)
}

// CrawlResult carries the fields written back on a successful crawl.
type CrawlResult struct {
	Title           *string
	MetaDescription *string
	CrawledAt       time.Time
}

// ChunkVector is one embedding addressed by its chunk index within a page.
type ChunkVector struct {
	ChunkIndex int
	Values     []float32
}

// Match is a nearest-neighbour hit returned by a vector store query.
type Match struct {
	Key    string
	PageID int64
	Score  float64
}

// FetchResult is what a Fetcher returns for a crawlable HTML response.
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// ErrorRecord is the structured payload handed to an ErrorSink.
type ErrorRecord struct {
	ID         string    `json:"id"`
	PageID     int64     `json:"page_id"`
	URL        string    `json:"url"`
	Stage      Stage     `json:"stage"`
	Message    string    `json:"message"`
	Chain      []string  `json:"chain,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
