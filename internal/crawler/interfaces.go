package crawler

import (
	"context"
	"time"
)

// PageStore persists page rows and the crawl frontier. Implementations must be
// safe for concurrent use by every worker.
type PageStore interface {
	// ListEligiblePages returns never-crawled pages first, then the oldest crawled.
	ListEligiblePages(ctx context.Context, now time.Time, recrawlAfter time.Duration) ([]Page, error)
	SeedIfEmpty(ctx context.Context) error
	// RecordOutgoingURLs inserts unknown URLs and ignores existing ones.
	RecordOutgoingURLs(ctx context.Context, urls []string) error
	MarkCrawled(ctx context.Context, url string, result CrawlResult) error
	MarkInvalid(ctx context.Context, url string, reason string, at time.Time) error
	GetPage(ctx context.Context, id int64) (Page, error)
	GetPages(ctx context.Context, ids []int64) ([]Page, error)
}

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore holds chunk embeddings grouped under a per-page key prefix.
// Calls for different page IDs may run concurrently.
type VectorStore interface {
	Upsert(ctx context.Context, pageID int64, vectors []ChunkVector) error
	ClearAll(ctx context.Context, pageID int64) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// Tokenizer encodes text into model tokens and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Fetcher retrieves a URL and validates that it is crawlable HTML.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// ErrorSink receives unexpected per-page failures out of band.
type ErrorSink interface {
	Record(ctx context.Context, record ErrorRecord) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
