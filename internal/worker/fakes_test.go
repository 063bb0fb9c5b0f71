package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

// callLog records collaborator calls across fakes so tests can assert order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type wordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

func newWordTokenizer() *wordTokenizer {
	return &wordTokenizer{ids: make(map[string]int)}
}

func (w *wordTokenizer) Encode(text string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	fields := strings.Fields(text)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out = append(out, id)
	}
	return out
}

func (w *wordTokenizer) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, w.words[t])
	}
	return strings.Join(parts, " ")
}

type fetchReply struct {
	res crawler.FetchResult
	err error
}

type fakeFetcher struct {
	replies map[string]fetchReply
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (crawler.FetchResult, error) {
	reply, ok := f.replies[url]
	if !ok {
		return crawler.FetchResult{}, errors.New("dial tcp: no such host")
	}
	return reply.res, reply.err
}

func htmlReply(url, body string) fetchReply {
	return fetchReply{res: crawler.FetchResult{
		URL:         url,
		StatusCode:  200,
		ContentType: "text/html",
		Body:        []byte(body),
	}}
}

type fakePageStore struct {
	log        *callLog
	mu         sync.Mutex
	recorded   [][]string
	crawled    map[string]crawler.CrawlResult
	invalid    map[string]string
	linksErr   error
	crawledErr error
}

func newFakePageStore(log *callLog) *fakePageStore {
	return &fakePageStore{
		log:     log,
		crawled: make(map[string]crawler.CrawlResult),
		invalid: make(map[string]string),
	}
}

func (s *fakePageStore) ListEligiblePages(context.Context, time.Time, time.Duration) ([]crawler.Page, error) {
	return nil, nil
}

func (s *fakePageStore) SeedIfEmpty(context.Context) error {
	return nil
}

func (s *fakePageStore) RecordOutgoingURLs(_ context.Context, urls []string) error {
	s.log.add("links")
	if s.linksErr != nil {
		return s.linksErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, urls)
	return nil
}

func (s *fakePageStore) MarkCrawled(_ context.Context, url string, result crawler.CrawlResult) error {
	s.log.add("crawled")
	if s.crawledErr != nil {
		return s.crawledErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crawled[url] = result
	return nil
}

func (s *fakePageStore) MarkInvalid(_ context.Context, url string, reason string, _ time.Time) error {
	s.log.add("invalid")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid[url] = reason
	return nil
}

func (s *fakePageStore) GetPage(context.Context, int64) (crawler.Page, error) {
	return crawler.Page{}, crawler.ErrPageNotFound
}

func (s *fakePageStore) GetPages(context.Context, []int64) ([]crawler.Page, error) {
	return nil, nil
}

// loggingVectorStore wraps a real store and records call order.
type loggingVectorStore struct {
	crawler.VectorStore
	log       *callLog
	upsertErr error
}

func (s *loggingVectorStore) ClearAll(ctx context.Context, pageID int64) error {
	s.log.add("clear")
	return s.VectorStore.ClearAll(ctx, pageID)
}

func (s *loggingVectorStore) Upsert(ctx context.Context, pageID int64, vectors []crawler.ChunkVector) error {
	s.log.add("upsert")
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.VectorStore.Upsert(ctx, pageID, vectors)
}

type fakeEmbedder struct {
	log     *callLog
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.log.add("embed")
	if e.err != nil {
		return nil, e.err
	}
	e.mu.Lock()
	e.batches = append(e.batches, texts)
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []crawler.ErrorRecord
}

func (s *fakeSink) Record(_ context.Context, record crawler.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *fakeSink) all() []crawler.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.ErrorRecord(nil), s.records...)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeIDs struct{}

func (fakeIDs) NewID() (string, error) {
	return "err-1", nil
}
