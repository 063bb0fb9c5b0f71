package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageindex/internal/chunk"
	"github.com/JakeFAU/pageindex/internal/crawler"
	"github.com/JakeFAU/pageindex/internal/parser"
	"github.com/JakeFAU/pageindex/internal/storage/memory"
	"github.com/JakeFAU/pageindex/internal/worker"
)

type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	out := make([]int, 0, len(text))
	for _, r := range text {
		out = append(out, int(r))
	}
	return out
}

func (runeTokenizer) Decode(tokens []int) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteRune(rune(t))
	}
	return b.String()
}

type siteFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func (f *siteFetcher) Fetch(_ context.Context, url string) (crawler.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	switch body, ok := f.pages[url]; {
	case ok:
		return crawler.FetchResult{URL: url, StatusCode: 200, ContentType: "text/html", Body: []byte(body)}, nil
	case strings.Contains(url, "down"):
		return crawler.FetchResult{}, errors.New("dial tcp: connection refused")
	default:
		return crawler.FetchResult{URL: url, StatusCode: 404}, crawler.Invalidf("unexpected status %d", 404)
	}
}

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestPipelineAcrossRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pages := memory.NewPageStore([]string{"https://site.test/"}, nil)
	vectors := memory.NewVectorStore()
	sink := memory.NewBlobStore()
	fetcher := &siteFetcher{
		calls: map[string]int{},
		pages: map[string]string{
			"https://site.test/": `<html><head><title>Home</title></head><body>
				<p>Welcome to the faculty site.</p>
				<a href="/about">About</a>
				<a href="/missing">Missing</a>
				<a href="https://down.test/">Mirror</a>
				<a href="#top">Top</a>
				<a href="mailto:office@site.test">Mail</a>
			</body></html>`,
			"https://site.test/about": `<html><body><p>About the faculty and its people.</p></body></html>`,
		},
	}

	preparer := worker.NewPreparer(chunk.New(runeTokenizer{}, 16, 4), parser.TextPlain)
	w := worker.New(fetcher, preparer, pages, vectors, constEmbedder{}, recordingSink{store: sink}, nil, nil, worker.Config{}, zap.NewNop())
	sched := New(pages, w, nil, Config{Concurrency: 3, RecrawlAfter: 24 * time.Hour}, zap.NewNop())

	first, err := sched.Run(ctx)
	require.NoError(t, err)
	require.True(t, first.Seeded)
	require.Equal(t, 1, first.Crawled)
	require.Equal(t, 4, pages.Len())

	home, ok := pages.PageByURL("https://site.test/")
	require.True(t, ok)
	require.Equal(t, "Home", *home.Title)
	require.NotNil(t, home.LastCrawledAt)
	require.NotEmpty(t, vectors.Keys(home.ID))

	second, err := sched.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, second.Frontier)
	require.Equal(t, 1, second.Crawled)
	require.Equal(t, 1, second.Invalid)
	require.Equal(t, 1, second.Errored)

	missing, _ := pages.PageByURL("https://site.test/missing")
	require.NotNil(t, missing.InvalidatedAt)
	require.Contains(t, *missing.InvalidationReason, "404")

	down, _ := pages.PageByURL("https://down.test/")
	require.Nil(t, down.InvalidatedAt)
	require.Nil(t, down.LastCrawledAt)
	require.Len(t, sink.Paths(), 1)

	// Only the transiently failed page remains in the frontier.
	third, err := sched.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, third.Frontier)
	require.Equal(t, 1, third.Errored)
	require.Equal(t, 1, fetcher.calls["https://site.test/missing"])
	require.Equal(t, 2, fetcher.calls["https://down.test/"])
}

type recordingSink struct {
	store *memory.BlobStore
}

func (s recordingSink) Record(ctx context.Context, record crawler.ErrorRecord) error {
	_, err := s.store.PutObject(ctx, "errors/"+record.URL, "text/plain", []byte(record.Message))
	return err
}
