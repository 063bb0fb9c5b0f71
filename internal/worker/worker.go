// Package worker runs the per-page crawl pipeline: fetch, evaluate, then apply
// the outcome to the page store and vector store.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageindex/internal/clock/system"
	"github.com/JakeFAU/pageindex/internal/crawler"
	"github.com/JakeFAU/pageindex/internal/metrics"
)

const defaultBatchSize = 64

// Config controls Worker behavior.
type Config struct {
	// BatchSize caps the number of chunk texts sent in one embedding request.
	BatchSize int
}

// Worker executes the pipeline for one page at a time. A single Worker may be
// shared by many goroutines; all state lives in its collaborators.
type Worker struct {
	fetcher  crawler.Fetcher
	preparer *Preparer
	pages    crawler.PageStore
	vectors  crawler.VectorStore
	embedder crawler.Embedder
	sink     crawler.ErrorSink
	clock    crawler.Clock
	ids      crawler.IDGenerator
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	fetcher crawler.Fetcher,
	preparer *Preparer,
	pages crawler.PageStore,
	vectors crawler.VectorStore,
	embedder crawler.Embedder,
	sink crawler.ErrorSink,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	metrics.Init()
	return &Worker{
		fetcher:  fetcher,
		preparer: preparer,
		pages:    pages,
		vectors:  vectors,
		embedder: embedder,
		sink:     sink,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
}

// Process runs the full pipeline for page and returns its final outcome.
// Errored outcomes are reported to the error sink and never written to the
// page store.
func (w *Worker) Process(ctx context.Context, page crawler.Page) crawler.Outcome {
	res, err := w.fetcher.Fetch(ctx, page.URL)
	observeFetch(res, err)

	outcome := w.preparer.Evaluate(page, res, err)
	outcome = w.apply(ctx, page, outcome)
	w.report(ctx, page, outcome)
	return outcome
}

// apply performs the side effects of outcome in pipeline order. Any failure
// turns the outcome into Errored at the failing stage.
func (w *Worker) apply(ctx context.Context, page crawler.Page, outcome crawler.Outcome) crawler.Outcome {
	if outcome.Kind == crawler.OutcomeErrored {
		return outcome
	}

	if outcome.Data != nil {
		if err := w.recordLinks(ctx, page, outcome.Data.OutgoingURLs); err != nil {
			return crawler.Errored(crawler.StageLinks, fmt.Errorf("record outgoing urls: %w", err))
		}
	}

	if outcome.Kind == crawler.OutcomeInvalid {
		if err := w.pages.MarkInvalid(ctx, page.URL, outcome.Reason, w.clock.Now()); err != nil {
			return crawler.Errored(crawler.StageMark, fmt.Errorf("mark invalid: %w", err))
		}
		return outcome
	}

	if err := w.vectors.ClearAll(ctx, page.ID); err != nil {
		return crawler.Errored(crawler.StageClear, fmt.Errorf("clear vectors: %w", err))
	}

	vectors, err := w.embed(ctx, outcome.Chunks)
	if err != nil {
		return crawler.Errored(crawler.StageEmbed, err)
	}

	if err := w.vectors.Upsert(ctx, page.ID, vectors); err != nil {
		return crawler.Errored(crawler.StageUpsert, fmt.Errorf("upsert vectors: %w", err))
	}
	metrics.ObserveChunksIndexed(len(vectors))

	result := crawler.CrawlResult{
		Title:           outcome.Data.Title,
		MetaDescription: outcome.Data.MetaDescription,
		CrawledAt:       w.clock.Now(),
	}
	if err := w.pages.MarkCrawled(ctx, page.URL, result); err != nil {
		return crawler.Errored(crawler.StageMark, fmt.Errorf("mark crawled: %w", err))
	}
	return outcome
}

// recordLinks adds discovered links to the frontier, skipping any longer than
// crawler.MaxURLLength.
func (w *Worker) recordLinks(ctx context.Context, page crawler.Page, urls []string) error {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if len(u) > crawler.MaxURLLength {
			w.logger.Warn("dropping overlong outgoing url",
				zap.Int64("page_id", page.ID),
				zap.String("url_prefix", u[:128]),
				zap.Int("length", len(u)),
			)
			continue
		}
		kept = append(kept, u)
	}
	if len(kept) == 0 {
		return nil
	}
	return w.pages.RecordOutgoingURLs(ctx, kept)
}

func (w *Worker) embed(ctx context.Context, chunks []crawler.Chunk) ([]crawler.ChunkVector, error) {
	vectors := make([]crawler.ChunkVector, 0, len(chunks))
	for start := 0; start < len(chunks); start += w.cfg.BatchSize {
		end := min(start+w.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		embeddings, err := w.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(embeddings) != len(texts) {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", start, end-1, len(embeddings), len(texts))
		}
		for i, values := range embeddings {
			vectors = append(vectors, crawler.ChunkVector{ChunkIndex: chunks[start+i].Index, Values: values})
		}
	}
	return vectors, nil
}

func (w *Worker) report(ctx context.Context, page crawler.Page, outcome crawler.Outcome) {
	metrics.ObservePage(string(outcome.Kind))
	fields := []zap.Field{
		zap.Int64("page_id", page.ID),
		zap.String("url", page.URL),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("stage", string(outcome.Stage)),
	}

	switch outcome.Kind {
	case crawler.OutcomeCrawled:
		w.logger.Debug("page crawled", append(fields, zap.Int("chunks", len(outcome.Chunks)))...)
	case crawler.OutcomeInvalid:
		w.logger.Debug("page invalidated", append(fields, zap.String("reason", outcome.Reason))...)
	case crawler.OutcomeErrored:
		w.logger.Warn("page errored", append(fields, zap.Error(outcome.Err))...)
		w.recordError(ctx, page, outcome)
	}
}

func (w *Worker) recordError(ctx context.Context, page crawler.Page, outcome crawler.Outcome) {
	if w.sink == nil {
		return
	}
	record := crawler.ErrorRecord{
		PageID:     page.ID,
		URL:        page.URL,
		Stage:      outcome.Stage,
		Message:    outcome.Err.Error(),
		Chain:      crawler.ErrorChain(outcome.Err),
		OccurredAt: w.clock.Now(),
	}
	if w.ids != nil {
		id, err := w.ids.NewID()
		if err != nil {
			w.logger.Warn("error record id", zap.Int64("page_id", page.ID), zap.Error(err))
		}
		record.ID = id
	}
	if err := w.sink.Record(ctx, record); err != nil {
		w.logger.Error("record page error failed", zap.Int64("page_id", page.ID), zap.Error(err))
	}
}

func observeFetch(res crawler.FetchResult, err error) {
	if res.StatusCode != 0 {
		metrics.ObserveFetch(res.StatusCode, res.Duration)
	}
	if err == nil {
		return
	}
	switch _, invalid := crawler.InvalidReason(err); {
	case invalid:
		metrics.ObserveFetchError("invalid")
	case errors.Is(err, crawler.ErrFetchTimeout):
		metrics.ObserveFetchError("timeout")
	default:
		metrics.ObserveFetchError("transport")
	}
}
