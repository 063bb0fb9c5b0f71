package worker

import (
	"github.com/JakeFAU/pageindex/internal/chunk"
	"github.com/JakeFAU/pageindex/internal/crawler"
	"github.com/JakeFAU/pageindex/internal/parser"
)

// ReasonEmptyText marks a page that fetched fine but yielded nothing to embed.
const ReasonEmptyText = "empty text"

// Preparer decides a page's outcome from its fetch result. It performs no I/O,
// so the same inputs always produce the same outcome.
type Preparer struct {
	chunker *chunk.Chunker
	format  parser.TextFormat
}

// NewPreparer builds a Preparer that extracts text in format and splits it
// with chunker.
func NewPreparer(chunker *chunk.Chunker, format parser.TextFormat) *Preparer {
	if chunker == nil {
		panic("worker: nil chunker")
	}
	return &Preparer{chunker: chunker, format: format}
}

// Evaluate classifies one fetch:
//   - content failures reported by the fetcher (status, content type) are Invalid;
//   - any other fetch error is Errored and leaves the page pending;
//   - a document that produces no chunks is Invalid but keeps its parsed data so
//     outgoing links are still recorded;
//   - everything else is Crawled with the chunks to index.
func (p *Preparer) Evaluate(page crawler.Page, res crawler.FetchResult, fetchErr error) crawler.Outcome {
	if fetchErr != nil {
		if reason, ok := crawler.InvalidReason(fetchErr); ok {
			return crawler.Invalid(crawler.StageFetch, reason, nil)
		}
		return crawler.Errored(crawler.StageFetch, fetchErr)
	}

	base := res.URL
	if base == "" {
		base = page.URL
	}
	data := parser.New(res.Body, base, p.format).PageData()

	chunks := p.chunker.Split(page.ID, data.Text)
	if len(chunks) == 0 {
		return crawler.Invalid(crawler.StageChunk, ReasonEmptyText, &data)
	}
	return crawler.Crawled(data, chunks)
}
