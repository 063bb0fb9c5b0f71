// Package search is the read path over the index: it embeds a query, finds the
// nearest chunks and returns their pages in rank order.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageindex/internal/crawler"
	"github.com/JakeFAU/pageindex/internal/logging"
)

// DefaultTopK is the number of chunks requested from the vector store.
const DefaultTopK = 100

// Config controls a Service.
type Config struct {
	TopK int
}

// Result is one page hit. Score is the score of the page's best chunk.
type Result struct {
	Page  crawler.Page `json:"page"`
	Score float64      `json:"score"`
}

// Service answers free-text queries.
type Service struct {
	embedder crawler.Embedder
	vectors  crawler.VectorStore
	pages    crawler.PageStore
	topK     int
	logger   *zap.Logger
}

// New builds a Service.
func New(embedder crawler.Embedder, vectors crawler.VectorStore, pages crawler.PageStore, cfg Config, logger *zap.Logger) (*Service, error) {
	if embedder == nil || vectors == nil || pages == nil {
		return nil, fmt.Errorf("embedder, vector store and page store are required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Service{
		embedder: embedder,
		vectors:  vectors,
		pages:    pages,
		topK:     cfg.TopK,
		logger:   logging.Component(logger, "search"),
	}, nil
}

// Search returns the pages matching query, best first. A query the embedding
// model would reject yields no results rather than an error. Invalidated pages
// are skipped because their old chunks stay in the index.
func (s *Service) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	start := time.Now()

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if errors.Is(err, crawler.ErrEmbeddingInput) {
		s.logger.Debug("query rejected", zap.Error(err))
		return []Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	matches, err := s.vectors.Query(ctx, vectors[0], s.topK)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	ids, scores := rankPages(matches)
	if len(ids) == 0 {
		return []Result{}, nil
	}
	pages, err := s.pages.GetPages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}

	byID := make(map[int64]crawler.Page, len(pages))
	for _, p := range pages {
		byID[p.ID] = p
	}
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		page, ok := byID[id]
		if !ok || page.InvalidatedAt != nil {
			continue
		}
		results = append(results, Result{Page: page, Score: scores[id]})
	}

	s.logger.Debug("search complete",
		zap.String("query", query),
		zap.Int("matches", len(matches)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// rankPages maps chunk matches to distinct page IDs in first-seen order.
func rankPages(matches []crawler.Match) ([]int64, map[int64]float64) {
	ids := make([]int64, 0, len(matches))
	scores := make(map[int64]float64, len(matches))
	for _, m := range matches {
		id, ok := crawler.PageIDFromVectorKey(m.Key)
		if !ok {
			continue
		}
		if _, seen := scores[id]; seen {
			continue
		}
		scores[id] = m.Score
		ids = append(ids, id)
	}
	return ids, scores
}
