package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

type vectorRecord struct {
	pageID int64
	values []float32
}

// VectorStore holds chunk vectors keyed by crawler.VectorKey and answers
// cosine-similarity queries by brute force.
type VectorStore struct {
	mu      sync.RWMutex
	records map[string]vectorRecord
}

// NewVectorStore creates an empty VectorStore.
func NewVectorStore() *VectorStore {
	return &VectorStore{records: make(map[string]vectorRecord)}
}

// Upsert writes one record per chunk vector, replacing existing keys.
func (s *VectorStore) Upsert(_ context.Context, pageID int64, vectors []crawler.ChunkVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		s.records[crawler.VectorKey(pageID, v.ChunkIndex)] = vectorRecord{
			pageID: pageID,
			values: append([]float32(nil), v.Values...),
		}
	}
	return nil
}

// ClearAll removes every record under the page's key prefix.
func (s *VectorStore) ClearAll(_ context.Context, pageID int64) error {
	prefix := crawler.VectorKeyPrefix(pageID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			delete(s.records, key)
		}
	}
	return nil
}

// Query returns the topK records most similar to vector, best first.
func (s *VectorStore) Query(_ context.Context, vector []float32, topK int) ([]crawler.Match, error) {
	if topK <= 0 {
		return []crawler.Match{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]crawler.Match, 0, len(s.records))
	for key, rec := range s.records {
		if len(rec.values) != len(vector) {
			return nil, fmt.Errorf("query vector has %d dimensions, %s has %d", len(vector), key, len(rec.values))
		}
		matches = append(matches, crawler.Match{Key: key, PageID: rec.pageID, Score: cosine(vector, rec.values)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Key < matches[j].Key
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Keys lists the keys stored for pageID in lexical order.
func (s *VectorStore) Keys(pageID int64) []string {
	prefix := crawler.VectorKeyPrefix(pageID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
