package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

const (
	defaultVectorTable = "page_chunks"
	// Four parameters per row keeps one statement well under the 65535 limit.
	upsertRowsPerStatement = 500
)

// VectorStoreConfig controls the chunk vector table.
type VectorStoreConfig struct {
	Table      string
	Dimensions int
}

// VectorStore implements crawler.VectorStore with pgvector. Each row is keyed
// by crawler.VectorKey and carries its page_id for namespace clearing.
type VectorStore struct {
	db    querier
	table string
	dims  int
}

// NewVectorStore constructs a VectorStore over db.
func NewVectorStore(db querier, cfg VectorStoreConfig) (*VectorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultVectorTable
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &VectorStore{db: db, table: table, dims: cfg.Dimensions}, nil
}

// Close releases the underlying pool resources.
func (s *VectorStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// EnsureSchema creates the vector extension, the chunk table and its page index.
func (s *VectorStore) EnsureSchema(ctx context.Context) error {
	return execAll(ctx, s.db, []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	page_id BIGINT NOT NULL,
	chunk_index INT NOT NULL,
	embedding vector(%d) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table, s.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_page_id_idx ON %s (page_id)`, s.table, s.table),
	})
}

// ClearAll deletes every chunk stored for pageID.
func (s *VectorStore) ClearAll(ctx context.Context, pageID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE page_id = $1`, s.table)
	if _, err := s.db.Exec(ctx, query, pageID); err != nil {
		return fmt.Errorf("delete chunks of page %d: %w", pageID, err)
	}
	return nil
}

// Upsert writes the vectors of pageID, replacing rows with the same key.
func (s *VectorStore) Upsert(ctx context.Context, pageID int64, vectors []crawler.ChunkVector) error {
	for start := 0; start < len(vectors); start += upsertRowsPerStatement {
		end := min(start+upsertRowsPerStatement, len(vectors))
		if err := s.upsertBatch(ctx, pageID, vectors[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *VectorStore) upsertBatch(ctx context.Context, pageID int64, vectors []crawler.ChunkVector) error {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (id, page_id, chunk_index, embedding) VALUES ", s.table)
	args := make([]any, 0, len(vectors)*4)
	for i, v := range vectors {
		if len(v.Values) != s.dims {
			return fmt.Errorf("chunk %d of page %d has %d dimensions, want %d", v.ChunkIndex, pageID, len(v.Values), s.dims)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, crawler.VectorKey(pageID, v.ChunkIndex), pageID, v.ChunkIndex, pgvector.NewVector(v.Values))
	}
	b.WriteString(` ON CONFLICT (id) DO UPDATE SET
	page_id = EXCLUDED.page_id,
	chunk_index = EXCLUDED.chunk_index,
	embedding = EXCLUDED.embedding,
	updated_at = now()`)

	if _, err := s.db.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("upsert chunks of page %d: %w", pageID, err)
	}
	return nil
}

// Query returns the topK chunks nearest to vector by cosine distance.
func (s *VectorStore) Query(ctx context.Context, vector []float32, topK int) ([]crawler.Match, error) {
	if topK <= 0 {
		return []crawler.Match{}, nil
	}
	query := fmt.Sprintf(`SELECT id, page_id, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, s.table)

	rows, err := s.db.Query(ctx, query, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("query nearest chunks: %w", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (crawler.Match, error) {
		var m crawler.Match
		err := row.Scan(&m.Key, &m.PageID, &m.Score)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan nearest chunks: %w", err)
	}
	return matches, nil
}
