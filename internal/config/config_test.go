package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAGEINDEX_STORE_DSN", "postgres://localhost/pageindex")

	cfg, err := Load("")
	require.NoError(t, err)

	require.True(t, cfg.Logging.Development)
	require.Equal(t, 50, cfg.Crawler.Concurrency)
	require.Equal(t, 2*time.Second, cfg.Crawler.RequestTimeout)
	require.Equal(t, 30*24*time.Hour, cfg.Crawler.RecrawlAfter)
	require.Equal(t, []string{"https://csc.knu.ua/uk/"}, cfg.Crawler.SeedURLs)
	require.Equal(t, 8191, cfg.Chunking.Size)
	require.Equal(t, 200, cfg.Chunking.Overlap)
	require.Equal(t, "cl100k_base", cfg.Tokenizer.Encoding)
	require.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	require.Equal(t, 64, cfg.Embedding.BatchSize)
	require.Equal(t, DriverPostgres, cfg.Store.Driver)
	require.Equal(t, "postgres://localhost/pageindex", cfg.Vector.DSN, "vector dsn falls back to store dsn")
	require.Equal(t, 1536, cfg.Vector.Dimensions)
	require.Equal(t, SinkFile, cfg.Errors.Sink)
	require.Equal(t, "errors", cfg.Errors.Prefix)
	require.Zero(t, cfg.Server.Port)
	require.Equal(t, 100, cfg.Search.TopK)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
logging:
  development: false
crawler:
  concurrency: 8
  request_timeout: 5s
  recrawl_after: 168h
  seed_urls: ["https://a.test/", "https://b.test/"]
chunking:
  size: 512
  overlap: 64
  text_format: markdown
store:
  driver: sqlite
  sqlite_path: /tmp/pages.db
vector:
  driver: memory
errors:
  sink: gcs
  gcs_bucket: crawl-errors
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	t.Setenv("PAGEINDEX_CRAWLER_CONCURRENCY", "12")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, 12, cfg.Crawler.Concurrency, "environment wins over file")
	require.Equal(t, 5*time.Second, cfg.Crawler.RequestTimeout)
	require.Equal(t, 7*24*time.Hour, cfg.Crawler.RecrawlAfter)
	require.Equal(t, []string{"https://a.test/", "https://b.test/"}, cfg.Crawler.SeedURLs)
	require.Equal(t, "markdown", cfg.Chunking.TextFormat)
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, DriverMemory, cfg.Vector.Driver)
	require.Equal(t, "crawl-errors", cfg.Errors.GCSBucket)
	require.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Crawler:   CrawlerConfig{Concurrency: 1, RequestTimeout: time.Second},
		Chunking:  ChunkingConfig{Size: 100, Overlap: 10, TextFormat: "plain"},
		Embedding: EmbeddingConfig{TokenLimit: 8191, BatchSize: 16},
		Store:     StoreConfig{Driver: DriverMemory},
		Vector:    VectorConfig{Driver: DriverMemory},
		Errors:    ErrorsConfig{Sink: SinkLog},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "concurrency", mutate: func(c *Config) { c.Crawler.Concurrency = 0 }, want: "crawler.concurrency"},
		{name: "timeout", mutate: func(c *Config) { c.Crawler.RequestTimeout = 0 }, want: "crawler.request_timeout"},
		{name: "overlap equals size", mutate: func(c *Config) { c.Chunking.Overlap = 100 }, want: "chunking.overlap"},
		{name: "negative overlap", mutate: func(c *Config) { c.Chunking.Overlap = -1 }, want: "chunking.overlap"},
		{name: "size over token limit", mutate: func(c *Config) { c.Chunking.Size = 9000 }, want: "embedding.token_limit"},
		{name: "text format", mutate: func(c *Config) { c.Chunking.TextFormat = "pdf" }, want: "chunking.text_format"},
		{name: "batch size", mutate: func(c *Config) { c.Embedding.BatchSize = 0 }, want: "embedding.batch_size"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "mysql" }, want: "store.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = DriverPostgres }, want: "store.dsn"},
		{name: "vector postgres without dsn", mutate: func(c *Config) { c.Vector.Driver = DriverPostgres }, want: "vector.dsn"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Errors.Sink = SinkGCS }, want: "errors.gcs_bucket"},
		{name: "unknown sink", mutate: func(c *Config) { c.Errors.Sink = "kafka" }, want: "errors.sink"},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -1 }, want: "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
