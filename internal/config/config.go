// Package config loads and validates pageindex configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pageindex/internal/parser"
)

// Store and sink drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"

	SinkFile   = "file"
	SinkGCS    = "gcs"
	SinkLog    = "log"
	SinkMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Store     StoreConfig     `mapstructure:"store"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Errors    ErrorsConfig    `mapstructure:"errors"`
	Server    ServerConfig    `mapstructure:"server"`
	Search    SearchConfig    `mapstructure:"search"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs the scheduler and the fetcher.
type CrawlerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RecrawlAfter   time.Duration `mapstructure:"recrawl_after"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	SeedURLs       []string      `mapstructure:"seed_urls"`
}

// ChunkingConfig sizes the token windows fed to the embedder.
type ChunkingConfig struct {
	Size       int    `mapstructure:"size"`
	Overlap    int    `mapstructure:"overlap"`
	TextFormat string `mapstructure:"text_format"`
}

// TokenizerConfig names the BPE encoding.
type TokenizerConfig struct {
	Encoding string `mapstructure:"encoding"`
}

// EmbeddingConfig configures the embeddings API client.
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	TokenLimit int    `mapstructure:"token_limit"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// StoreConfig selects the page store.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// VectorConfig selects the vector store.
type VectorConfig struct {
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ErrorsConfig selects where per-page error records go.
type ErrorsConfig struct {
	Sink      string `mapstructure:"sink"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ServerConfig controls the ops HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SearchConfig controls the read path.
type SearchConfig struct {
	TopK int `mapstructure:"top_k"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Vector.DSN == "" {
		cfg.Vector.DSN = cfg.Store.DSN
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.concurrency", 50)
	v.SetDefault("crawler.request_timeout", "2s")
	v.SetDefault("crawler.recrawl_after", "720h")
	v.SetDefault("crawler.user_agent", "pageindex-bot/0.1")
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("crawler.seed_urls", []string{"https://csc.knu.ua/uk/"})
	v.SetDefault("chunking.size", 8191)
	v.SetDefault("chunking.overlap", 200)
	v.SetDefault("chunking.text_format", string(parser.TextPlain))
	v.SetDefault("tokenizer.encoding", "cl100k_base")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.token_limit", 8191)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.sqlite_path", "data/pageindex.db")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.auto_migrate", false)
	v.SetDefault("vector.driver", DriverPostgres)
	v.SetDefault("vector.dsn", "")
	v.SetDefault("vector.table", "page_chunks")
	v.SetDefault("vector.dimensions", 1536)
	v.SetDefault("errors.sink", SinkFile)
	v.SetDefault("errors.dir", ".")
	v.SetDefault("errors.gcs_bucket", "")
	v.SetDefault("errors.prefix", "errors")
	v.SetDefault("server.port", 0)
	v.SetDefault("search.top_k", 100)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Crawler.RecrawlAfter < 0 {
		return fmt.Errorf("crawler.recrawl_after must be >= 0")
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be > 0")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, chunking.size)")
	}
	if c.Embedding.TokenLimit > 0 && c.Chunking.Size > c.Embedding.TokenLimit {
		return fmt.Errorf("chunking.size must be <= embedding.token_limit")
	}
	if _, err := parser.ParseTextFormat(c.Chunking.TextFormat); err != nil {
		return fmt.Errorf("chunking.text_format: %w", err)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be > 0")
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must be set for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not one of postgres, sqlite, memory", c.Store.Driver)
	}
	switch c.Vector.Driver {
	case DriverPostgres:
		if c.Vector.DSN == "" {
			return fmt.Errorf("vector.dsn must be set for the postgres driver")
		}
		if c.Vector.Dimensions <= 0 {
			return fmt.Errorf("vector.dimensions must be > 0")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("vector.driver %q is not one of postgres, memory", c.Vector.Driver)
	}
	switch c.Errors.Sink {
	case SinkFile:
		if c.Errors.Dir == "" {
			return fmt.Errorf("errors.dir must be set for the file sink")
		}
	case SinkGCS:
		if c.Errors.GCSBucket == "" {
			return fmt.Errorf("errors.gcs_bucket must be set for the gcs sink")
		}
	case SinkLog, SinkMemory:
	default:
		return fmt.Errorf("errors.sink %q is not one of file, gcs, log, memory", c.Errors.Sink)
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}
