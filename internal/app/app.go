// Package app builds the long-lived services from configuration and holds them
// for the CLI commands, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	gcsclient "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageindex/internal/chunk"
	"github.com/JakeFAU/pageindex/internal/clock/system"
	"github.com/JakeFAU/pageindex/internal/config"
	"github.com/JakeFAU/pageindex/internal/crawler"
	"github.com/JakeFAU/pageindex/internal/dispatcher"
	openaiembed "github.com/JakeFAU/pageindex/internal/embedding/openai"
	"github.com/JakeFAU/pageindex/internal/errorsink"
	collyfetcher "github.com/JakeFAU/pageindex/internal/fetcher/colly"
	"github.com/JakeFAU/pageindex/internal/id/uuid"
	"github.com/JakeFAU/pageindex/internal/parser"
	"github.com/JakeFAU/pageindex/internal/search"
	"github.com/JakeFAU/pageindex/internal/storage/gcs"
	"github.com/JakeFAU/pageindex/internal/storage/local"
	"github.com/JakeFAU/pageindex/internal/storage/memory"
	"github.com/JakeFAU/pageindex/internal/storage/postgres"
	"github.com/JakeFAU/pageindex/internal/storage/sqlite"
	"github.com/JakeFAU/pageindex/internal/tokenizer"
	"github.com/JakeFAU/pageindex/internal/worker"
)

// Option overrides a collaborator that would otherwise be built from config.
type Option func(*App)

// WithTokenizer replaces the tiktoken tokenizer.
func WithTokenizer(t crawler.Tokenizer) Option {
	return func(a *App) { a.tokenizer = t }
}

// WithEmbedder replaces the embeddings API client.
func WithEmbedder(e crawler.Embedder) Option {
	return func(a *App) { a.embedder = e }
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithClock replaces the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// App holds the shared, long-lived services of one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  crawler.Clock
	ids    crawler.IDGenerator

	pages   crawler.PageStore
	vectors crawler.VectorStore
	sink    crawler.ErrorSink

	mu        sync.Mutex
	tokenizer crawler.Tokenizer
	embedder  crawler.Embedder
	fetcher   crawler.Fetcher

	pools   []*pgxpool.Pool
	closers []func() error
}

// New builds the stores and the error sink described by cfg. When
// cfg.Store.AutoMigrate is set, schemas are created before the vector codecs
// are registered.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	logger.Info("initializing application services",
		zap.String("store", cfg.Store.Driver),
		zap.String("vector", cfg.Vector.Driver),
		zap.String("errors", cfg.Errors.Sink),
	)

	var err error
	if a.pages, err = a.openPageStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.vectors, err = a.openVectorStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.sink, err = a.openErrorSink(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Pages returns the page store.
func (a *App) Pages() crawler.PageStore { return a.pages }

// Vectors returns the vector store.
func (a *App) Vectors() crawler.VectorStore { return a.vectors }

// ErrorSink returns the out-of-band error sink.
func (a *App) ErrorSink() crawler.ErrorSink { return a.sink }

// Seed inserts the configured seed URLs into an empty page store.
func (a *App) Seed(ctx context.Context) error {
	if err := a.pages.SeedIfEmpty(ctx); err != nil {
		return fmt.Errorf("seed pages: %w", err)
	}
	return nil
}

// Ready pings every database pool.
func (a *App) Ready(ctx context.Context) error {
	for _, pool := range a.pools {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
	}
	return nil
}

// Scheduler wires the crawl pipeline: fetcher, parser, chunker, embedder and
// stores behind a worker, driven by a scheduler.
func (a *App) Scheduler() (*dispatcher.Scheduler, error) {
	tok, err := a.getTokenizer()
	if err != nil {
		return nil, err
	}
	embedder, err := a.getEmbedder()
	if err != nil {
		return nil, err
	}
	format, err := parser.ParseTextFormat(a.cfg.Chunking.TextFormat)
	if err != nil {
		return nil, fmt.Errorf("text format: %w", err)
	}

	preparer := worker.NewPreparer(chunk.New(tok, a.cfg.Chunking.Size, a.cfg.Chunking.Overlap), format)
	w := worker.New(
		a.getFetcher(),
		preparer,
		a.pages,
		a.vectors,
		embedder,
		a.sink,
		a.clock,
		a.ids,
		worker.Config{BatchSize: a.cfg.Embedding.BatchSize},
		a.logger.Named("worker"),
	)
	return dispatcher.New(a.pages, w, a.clock, dispatcher.Config{
		Concurrency:  a.cfg.Crawler.Concurrency,
		RecrawlAfter: a.cfg.Crawler.RecrawlAfter,
	}, a.logger.Named("scheduler")), nil
}

// Searcher wires the read path.
func (a *App) Searcher() (*search.Service, error) {
	embedder, err := a.getEmbedder()
	if err != nil {
		return nil, err
	}
	svc, err := search.New(embedder, a.vectors, a.pages, search.Config{TopK: a.cfg.Search.TopK}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init search: %w", err)
	}
	return svc, nil
}

// Close releases every resource opened by New, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	a.pools = nil
	_ = a.logger.Sync()
}

func (a *App) getTokenizer() (crawler.Tokenizer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tokenizer == nil {
		tok, err := tokenizer.New(a.cfg.Tokenizer.Encoding)
		if err != nil {
			return nil, fmt.Errorf("init tokenizer: %w", err)
		}
		a.tokenizer = tok
	}
	return a.tokenizer, nil
}

func (a *App) getEmbedder() (crawler.Embedder, error) {
	a.mu.Lock()
	existing := a.embedder
	a.mu.Unlock()
	if existing != nil {
		return existing, nil
	}
	if a.cfg.Embedding.APIKey == "" {
		return nil, errors.New("init embedder: embedding.api_key is not set")
	}

	tok, err := a.getTokenizer()
	if err != nil {
		return nil, err
	}
	embedder, err := openaiembed.New(openaiembed.Config{
		APIKey:     a.cfg.Embedding.APIKey,
		BaseURL:    a.cfg.Embedding.BaseURL,
		Model:      a.cfg.Embedding.Model,
		Dimensions: a.cfg.Vector.Dimensions,
		TokenLimit: a.cfg.Embedding.TokenLimit,
	}, tok, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.embedder == nil {
		a.embedder = embedder
	}
	return a.embedder, nil
}

func (a *App) getFetcher() crawler.Fetcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:   a.cfg.Crawler.UserAgent,
			Timeout:     a.cfg.Crawler.RequestTimeout,
			MaxBodySize: a.cfg.Crawler.MaxBodyBytes,
		})
	}
	return a.fetcher
}

func (a *App) openPageStore(ctx context.Context) (crawler.PageStore, error) {
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		return memory.NewPageStore(a.cfg.Crawler.SeedURLs, a.clock), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{
			Path:     a.cfg.Store.SQLitePath,
			SeedURLs: a.cfg.Crawler.SeedURLs,
			Clock:    a.clock,
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite page store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.DriverPostgres:
		pool, err := a.openPool(ctx, a.cfg.Store.DSN, false)
		if err != nil {
			return nil, err
		}
		store, err := postgres.NewPageStore(pool, a.cfg.Crawler.SeedURLs)
		if err != nil {
			return nil, fmt.Errorf("init page store: %w", err)
		}
		if a.cfg.Store.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("migrate pages: %w", err)
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

func (a *App) openVectorStore(ctx context.Context) (crawler.VectorStore, error) {
	switch a.cfg.Vector.Driver {
	case config.DriverMemory:
		return memory.NewVectorStore(), nil
	case config.DriverPostgres:
		vcfg := postgres.VectorStoreConfig{Table: a.cfg.Vector.Table, Dimensions: a.cfg.Vector.Dimensions}
		if a.cfg.Store.AutoMigrate {
			if err := a.migrateVectors(ctx, vcfg); err != nil {
				return nil, err
			}
		}
		pool, err := a.openPool(ctx, a.cfg.Vector.DSN, true)
		if err != nil {
			return nil, err
		}
		store, err := postgres.NewVectorStore(pool, vcfg)
		if err != nil {
			return nil, fmt.Errorf("init vector store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vector driver %q", a.cfg.Vector.Driver)
	}
}

// migrateVectors runs on a pool without the vector codecs, which cannot be
// registered until the extension exists.
func (a *App) migrateVectors(ctx context.Context, vcfg postgres.VectorStoreConfig) error {
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: a.cfg.Vector.DSN})
	if err != nil {
		return fmt.Errorf("open migration pool: %w", err)
	}
	defer pool.Close()
	store, err := postgres.NewVectorStore(pool, vcfg)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("migrate vectors: %w", err)
	}
	return nil
}

func (a *App) openPool(ctx context.Context, dsn string, registerVector bool) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:            dsn,
		MaxConns:       a.cfg.Store.MaxConns,
		RegisterVector: registerVector,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	a.pools = append(a.pools, pool)
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	return pool, nil
}

func (a *App) openErrorSink(ctx context.Context) (crawler.ErrorSink, error) {
	var blobs crawler.BlobStore
	switch a.cfg.Errors.Sink {
	case config.SinkLog:
		return errorsink.NewLogSink(a.logger), nil
	case config.SinkMemory:
		blobs = memory.NewBlobStore()
	case config.SinkFile:
		store, err := local.New(local.Config{BaseDir: filepath.Clean(a.cfg.Errors.Dir)})
		if err != nil {
			return nil, fmt.Errorf("init error directory: %w", err)
		}
		blobs = store
	case config.SinkGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Errors.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs error store: %w", err)
		}
		blobs = store
	default:
		return nil, errors.New("unknown error sink " + a.cfg.Errors.Sink)
	}
	sink, err := errorsink.NewBlobSink(blobs, a.cfg.Errors.Prefix, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init error sink: %w", err)
	}
	return sink, nil
}
