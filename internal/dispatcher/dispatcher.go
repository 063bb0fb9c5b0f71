// Package dispatcher drives one crawl run: it snapshots the frontier and fans
// the pages out to a bounded pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageindex/internal/clock/system"
	"github.com/JakeFAU/pageindex/internal/crawler"
	"github.com/JakeFAU/pageindex/internal/metrics"
	"github.com/JakeFAU/pageindex/internal/queue/memory"
)

const defaultConcurrency = 50

// ErrAlreadyRunning is returned when Run is called while a run is in progress.
var ErrAlreadyRunning = errors.New("crawl run already in progress")

// Processor runs the pipeline for a single page.
type Processor interface {
	Process(ctx context.Context, page crawler.Page) crawler.Outcome
}

// Config controls Scheduler behavior.
type Config struct {
	// Concurrency caps the number of pages processed at once.
	Concurrency  int
	RecrawlAfter time.Duration
}

// RunSummary aggregates one completed run.
type RunSummary struct {
	Frontier    int           `json:"frontier"`
	Seeded      bool          `json:"seeded"`
	Dispatched  int           `json:"dispatched"`
	Completed   int           `json:"completed"`
	Crawled     int           `json:"crawled"`
	Invalid     int           `json:"invalid"`
	Errored     int           `json:"errored"`
	Interrupted bool          `json:"interrupted"`
	Duration    time.Duration `json:"duration"`
}

// Status is a point-in-time view of the scheduler for operators.
type Status struct {
	Running      bool `json:"running"`
	ShuttingDown bool `json:"shutting_down"`
	QueueDepth   int  `json:"queue_depth"`
	InFlight     int  `json:"in_flight"`
	Dispatched   int  `json:"dispatched"`
	Completed    int  `json:"completed"`
	Crawled      int  `json:"crawled"`
	Invalid      int  `json:"invalid"`
	Errored      int  `json:"errored"`
}

// Scheduler runs crawl passes over the page store frontier.
type Scheduler struct {
	pages     crawler.PageStore
	processor Processor
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger

	running      atomic.Bool
	shuttingDown atomic.Bool
	queueDepth   atomic.Int64
	inFlight     atomic.Int64
	dispatched   atomic.Int64
	completed    atomic.Int64
	crawled      atomic.Int64
	invalid      atomic.Int64
	errored      atomic.Int64
}

// New creates a Scheduler.
func New(pages crawler.PageStore, processor Processor, clock crawler.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	metrics.Init()
	return &Scheduler{
		pages:     pages,
		processor: processor,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run performs one crawl pass and blocks until the frontier snapshot taken at
// start is drained. Pages discovered during the run wait for the next one.
// Canceling ctx stops new dispatches; pages already in flight finish with a
// context that is no longer canceled. Per-page failures never fail the run.
func (s *Scheduler) Run(ctx context.Context) (RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunSummary{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)
	s.reset()

	start := s.clock.Now()
	frontier, seeded, err := s.loadFrontier(ctx, start)
	if err != nil {
		return RunSummary{}, err
	}

	queue := memory.NewQueue(len(frontier))
	for _, page := range frontier {
		// Capacity matches the snapshot, so this never blocks.
		if err := queue.Enqueue(context.Background(), page); err != nil {
			return RunSummary{}, fmt.Errorf("enqueue page %d: %w", page.ID, err)
		}
	}
	queue.Close()
	s.setQueueDepth(queue.Len())

	stop := context.AfterFunc(ctx, func() {
		s.shuttingDown.Store(true)
		s.logger.Info("shutdown requested, finishing in-flight pages",
			zap.Int64("in_flight", s.inFlight.Load()),
			zap.Int64("queue_depth", s.queueDepth.Load()),
		)
	})
	defer stop()

	workers := min(s.cfg.Concurrency, len(frontier))
	s.logger.Info("crawl run started",
		zap.Int("frontier", len(frontier)),
		zap.Bool("seeded", seeded),
		zap.Int("workers", workers),
	)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWorker(ctx, queue)
		}()
	}
	wg.Wait()
	s.setQueueDepth(0)

	summary := RunSummary{
		Frontier:   len(frontier),
		Seeded:     seeded,
		Dispatched: int(s.dispatched.Load()),
		Completed:  int(s.completed.Load()),
		Crawled:    int(s.crawled.Load()),
		Invalid:    int(s.invalid.Load()),
		Errored:    int(s.errored.Load()),
		Duration:   s.clock.Now().Sub(start),
	}
	summary.Interrupted = summary.Completed < summary.Frontier

	s.logger.Info("crawl run finished",
		zap.Int("frontier", summary.Frontier),
		zap.Int("completed", summary.Completed),
		zap.Int("crawled", summary.Crawled),
		zap.Int("invalid", summary.Invalid),
		zap.Int("errored", summary.Errored),
		zap.Bool("interrupted", summary.Interrupted),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// Status reports queue depth, in-flight count and per-outcome counters of the
// current or most recent run.
func (s *Scheduler) Status() Status {
	return Status{
		Running:      s.running.Load(),
		ShuttingDown: s.shuttingDown.Load(),
		QueueDepth:   int(s.queueDepth.Load()),
		InFlight:     int(s.inFlight.Load()),
		Dispatched:   int(s.dispatched.Load()),
		Completed:    int(s.completed.Load()),
		Crawled:      int(s.crawled.Load()),
		Invalid:      int(s.invalid.Load()),
		Errored:      int(s.errored.Load()),
	}
}

func (s *Scheduler) loadFrontier(ctx context.Context, now time.Time) ([]crawler.Page, bool, error) {
	pages, err := s.pages.ListEligiblePages(ctx, now, s.cfg.RecrawlAfter)
	if err != nil {
		return nil, false, fmt.Errorf("list eligible pages: %w", err)
	}
	if len(pages) > 0 {
		return pages, false, nil
	}

	s.logger.Info("frontier empty, seeding page store")
	if err := s.pages.SeedIfEmpty(ctx); err != nil {
		return nil, false, fmt.Errorf("seed page store: %w", err)
	}
	pages, err = s.pages.ListEligiblePages(ctx, now, s.cfg.RecrawlAfter)
	if err != nil {
		return nil, false, fmt.Errorf("list eligible pages after seeding: %w", err)
	}
	return pages, true, nil
}

func (s *Scheduler) runWorker(ctx context.Context, queue *memory.Queue) {
	for {
		page, err := queue.Dequeue(ctx)
		if err != nil {
			return
		}
		s.setQueueDepth(queue.Len())
		inFlight := s.inFlight.Add(1)
		metrics.IncInFlight()
		s.dispatched.Add(1)
		s.logger.Info("page dispatched",
			zap.Int64("page_id", page.ID),
			zap.String("url", page.URL),
			zap.Int64("queue_depth", s.queueDepth.Load()),
			zap.Int64("in_flight", inFlight),
		)

		outcome := s.processor.Process(context.WithoutCancel(ctx), page)

		inFlight = s.inFlight.Add(-1)
		metrics.DecInFlight()
		s.completed.Add(1)
		s.count(outcome.Kind)
		s.logger.Info("page finished",
			zap.Int64("page_id", page.ID),
			zap.String("url", page.URL),
			zap.String("outcome", string(outcome.Kind)),
			zap.Int64("queue_depth", s.queueDepth.Load()),
			zap.Int64("in_flight", inFlight),
		)
	}
}

func (s *Scheduler) count(kind crawler.OutcomeKind) {
	switch kind {
	case crawler.OutcomeCrawled:
		s.crawled.Add(1)
	case crawler.OutcomeInvalid:
		s.invalid.Add(1)
	case crawler.OutcomeErrored:
		s.errored.Add(1)
	}
}

func (s *Scheduler) setQueueDepth(n int) {
	s.queueDepth.Store(int64(n))
	metrics.SetQueueDepth(n)
}

func (s *Scheduler) reset() {
	s.shuttingDown.Store(false)
	s.queueDepth.Store(0)
	s.inFlight.Store(0)
	s.dispatched.Store(0)
	s.completed.Store(0)
	s.crawled.Store(0)
	s.invalid.Store(0)
	s.errored.Store(0)
}
