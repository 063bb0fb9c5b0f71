package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pageindex/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl pass over the eligible pages",
		Long: `Loads the eligible frontier once, seeding it when the page store is empty,
and processes every page with bounded concurrency. SIGINT or SIGTERM stops
dispatching new pages; pages already in flight finish first.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	scheduler, err := appInstance.Scheduler()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.Server.Port > 0 {
		var searcher api.Searcher
		if svc, err := appInstance.Searcher(); err == nil {
			searcher = svc
		}
		srv = &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewServer(api.Options{
				Status:   scheduler,
				Searcher: searcher,
				Ready:    appInstance.Ready,
			}, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	// The server outlives cancellation of ctx: it stops once the run returns.
	runDone := make(chan struct{})
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	if srv != nil {
		g.Go(func() error {
			logger.Info("ops server started", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				stop()
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-runDone:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("ops server shutdown: %w", err)
			}
			return nil
		})
	}

	summary, runErr := scheduler.Run(ctx)
	close(runDone)
	if err := g.Wait(); err != nil {
		logger.Error("ops server failed", zap.Error(err))
	}
	if runErr != nil {
		return fmt.Errorf("crawl: %w", runErr)
	}

	logger.Info("crawl finished",
		zap.Int("frontier", summary.Frontier),
		zap.Bool("seeded", summary.Seeded),
		zap.Int("crawled", summary.Crawled),
		zap.Int("invalid", summary.Invalid),
		zap.Int("errored", summary.Errored),
		zap.Bool("interrupted", summary.Interrupted),
		zap.Duration("duration", summary.Duration),
	)
	return nil
}
