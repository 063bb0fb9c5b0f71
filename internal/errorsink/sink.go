// Package errorsink records unexpected per-page failures outside the crawl loop.
package errorsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageindex/internal/crawler"
	"github.com/JakeFAU/pageindex/internal/logging"
)

const defaultPrefix = "errors"

// BlobSink writes each record as an indented JSON object through a BlobStore.
type BlobSink struct {
	store  crawler.BlobStore
	prefix string
	logger *zap.Logger
}

// NewBlobSink builds a BlobSink writing under prefix ("errors" when empty).
func NewBlobSink(store crawler.BlobStore, prefix string, logger *zap.Logger) (*BlobSink, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &BlobSink{store: store, prefix: prefix, logger: logging.Component(logger, "errorsink")}, nil
}

// Record implements crawler.ErrorSink.
func (s *BlobSink) Record(ctx context.Context, record crawler.ErrorRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode error record: %w", err)
	}
	uri, err := s.store.PutObject(ctx, ObjectPath(s.prefix, record), "application/json", data)
	if err != nil {
		return fmt.Errorf("store error record: %w", err)
	}
	s.logger.Debug("error record stored", zap.String("uri", uri), zap.String("record_id", record.ID))
	return nil
}

// ObjectPath names the blob for record: <prefix>/error-<RFC3339Nano>-<id>.json.
func ObjectPath(prefix string, record crawler.ErrorRecord) string {
	name := "error-" + record.OccurredAt.UTC().Format(time.RFC3339Nano)
	if record.ID != "" {
		name += "-" + record.ID
	}
	return path.Join(prefix, name+".json")
}

// LogSink writes each record as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.Component(logger, "errorsink")}
}

// Record implements crawler.ErrorSink.
func (s *LogSink) Record(_ context.Context, record crawler.ErrorRecord) error {
	s.logger.Error("page error",
		zap.String("record_id", record.ID),
		zap.Int64("page_id", record.PageID),
		zap.String("url", record.URL),
		zap.String("stage", string(record.Stage)),
		zap.String("message", record.Message),
		zap.Strings("chain", record.Chain),
		zap.Time("occurred_at", record.OccurredAt),
	)
	return nil
}

// Multi fans a record out to every sink.
type Multi []crawler.ErrorSink

// Record implements crawler.ErrorSink. Every sink is tried; failures are joined.
func (m Multi) Record(ctx context.Context, record crawler.ErrorRecord) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
