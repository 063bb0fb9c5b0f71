// Package memory provides the bounded in-process page queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained, and
// by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan crawler.Page
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.Page, capacity),
	}
}

// Enqueue pushes a page into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, page crawler.Page) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- page:
		return nil
	}
}

// Dequeue pops the next page, respecting context cancellation. A canceled
// context wins over a ready item.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Page, error) {
	if err := ctx.Err(); err != nil {
		return crawler.Page{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return crawler.Page{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case page, ok := <-q.ch:
		if !ok {
			return crawler.Page{}, ErrClosed
		}
		return page, nil
	}
}

// Len reports the number of pages waiting in the queue.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel. Pages already queued can still be
// dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
