package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.Page, 1)
	errCh := make(chan error, 1)

	go func() {
		page, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- page
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(context.Background(), crawler.Page{ID: 1, URL: "https://site.test/"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.ID != 1 {
			t.Fatalf("expected page 1, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return page")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), crawler.Page{ID: 1}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, crawler.Page{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCanceledContextWinsOverReadyItem(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), crawler.Page{ID: 1}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled dequeue, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected item to stay queued, len = %d", q.Len())
	}
}

func TestQueueCloseDrains(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	for id := int64(1); id <= 2; id++ {
		if err := q.Enqueue(context.Background(), crawler.Page{ID: id}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	q.Close()
	if err := q.Enqueue(context.Background(), crawler.Page{ID: 3}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	for want := int64(1); want <= 2; want++ {
		page, err := q.Dequeue(context.Background())
		if err != nil || page.ID != want {
			t.Fatalf("expected page %d, got %+v, %v", want, page, err)
		}
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
