package memory

import (
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "errors/error-1.json", "application/json", payload)
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://errors/error-1.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Object("errors/error-1.json")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if paths := store.Paths(); len(paths) != 1 || paths[0] != "errors/error-1.json" {
		t.Fatalf("unexpected paths %v", paths)
	}
	if _, ok := store.Object("missing"); ok {
		t.Fatal("expected missing object")
	}
}
