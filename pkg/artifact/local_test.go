package artifact

import (
	"context"
	"errors"
	"testing"
)

func TestLocalStorePutGetDeleteExists(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Put(ctx, "productions/p1/frames/0001.png", []byte("frame-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref.Scheme() != "local" {
		t.Fatalf("expected local scheme, got %q", ref.Scheme())
	}

	got, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "frame-bytes" {
		t.Fatalf("got %q", got)
	}

	exists, err := store.Exists(ctx, ref)
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v, want true, nil", exists, err)
	}

	deleted, err := store.Delete(ctx, ref)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v, want true, nil", deleted, err)
	}

	// Second delete is a no-op, not an error.
	deleted, err = store.Delete(ctx, ref)
	if err != nil || deleted {
		t.Fatalf("second Delete = %v, %v, want false, nil", deleted, err)
	}

	if _, err := store.Get(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestLocalStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape", []byte("x"), ""); err == nil {
		t.Fatal("expected error for path traversal key")
	}
}

func TestLocalStorePutOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	ref1, err := store.Put(ctx, "k", []byte("v1"), "")
	if err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	ref2, err := store.Put(ctx, "k", []byte("v2"), "")
	if err != nil {
		t.Fatalf("Put v2: %v", err)
	}
	if ref1 != ref2 {
		t.Fatalf("expected idempotent ref, got %q vs %q", ref1, ref2)
	}
	got, err := store.Get(ctx, ref2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("got %q, want v2", got)
	}
}
