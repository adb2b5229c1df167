package localkv

import (
	"context"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSetGetRoundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetItem(ctx, "guest_spin:device-1", `{"lastSpinAt":"2025-03-10T12:00:00Z"}`); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}

	got, err := store.GetItem(ctx, "guest_spin:device-1")
	if err != nil {
		t.Fatalf("GetItem() error: %v", err)
	}
	if got != `{"lastSpinAt":"2025-03-10T12:00:00Z"}` {
		t.Errorf("GetItem() = %q", got)
	}
}

func TestSetOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetItem(ctx, "k", "first"); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}
	if err := store.SetItem(ctx, "k", "second"); err != nil {
		t.Fatalf("SetItem() overwrite error: %v", err)
	}

	got, err := store.GetItem(ctx, "k")
	if err != nil {
		t.Fatalf("GetItem() error: %v", err)
	}
	if got != "second" {
		t.Errorf("GetItem() = %q, want %q", got, "second")
	}
}

func TestGetMissingKey(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetItem(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem() error = %v, want ErrNotFound", err)
	}
}

func TestRemoveItem(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetItem(ctx, "k", "v"); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}
	if err := store.RemoveItem(ctx, "k"); err != nil {
		t.Fatalf("RemoveItem() error: %v", err)
	}
	if _, err := store.GetItem(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem() after remove error = %v, want ErrNotFound", err)
	}

	// Removing a key that never existed is fine.
	if err := store.RemoveItem(ctx, "never-there"); err != nil {
		t.Errorf("RemoveItem() on missing key error: %v", err)
	}
}
