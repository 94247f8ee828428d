package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ali-Hamza-007/Ring-Search-System/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "meta.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_UpsertGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &models.EntryMetadata{
		Name:        "ring_001.png",
		SourcePath:  "/data/rings/ring_001.png",
		SourceMtime: time.Now().Add(-time.Hour).UnixNano(),
		SourceSize:  12345,
	}
	if err := store.UpsertEntry(ctx, entry); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("UpsertEntry should assign an ID")
	}

	got, err := store.GetEntry(ctx, "ring_001.png")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SourcePath != entry.SourcePath || got.SourceSize != 12345 {
		t.Errorf("got %+v, want source fields preserved", got)
	}
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &models.EntryMetadata{Name: "x.png", SourcePath: "/a/x.png", SourceMtime: time.Now().UnixNano(), SourceSize: 1}
	if err := store.UpsertEntry(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &models.EntryMetadata{Name: "x.png", SourcePath: "/b/x.png", SourceMtime: time.Now().UnixNano(), SourceSize: 2}
	if err := store.UpsertEntry(ctx, second); err != nil {
		t.Fatal(err)
	}

	count, err := store.CountEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count=%d, want 1 after upsert of same name", count)
	}
	got, err := store.GetEntry(ctx, "x.png")
	if err != nil {
		t.Fatal(err)
	}
	if got.SourcePath != "/b/x.png" || got.SourceSize != 2 {
		t.Errorf("got %+v, want replaced source fields", got)
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetEntry(context.Background(), "nope.png"); err == nil {
		t.Error("expected error for missing entry")
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &models.EntryMetadata{Name: "gone.png", SourcePath: "/g.png", SourceMtime: time.Now().UnixNano(), SourceSize: 9}
	if err := store.UpsertEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteEntry(ctx, "gone.png"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetEntry(ctx, "gone.png"); err == nil {
		t.Error("entry should be gone after delete")
	}
	// Deleting a missing entry is not an error.
	if err := store.DeleteEntry(ctx, "never.png"); err != nil {
		t.Errorf("delete of missing entry: %v", err)
	}
}

func TestSQLiteStore_ListAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	names := []string{"a.png", "b.png", "c.png"}
	for _, name := range names {
		entry := &models.EntryMetadata{Name: name, SourcePath: "/" + name, SourceMtime: time.Now().UnixNano(), SourceSize: 1}
		if err := store.UpsertEntry(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}

	count, err := store.CountEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count=%d, want 3", count)
	}

	entries, err := store.ListEntries(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}
