package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/models"
	"github.com/hyperjump/kiroku/internal/provider"
	"github.com/hyperjump/kiroku/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createEntry(t *testing.T, store storage.Storage, id, content string) *models.Entry {
	t.Helper()
	entry := &models.Entry{ID: id, Content: content, Source: models.SourceManual}
	if err := store.CreateEntry(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	return entry
}

func waitForEmbedding(t *testing.T, store storage.Storage, entryID string) *models.Embedding {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		emb, err := store.GetEmbedding(context.Background(), entryID)
		if err == nil {
			return emb
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("embedding for %s never appeared", entryID)
	return nil
}

func TestEmbedderStoresVector(t *testing.T) {
	store := newTestStorage(t)
	entry := createEntry(t, store, "e1", "learned about goroutine leaks today")

	w := NewEmbedder(store, provider.NewMockClient(8), zap.NewNop())
	w.Start()
	defer w.Stop()

	w.Enqueue(entry.ID)

	emb := waitForEmbedding(t, store, entry.ID)
	if len(emb.Vector) != 8 {
		t.Errorf("vector length = %d, want 8", len(emb.Vector))
	}
	if emb.ChunkCount < 1 {
		t.Errorf("chunk count = %d, want >= 1", emb.ChunkCount)
	}
}

func TestEmbedderIgnoresDeletedEntry(t *testing.T) {
	store := newTestStorage(t)
	entry := createEntry(t, store, "e1", "ephemeral note")
	if err := store.DeleteEntry(context.Background(), entry.ID); err != nil {
		t.Fatal(err)
	}

	w := NewEmbedder(store, provider.NewMockClient(8), zap.NewNop())
	w.Start()
	defer w.Stop()

	w.Enqueue(entry.ID)

	// Give the worker a moment; it should simply skip the missing entry.
	time.Sleep(100 * time.Millisecond)
	if _, err := store.GetEmbedding(context.Background(), entry.ID); err == nil {
		t.Error("embedding stored for a deleted entry")
	}
}

func TestEmbedderStopIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	w := NewEmbedder(store, provider.NewMockClient(8), zap.NewNop())
	w.Start()
	w.Stop()
	w.Stop()
}
