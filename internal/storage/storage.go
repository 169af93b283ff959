// Package storage defines the persistence interface for entries and embeddings.
package storage

import (
	"context"

	"github.com/hyperjump/kiroku/internal/models"
)

// Storage defines entry and embedding persistence operations.
type Storage interface {
	// Entry operations
	CreateEntry(ctx context.Context, entry *models.Entry) error
	GetEntry(ctx context.Context, id string) (*models.Entry, error)
	ListEntries(ctx context.Context, offset, limit int) ([]*models.Entry, error)
	UpdateEntryTags(ctx context.Context, id string, tags []models.Tag) error
	// DeleteEntry removes the entry and its embedding in one transaction.
	DeleteEntry(ctx context.Context, id string) error
	CountEntries(ctx context.Context) (int64, error)

	// Embedding operations
	// UpsertEmbedding replaces any existing vector for the entry and refreshes
	// its timestamp. Idempotent.
	UpsertEmbedding(ctx context.Context, entryID string, vector []float32, chunkCount int) error
	GetEmbedding(ctx context.Context, entryID string) (*models.Embedding, error)
	DeleteEmbedding(ctx context.Context, entryID string) error
	// ListEmbedded returns up to limit entries joined with their vectors,
	// newest entries first.
	ListEmbedded(ctx context.Context, limit int) ([]*models.EmbeddedEntry, error)
	// ListUnembedded returns entries that have no embedding row.
	ListUnembedded(ctx context.Context) ([]*models.Entry, error)
	CountEmbeddings(ctx context.Context) (int64, error)

	// Stats
	CountBySource(ctx context.Context) (map[string]int, error)
	TopTags(ctx context.Context, limit int) ([]models.TagCount, error)

	Close() error
}
