package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/extract"
	"github.com/hyperjump/kiroku/internal/fileid"
	"github.com/hyperjump/kiroku/internal/keyword"
	"github.com/hyperjump/kiroku/internal/models"
	"github.com/hyperjump/kiroku/internal/storage"
)

// Enqueuer schedules background embedding for an entry.
type Enqueuer interface {
	Enqueue(entryID string)
}

// Importer turns journal files into entries. File paths map to deterministic
// entry IDs, so re-importing a changed file replaces its entry.
type Importer struct {
	storage   storage.Storage
	extractor *extract.Extractor
	index     keyword.Index
	embedder  Enqueuer
	logger    *zap.Logger
}

// NewImporter creates an importer. index and embedder may be nil (CLI import
// without a running index or worker).
func NewImporter(store storage.Storage, extractor *extract.Extractor, index keyword.Index, embedder Enqueuer, logger *zap.Logger) *Importer {
	return &Importer{
		storage:   store,
		extractor: extractor,
		index:     index,
		embedder:  embedder,
		logger:    logger,
	}
}

// ImportFile extracts the file's text and stores it as an entry with source
// "imported". An existing entry for the same path is replaced, which also
// drops its stale embedding until the worker recomputes it.
func (im *Importer) ImportFile(ctx context.Context, path string) (*models.Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	text, err := im.extractor.Extract(abs)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", abs, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no text content in %s", abs)
	}

	id := fileid.EntryID(abs)
	if _, err := im.storage.GetEntry(ctx, id); err == nil {
		if err := im.storage.DeleteEntry(ctx, id); err != nil {
			return nil, fmt.Errorf("replace entry: %w", err)
		}
	}

	entry := &models.Entry{
		ID:      id,
		Content: text,
		Source:  models.SourceImported,
		Summary: filepath.Base(abs),
	}
	if err := im.storage.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	if im.index != nil {
		if err := im.index.IndexEntry(ctx, entry); err != nil {
			im.logger.Warn("keyword indexing failed", zap.String("path", abs), zap.Error(err))
		}
	}
	if im.embedder != nil {
		im.embedder.Enqueue(entry.ID)
	}
	im.logger.Info("imported journal file",
		zap.String("path", abs), zap.String("entry_id", entry.ID))
	return entry, nil
}

// RemoveFile deletes the entry imported from path, if any.
func (im *Importer) RemoveFile(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	id := fileid.EntryID(abs)
	if _, err := im.storage.GetEntry(ctx, id); err != nil {
		return nil
	}
	if err := im.storage.DeleteEntry(ctx, id); err != nil {
		return err
	}
	if im.index != nil {
		if err := im.index.Delete(ctx, id); err != nil {
			im.logger.Warn("keyword delete failed", zap.String("path", abs), zap.Error(err))
		}
	}
	im.logger.Info("removed imported entry", zap.String("path", abs), zap.String("entry_id", id))
	return nil
}

// ImportDir imports every matching file under root. Returns the number of
// files imported; individual failures are logged and skipped.
func (im *Importer) ImportDir(ctx context.Context, root string, extensions []string) (int, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return 0, err
	}
	count := 0
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !matchExtension(path, extensions) {
			return nil
		}
		if _, importErr := im.ImportFile(ctx, path); importErr != nil {
			im.logger.Warn("import failed", zap.String("path", path), zap.Error(importErr))
			return nil
		}
		count++
		return nil
	})
	return count, err
}
