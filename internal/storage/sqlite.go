// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kiroku/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS logs (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		tags_json TEXT,
		source TEXT NOT NULL DEFAULT 'manual',
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);

	CREATE TABLE IF NOT EXISTS log_embeddings (
		log_id TEXT PRIMARY KEY,
		embedding TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (log_id) REFERENCES logs(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateEntry inserts an entry. The timestamp is set to now when zero.
func (s *SQLiteStorage) CreateEntry(ctx context.Context, entry *models.Entry) error {
	tagsJSON, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO logs (id, content, timestamp, tags_json, source, summary)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Content, entry.Timestamp, string(tagsJSON), string(entry.Source), entry.Summary,
	)
	return err
}

// GetEntry returns an entry by ID.
func (s *SQLiteStorage) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, timestamp, tags_json, source, summary FROM logs WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry not found: %s", id)
	}
	return entry, err
}

// ListEntries returns entries newest first, with offset and limit.
func (s *SQLiteStorage) ListEntries(ctx context.Context, offset, limit int) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, timestamp, tags_json, source, summary
		 FROM logs ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// UpdateEntryTags replaces the tag list for an entry. Content stays immutable;
// only asynchronous classification augments tags after creation.
func (s *SQLiteStorage) UpdateEntryTags(ctx context.Context, id string, tags []models.Tag) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE logs SET tags_json = ? WHERE id = ?`, string(tagsJSON), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("entry not found: %s", id)
	}
	return nil
}

// DeleteEntry removes an entry and its embedding in one transaction.
func (s *SQLiteStorage) DeleteEntry(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM log_embeddings WHERE log_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM logs WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete entry: %w", err)
	}
	return tx.Commit()
}

// CountEntries returns the total entry count.
func (s *SQLiteStorage) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&count)
	return count, err
}

// UpsertEmbedding writes the vector for an entry, replacing any existing row.
func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, entryID string, vector []float32, chunkCount int) error {
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to marshal vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO log_embeddings (log_id, embedding, chunk_count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(log_id) DO UPDATE SET
		   embedding = excluded.embedding,
		   chunk_count = excluded.chunk_count,
		   updated_at = excluded.updated_at`,
		entryID, string(vectorJSON), chunkCount, time.Now(),
	)
	return err
}

// GetEmbedding returns the stored embedding for an entry.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, entryID string) (*models.Embedding, error) {
	var emb models.Embedding
	var vectorJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT log_id, embedding, chunk_count, updated_at FROM log_embeddings WHERE log_id = ?`,
		entryID,
	).Scan(&emb.EntryID, &vectorJSON, &emb.ChunkCount, &emb.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("embedding not found: %s", entryID)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(vectorJSON), &emb.Vector); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vector: %w", err)
	}
	return &emb, nil
}

// DeleteEmbedding removes the embedding row for an entry.
func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, entryID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM log_embeddings WHERE log_id = ?`, entryID)
	return err
}

// ListEmbedded returns up to limit entries joined with their vectors, newest first.
func (s *SQLiteStorage) ListEmbedded(ctx context.Context, limit int) ([]*models.EmbeddedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.content, l.timestamp, l.tags_json, l.source, l.summary, le.embedding
		 FROM log_embeddings le
		 JOIN logs l ON le.log_id = l.id
		 ORDER BY l.timestamp DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.EmbeddedEntry
	for rows.Next() {
		var entry models.Entry
		var tagsJSON, summary sql.NullString
		var vectorJSON string
		var source string
		if err := rows.Scan(&entry.ID, &entry.Content, &entry.Timestamp, &tagsJSON, &source, &summary, &vectorJSON); err != nil {
			return nil, err
		}
		entry.Source = models.Source(source)
		entry.Summary = summary.String
		if tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &entry.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}
		var vector []float32
		if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vector: %w", err)
		}
		result = append(result, &models.EmbeddedEntry{Entry: &entry, Vector: vector})
	}
	return result, rows.Err()
}

// ListUnembedded returns entries with no embedding row (left anti-join), oldest first
// so the batch job processes the backlog in creation order.
func (s *SQLiteStorage) ListUnembedded(ctx context.Context) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.content, l.timestamp, l.tags_json, l.source, l.summary
		 FROM logs l
		 LEFT JOIN log_embeddings le ON le.log_id = l.id
		 WHERE le.log_id IS NULL
		 ORDER BY l.timestamp ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountEmbeddings returns the total embedding count.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_embeddings`).Scan(&count)
	return count, err
}

// CountBySource counts embedded entries per source label.
func (s *SQLiteStorage) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.source, COUNT(*)
		 FROM log_embeddings le JOIN logs l ON le.log_id = l.id
		 GROUP BY l.source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		result[source] = count
	}
	return result, rows.Err()
}

// TopTags returns the most frequent tag names across embedded entries.
// Tags live in a JSON column, so counting happens here rather than in SQL.
func (s *SQLiteStorage) TopTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.tags_json FROM log_embeddings le JOIN logs l ON le.log_id = l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tagsJSON sql.NullString
		if err := rows.Scan(&tagsJSON); err != nil {
			return nil, err
		}
		if tagsJSON.String == "" {
			continue
		}
		var tags []models.Tag
		if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err != nil {
			continue
		}
		for _, tag := range tags {
			counts[tag.Name]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]models.TagCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, models.TagCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var entry models.Entry
	var tagsJSON, summary sql.NullString
	var source string
	if err := row.Scan(&entry.ID, &entry.Content, &entry.Timestamp, &tagsJSON, &source, &summary); err != nil {
		return nil, err
	}
	entry.Source = models.Source(source)
	entry.Summary = summary.String
	if tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &entry.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return &entry, nil
}
