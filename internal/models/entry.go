// Package models defines core data structures for journal entries, embeddings, and the graph.
package models

import "time"

// Source identifies how an entry was created.
type Source string

const (
	// SourceManual is an entry submitted directly by the user.
	SourceManual Source = "manual"
	// SourceImported is an entry created by the file import job.
	SourceImported Source = "imported"
)

// TagCategory is the closed set of tag categories.
type TagCategory string

const (
	CategoryLanguage  TagCategory = "Language"
	CategoryFramework TagCategory = "Framework"
	CategoryConcept   TagCategory = "Concept"
	CategoryTask      TagCategory = "Task"
	CategoryOther     TagCategory = "Other"
)

// ValidCategory reports whether c is one of the known tag categories.
func ValidCategory(c TagCategory) bool {
	switch c {
	case CategoryLanguage, CategoryFramework, CategoryConcept, CategoryTask, CategoryOther:
		return true
	}
	return false
}

// Tag is a name plus a category from the closed set.
type Tag struct {
	Name     string      `json:"name"`
	Category TagCategory `json:"category"`
}

// Entry is a single journaled text record. Content is immutable after creation;
// tags may be augmented later by asynchronous classification.
type Entry struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // epoch millis
	Tags      []Tag  `json:"tags"`
	Source    Source `json:"source"`
	Summary   string `json:"summary,omitempty"`
}

// EntryInput is the input for creating an entry.
type EntryInput struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content" validate:"required,min=1"`
	Tags    []Tag  `json:"tags,omitempty" validate:"dive"`
	Source  Source `json:"source,omitempty" validate:"omitempty,oneof=manual imported"`
}

// Embedding is the stored vector for one entry. At most one row per entry
// (upsert semantics); deleted together with its entry.
type Embedding struct {
	EntryID    string    `json:"entry_id"`
	Vector     []float32 `json:"vector"`
	ChunkCount int       `json:"chunk_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EmbeddedEntry is an entry joined with its stored vector.
type EmbeddedEntry struct {
	Entry  *Entry
	Vector []float32
}
