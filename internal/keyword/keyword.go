// Package keyword provides keyword search over journal entries.
package keyword

import (
	"context"

	"github.com/hyperjump/kiroku/internal/models"
)

// Options are optional parameters for keyword search. Nil means use defaults.
type Options struct {
	// TagBoost multiplies the score contribution from matches in tag names.
	// Values > 1 make tag matches rank higher (e.g. 2.0). Use 1.0 for no boost.
	TagBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
}

// Index defines keyword search operations over entries.
type Index interface {
	IndexEntry(ctx context.Context, entry *models.Entry) error
	Search(ctx context.Context, query string, limit int, opts *Options) ([]*Result, error)
	// Suggest returns a corrected query when the given one looks misspelled,
	// or an empty string when no better spelling is known.
	Suggest(query string) string
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}
