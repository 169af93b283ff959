package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kiroku/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func indexEntry(t *testing.T, idx *BleveIndex, id, content string, tags ...string) {
	t.Helper()
	entry := &models.Entry{ID: id, Content: content, Source: models.SourceManual}
	for _, name := range tags {
		entry.Tags = append(entry.Tags, models.Tag{Name: name, Category: models.CategoryConcept})
	}
	if err := idx.IndexEntry(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
}

func TestBleveIndex_SearchContent(t *testing.T) {
	idx := newTestIndex(t)
	indexEntry(t, idx, "e1", "Debugged a goroutine leak in the websocket hub")
	indexEntry(t, idx, "e2", "Wrote release notes for the parser")

	results, err := idx.Search(context.Background(), "goroutine", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "e1" {
		t.Errorf("got %+v, want e1", results)
	}
}

func TestBleveIndex_SearchTags(t *testing.T) {
	idx := newTestIndex(t)
	indexEntry(t, idx, "e1", "Fixed the off by one in pagination", "Go")
	indexEntry(t, idx, "e2", "Read about CRDTs", "distributed-systems")

	results, err := idx.Search(context.Background(), "Go", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "e1" {
		t.Errorf("got %+v, want e1", results)
	}
}

func TestBleveIndex_TagBoostRanksTagMatchFirst(t *testing.T) {
	idx := newTestIndex(t)
	// e1 mentions docker once in content; e2 carries it as a tag.
	indexEntry(t, idx, "e1", "Spent the morning fighting docker networking")
	indexEntry(t, idx, "e2", "Containerized the ingest service", "docker")

	results, err := idx.Search(context.Background(), "docker", 10, &Options{TagBoost: 3.0})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "e2" {
		t.Errorf("tag match should rank first, got %s", results[0].ID)
	}
}

func TestBleveIndex_CoveragePenalizesPartialMatches(t *testing.T) {
	idx := newTestIndex(t)
	indexEntry(t, idx, "both", "profiled the scheduler under load, scheduler latency dropped")
	indexEntry(t, idx, "partial", "latency graphs look fine")

	results, err := idx.Search(context.Background(), "scheduler latency", 10, &Options{TagBoost: 2.0})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) < 2 {
		t.Fatalf("expected both entries, got %d", len(results))
	}
	if results[0].ID != "both" {
		t.Errorf("full-coverage entry should rank first, got %s", results[0].ID)
	}
}

func TestBleveIndex_FuzzySearch(t *testing.T) {
	idx := newTestIndex(t)
	indexEntry(t, idx, "e1", "kubernetes upgrade went smoothly")

	// No hits without fuzzy for the typo.
	results, err := idx.Search(context.Background(), "kuberntes", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("exact search should miss the typo, got %+v", results)
	}

	results, err = idx.Search(context.Background(), "kuberntes", 10, &Options{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "e1" {
		t.Errorf("fuzzy search should find e1, got %+v", results)
	}
}

func TestBleveIndex_Suggest(t *testing.T) {
	idx := newTestIndex(t)
	indexEntry(t, idx, "e1", "postgres migration checklist")

	if got := idx.Suggest("postgers"); got != "postgres" {
		t.Errorf("Suggest = %q, want %q", got, "postgres")
	}
	if got := idx.Suggest("postgres"); got != "" {
		t.Errorf("known term should yield no suggestion, got %q", got)
	}
	if got := idx.Suggest("zzzzzzzzzz"); got != "" {
		t.Errorf("hopeless term should yield no suggestion, got %q", got)
	}
}

func TestBleveIndex_DeleteAndCount(t *testing.T) {
	idx := newTestIndex(t)
	indexEntry(t, idx, "e1", "first note")
	indexEntry(t, idx, "e2", "second note")

	count, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	if err := idx.Delete(context.Background(), "e1"); err != nil {
		t.Fatal(err)
	}
	count, _ = idx.DocCount()
	if count != 1 {
		t.Errorf("count after delete = %d, want 1", count)
	}

	results, err := idx.Search(context.Background(), "first", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("deleted entry still searchable: %+v", results)
	}
}

func TestBleveIndex_ReopenExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyword.bleve")

	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	indexEntry(t, idx, "e1", "persisted across reopen")
	idx.Close()

	idx2, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer idx2.Close()
	results, err := idx2.Search(context.Background(), "reopen", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("reopened index lost data: %+v", results)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"graph", "grpah", 2},
		{"café", "cafe", 1},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
