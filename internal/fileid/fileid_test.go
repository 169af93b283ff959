package fileid

import (
	"testing"

	"github.com/google/uuid"
)

func TestEntryID_deterministic(t *testing.T) {
	id1 := EntryID("/journal/2026/daily.md")
	id2 := EntryID("/journal/2026/daily.md")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("ID should be a valid UUID: %q", id1)
	}
}

func TestEntryID_differentPaths(t *testing.T) {
	if EntryID("/journal/a.md") == EntryID("/journal/b.md") {
		t.Error("different paths should give different IDs")
	}
}

func TestEntryID_normalized(t *testing.T) {
	id1 := EntryID("/journal/notes")
	id2 := EntryID("/journal/notes/")
	id3 := EntryID("/journal/./notes")
	if id1 != id2 {
		t.Errorf("trailing slash should normalize: %q vs %q", id1, id2)
	}
	if id1 != id3 {
		t.Errorf("dot segments should normalize: %q vs %q", id1, id3)
	}
}
