package main

import (
	"strings"
	"testing"

	"github.com/hyperjump/kiroku/internal/models"
)

func TestParseTags(t *testing.T) {
	tags, err := parseTags("Go:Language, debugging:Task ,retro")
	if err != nil {
		t.Fatalf("parseTags: %v", err)
	}
	want := []models.Tag{
		{Name: "Go", Category: models.CategoryLanguage},
		{Name: "debugging", Category: models.CategoryTask},
		{Name: "retro", Category: models.CategoryOther},
	}
	if len(tags) != len(want) {
		t.Fatalf("expected %d tags, got %d", len(want), len(tags))
	}
	for i, w := range want {
		if tags[i] != w {
			t.Errorf("tag %d: expected %+v, got %+v", i, w, tags[i])
		}
	}
}

func TestParseTagsEmpty(t *testing.T) {
	tags, err := parseTags("  ")
	if err != nil {
		t.Fatalf("parseTags: %v", err)
	}
	if tags != nil {
		t.Errorf("expected nil tags for blank input, got %v", tags)
	}
}

func TestParseTagsInvalidCategory(t *testing.T) {
	if _, err := parseTags("Go:Banana"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestParseTagsEmptyName(t *testing.T) {
	if _, err := parseTags(":Language"); err == nil {
		t.Error("expected error for empty tag name")
	}
}

func TestBuildEntryContent(t *testing.T) {
	got := buildEntryContent([]string{"fixed", "the", "scheduler", "deadlock"})
	if got != "fixed the scheduler deadlock" {
		t.Errorf("unexpected content: %q", got)
	}
	if buildEntryContent(nil) != "" {
		t.Error("expected empty content for no args")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("one\ntwo"); got != "one" {
		t.Errorf("expected first line, got %q", got)
	}
	long := strings.Repeat("x", 150)
	got := firstLine(long)
	if len(got) != 103 || !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncated line, got %q (len %d)", got, len(got))
	}
}
