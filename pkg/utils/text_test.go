package utils

import "testing"

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string should be unchanged, got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("expected truncated string with ellipsis, got %q", got)
	}
	if got := Truncate("x", 0); got != "x" {
		t.Errorf("maxLen 0 should disable truncation, got %q", got)
	}
	if got := Truncate("exact", 5); got != "exact" {
		t.Errorf("string at limit should be unchanged, got %q", got)
	}
}
