package provider

import (
	"strings"
	"testing"
)

func TestTruncateTokensShortTextUnchanged(t *testing.T) {
	t.Parallel()
	text := "good morning, here is your briefing"
	if got := TruncateTokens(text, 100); got != text {
		t.Errorf("TruncateTokens() = %q, want unchanged", got)
	}
}

func TestTruncateTokensCapsLongText(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("alpha beta gamma delta ", 500)
	got := TruncateTokens(text, 50)
	if got == "" {
		t.Fatal("TruncateTokens() returned empty string")
	}
	if len(got) >= len(text) {
		t.Fatalf("TruncateTokens() did not shorten: got %d bytes, input %d", len(got), len(text))
	}
	if !strings.HasPrefix(text, got) {
		t.Errorf("TruncateTokens() result is not a prefix of the input: %q", got[:40])
	}
}

func TestTruncateTokensEdgeCases(t *testing.T) {
	t.Parallel()
	if got := TruncateTokens("", 10); got != "" {
		t.Errorf("empty input: got %q", got)
	}
	if got := TruncateTokens("something", 0); got != "" {
		t.Errorf("zero budget: got %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()
	if got := truncateRunes("héllo wörld", 5); got != "héllo" {
		t.Errorf("truncateRunes() = %q, want %q", got, "héllo")
	}
	if got := truncateRunes("short", 50); got != "short" {
		t.Errorf("truncateRunes() = %q, want unchanged", got)
	}
}
