package cli

import (
	"testing"
	"time"
)

func TestCompactText(t *testing.T) {
	if got := compactText("  a \n b\tc ", 0); got != "a b c" {
		t.Fatalf("compactText = %q", got)
	}
	if got := compactText("あいうえお", 4); got != "あいう..." {
		t.Fatalf("compactText multibyte = %q", got)
	}
}

func TestFallback(t *testing.T) {
	if got := fallback("value", "x"); got != "value" {
		t.Fatalf("fallback non-empty: %q", got)
	}
	if got := fallback("   ", "x"); got != "x" {
		t.Fatalf("fallback empty: %q", got)
	}
}

func TestHumanAgo(t *testing.T) {
	if got := humanAgo(nil); got != "never" {
		t.Fatalf("humanAgo(nil) = %q", got)
	}
	past := time.Now().Add(-2 * time.Hour)
	if got := humanAgo(&past); got != "2h ago" {
		t.Fatalf("humanAgo(2h) = %q", got)
	}
}
