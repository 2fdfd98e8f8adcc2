package config

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("TEST_REQUEST_TIMEOUT", "45s")
	if got := Duration("TEST_REQUEST_TIMEOUT", 30*time.Second); got != 45*time.Second {
		t.Fatalf("expected 45s, got %s", got)
	}

	if got := Duration("TEST_REQUEST_TIMEOUT_UNSET", 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected fallback 30s, got %s", got)
	}

	t.Setenv("TEST_REQUEST_TIMEOUT_BAD", "soon")
	if got := Duration("TEST_REQUEST_TIMEOUT_BAD", 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected fallback on parse error, got %s", got)
	}
}
