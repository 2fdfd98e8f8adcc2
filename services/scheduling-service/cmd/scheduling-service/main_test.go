package main

import "testing"

func TestParseList(t *testing.T) {
	got := parseList(" https://portal.backflowhq.com , ,https://admin.backflowhq.com")
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %v", got)
	}
	if got[0] != "https://portal.backflowhq.com" || got[1] != "https://admin.backflowhq.com" {
		t.Fatalf("unexpected items: %v", got)
	}

	if got := parseList(""); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}
