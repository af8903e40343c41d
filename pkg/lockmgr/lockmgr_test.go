package lockmgr

import "testing"

// These are unit-level smoke tests for the pure helpers; Acquire/Release
// require a live Redis and are not exercised here.

func TestSectionResourceID(t *testing.T) {
	got := SectionResourceID("sec-123")
	want := "section:sec-123"
	if got != want {
		t.Errorf("SectionResourceID() = %q, want %q", got, want)
	}
}

func TestNewOwnerToken_Unique(t *testing.T) {
	a := NewOwnerToken()
	b := NewOwnerToken()
	if a == b {
		t.Error("expected two owner tokens to differ")
	}
	if a == "" || b == "" {
		t.Error("expected non-empty owner tokens")
	}
}

func TestLockKey_Prefixed(t *testing.T) {
	got := lockKey("section:sec-123")
	want := "enrollcore:lock:section:sec-123"
	if got != want {
		t.Errorf("lockKey() = %q, want %q", got, want)
	}
}
