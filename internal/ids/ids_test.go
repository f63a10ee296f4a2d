package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonicWithinMillisecond(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := NewAt(at)
	for i := 0; i < 100; i++ {
		next := NewAt(at)
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		prev = next
	}
}

func TestValid(t *testing.T) {
	if !Valid(New()) {
		t.Fatalf("expected generated id to be valid")
	}
	if Valid("not-an-id") {
		t.Fatalf("expected garbage to be rejected")
	}
}
