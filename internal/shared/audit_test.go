package shared

import (
	"testing"
	"time"
)

func TestOccurredAtKeepsExplicitTime(t *testing.T) {
	set := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	if got := occurredAt(set); !got.Equal(set) {
		t.Fatalf("explicit time changed: %s", got)
	}
}

func TestOccurredAtDefaultsZeroTime(t *testing.T) {
	got := occurredAt(time.Time{})
	if got.IsZero() {
		t.Fatalf("zero time must default to the current time")
	}
	if time.Since(got) > time.Minute {
		t.Fatalf("defaulted time not current: %s", got)
	}
}
