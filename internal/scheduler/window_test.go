package scheduler

import (
	"testing"
	"time"
)

func TestInWindowNonWrapping(t *testing.T) {
	at := func(hour int) time.Time { return time.Date(2026, 1, 1, hour, 0, 0, 0, time.UTC) }
	if !InWindow(at(10), time.UTC, 9, 17) {
		t.Error("expected 10:00 to be within 9-17")
	}
	if InWindow(at(18), time.UTC, 9, 17) {
		t.Error("expected 18:00 to be outside 9-17")
	}
}

func TestInWindowMidnightWrap(t *testing.T) {
	at := func(hour int) time.Time { return time.Date(2026, 1, 1, hour, 0, 0, 0, time.UTC) }
	if !InWindow(at(23), time.UTC, 22, 6) {
		t.Error("expected 23:00 to be within wrapping window 22-6")
	}
	if !InWindow(at(3), time.UTC, 22, 6) {
		t.Error("expected 03:00 to be within wrapping window 22-6")
	}
	if InWindow(at(12), time.UTC, 22, 6) {
		t.Error("expected noon to be outside wrapping window 22-6")
	}
}

func TestInWindowZeroWidthIsAlwaysOn(t *testing.T) {
	at := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	if !InWindow(at, time.UTC, 0, 0) {
		t.Error("expected zero-width window to always report true")
	}
}
