package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDoublesUpToMax(t *testing.T) {
	t.Parallel()

	b := newBackoff(500*time.Millisecond, 3*time.Second)
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		3 * time.Second,
		3 * time.Second,
	}
	for i, expected := range want {
		if got := b.Next(); got != expected {
			t.Fatalf("step %d: expected %s, got %s", i, expected, got)
		}
	}

	b.Reset()
	if got := b.Next(); got != 500*time.Millisecond {
		t.Fatalf("expected reset to min, got %s", got)
	}
}

func TestBackoffClampsInvalidBounds(t *testing.T) {
	t.Parallel()

	b := newBackoff(0, -1)
	if got := b.Next(); got != 500*time.Millisecond {
		t.Fatalf("expected default min, got %s", got)
	}
	if got := b.Next(); got != 500*time.Millisecond {
		t.Fatalf("expected max clamped to min, got %s", got)
	}
}

func TestSleepContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
