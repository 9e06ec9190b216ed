package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBackoffSchedules(t *testing.T) {
	exp := ExponentialBackoff(100 * time.Millisecond)
	for i, want := range []time.Duration{100, 200, 400, 800} {
		if got := exp(i + 1); got != want*time.Millisecond {
			t.Errorf("ExponentialBackoff(%d) = %v, want %v", i+1, got, want*time.Millisecond)
		}
	}

	lin := LinearBackoff(100 * time.Millisecond)
	for i, want := range []time.Duration{100, 200, 300} {
		if got := lin(i + 1); got != want*time.Millisecond {
			t.Errorf("LinearBackoff(%d) = %v, want %v", i+1, got, want*time.Millisecond)
		}
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	r := RetryConfig{MaxAttempts: 3, Backoff: LinearBackoff(time.Millisecond)}

	calls := 0
	err := r.Do("flaky op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	r := RetryConfig{MaxAttempts: 2, Backoff: LinearBackoff(time.Millisecond)}

	calls := 0
	err := r.Do("doomed op", func() error {
		calls++
		return errors.New("permanent")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want exactly MaxAttempts", calls)
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("err = %v, want attempt count surfaced", err)
	}
}

func TestDoContextStopsOnCancel(t *testing.T) {
	r := RetryConfig{MaxAttempts: 10, Backoff: LinearBackoff(50 * time.Millisecond)}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.DoContext(ctx, "canceled op", func() error {
		calls++
		cancel()
		return errors.New("fail then cancel")
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want no attempts after cancellation", calls)
	}
}
