package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts uint64) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func() error {
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
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsAtAttemptCeiling(t *testing.T) {
	calls := 0
	boom := errors.New("always failing")
	err := fastPolicy(4).Do(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the operation error", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("bad request")
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return Permanent(fatal)
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastPolicy(10).Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("Do succeeded under a canceled context")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retries after cancel)", calls)
	}
}

func TestDoNotify(t *testing.T) {
	notified := 0
	calls := 0
	err := fastPolicy(3).DoNotify(context.Background(), func() error {
		calls++
		return errors.New("transient")
	}, func(err error, next time.Duration) {
		notified++
		if next <= 0 {
			t.Fatalf("next wait = %v, want positive", next)
		}
	})
	if err == nil {
		t.Fatal("DoNotify succeeded, want exhaustion")
	}
	// One notification per wait: attempts minus the final failure.
	if notified != calls-1 {
		t.Fatalf("notified = %d for %d calls, want %d", notified, calls, calls-1)
	}
}
