package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSuccessOnFirstAttempt(t *testing.T) {
	r := New(3, 10*time.Millisecond)
	calls := 0
	err := r.Do(func() (bool, error) {
		calls++
		return false, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestFailureWithoutRetry(t *testing.T) {
	r := New(3, 10*time.Millisecond)
	calls := 0
	testErr := errors.New("test error")
	err := r.Do(func() (bool, error) {
		calls++
		return false, testErr
	})
	if !errors.Is(err, testErr) {
		t.Fatalf("expected test error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryAndSuccess(t *testing.T) {
	r := New(3, time.Millisecond)
	calls := 0
	testErr := errors.New("test error")
	err := r.Do(func() (bool, error) {
		calls++
		if calls < 3 {
			return true, testErr
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExceedsMaxAttempts(t *testing.T) {
	r := New(2, time.Millisecond)
	calls := 0
	testErr := errors.New("test error")
	err := r.Do(func() (bool, error) {
		calls++
		return true, testErr
	})
	if !errors.Is(err, testErr) {
		t.Fatalf("expected test error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestMaxAttemptsZero(t *testing.T) {
	r := New(0, time.Millisecond)
	calls := 0
	testErr := errors.New("test error")
	err := r.Do(func() (bool, error) {
		calls++
		return true, testErr
	})
	if !errors.Is(err, testErr) {
		t.Fatalf("expected test error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoCtxCancelledDuringBackoff(t *testing.T) {
	r := New(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	testErr := errors.New("test error")
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := r.DoCtx(ctx, func() (bool, error) {
		calls++
		return true, testErr
	})
	if !errors.Is(err, testErr) {
		t.Fatalf("expected wrapped test error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDoCtxAlreadyCancelled(t *testing.T) {
	r := New(3, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := r.DoCtx(ctx, func() (bool, error) {
		calls++
		return true, errors.New("never")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected 0 calls, got %d", calls)
	}
}
