package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, 5 * time.Second},
		{3, 10 * time.Second},
		{4, 20 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_Do_EventualSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt != calls {
			t.Errorf("attempt number %d on call %d", attempt, calls)
		}
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v after eventual success", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicy_Do_Exhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2}
	wantErr := errors.New("still broken")
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected the last error back, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicy_Do_CancelledBeforeFirstAttempt(t *testing.T) {
	p := DefaultRetryPolicy()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("cancelled context must not run the operation, ran %d times", calls)
	}
}

func TestRetryPolicy_Do_CancelledDuringBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled from the backoff wait, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt before the wait, got %d", calls)
	}
}
