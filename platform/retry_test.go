package platform

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyWait(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Wait(tt.attempt); got != tt.want {
			t.Errorf("Wait(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicyDoStopsOnNonTransient(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BackoffFactor: 2}
	calls := 0
	fatal := errors.New("bad credentials")
	err := p.Do(context.Background(), func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Do() = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetryPolicyDoRetriesTransient(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, BackoffFactor: 0.001}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return Transient(errors.New("boom"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryPolicyDoExhaustsBudget(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, BackoffFactor: 0.001}
	calls := 0
	last := Transient(errors.New("still down"))
	err := p.Do(context.Background(), func() error {
		calls++
		return last
	})
	if calls != 3 {
		t.Errorf("fn called %d times, want 3 (initial + 2 retries)", calls)
	}
	if !IsTransient(err) {
		t.Errorf("exhausted error should stay transient, got %v", err)
	}
}

func TestRetryPolicyDoHonorsContext(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BackoffFactor: 10}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func() error {
		return Transient(errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, want context.Canceled", err)
	}
}

func TestTransientStatus(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}
	for _, tt := range tests {
		if got := TransientStatus(tt.code); got != tt.want {
			t.Errorf("TransientStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestErrorUnwrapping(t *testing.T) {
	base := errors.New("connection refused")
	var err error = &UnavailableError{Platform: "twitch", Attempts: 4, Err: Transient(base)}
	if !errors.Is(err, base) {
		t.Errorf("UnavailableError should unwrap to the base error")
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("errors.As failed for UnavailableError")
	}
	if ue.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", ue.Attempts)
	}

	authErr := &AuthError{Platform: "kick", Err: base}
	if IsTransient(authErr) {
		t.Errorf("AuthError must not be transient")
	}
}
