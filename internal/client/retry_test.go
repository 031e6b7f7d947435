package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	if !policy.ShouldRetry(refused, 1) {
		t.Error("expected connection refused to be retryable")
	}
	if policy.ShouldRetry(refused, policy.MaxAttempts) {
		t.Error("should not retry after max attempts")
	}

	delay := policy.NextDelay(1)
	if delay != 100*time.Millisecond {
		t.Errorf("expected 100ms delay, got %v", delay)
	}
	delay = policy.NextDelay(2)
	if delay != 200*time.Millisecond {
		t.Errorf("expected 200ms delay, got %v", delay)
	}
	delay = policy.NextDelay(10)
	if delay != 2*time.Second {
		t.Errorf("expected delay capped at 2s, got %v", delay)
	}
}

func TestRetryPolicyNonRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []error{
		nil,
		errors.New("something else"),
		&net.AddrError{Err: "missing port in address", Addr: "localhost"},
		&net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true},
		context.Canceled,
	}
	for _, err := range tests {
		if policy.ShouldRetry(err, 1) {
			t.Errorf("expected %v to be non-retryable", err)
		}
	}
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}

	calls := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	permanent := errors.New("bad address")

	calls := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestExecuteHonoursContext(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 100, InitialDelay: time.Hour, Multiplier: 1, MaxDelay: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := policy.Execute(ctx, func(context.Context) error {
		return syscall.ECONNREFUSED
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
