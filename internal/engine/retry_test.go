package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"http 429", &StatusError{429}, true},
		{"http 502", &StatusError{502}, true},
		{"http 503", &StatusError{503}, true},
		{"http 404", &StatusError{404}, false},
		{"regular error", errors.New("something"), false},
		{"timeout", &net.DNSError{IsTimeout: true}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"deadline", fmt.Errorf("watch page: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"no transcript", fmt.Errorf("abc: %w", ErrNoTranscript), false},
		{"unavailable", ErrVideoUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryDoSuccess(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	got, err := RetryDo(context.Background(), rc, func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryDoRetryThenSuccess(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	got, err := RetryDo(context.Background(), rc, func() (string, error) {
		calls++
		if calls < 3 {
			return "", &StatusError{503}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryDoExhausted(t *testing.T) {
	rc := RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	_, err := RetryDo(context.Background(), rc, func() (string, error) {
		calls++
		return "", &StatusError{502}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 { // initial + 2 retries
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryDoZeroRetries(t *testing.T) {
	rc := RetryConfig{MaxRetries: 0, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 2}
	calls := 0
	_, err := RetryDo(context.Background(), rc, func() (int, error) {
		calls++
		return 0, &StatusError{503}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryDoNonRetryable(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	_, err := RetryDo(context.Background(), rc, func() (string, error) {
		calls++
		return "", fmt.Errorf("captions: %w", ErrNoTranscript)
	})
	if !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for non-retryable), got %d", calls)
	}
}

func TestRetryDoContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	rc := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}
	_, err := RetryDo(ctx, rc, func() (string, error) {
		return "", &StatusError{503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		err  error
		want FailureReason
	}{
		{ErrInvalidReference, ReasonInvalidURL},
		{fmt.Errorf("x: %w", ErrNoTranscript), ReasonNoTranscript},
		{ErrVideoUnavailable, ReasonUnavailable},
		{fmt.Errorf("fetch: %w", context.DeadlineExceeded), ReasonTimeout},
		{&StatusError{503}, ReasonFetchError},
	}
	for _, tt := range tests {
		if got := ClassifyFailure(tt.err); got != tt.want {
			t.Errorf("ClassifyFailure(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
