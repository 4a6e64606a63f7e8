package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig is suitable for most HTTP calls.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Multiplier:  2.0,
}

// RetryDo calls fn at most MaxRetries+1 times with exponential backoff.
// Retries only on retryable errors; returns immediately on non-retryable or context cancellation.
func RetryDo[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rc.InitialWait
	bo.MaxInterval = rc.MaxWait
	if rc.Multiplier > 0 {
		bo.Multiplier = rc.Multiplier
	}

	op := func() (T, error) {
		result, err := fn()
		if err != nil && !isRetryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	tries := rc.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}
	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("retrying", slog.Duration("wait", wait), slog.Any("error", err))
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return result, err
}

// isRetryable returns true for transient errors worth retrying.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrNoTranscript) || errors.Is(err, ErrVideoUnavailable) || errors.Is(err, ErrInvalidReference) {
		return false
	}

	// HTTP status errors
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatus(statusErr.StatusCode)
	}

	// Per-call timeout expired; the next attempt gets a fresh deadline.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Connection errors (dial failures, connection refused, etc.)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// Timeout errors (net.Error includes OpError, so check after OpError)
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
