package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultMaxAttempts counts the first attempt, so two retries follow it.
	DefaultMaxAttempts = 3
	// DefaultDelay is the fixed pause between attempts.
	DefaultDelay = time.Second
)

// RetryPolicy bounds how the Retry Coordinator repeats a call.
// The zero value is usable and behaves like a single attempt.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values <= 0 are treated as 1.
	MaxAttempts int

	// Delay is the fixed pause between two attempts.
	Delay time.Duration

	// Retryable decides whether a response that did arrive should be retried.
	// Nil means ServerFailureRetryable.
	Retryable func(resp *http.Response) bool

	// OnRetry, when set, is told about every failure that will be retried.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy returns 3 attempts spaced by one second, retrying
// responses with a status >= 500.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Retryable:   ServerFailureRetryable,
	}
}

// ServerFailureRetryable retries server-side failures only.
func ServerFailureRetryable(resp *http.Response) bool {
	return resp.StatusCode >= http.StatusInternalServerError
}

// AttemptFunc performs one attempt. It is called sequentially, never concurrently.
type AttemptFunc func(ctx context.Context) (*http.Response, error)

// Retry runs attempt until it succeeds, returns a response the policy does
// not retry, or the attempt budget is spent.
//
// Errors returned by attempt (transport failures and timeouts) are retried
// regardless of their kind; the error of the final attempt is returned
// unmodified. A retryable response on the final attempt is closed and
// turned into a KindServerFailure error. Non-retryable responses, including
// 4xx, are handed back to the caller without an error.
func Retry(ctx context.Context, policy RetryPolicy, op string, attempt AttemptFunc) (*http.Response, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = ServerFailureRetryable
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		resp, err := attempt(ctx)
		final := i == attempts

		switch {
		case err != nil:
			if final {
				return nil, err
			}
			lastErr = err
		case retryable(resp):
			drain(resp)
			lastErr = StatusError(op, resp.StatusCode)
			if final {
				return nil, lastErr
			}
		default:
			return resp, nil
		}

		slog.Warn("Request failed, scheduling retry",
			"operation", op,
			"attempt", i,
			"max_attempts", attempts,
			"delay", policy.Delay,
			"error", lastErr)
		if policy.OnRetry != nil {
			policy.OnRetry(i, lastErr)
		}

		if err := sleep(ctx, policy.Delay); err != nil {
			return nil, fmt.Errorf("%s cancelled during retry delay after %d attempt(s): %w (last failure: %v)", op, i, err, lastErr)
		}
	}

	// Unreachable: the loop returns on the final attempt.
	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// drain discards a bounded amount of the body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
