package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one. 0 = no retry.
	MaxRetries int

	// BaseBackoff is the first wait, doubled each attempt. Default: 200ms.
	BaseBackoff time.Duration

	// MaxBackoff caps a single wait. Default: 30s.
	MaxBackoff time.Duration

	// Retryable decides whether err is worth another attempt. Nil retries
	// everything except permanent errors, open circuits and context errors.
	Retryable func(err error) bool

	Logger *slog.Logger
}

// Retry calls fn until it succeeds, the policy is exhausted or ctx is done.
// The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = 200 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(p, err) || attempt == p.MaxRetries {
			return lastErr
		}

		wait := backoff(p, attempt, err)
		if p.Logger != nil {
			p.Logger.WarnContext(ctx, "connectivity: retrying call",
				"attempt", attempt+1,
				"max_retries", p.MaxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return lastErr
		case <-t.C:
		}
	}
	return lastErr
}

func retryable(p RetryPolicy, err error) bool {
	if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var open *ErrCircuitOpen
	if errors.As(err, &open) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

func backoff(p RetryPolicy, attempt int, err error) time.Duration {
	var ra retryAfter
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		return min(ra.RetryAfter(), p.MaxBackoff)
	}
	return min(p.BaseBackoff*(1<<uint(attempt)), p.MaxBackoff)
}
