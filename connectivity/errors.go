// Package connectivity guards calls to remote services with retries and a
// circuit breaker.
//
//	cb := connectivity.NewCircuitBreaker(connectivity.BreakerConfig{Threshold: 5})
//	err := connectivity.Retry(ctx, connectivity.RetryPolicy{MaxRetries: 3}, func(ctx context.Context) error {
//		return cb.Do(ctx, "airtable", fetchPage)
//	})
//
// An error may carry a server-provided wait through RetryAfter; Retry honours
// it instead of its own backoff.
package connectivity

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker for a service is open,
// rejecting the call without attempting it.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("connectivity: circuit open: %s", e.Service)
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// retryAfter is implemented by errors that know how long to wait.
type retryAfter interface {
	RetryAfter() time.Duration
}
