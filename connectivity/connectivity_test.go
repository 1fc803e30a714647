package connectivity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Now()
	var transitions []string
	cb := NewCircuitBreaker(BreakerConfig{
		Threshold: 3,
		Cooldown:  100 * time.Millisecond,
		Now:       func() time.Time { return now },
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	fail := func(context.Context) error { return errors.New("status 503") }
	ok := func(context.Context) error { return nil }

	if cb.State() != BreakerClosed {
		t.Fatal("expected closed")
	}
	for i := 0; i < 3; i++ {
		_ = cb.Do(context.Background(), "store", fail)
	}
	err := cb.Do(context.Background(), "store", ok)
	var open *ErrCircuitOpen
	if !errors.As(err, &open) || open.Service != "store" {
		t.Fatalf("expected ErrCircuitOpen, got %T: %v", err, err)
	}

	now = now.Add(200 * time.Millisecond)
	if cb.State() != BreakerHalfOpen {
		t.Fatal("expected half-open after cooldown")
	}
	if err := cb.Do(context.Background(), "store", ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Fatal("expected closed after a successful probe")
	}

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions: got %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: got %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(BreakerConfig{
		Threshold: 1,
		Cooldown:  50 * time.Millisecond,
		Probes:    2,
		Now:       func() time.Time { return now },
	})
	fail := func(context.Context) error { return errors.New("down") }
	_ = cb.Do(context.Background(), "store", fail)
	now = now.Add(100 * time.Millisecond)
	if cb.State() != BreakerHalfOpen {
		t.Fatal("expected half-open")
	}
	_ = cb.Do(context.Background(), "store", fail)
	if cb.State() != BreakerOpen {
		t.Fatal("expected re-open after failure in half-open")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Threshold: 2})
	fail := func(context.Context) error { return errors.New("down") }
	ok := func(context.Context) error { return nil }
	_ = cb.Do(context.Background(), "store", fail)
	_ = cb.Do(context.Background(), "store", ok)
	_ = cb.Do(context.Background(), "store", fail)
	if cb.State() != BreakerClosed {
		t.Fatal("failures separated by a success must not open the breaker")
	}
}

func TestCircuitBreaker_DoIgnoresPermanent(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Threshold: 1})
	bad := func(context.Context) error { return Permanent(errors.New("status 422")) }
	for i := 0; i < 3; i++ {
		_ = cb.Do(context.Background(), "store", bad)
	}
	if cb.State() != BreakerClosed {
		t.Fatal("client errors must not trip the breaker")
	}
}

func TestRetry(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, BaseBackoff: time.Millisecond}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 2, BaseBackoff: time.Millisecond}, func(context.Context) error {
		attempts++
		return errors.New("down")
	})
	if err == nil || attempts != 3 {
		t.Fatalf("got %v after %d attempts, want error after 3", err, attempts)
	}
}

func TestRetry_StopsOnPermanentAndOpen(t *testing.T) {
	for _, e := range []error{Permanent(errors.New("bad request")), &ErrCircuitOpen{Service: "s"}} {
		attempts := 0
		_ = Retry(context.Background(), RetryPolicy{MaxRetries: 5, BaseBackoff: time.Millisecond}, func(context.Context) error {
			attempts++
			return e
		})
		if attempts != 1 {
			t.Errorf("%v: got %d attempts, want 1", e, attempts)
		}
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, RetryPolicy{MaxRetries: 5, BaseBackoff: time.Millisecond}, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("fail")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("got %v after %d attempts, want 1 attempt", err, attempts)
	}
}

type waitErr struct{ d time.Duration }

func (e waitErr) Error() string             { return "rate limited" }
func (e waitErr) RetryAfter() time.Duration { return e.d }

func TestBackoff(t *testing.T) {
	p := RetryPolicy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
	if got := backoff(p, 0, errors.New("x")); got != 100*time.Millisecond {
		t.Errorf("attempt 0: got %v", got)
	}
	if got := backoff(p, 5, errors.New("x")); got != time.Second {
		t.Errorf("attempt 5: got %v, want capped 1s", got)
	}
	if got := backoff(p, 0, waitErr{d: 700 * time.Millisecond}); got != 700*time.Millisecond {
		t.Errorf("retry-after: got %v", got)
	}
}
