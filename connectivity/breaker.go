package connectivity

import (
	"context"
	"sync"
	"time"
)

// BreakerState is the position of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a CircuitBreaker. Zero fields take defaults.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int
	// Cooldown is how long an open breaker rejects calls before probing.
	Cooldown time.Duration
	// Probes is the number of successful half-open calls needed to close.
	Probes int
	// OnStateChange is called, outside the lock, after every transition.
	OnStateChange func(from, to BreakerState)
	Now           func() time.Time
}

func (c *BreakerConfig) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Probes <= 0 {
		c.Probes = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// CircuitBreaker stops calling a failing service for a cooldown, then lets
// probe calls through before trusting it again. Safe for concurrent use.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cfg.defaults()
	return &CircuitBreaker{cfg: cfg}
}

// State returns the current state, moving an expired open breaker to half-open.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	from, to := cb.cooled()
	cb.mu.Unlock()
	cb.notify(from, to)
	return to
}

// Do runs fn when the breaker allows it and records the outcome. Context
// cancellation and Permanent errors are not counted as service failures.
func (cb *CircuitBreaker) Do(ctx context.Context, service string, fn func(ctx context.Context) error) error {
	cb.mu.Lock()
	from, to := cb.cooled()
	cb.mu.Unlock()
	cb.notify(from, to)
	if to == BreakerOpen {
		return &ErrCircuitOpen{Service: service}
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.settle(true)
	case ctx.Err() != nil, IsPermanent(err):
	default:
		cb.settle(false)
	}
	return err
}

// cooled must be called with mu held.
func (cb *CircuitBreaker) cooled() (from, to BreakerState) {
	from = cb.state
	if cb.state == BreakerOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.state = BreakerHalfOpen
		cb.probes = 0
	}
	return from, cb.state
}

func (cb *CircuitBreaker) settle(ok bool) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case ok && cb.state == BreakerHalfOpen:
		cb.probes++
		if cb.probes >= cb.cfg.Probes {
			cb.state = BreakerClosed
			cb.failures = 0
		}
	case ok:
		cb.failures = 0
	case cb.state == BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.openedAt = cb.cfg.Now()
	default:
		cb.failures++
		if cb.failures >= cb.cfg.Threshold {
			cb.state = BreakerOpen
			cb.openedAt = cb.cfg.Now()
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to BreakerState) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
