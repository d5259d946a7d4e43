package service

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current disposition.
type BreakerState string

const (
	// BreakerClosed allows provider calls.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen skips provider calls until the cooldown elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen allows a single trial call.
	BreakerHalfOpen BreakerState = "half_open"
)

const (
	defaultFailureThreshold = 3
	defaultCooldown         = 5 * time.Minute
)

// BreakerOptions configures a CircuitBreaker.
type BreakerOptions struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Defaults to 3.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a trial
	// call. Defaults to 5 minutes.
	Cooldown time.Duration
	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

// CircuitBreaker guards the AI provider. It is a per-provider value injected
// into the Synthesizer, safe for concurrent use by all workers.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	clock     func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trialing bool
}

// NewCircuitBreaker constructs a closed breaker.
func NewCircuitBreaker(opts BreakerOptions) *CircuitBreaker {
	threshold := opts.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     clock,
		state:     BreakerClosed,
	}
}

// Allow reports whether a provider call may proceed. In the open state it
// flips to half-open once the cooldown has elapsed, admitting exactly one
// trial call; concurrent callers during the trial are refused.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.clock().Sub(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			b.trialing = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.trialing {
			return false
		}
		b.trialing = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the breaker to closed.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.trialing = false
}

// RecordFailure counts a provider failure. N consecutive failures in the
// closed state open the breaker; any failure during a half-open trial
// re-opens it.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.open()
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	case BreakerOpen:
		// already open; nothing to count
	}
}

func (b *CircuitBreaker) open() {
	b.state = BreakerOpen
	b.failures = 0
	b.trialing = false
	b.openedAt = b.clock()
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
