package cache

import (
	"sync"
	"time"
)

// Breaker is a closed/open circuit breaker guarding cache calls. After
// threshold consecutive failures it opens and short-circuits callers for
// the cooldown period; the first call after the cooldown runs as a
// half-open probe, and its outcome closes or re-opens the circuit.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	open      bool
	openedAt  time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. While open and inside the
// cooldown window it returns false without touching the dependency.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	// Half-open: one probe is allowed once the cooldown has elapsed.
	return time.Since(b.openedAt) >= b.cooldown
}

// Success closes the circuit and resets the failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// Failure records a failed call. Reaching the threshold opens the circuit;
// a failure while open (a failed half-open probe) restarts the cooldown.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.open || b.failures >= b.threshold {
		b.open = true
		b.openedAt = time.Now()
	}
}

// Open reports the current circuit state.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
