package circuit

import (
	"sync"
	"time"
)

// Breaker stops calls to a failing collaborator. After threshold
// consecutive failures it opens for the cooldown period; a success closes it
// again.
type Breaker struct {
	mu             sync.RWMutex
	threshold      int
	cooldownPeriod time.Duration
	failureCount   int
	cooldownUntil  time.Time
	trips          int
	now            func() time.Time
}

// NewBreaker creates a breaker. A threshold below 1 is treated as 1.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		threshold:      threshold,
		cooldownPeriod: cooldown,
		now:            time.Now,
	}
}

// Allow reports whether a call may proceed.
func (cb *Breaker) Allow() bool {
	return !cb.IsInCooldown()
}

// RecordFailure records a failure. Returns true if the breaker entered
// cooldown because of it.
func (cb *Breaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	if cb.failureCount < cb.threshold {
		return false
	}

	cb.cooldownUntil = cb.now().Add(cb.cooldownPeriod)
	cb.failureCount = 0
	cb.trips++
	return true
}

// RecordSuccess clears the consecutive failure count.
func (cb *Breaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
}

func (cb *Breaker) IsInCooldown() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.now().Before(cb.cooldownUntil)
}

// CooldownRemaining returns 0 when the breaker is closed.
func (cb *Breaker) CooldownRemaining() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if remaining := cb.cooldownUntil.Sub(cb.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// Reset clears failures and any cooldown.
func (cb *Breaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.cooldownUntil = time.Time{}
}

func (cb *Breaker) FailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}

// Trips counts how many times the breaker has opened.
func (cb *Breaker) Trips() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.trips
}
