// Package breaker implements a per-account circuit breaker. State is held in
// a TTL cache so stale entries expire on their own; losing breaker state on
// restart is acceptable, it only costs a few extra probe calls.
package breaker

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultThreshold is the consecutive-failure count that opens a circuit.
	DefaultThreshold = 5
	// DefaultCooldown is how long an open circuit blocks calls before
	// allowing a half-open trial.
	DefaultCooldown = 300 * time.Second
)

// CircuitState is the breaker state for one account region.
type CircuitState struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	Open                bool       `json:"open"`
}

type state struct {
	failures int
	openedAt time.Time
}

// Breaker tracks consecutive failures per key and blocks calls while open.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu     sync.Mutex
	states *gocache.Cache
	now    func() time.Time
}

// New creates a breaker; non-positive arguments fall back to the defaults.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		// Entries untouched for 10 cooldowns are stale and evicted.
		states: gocache.New(10*cooldown, cooldown),
		now:    time.Now,
	}
}

// IsOpen reports whether calls for key are currently blocked. Once the
// cooldown elapses the circuit half-opens: IsOpen returns false so a trial
// call can go through, and a failed trial re-opens it.
func (b *Breaker) IsOpen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.get(key)
	if !ok || s.failures < b.threshold || s.openedAt.IsZero() {
		return false
	}
	return b.now().Sub(s.openedAt) < b.cooldown
}

// RecordFailure increments the consecutive-failure counter. The opened-at
// stamp is set when the threshold is first crossed, and refreshed when a
// half-open trial fails.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, _ := b.get(key)
	s.failures++
	if s.failures >= b.threshold {
		if s.openedAt.IsZero() || b.now().Sub(s.openedAt) >= b.cooldown {
			s.openedAt = b.now()
		}
	}
	b.states.Set(key, s, gocache.DefaultExpiration)
}

// RecordSuccess fully resets the circuit for key.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states.Delete(key)
}

// Failures returns the current consecutive-failure count for key.
func (b *Breaker) Failures(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, _ := b.get(key)
	return s.failures
}

// State returns a snapshot of the circuit for key.
func (b *Breaker) State(key string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.get(key)
	cs := CircuitState{ConsecutiveFailures: s.failures}
	if ok && !s.openedAt.IsZero() {
		openedAt := s.openedAt
		cs.OpenedAt = &openedAt
		cs.Open = s.failures >= b.threshold && b.now().Sub(s.openedAt) < b.cooldown
	}
	return cs
}

func (b *Breaker) get(key string) (state, bool) {
	if v, ok := b.states.Get(key); ok {
		return v.(state), true
	}
	return state{}, false
}
