// Package breaker implements the per-(providerId, capability) three-state
// circuit breaker: closed, open, half-open, using a consecutive-failure
// threshold plus a cool-off timer rather than a sliding error-rate window.
package breaker

import (
	"sync"
	"time"

	"github.com/ratnathegod/llm-dispatch/internal/capability"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Entry is a read-only snapshot of one (providerId, capability) breaker.
type Entry struct {
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
}

type key struct {
	providerID string
	capability capability.Capability
}

type internalEntry struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
}

// Breaker is the process-lifetime, per-key circuit breaker. The zero value
// is not usable; construct with New.
type Breaker struct {
	failureThreshold int
	coolOff          time.Duration
	now              func() time.Time

	mu      sync.RWMutex
	entries map[key]*internalEntry
}

// Option configures a Breaker at construction.
type Option func(*Breaker)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New constructs a Breaker. failureThreshold <= 0 defaults to 3; coolOff <=
// 0 defaults to 60s.
func New(failureThreshold int, coolOff time.Duration, opts ...Option) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if coolOff <= 0 {
		coolOff = 60 * time.Second
	}
	b := &Breaker{
		failureThreshold: failureThreshold,
		coolOff:          coolOff,
		now:              time.Now,
		entries:          make(map[key]*internalEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) entryFor(k key) *internalEntry {
	b.mu.RLock()
	e, ok := b.entries[k]
	b.mu.RUnlock()
	if ok {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[k]; ok {
		return e
	}
	e = &internalEntry{state: Closed}
	b.entries[k] = e
	return e
}

// IsOpen reports whether the circuit currently excludes its provider from
// scoring. If the circuit is open and the cool-off has elapsed, this call
// transitions the entry to half-open as a side effect and returns false.
func (b *Breaker) IsOpen(providerID string, cap capability.Capability) bool {
	e := b.entryFor(key{providerID: providerID, capability: cap})

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Open {
		return false
	}
	if b.now().Sub(e.openedAt) >= b.coolOff {
		e.state = HalfOpen
		return false
	}
	return true
}

// OnSuccess resets the circuit to closed.
func (b *Breaker) OnSuccess(providerID string, cap capability.Capability) {
	e := b.entryFor(key{providerID: providerID, capability: cap})
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Closed
	e.consecutiveFailures = 0
	e.openedAt = time.Time{}
}

// OnFailure increments the consecutive-failure count and opens the circuit
// once the count reaches failureThreshold. A failure observed while the
// circuit is half-open re-opens it immediately, since the counter was never
// reset when the circuit first opened.
func (b *Breaker) OnFailure(providerID string, cap capability.Capability) {
	e := b.entryFor(key{providerID: providerID, capability: cap})
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures++
	if e.consecutiveFailures >= b.failureThreshold {
		e.state = Open
		e.openedAt = b.now()
	}
}

// Snapshot returns a read-only copy of the current entry for a key, without
// performing the half-open promotion side effect that IsOpen performs.
func (b *Breaker) Snapshot(providerID string, cap capability.Capability) Entry {
	e := b.entryFor(key{providerID: providerID, capability: cap})
	e.mu.Lock()
	defer e.mu.Unlock()
	return Entry{State: e.state, ConsecutiveFailures: e.consecutiveFailures, OpenedAt: e.openedAt}
}
