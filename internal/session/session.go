// Package session implements the process-lifetime budget ledger. Only the
// Dispatcher mutates it, and only on successful calls.
package session

import "sync"

// Status is a read-only snapshot of the ledger.
type Status struct {
	Total       *float64
	Spent       float64
	Remaining   *float64
	Utilization *float64
}

// Ledger is a linearizable monetary budget tracker. The zero value is an
// unbounded ledger with zero spend.
type Ledger struct {
	mu    sync.Mutex
	total *float64
	spent float64
}

// New constructs a Ledger. A nil total means unbounded.
func New(total *float64) *Ledger {
	l := &Ledger{}
	if total != nil {
		t := *total
		l.total = &t
	}
	return l
}

// Charge adds amount to spent. A charge that would exceed total is
// permitted and not rolled back: the budget ceiling is a hard pre-dispatch
// filter in Policy, not a post-hoc rejection here.
func (l *Ledger) Charge(amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spent += amount
}

// Status returns the current ledger snapshot.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Status{Spent: l.spent}
	if l.total == nil {
		return s
	}
	total := *l.total
	remaining := total - l.spent
	s.Total = &total
	s.Remaining = &remaining
	if total > 0 {
		util := l.spent / total
		s.Utilization = &util
	}
	return s
}

// SetBudget replaces the ceiling. A nil total makes the ledger unbounded.
func (l *Ledger) SetBudget(total *float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if total == nil {
		l.total = nil
		return
	}
	t := *total
	l.total = &t
}

// Reset zeroes spend, leaving the budget ceiling untouched.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spent = 0
}

// TotalAndSpent is a convenience accessor for Policy's options snapshot: it
// returns the current total (nil if unbounded) and spent, under one lock.
func (l *Ledger) TotalAndSpent() (*float64, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total == nil {
		return nil, l.spent
	}
	t := *l.total
	return &t, l.spent
}
