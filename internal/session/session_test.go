package session

import "testing"

func TestUnboundedLedgerHasNoFields(t *testing.T) {
	l := New(nil)
	l.Charge(5)
	s := l.Status()
	if s.Total != nil || s.Remaining != nil || s.Utilization != nil {
		t.Fatalf("unbounded ledger should leave optional fields absent: %+v", s)
	}
	if s.Spent != 5 {
		t.Fatalf("Spent = %v, want 5", s.Spent)
	}
}

func TestBoundedLedgerComputesDerivedFields(t *testing.T) {
	total := 10.0
	l := New(&total)
	l.Charge(2.5)
	s := l.Status()
	if *s.Total != 10 || s.Spent != 2.5 || *s.Remaining != 7.5 || *s.Utilization != 0.25 {
		t.Fatalf("unexpected status: %+v", s)
	}
}

func TestChargeIsMonotonicAndNotRolledBack(t *testing.T) {
	total := 1.0
	l := New(&total)
	l.Charge(0.9)
	l.Charge(0.5) // would exceed total; permitted, not rolled back
	s := l.Status()
	if s.Spent != 1.4 {
		t.Fatalf("Spent = %v, want 1.4 (over-budget charge is not rolled back)", s.Spent)
	}
}

func TestNegativeOrZeroChargeIsNoop(t *testing.T) {
	l := New(nil)
	l.Charge(0)
	l.Charge(-5)
	if l.Status().Spent != 0 {
		t.Fatalf("non-positive charges must not affect spend")
	}
}

func TestResetZeroesSpendKeepsBudget(t *testing.T) {
	total := 10.0
	l := New(&total)
	l.Charge(4)
	l.Reset()
	s := l.Status()
	if s.Spent != 0 || *s.Total != 10 {
		t.Fatalf("reset should zero spend but keep total: %+v", s)
	}
}

func TestSetBudgetReplacesCeiling(t *testing.T) {
	l := New(nil)
	total := 5.0
	l.SetBudget(&total)
	s := l.Status()
	if s.Total == nil || *s.Total != 5 {
		t.Fatalf("SetBudget should install a ceiling: %+v", s)
	}
	l.SetBudget(nil)
	if l.Status().Total != nil {
		t.Fatalf("SetBudget(nil) should make the ledger unbounded again")
	}
}
