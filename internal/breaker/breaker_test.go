package breaker

import (
	"testing"
	"time"

	"github.com/ratnathegod/llm-dispatch/internal/capability"
)

func TestUnseenKeyIsClosed(t *testing.T) {
	b := New(3, 60*time.Second)
	if b.IsOpen("p1", capability.SmallText) {
		t.Fatalf("never-seen key should be closed")
	}
	snap := b.Snapshot("p1", capability.SmallText)
	if snap.State != Closed || snap.ConsecutiveFailures != 0 {
		t.Fatalf("snapshot = %+v, want zero closed entry", snap)
	}
}

func TestOpensAtThreshold(t *testing.T) {
	b := New(2, 50*time.Millisecond)
	b.OnFailure("p1", capability.SmallText)
	if b.IsOpen("p1", capability.SmallText) {
		t.Fatalf("should not be open before threshold")
	}
	b.OnFailure("p1", capability.SmallText)
	if !b.IsOpen("p1", capability.SmallText) {
		t.Fatalf("should be open at threshold")
	}
}

func TestCoolOffPromotesToHalfOpen(t *testing.T) {
	fake := time.Now()
	b := New(2, 50*time.Millisecond, WithClock(func() time.Time { return fake }))
	b.OnFailure("p1", capability.SmallText)
	b.OnFailure("p1", capability.SmallText)
	if !b.IsOpen("p1", capability.SmallText) {
		t.Fatalf("expected open immediately after threshold")
	}
	fake = fake.Add(60 * time.Millisecond)
	if b.IsOpen("p1", capability.SmallText) {
		t.Fatalf("expected half-open (not open) after cool-off elapses")
	}
	snap := b.Snapshot("p1", capability.SmallText)
	if snap.State != HalfOpen {
		t.Fatalf("state = %v, want half-open", snap.State)
	}
}

func TestHalfOpenSuccessClosesWithResetCounter(t *testing.T) {
	fake := time.Now()
	b := New(2, 10*time.Millisecond, WithClock(func() time.Time { return fake }))
	b.OnFailure("p1", capability.SmallText)
	b.OnFailure("p1", capability.SmallText)
	fake = fake.Add(20 * time.Millisecond)
	b.IsOpen("p1", capability.SmallText) // promotes to half-open

	b.OnSuccess("p1", capability.SmallText)
	snap := b.Snapshot("p1", capability.SmallText)
	if snap.State != Closed || snap.ConsecutiveFailures != 0 {
		t.Fatalf("snapshot = %+v, want closed with zero failures", snap)
	}
}

func TestHalfOpenFailureReopensImmediately(t *testing.T) {
	fake := time.Now()
	b := New(2, 10*time.Millisecond, WithClock(func() time.Time { return fake }))
	b.OnFailure("p1", capability.SmallText)
	b.OnFailure("p1", capability.SmallText)
	fake = fake.Add(20 * time.Millisecond)
	b.IsOpen("p1", capability.SmallText) // promotes to half-open

	b.OnFailure("p1", capability.SmallText)
	if !b.IsOpen("p1", capability.SmallText) {
		t.Fatalf("a single half-open failure must re-open the circuit")
	}
}

func TestDistinctKeysAreIndependent(t *testing.T) {
	b := New(1, time.Minute)
	b.OnFailure("p1", capability.SmallText)
	if b.IsOpen("p2", capability.SmallText) {
		t.Fatalf("distinct providerId must not share breaker state")
	}
	if b.IsOpen("p1", capability.Embedding) {
		t.Fatalf("distinct capability must not share breaker state")
	}
}
