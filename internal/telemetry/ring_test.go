package telemetry

import (
	"testing"

	"github.com/ratnathegod/llm-dispatch/internal/capability"
)

func TestRingBoundedLength(t *testing.T) {
	r := NewRing(5)
	for i := 0; i < 50; i++ {
		r.Record(Record{ProviderID: "p1", Capability: capability.SmallText, LatencyMs: int64(i), Outcome: Success})
		if got := r.Len("p1", capability.SmallText); got > 5 {
			t.Fatalf("ring length = %d, want <= 5", got)
		}
	}
	if got := r.Len("p1", capability.SmallText); got != 5 {
		t.Fatalf("ring length = %d, want 5 after overflow", got)
	}
}

func TestRingStatsEmpty(t *testing.T) {
	r := NewRing(10)
	stats := r.Stats("unknown", capability.SmallText)
	if stats.Count != 0 || stats.P50Latency != nil || stats.P95Latency != nil {
		t.Fatalf("expected zero stats for unseen key, got %+v", stats)
	}
}

func TestRingPercentiles(t *testing.T) {
	r := NewRing(200)
	for ms := int64(10); ms <= 100; ms += 10 {
		r.Record(Record{ProviderID: "p1", Capability: capability.SmallText, LatencyMs: ms, Outcome: Success})
	}
	stats := r.Stats("p1", capability.SmallText)
	if stats.Count != 10 {
		t.Fatalf("Count = %d, want 10", stats.Count)
	}
	if *stats.P50Latency < 40 || *stats.P50Latency > 50 {
		t.Fatalf("p50 = %v, want in [40,50]", *stats.P50Latency)
	}
	if *stats.P95Latency < 90 || *stats.P95Latency > 100 {
		t.Fatalf("p95 = %v, want in [90,100]", *stats.P95Latency)
	}
}

func TestRingOutcomeTallies(t *testing.T) {
	r := NewRing(10)
	r.Record(Record{ProviderID: "p1", Capability: capability.SmallText, Outcome: Success})
	r.Record(Record{ProviderID: "p1", Capability: capability.SmallText, Outcome: Failure})
	r.Record(Record{ProviderID: "p1", Capability: capability.SmallText, Outcome: Timeout})
	r.Record(Record{ProviderID: "p1", Capability: capability.SmallText, Outcome: Failure})

	stats := r.Stats("p1", capability.SmallText)
	if stats.SuccessN != 1 || stats.FailureN != 2 || stats.TimeoutN != 1 {
		t.Fatalf("tallies = %+v, want success=1 failure=2 timeout=1", stats)
	}
}

func TestRingDistinctKeysIndependent(t *testing.T) {
	r := NewRing(3)
	r.Record(Record{ProviderID: "p1", Capability: capability.SmallText, Outcome: Success})
	r.Record(Record{ProviderID: "p2", Capability: capability.SmallText, Outcome: Failure})
	if r.Len("p1", capability.SmallText) != 1 || r.Len("p2", capability.SmallText) != 1 {
		t.Fatalf("expected independent per-key rings")
	}
	if r.Len("p1", capability.Embedding) != 0 {
		t.Fatalf("expected capability to partition the key space")
	}
}
