// Package policy implements the dispatcher's ranking function: a single
// multi-objective score evaluated uniformly over every candidate, rather
// than a pluggable set of named strategies selected by configuration.
package policy

import (
	"math/rand"
	"sort"

	"github.com/ratnathegod/llm-dispatch/internal/breaker"
	"github.com/ratnathegod/llm-dispatch/internal/capability"
	"github.com/ratnathegod/llm-dispatch/internal/costing"
	"github.com/ratnathegod/llm-dispatch/internal/registry"
	"github.com/ratnathegod/llm-dispatch/internal/telemetry"
)

// Weights are the tunable coefficients of the score formula. Zero-value
// Weights is not meaningful on its own; use DefaultWeights.
type Weights struct {
	JSONBiasWeight        float64
	LatencyWeight         float64
	FailurePenalty        float64
	ExplorationEpsilon    float64
	CostWeight            float64
	PromptLengthThreshold int
}

// DefaultWeights returns the default scoring coefficients.
func DefaultWeights() Weights {
	return Weights{
		JSONBiasWeight:        1.0,
		LatencyWeight:         0.001,
		FailurePenalty:        2.0,
		ExplorationEpsilon:    0.01,
		CostWeight:            1.0,
		PromptLengthThreshold: 600,
	}
}

// Options carries the per-dispatch overrides and ledger snapshot that rank
// needs. A zero Options applies DefaultWeights with an unbounded ledger.
type Options struct {
	Weights

	PromptLength         int
	HasSchema            bool
	ExpectedOutputTokens int

	// SessionTotalUSD is nil for an unbounded ledger.
	SessionTotalUSD *float64
	SessionSpentUSD float64

	// Rand, when non-nil, makes jitter and cost-variance draws
	// deterministic; useful for tests. A nil Rand uses the unseeded,
	// concurrency-safe global source.
	Rand *rand.Rand

	// DisableCostVariance turns off the ±5% cost jitter entirely,
	// required by the deterministic-ranking testable property.
	DisableCostVariance bool
}

// ScoredCandidate is one ranked result.
type ScoredCandidate struct {
	Registration registry.Registration
	Score        float64
	Stats        telemetry.Stats
	CostEstimate *costing.Estimate
}

func (o Options) randFloat64() float64 {
	if o.Rand != nil {
		return o.Rand.Float64()
	}
	return rand.Float64()
}

// effectiveCostWeight implements §4.5's budget-pressure doubling, computed
// once from the options snapshot rather than per candidate.
func effectiveCostWeight(o Options) float64 {
	if o.SessionTotalUSD == nil || *o.SessionTotalUSD <= 0 || o.SessionSpentUSD <= 0 {
		return o.CostWeight
	}
	ratio := o.SessionSpentUSD / *o.SessionTotalUSD
	if ratio > 0.8 {
		return o.CostWeight * 2.0
	}
	return o.CostWeight
}

// Rank scores every candidate whose circuit is not open and whose estimated
// cost (if any) fits within the remaining budget, and returns the survivors
// ordered by score descending, ties broken by input order.
func Rank(
	cap capability.Capability,
	candidates []registry.Registration,
	tel *telemetry.Ring,
	cb *breaker.Breaker,
	estimator *costing.Estimator,
	opts Options,
) []ScoredCandidate {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	costWeight := effectiveCostWeight(opts)

	isShort := opts.PromptLength > 0 && opts.PromptLength < opts.PromptLengthThreshold

	var remaining float64
	bounded := opts.SessionTotalUSD != nil
	if bounded {
		remaining = *opts.SessionTotalUSD - opts.SessionSpentUSD
	}

	out := make([]ScoredCandidate, 0, len(candidates))
	for _, reg := range candidates {
		if cb.IsOpen(reg.ProviderID, cap) {
			continue
		}

		stats := tel.Stats(reg.ProviderID, cap)

		var costEstimate *costing.Estimate
		if reg.Profile.Cost != nil && opts.PromptLength > 0 {
			req := costing.Request{
				PromptChars:          opts.PromptLength,
				ExpectedOutputTokens: opts.ExpectedOutputTokens,
				SimulatedModelName:   reg.Profile.Cost.SimulatedModelName,
				CharsPerToken:        reg.Profile.Cost.CharsPerToken,
				RequestFixedFeeUSD:   reg.Profile.Cost.RequestFixedFeeUSD,
				DiscountFactor:       reg.Profile.Cost.DiscountFactor,
			}
			est := estimator.Estimate(req)
			if !opts.DisableCostVariance {
				j := opts.randFloat64()*0.10 - 0.05
				est = costing.ApplyVariance(est, j)
			}
			costEstimate = &est
		}

		if bounded && costEstimate != nil && costEstimate.TotalUSD > remaining {
			continue
		}

		score := float64(reg.Priority)
		if isShort {
			latency := reg.Profile.TypicalLatencyMs
			if latency < 1 {
				latency = 1
			}
			score += 1.0 / float64(latency)
		}
		if opts.HasSchema {
			score += opts.JSONBiasWeight * reg.Profile.JSONReliabilityScore
		}
		if stats.P95Latency != nil {
			score -= opts.LatencyWeight * *stats.P95Latency
		}
		if stats.Count > 0 {
			score -= opts.FailurePenalty * float64(stats.FailureN+stats.TimeoutN) / float64(stats.Count)
		}
		if costEstimate != nil {
			score -= costWeight * costEstimate.TotalUSD
		}
		if opts.ExplorationEpsilon > 0 {
			score += opts.randFloat64() * opts.ExplorationEpsilon
		}

		out = append(out, ScoredCandidate{
			Registration: reg,
			Score:        score,
			Stats:        stats,
			CostEstimate: costEstimate,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
