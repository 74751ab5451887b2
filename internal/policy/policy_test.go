package policy

import (
	"context"
	"testing"

	"github.com/ratnathegod/llm-dispatch/internal/breaker"
	"github.com/ratnathegod/llm-dispatch/internal/capability"
	"github.com/ratnathegod/llm-dispatch/internal/costing"
	"github.com/ratnathegod/llm-dispatch/internal/registry"
	"github.com/ratnathegod/llm-dispatch/internal/telemetry"
)

func noop(ctx context.Context, params capability.Params) (any, error) { return nil, nil }

func deterministicOptions(promptLen int, hasSchema bool) Options {
	return Options{
		Weights:             DefaultWeights(),
		PromptLength:        promptLen,
		HasSchema:           hasSchema,
		DisableCostVariance: true,
	}
}

func setOpts(o Options, mutate func(*Options)) Options {
	mutate(&o)
	return o
}

func TestHigherPriorityLowerLatencyWins(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(capability.SmallText, "A", noop, 5, registry.Profile{TypicalLatencyMs: 100})
	_ = reg.Register(capability.SmallText, "B", noop, 4, registry.Profile{TypicalLatencyMs: 500})

	tel := telemetry.NewRing(200)
	cb := breaker.New(3, 0)

	opts := deterministicOptions(50, false)
	opts.ExplorationEpsilon = 0
	ranked := Rank(capability.SmallText, reg.Get(capability.SmallText), tel, cb, costing.NewEstimator(nil), opts)

	if len(ranked) != 2 || ranked[0].Registration.ProviderID != "A" {
		t.Fatalf("expected A to rank first, got %+v", ranked)
	}
}

func TestOpenCircuitExcludesCandidate(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(capability.SmallText, "A", noop, 5, registry.Profile{})
	_ = reg.Register(capability.SmallText, "B", noop, 4, registry.Profile{})

	tel := telemetry.NewRing(200)
	cb := breaker.New(1, 0)
	cb.OnFailure("A", capability.SmallText)

	opts := deterministicOptions(0, false)
	opts.ExplorationEpsilon = 0
	ranked := Rank(capability.SmallText, reg.Get(capability.SmallText), tel, cb, costing.NewEstimator(nil), opts)

	if len(ranked) != 1 || ranked[0].Registration.ProviderID != "B" {
		t.Fatalf("expected only B to survive open-circuit filtering, got %+v", ranked)
	}
}

func TestBudgetCeilingExcludesCandidate(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(capability.SmallText, "A", noop, 5, registry.Profile{
		Cost: &registry.CostProfile{SimulatedModelName: "default", CharsPerToken: 4.0, DiscountFactor: 1.0},
	})

	tel := telemetry.NewRing(200)
	cb := breaker.New(3, 0)

	total := 0.001
	book := costing.PriceBook{"default": {Input: 1.0, Output: 1.0}}
	opts := Options{
		Weights:             DefaultWeights(),
		PromptLength:        400,
		SessionTotalUSD:     &total,
		SessionSpentUSD:     0,
		DisableCostVariance: true,
	}
	ranked := Rank(capability.SmallText, reg.Get(capability.SmallText), tel, cb, costing.NewEstimator(book), opts)

	if len(ranked) != 0 {
		t.Fatalf("expected budget ceiling to exclude the only candidate, got %+v", ranked)
	}
}

func TestBudgetPressureInflatesCostWeight(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(capability.SmallText, "cheap", noop, 1, registry.Profile{
		Cost: &registry.CostProfile{SimulatedModelName: "cheap", CharsPerToken: 4.0, DiscountFactor: 1.0},
	})
	_ = reg.Register(capability.SmallText, "pricey", noop, 1, registry.Profile{
		Cost: &registry.CostProfile{SimulatedModelName: "pricey", CharsPerToken: 4.0, DiscountFactor: 1.0},
	})

	tel := telemetry.NewRing(200)
	cb := breaker.New(3, 0)
	book := costing.PriceBook{
		"default": {Input: 0.1, Output: 0.1},
		"cheap":   {Input: 0.1, Output: 0.1},
		"pricey":  {Input: 1.0, Output: 1.0},
	}
	estimator := costing.NewEstimator(book)

	rankAt := func(spent float64) []ScoredCandidate {
		total := 1.0
		opts := Options{
			Weights:             DefaultWeights(),
			PromptLength:        400,
			SessionTotalUSD:     &total,
			SessionSpentUSD:     spent,
			DisableCostVariance: true,
		}
		opts.ExplorationEpsilon = 0
		return Rank(capability.SmallText, reg.Get(capability.SmallText), tel, cb, estimator, opts)
	}

	byID := func(cands []ScoredCandidate, id string) ScoredCandidate {
		for _, c := range cands {
			if c.Registration.ProviderID == id {
				return c
			}
		}
		t.Fatalf("missing candidate %s", id)
		return ScoredCandidate{}
	}

	low := rankAt(0)
	high := rankAt(0.85)

	gapLow := byID(low, "cheap").Score - byID(low, "pricey").Score
	gapHigh := byID(high, "cheap").Score - byID(high, "pricey").Score

	if byID(high, "cheap").Score <= byID(high, "pricey").Score {
		t.Fatalf("cheap candidate must outrank pricey under budget pressure")
	}
	if gapHigh < 2*gapLow {
		t.Fatalf("score gap under pressure (%v) should be >= 2x the gap at spent=0 (%v)", gapHigh, gapLow)
	}
}

func TestJSONBiasWeightMonotonicallyFavorsReliableProvider(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(capability.SmallObject, "reliable", noop, 4, registry.Profile{JSONReliabilityScore: 0.9})
	_ = reg.Register(capability.SmallObject, "unreliable", noop, 5, registry.Profile{JSONReliabilityScore: 0.5})

	tel := telemetry.NewRing(200)
	cb := breaker.New(3, 0)
	estimator := costing.NewEstimator(nil)

	gapAt := func(weight float64) float64 {
		opts := Options{
			Weights:             DefaultWeights(),
			HasSchema:           true,
			DisableCostVariance: true,
		}
		opts.ExplorationEpsilon = 0
		opts.JSONBiasWeight = weight
		ranked := Rank(capability.SmallObject, reg.Get(capability.SmallObject), tel, cb, estimator, opts)
		var reliable, unreliable float64
		for _, c := range ranked {
			if c.Registration.ProviderID == "reliable" {
				reliable = c.Score
			} else {
				unreliable = c.Score
			}
		}
		return reliable - unreliable
	}

	gapLow := gapAt(0.5)
	gapHigh := gapAt(5.0)
	if !(gapHigh > gapLow) {
		t.Fatalf("increasing jsonBiasWeight should monotonically increase the reliable provider's relative score: %v -> %v", gapLow, gapHigh)
	}
}

func TestDeterministicRankingWithJitterAndVarianceDisabled(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(capability.SmallText, "A", noop, 3, registry.Profile{TypicalLatencyMs: 50})
	_ = reg.Register(capability.SmallText, "B", noop, 2, registry.Profile{TypicalLatencyMs: 80})

	tel := telemetry.NewRing(200)
	cb := breaker.New(3, 0)
	estimator := costing.NewEstimator(nil)
	opts := Options{Weights: DefaultWeights(), PromptLength: 100, DisableCostVariance: true}
	opts.ExplorationEpsilon = 0

	first := Rank(capability.SmallText, reg.Get(capability.SmallText), tel, cb, estimator, opts)
	second := Rank(capability.SmallText, reg.Get(capability.SmallText), tel, cb, estimator, opts)

	if len(first) != len(second) {
		t.Fatalf("ranking length differs across runs")
	}
	for i := range first {
		if first[i].Registration.ProviderID != second[i].Registration.ProviderID || first[i].Score != second[i].Score {
			t.Fatalf("ranking is not deterministic at index %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestEmptyCandidatesYieldsEmptyRank(t *testing.T) {
	tel := telemetry.NewRing(200)
	cb := breaker.New(3, 0)
	ranked := Rank(capability.SmallText, nil, tel, cb, costing.NewEstimator(nil), Options{Weights: DefaultWeights()})
	if len(ranked) != 0 {
		t.Fatalf("expected empty rank for no candidates")
	}
}
