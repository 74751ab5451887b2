package costing

import (
	"math"
	"math/rand"
	"testing"
)

func TestEstimateWorkedExample(t *testing.T) {
	est := NewEstimator(PriceBook{
		"default": {Input: 0.00015, Output: 0.0006},
	})

	got := est.Estimate(Request{
		PromptChars:          400,
		ExpectedOutputTokens: 100,
		CharsPerToken:        4.0,
		DiscountFactor:       1.0,
	})

	if got.InputTokens != 100 {
		t.Fatalf("InputTokens = %d, want 100", got.InputTokens)
	}
	if got.OutputTokens != 100 {
		t.Fatalf("OutputTokens = %d, want 100", got.OutputTokens)
	}
	want := 100.0/1000*0.00015 + 100.0/1000*0.0006
	if math.Abs(got.TotalUSD-want) > 1e-9 {
		t.Fatalf("TotalUSD = %v, want %v", got.TotalUSD, want)
	}
}

func TestEstimateDefaultsOutputTokens(t *testing.T) {
	est := NewEstimator(nil)
	got := est.Estimate(Request{PromptChars: 40, CharsPerToken: 4.0})
	if got.InputTokens != 10 {
		t.Fatalf("InputTokens = %d, want 10", got.InputTokens)
	}
	if got.OutputTokens != 2 {
		t.Fatalf("OutputTokens = %d, want 2 (ceil(10*0.2))", got.OutputTokens)
	}
}

func TestEstimateUnknownModelFallsBackToDefault(t *testing.T) {
	est := NewEstimator(PriceBook{
		"default": {Input: 1, Output: 1},
		"gpt-4":   {Input: 2, Output: 2},
	})
	got := est.Estimate(Request{PromptChars: 4, ExpectedOutputTokens: 1, SimulatedModelName: "nonexistent"})
	want := est.Estimate(Request{PromptChars: 4, ExpectedOutputTokens: 1, SimulatedModelName: "default"})
	if got.TotalUSD != want.TotalUSD {
		t.Fatalf("unknown model did not fall back to default pricing")
	}
}

func TestEstimateWithVarianceNeverTouchesFixedFee(t *testing.T) {
	est := NewEstimator(PriceBook{"default": {Input: 0.001, Output: 0.001}})
	rng := rand.New(rand.NewSource(1))
	req := Request{PromptChars: 400, ExpectedOutputTokens: 50, RequestFixedFeeUSD: 0.02}
	base := est.Estimate(req)
	for i := 0; i < 50; i++ {
		got := est.EstimateWithVariance(req, rng)
		if got.FixedFeeUSD != 0.02 {
			t.Fatalf("FixedFeeUSD = %v, want unvaried 0.02", got.FixedFeeUSD)
		}
		factor := got.InputCostUSD / base.InputCostUSD
		if math.Abs(got.TotalUSD-base.TotalUSD*factor) > 1e-12 {
			t.Fatalf("TotalUSD not scaled by the same factor as the cost terms")
		}
	}
}

func TestEstimateWithVarianceNilRNGIsNoop(t *testing.T) {
	est := NewEstimator(PriceBook{"default": {Input: 0.001, Output: 0.001}})
	req := Request{PromptChars: 400, ExpectedOutputTokens: 50}
	base := est.Estimate(req)
	varied := est.EstimateWithVariance(req, nil)
	if base.TotalUSD != varied.TotalUSD {
		t.Fatalf("nil rng should leave estimate unchanged")
	}
}
