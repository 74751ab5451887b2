// Package costing implements the dispatcher's pure cost-estimation function.
// It is stateless apart from the immutable PriceBook it is constructed with.
package costing

import (
	"math"
	"math/rand"
)

// Price is the USD-per-1000-tokens rate pair for one simulated model.
type Price struct {
	Input  float64
	Output float64
}

// PriceBook is an immutable mapping from simulated model name to Price. It
// must carry a "default" entry, used whenever a requested model is absent.
type PriceBook map[string]Price

// DefaultPriceBook returns a small illustrative book; production callers are
// expected to supply their own (the price table itself is an out-of-scope
// collaborator per the core's contract).
func DefaultPriceBook() PriceBook {
	return PriceBook{
		"default": {Input: 0.0005, Output: 0.0015},
	}
}

func (b PriceBook) lookup(simulatedModelName string) Price {
	if p, ok := b[simulatedModelName]; ok {
		return p
	}
	return b["default"]
}

// Request is the input to Estimate.
type Request struct {
	PromptChars          int
	ExpectedOutputTokens int
	SimulatedModelName   string
	CharsPerToken        float64 // default 4.0 when <= 0
	RequestFixedFeeUSD   float64
	DiscountFactor       float64 // default 1.0 when <= 0
}

// Estimate is the cost breakdown produced for a single dispatch candidate.
type Estimate struct {
	InputTokens        int
	OutputTokens       int
	InputCostUSD       float64
	OutputCostUSD      float64
	FixedFeeUSD        float64
	TotalUSD           float64
	SimulatedModelName string
}

// Estimator is a pure function of its immutable price book.
type Estimator struct {
	Book PriceBook
}

// NewEstimator constructs an Estimator over the given price book. A nil or
// empty book falls back to DefaultPriceBook.
func NewEstimator(book PriceBook) *Estimator {
	if book == nil {
		book = DefaultPriceBook()
	}
	if _, ok := book["default"]; !ok {
		book["default"] = Price{Input: 0.0005, Output: 0.0015}
	}
	return &Estimator{Book: book}
}

// Estimate computes the cost breakdown for req, with no variance applied.
func (e *Estimator) Estimate(req Request) Estimate {
	charsPerToken := req.CharsPerToken
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	discount := req.DiscountFactor
	if discount <= 0 {
		discount = 1.0
	}

	inputTokens := ceilDiv(req.PromptChars, charsPerToken)
	outputTokens := req.ExpectedOutputTokens
	if outputTokens <= 0 {
		outputTokens = maxInt(1, int(math.Ceil(float64(inputTokens)*0.2)))
	}

	price := e.Book.lookup(req.SimulatedModelName)
	inputCost := (float64(inputTokens) / 1000.0) * price.Input
	outputCost := (float64(outputTokens) / 1000.0) * price.Output
	fixedFee := req.RequestFixedFeeUSD

	est := Estimate{
		InputTokens:        inputTokens,
		OutputTokens:       outputTokens,
		InputCostUSD:       inputCost * discount,
		OutputCostUSD:      outputCost * discount,
		FixedFeeUSD:        fixedFee * discount,
		SimulatedModelName: req.SimulatedModelName,
	}
	est.TotalUSD = (inputCost + outputCost + fixedFee) * discount
	return est
}

// EstimateWithVariance applies one independent uniform draw in [-0.05, 0.05]
// to the input/output/total cost terms; the fixed fee is never varied. The
// caller supplies the rng so that Policy.rank can control determinism.
func (e *Estimator) EstimateWithVariance(req Request, rng *rand.Rand) Estimate {
	est := e.Estimate(req)
	if rng == nil {
		return est
	}
	return ApplyVariance(est, rng.Float64()*0.10-0.05)
}

// ApplyVariance scales the input/output/total cost terms of est by (1+j),
// leaving the fixed fee untouched. j is expected to be drawn from
// [-0.05, 0.05] by the caller.
func ApplyVariance(est Estimate, j float64) Estimate {
	est.InputCostUSD *= 1 + j
	est.OutputCostUSD *= 1 + j
	est.TotalUSD *= 1 + j
	return est
}

func ceilDiv(chars int, charsPerToken float64) int {
	if chars <= 0 {
		return 0
	}
	return int(math.Ceil(float64(chars) / charsPerToken))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
