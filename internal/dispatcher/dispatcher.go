// Package dispatcher orchestrates the pipeline: registry lookup, policy
// ranking, timed handler execution, telemetry/circuit updates, and session
// charging. Retry and backoff are not wrapped around individual providers;
// instead a single cross-provider retry loop walks the ranked candidate
// list, falling through to the next candidate on failure.
package dispatcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/ratnathegod/llm-dispatch/internal/breaker"
	"github.com/ratnathegod/llm-dispatch/internal/capability"
	"github.com/ratnathegod/llm-dispatch/internal/costing"
	"github.com/ratnathegod/llm-dispatch/internal/policy"
	"github.com/ratnathegod/llm-dispatch/internal/registry"
	"github.com/ratnathegod/llm-dispatch/internal/session"
	"github.com/ratnathegod/llm-dispatch/internal/telemetry"
)

// Config holds the Dispatcher's construction parameters.
type Config struct {
	TelemetryWindow         int
	CircuitFailureThreshold int
	CircuitCoolOffMs        int64
	PerCallTimeoutMs        int64 // default 300000
	MaxRetries              int   // 0 means no retries; negative values are floored at 0
	SessionBudgetUSD        *float64
	PriceBook               costing.PriceBook
}

// Dispatcher is the router. It holds its own Telemetry ring, CircuitBreaker,
// and Session ledger, and is constructed with an explicit Registry — no
// package-level state is shared across instances.
type Dispatcher struct {
	registry  *registry.Registry
	telemetry *telemetry.Ring
	breaker   *breaker.Breaker
	session   *session.Ledger
	estimator *costing.Estimator

	perCallTimeout time.Duration
	maxRetries     int
}

// New constructs a Dispatcher over reg, applying Config defaults for any
// zero-valued field except MaxRetries, where zero means a single attempt.
func New(reg *registry.Registry, cfg Config) *Dispatcher {
	timeoutMs := cfg.PerCallTimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 300_000
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	coolOff := time.Duration(cfg.CircuitCoolOffMs) * time.Millisecond
	if cfg.CircuitCoolOffMs <= 0 {
		coolOff = 60 * time.Second
	}

	return &Dispatcher{
		registry:       reg,
		telemetry:      telemetry.NewRing(cfg.TelemetryWindow),
		breaker:        breaker.New(cfg.CircuitFailureThreshold, coolOff),
		session:        session.New(cfg.SessionBudgetUSD),
		estimator:      costing.NewEstimator(cfg.PriceBook),
		perCallTimeout: time.Duration(timeoutMs) * time.Millisecond,
		maxRetries:     maxRetries,
	}
}

// Session exposes the dispatcher's budget ledger, e.g. for an admin status
// endpoint.
func (d *Dispatcher) Session() *session.Ledger { return d.session }

// Telemetry exposes the dispatcher's telemetry ring for read-only status
// reporting.
func (d *Dispatcher) Telemetry() *telemetry.Ring { return d.telemetry }

// Breaker exposes the dispatcher's circuit breaker for read-only status
// reporting.
func (d *Dispatcher) Breaker() *breaker.Breaker { return d.breaker }

// Options carries the per-dispatch overrides recognized by Dispatch.
type Options struct {
	PromptLength         *int // override; nil uses the params' own projection
	HasSchema            *bool
	ExpectedOutputTokens int
	ProviderHint         string

	// Weights, if nil, applies policy.DefaultWeights(); if non-nil, is
	// used as the complete weight set for this call.
	Weights *policy.Weights

	Rand                *rand.Rand
	DisableCostVariance bool
}

// Result is the observable output of a successful dispatch.
type Result struct {
	Result       any
	ProviderID   string
	CostEstimate *costing.Estimate
}

// Dispatch runs the full registry-lookup, ranking, execution, telemetry,
// and charging pipeline for a single capability request.
func (d *Dispatcher) Dispatch(ctx context.Context, cap capability.Capability, params capability.Params, opts Options) (Result, error) {
	candidates := d.registry.Get(cap)
	if opts.ProviderHint != "" {
		filtered := make([]registry.Registration, 0, 1)
		for _, c := range candidates {
			if c.ProviderID == opts.ProviderHint {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return Result{}, &NoProvidersError{Capability: cap}
	}

	proj := params.Projection()
	promptLength := proj.PromptLength
	if opts.PromptLength != nil {
		promptLength = *opts.PromptLength
	}
	hasSchema := proj.HasSchema
	if opts.HasSchema != nil {
		hasSchema = *opts.HasSchema
	}

	weights := policy.DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}

	total, spent := d.session.TotalAndSpent()

	ranked := policy.Rank(cap, candidates, d.telemetry, d.breaker, d.estimator, policy.Options{
		Weights:              weights,
		PromptLength:         promptLength,
		HasSchema:            hasSchema,
		ExpectedOutputTokens: opts.ExpectedOutputTokens,
		SessionTotalUSD:      total,
		SessionSpentUSD:      spent,
		Rand:                 opts.Rand,
		DisableCostVariance:  opts.DisableCostVariance,
	})
	if len(ranked) == 0 {
		return Result{}, &AllUnavailableError{Capability: cap}
	}

	maxAttempts := 1 + d.maxRetries
	attempted := make([]string, 0, maxAttempts)
	var lastErr error

	for i := 0; i < len(ranked) && i < maxAttempts; i++ {
		cand := ranked[i]
		providerID := cand.Registration.ProviderID
		attempted = append(attempted, providerID)

		start := time.Now()
		result, outcome, callErr := d.runWithTimeout(ctx, providerID, cand.Registration.Handler, params)
		latencyMs := time.Since(start).Milliseconds()

		d.telemetry.Record(telemetry.Record{
			ProviderID: providerID,
			Capability: cap,
			LatencyMs:  latencyMs,
			Timestamp:  time.Now(),
			Outcome:    outcome,
		})

		if outcome == telemetry.Success {
			d.breaker.OnSuccess(providerID, cap)
			if cand.CostEstimate != nil {
				d.session.Charge(cand.CostEstimate.TotalUSD)
			}
			return Result{Result: result, ProviderID: providerID, CostEstimate: cand.CostEstimate}, nil
		}

		d.breaker.OnFailure(providerID, cap)
		lastErr = callErr
	}

	return Result{}, &ExhaustedCandidatesError{AttemptedProviders: attempted, LastErr: lastErr}
}

// runWithTimeout executes handler under a hard per-call deadline. It never
// waits for a cancelled handler to actually stop: once the deadline fires,
// this returns a timeout outcome immediately, and the handler's eventual
// late completion (writing into the buffered channel) is simply never
// observed, so it cannot double-record telemetry or circuit state.
func (d *Dispatcher) runWithTimeout(ctx context.Context, providerID string, handler registry.Handler, params capability.Params) (any, telemetry.Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.perCallTimeout)
	defer cancel()

	type callResult struct {
		result any
		err    error
	}
	done := make(chan callResult, 1)
	go func() {
		res, err := handler(callCtx, params)
		done <- callResult{result: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if callCtx.Err() != nil {
				return nil, telemetry.Timeout, &HandlerTimeoutError{ProviderID: providerID}
			}
			return nil, telemetry.Failure, &HandlerFailureError{ProviderID: providerID, Err: r.err}
		}
		return r.result, telemetry.Success, nil
	case <-callCtx.Done():
		return nil, telemetry.Timeout, &HandlerTimeoutError{ProviderID: providerID}
	}
}
