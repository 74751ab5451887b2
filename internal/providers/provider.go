// Package providers holds the concrete backend adapters (Mock, OpenAI,
// Bedrock). Retry, backoff, and circuit-breaking are not duplicated per
// backend; that responsibility lives once, centrally, in internal/dispatcher
// + internal/breaker + internal/telemetry, so providers here are plain,
// retry-free adapters that satisfy registry.Handler.
package providers

import (
	"context"

	"github.com/ratnathegod/llm-dispatch/internal/capability"
	"github.com/ratnathegod/llm-dispatch/internal/registry"
)

// CompletionRequest is the normalized request shape every backend adapter
// accepts, derived from whichever capability.Params variant the caller
// dispatched with.
type CompletionRequest struct {
	Model  string
	Prompt string
	MaxTok int
}

// CompletionResponse is the normalized response shape every backend adapter
// returns.
type CompletionResponse struct {
	Text string
}

// Provider is implemented by every concrete backend (Mock, OpenAI, Bedrock).
type Provider interface {
	Name() string
	CostPer1kTokensUSD(model string) float64
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// requestFor extracts a CompletionRequest from any capability.Params variant
// the core passes through; it is the adapter-side mirror of the core's own
// Projection() extraction.
func requestFor(model string, params capability.Params) CompletionRequest {
	req := CompletionRequest{Model: model}
	switch p := params.(type) {
	case capability.SmallText:
		req.Prompt = p.Prompt
		req.MaxTok = p.MaxTokens
	case capability.LargeText:
		req.Prompt = p.Text
		req.MaxTok = p.MaxTokens
	case capability.SmallObject:
		req.Prompt = p.Prompt
	case capability.LargeObject:
		req.Prompt = p.Text
	case capability.Embedding:
		req.Prompt = p.Text
	}
	return req
}

// HandlerFor adapts a Provider into a registry.Handler bound to model.
func HandlerFor(p Provider, model string) registry.Handler {
	return func(ctx context.Context, params capability.Params) (any, error) {
		req := requestFor(model, params)
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}
