package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/ratnathegod/llm-dispatch/internal/auth"
	"github.com/ratnathegod/llm-dispatch/internal/capability"
	"github.com/ratnathegod/llm-dispatch/internal/config"
	"github.com/ratnathegod/llm-dispatch/internal/dispatcher"
	"github.com/ratnathegod/llm-dispatch/internal/providers"
	"github.com/ratnathegod/llm-dispatch/internal/registry"
	"github.com/ratnathegod/llm-dispatch/internal/telemetry"
	"github.com/ratnathegod/llm-dispatch/internal/usage"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type InferRequest struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	MaxTok   int    `json:"max_tokens,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Provider string `json:"provider,omitempty"` // pin dispatch to a single providerId
}

type InferResponse struct {
	Provider  string  `json:"provider"`
	Text      string  `json:"text"`
	CostUSD   float64 `json:"cost_usd"`
	LatencyMs int64   `json:"latency_ms"`
}

// BuildDispatcher registers every configured backend into a fresh Registry
// and wraps it in a Dispatcher tuned from cfg, returning the provider IDs it
// registered alongside it so callers (admin status, readiness checks) don't
// need to re-derive them. Each call yields an independent instance: no
// process-wide provider registry is shared behind package-level globals.
func BuildDispatcher(cfg config.Config) (*dispatcher.Dispatcher, []string) {
	reg := registry.New()
	var providerIDs []string

	if cfg.OpenAIKey != "" {
		op := providers.NewOpenAIProvider(cfg.OpenAIKey)
		profile := registry.Profile{
			TypicalLatencyMs:     900,
			JSONReliabilityScore: 0.9,
			Cost: &registry.CostProfile{
				SimulatedModelName: cfg.OpenAIModel,
				CharsPerToken:      4.0,
				DiscountFactor:     1.0,
			},
		}
		for _, cap := range []capability.Capability{capability.SmallText, capability.LargeText, capability.SmallObject, capability.LargeObject} {
			if err := reg.Register(cap, op.Name(), providers.HandlerFor(op, cfg.OpenAIModel), 10, profile); err != nil {
				log.Warn().Err(err).Str("provider", op.Name()).Msg("registration skipped")
			}
		}
		providerIDs = append(providerIDs, op.Name())
	}

	if os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != "" {
		if br, err := providers.NewBedrockProvider(cfg.BedrockModelID, cfg.BedrockRegion); err == nil {
			profile := registry.Profile{
				TypicalLatencyMs:     1200,
				JSONReliabilityScore: 0.85,
				Cost: &registry.CostProfile{
					SimulatedModelName: cfg.BedrockModelID,
					CharsPerToken:      4.0,
					DiscountFactor:     1.0,
				},
			}
			for _, cap := range []capability.Capability{capability.SmallText, capability.LargeText, capability.SmallObject, capability.LargeObject} {
				if err := reg.Register(cap, br.Name(), providers.HandlerFor(br, cfg.BedrockModelID), 8, profile); err != nil {
					log.Warn().Err(err).Str("provider", br.Name()).Msg("registration skipped")
				}
			}
			providerIDs = append(providerIDs, br.Name())
		} else {
			log.Warn().Err(err).Msg("bedrock init failed")
		}
	}

	if cfg.EnableMockProvider {
		mp := providers.NewMockProvider(float64(cfg.MockMeanLatencyMs), float64(cfg.MockP95LatencyMs), cfg.MockErrorRate, cfg.MockCostPer1kUSD)
		profile := registry.Profile{
			TypicalLatencyMs:     int64(cfg.MockMeanLatencyMs),
			JSONReliabilityScore: 0.6,
			Cost: &registry.CostProfile{
				SimulatedModelName: "mock",
				CharsPerToken:      4.0,
				DiscountFactor:     1.0,
			},
		}
		for _, cap := range []capability.Capability{capability.SmallText, capability.LargeText, capability.SmallObject, capability.LargeObject, capability.Embedding} {
			if err := reg.Register(cap, mp.Name(), providers.HandlerFor(mp, "mock-model"), 1, profile); err != nil {
				log.Warn().Err(err).Str("provider", mp.Name()).Msg("registration skipped")
			}
		}
		providerIDs = append(providerIDs, mp.Name())
	}

	var budget *float64
	if cfg.SessionBudgetSet {
		budget = &cfg.SessionBudgetUSD
	}

	d := dispatcher.New(reg, dispatcher.Config{
		TelemetryWindow:         cfg.TelemetryWindow,
		CircuitFailureThreshold: cfg.CircuitFailureThreshold,
		CircuitCoolOffMs:        cfg.CircuitCoolOffMs,
		PerCallTimeoutMs:        cfg.PerCallTimeoutMs,
		MaxRetries:              cfg.MaxRetries,
		SessionBudgetUSD:        budget,
	})
	return d, providerIDs
}

func paramsFor(req InferRequest) (capability.Capability, capability.Params) {
	if req.Schema != "" {
		return capability.SmallObject, capability.SmallObject{Prompt: req.Prompt, Schema: req.Schema}
	}
	return capability.SmallText, capability.SmallText{Prompt: req.Prompt, MaxTokens: req.MaxTok}
}

// HandleInfer serves inference requests through d.
func HandleInfer(cfg config.Config, d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Model == "" {
			req.Model = cfg.OpenAIModel
		}

		cap, params := paramsFor(req)

		tracer := otel.Tracer("llm-dispatch")
		ctx, span := tracer.Start(r.Context(), "infer")
		span.SetAttributes(
			attribute.String("capability", string(cap)),
			attribute.String("model", req.Model),
		)
		defer span.End()

		start := time.Now()
		result, err := d.Dispatch(ctx, cap, params, dispatcher.Options{ProviderHint: req.Provider})
		latencyMs := time.Since(start).Milliseconds()

		code := "200"
		if err != nil {
			code = "502"
		}
		telemetry.RequestsTotal.WithLabelValues(providerLabel(result), string(cap), code).Inc()
		telemetry.LatencyMs.WithLabelValues(providerLabel(result), string(cap)).Observe(float64(latencyMs))

		if err != nil {
			telemetry.ErrorsTotal.WithLabelValues(providerLabel(result), "dispatch_failed").Inc()
			log.Error().Err(err).Msg("dispatch failed")
			http.Error(w, "no provider could serve the request", http.StatusBadGateway)
			return
		}

		var cost float64
		if result.CostEstimate != nil {
			cost = result.CostEstimate.TotalUSD
			telemetry.CostUSDTotal.WithLabelValues(result.ProviderID).Add(cost)
		}
		span.SetAttributes(
			attribute.String("provider", result.ProviderID),
			attribute.Float64("cost_usd", cost),
			attribute.Int64("latency_ms", latencyMs),
		)

		text := completionText(result.Result)
		resp := InferResponse{Provider: result.ProviderID, Text: text, CostUSD: cost, LatencyMs: latencyMs}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("encode resp")
		}
	}
}

// HandleInferWithUsageTracking is the multi-tenant variant: same dispatch
// pipeline, plus a per-request usage record keyed by tenant.
func HandleInferWithUsageTracking(cfg config.Config, d *dispatcher.Dispatcher, usageStore *usage.Store) http.HandlerFunc {
	estimator := usage.NewTokenEstimator()

	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		tenant, ok := auth.GetTenantFromContext(r.Context())
		if !ok {
			http.Error(w, "no tenant context", http.StatusInternalServerError)
			return
		}

		var req InferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Model == "" {
			req.Model = cfg.OpenAIModel
		}

		cap, params := paramsFor(req)
		promptTokens := estimator.EstimatePromptTokens(req.Prompt, req.Model)

		tracer := otel.Tracer("llm-dispatch")
		ctx, span := tracer.Start(r.Context(), "infer")
		span.SetAttributes(
			attribute.String("capability", string(cap)),
			attribute.String("model", req.Model),
			attribute.String("tenant_id", tenant.TenantID),
		)
		defer span.End()

		result, err := d.Dispatch(ctx, cap, params, dispatcher.Options{ProviderHint: req.Provider})
		latencyMs := time.Since(startTime).Milliseconds()

		code := "200"
		if err != nil {
			code = "502"
		}
		telemetry.RequestsTotal.WithLabelValues(providerLabel(result), string(cap), code).Inc()
		telemetry.LatencyMs.WithLabelValues(providerLabel(result), string(cap)).Observe(float64(latencyMs))

		var cost float64
		var text string
		status := "ok"
		if err != nil {
			status = "error"
			telemetry.ErrorsTotal.WithLabelValues(providerLabel(result), "dispatch_failed").Inc()
		} else {
			if result.CostEstimate != nil {
				cost = result.CostEstimate.TotalUSD
				telemetry.CostUSDTotal.WithLabelValues(result.ProviderID).Add(cost)
			}
			text = completionText(result.Result)
		}

		var completionTokens int64
		if text != "" {
			completionTokens = estimator.EstimateTokens(text, req.Model)
		} else {
			completionTokens = estimator.EstimateCompletionTokens(req.Prompt, req.Model)
		}

		if usageStore != nil {
			record := usage.UsageRecord{
				TenantID:            tenant.TenantID,
				Timestamp:           startTime,
				RequestID:           r.Header.Get("X-Request-ID"),
				Provider:            result.ProviderID,
				Model:               req.Model,
				EstPromptTokens:     promptTokens,
				EstCompletionTokens: completionTokens,
				CostUSD:             cost,
				LatencyMs:           latencyMs,
				Status:              status,
				IdempotencyKey:      r.Header.Get("Idempotency-Key"),
			}
			if err := usageStore.RecordUsage(r.Context(), record); err != nil {
				log.Error().Err(err).Msg("failed to record usage")
			}
		}

		span.SetAttributes(
			attribute.String("provider", result.ProviderID),
			attribute.Float64("cost_usd", cost),
			attribute.Int64("latency_ms", latencyMs),
			attribute.Int64("prompt_tokens", promptTokens),
			attribute.Int64("completion_tokens", completionTokens),
		)

		if err != nil {
			log.Error().Err(err).Str("tenant", tenant.TenantID).Msg("dispatch failed")
			http.Error(w, "no provider could serve the request", http.StatusBadGateway)
			return
		}

		resp := InferResponse{Provider: result.ProviderID, Text: text, CostUSD: cost, LatencyMs: latencyMs}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("encode resp")
		}
	}
}

func providerLabel(result dispatcher.Result) string {
	if result.ProviderID == "" {
		return "none"
	}
	return result.ProviderID
}

func completionText(res any) string {
	if cr, ok := res.(providers.CompletionResponse); ok {
		return cr.Text
	}
	return ""
}
