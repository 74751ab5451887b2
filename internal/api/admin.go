package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ratnathegod/llm-dispatch/internal/auth"
	"github.com/ratnathegod/llm-dispatch/internal/capability"
	"github.com/ratnathegod/llm-dispatch/internal/dispatcher"
	"github.com/ratnathegod/llm-dispatch/internal/telemetry"
	"github.com/ratnathegod/llm-dispatch/internal/usage"
	"github.com/rs/zerolog/log"
)

var (
	startTime = time.Now()
	buildInfo = struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
		Date    string `json:"build_date"`
	}{
		Version: "dev",
		Commit:  "unknown",
		Date:    time.Now().Format(time.RFC3339),
	}
)

// AdminStatusResponse reports per-(provider, capability) telemetry and
// circuit-breaker state for one Dispatcher instance.
type AdminStatusResponse struct {
	BuildInfo struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
		Date    string `json:"build_date"`
	} `json:"build_info"`
	Uptime      string              `json:"uptime"`
	Session     SessionStatusDTO    `json:"session"`
	ProviderSet []ProviderStatusDTO `json:"providers"`
}

type SessionStatusDTO struct {
	Total       *float64 `json:"total_budget_usd,omitempty"`
	Spent       float64  `json:"spent_usd"`
	Remaining   *float64 `json:"remaining_usd,omitempty"`
	Utilization *float64 `json:"utilization,omitempty"`
}

type ProviderStatusDTO struct {
	ProviderID   string   `json:"provider_id"`
	Capability   string   `json:"capability"`
	CircuitState string   `json:"circuit_state"`
	P50LatencyMs *float64 `json:"p50_latency_ms,omitempty"`
	P95LatencyMs *float64 `json:"p95_latency_ms,omitempty"`
	SuccessN     int      `json:"success_count"`
	FailureN     int      `json:"failure_count"`
	TimeoutN     int      `json:"timeout_count"`
}

var statusCapabilities = []capability.Capability{
	capability.SmallText, capability.LargeText,
	capability.SmallObject, capability.LargeObject, capability.Embedding,
}

// HandleAdminStatus returns the session ledger snapshot plus telemetry and
// circuit-breaker snapshots for each (providerId, capability) pair, over the
// given provider IDs and every known capability, that has at least one
// telemetry record; pairs with no recorded calls are omitted.
func HandleAdminStatus(d *dispatcher.Dispatcher, providerIDs []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := AdminStatusResponse{
			BuildInfo: buildInfo,
			Uptime:    time.Since(startTime).String(),
		}

		sessStatus := d.Session().Status()
		resp.Session = SessionStatusDTO{
			Total:       sessStatus.Total,
			Spent:       sessStatus.Spent,
			Remaining:   sessStatus.Remaining,
			Utilization: sessStatus.Utilization,
		}
		if sessStatus.Utilization != nil {
			telemetry.SessionUtilization.Set(*sessStatus.Utilization)
		}

		for _, providerID := range providerIDs {
			for _, cap := range statusCapabilities {
				stats := d.Telemetry().Stats(providerID, cap)
				entry := d.Breaker().Snapshot(providerID, cap)
				telemetry.CBState.WithLabelValues(providerID, string(cap)).Set(float64(entry.State))
				if stats.Count == 0 {
					continue
				}
				resp.ProviderSet = append(resp.ProviderSet, ProviderStatusDTO{
					ProviderID:   providerID,
					Capability:   string(cap),
					CircuitState: entry.State.String(),
					P50LatencyMs: stats.P50Latency,
					P95LatencyMs: stats.P95Latency,
					SuccessN:     stats.SuccessN,
					FailureN:     stats.FailureN,
					TimeoutN:     stats.TimeoutN,
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to encode admin status response")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// CreateTenantRequest represents the request to create a new tenant
type CreateTenantRequest struct {
	Name            string `json:"name"`
	Plan            string `json:"plan"`
	RPSLimit        int    `json:"rps_limit"`
	DailyTokenLimit int64  `json:"daily_token_limit"`
	Enabled         bool   `json:"enabled"`
}

// CreateTenantResponse represents the response when creating a tenant
type CreateTenantResponse struct {
	TenantID string `json:"tenant_id"`
	APIKey   string `json:"api_key"`
	*auth.Tenant
}

// UpdateTenantRequest represents the request to update a tenant
type UpdateTenantRequest struct {
	Name            *string `json:"name,omitempty"`
	Plan            *string `json:"plan,omitempty"`
	RPSLimit        *int    `json:"rps_limit,omitempty"`
	DailyTokenLimit *int64  `json:"daily_token_limit,omitempty"`
	Enabled         *bool   `json:"enabled,omitempty"`
	RotateKey       bool    `json:"rotate_key,omitempty"`
}

// TenantHandlers provides tenant management functionality
type TenantHandlers struct {
	keyManager *auth.APIKeyManager
	usageStore *usage.Store
}

func NewTenantHandlers(keyManager *auth.APIKeyManager, usageStore *usage.Store) *TenantHandlers {
	return &TenantHandlers{
		keyManager: keyManager,
		usageStore: usageStore,
	}
}

// HandleCreateTenant creates a new tenant
func (th *TenantHandlers) HandleCreateTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTenantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}

		if req.Name == "" || req.Plan == "" {
			http.Error(w, "name and plan are required", http.StatusBadRequest)
			return
		}

		if req.RPSLimit <= 0 {
			switch req.Plan {
			case "free":
				req.RPSLimit = 10
			case "pro":
				req.RPSLimit = 100
			case "enterprise":
				req.RPSLimit = 1000
			default:
				req.RPSLimit = 10
			}
		}

		if req.DailyTokenLimit <= 0 {
			switch req.Plan {
			case "free":
				req.DailyTokenLimit = 10000
			case "pro":
				req.DailyTokenLimit = 1000000
			case "enterprise":
				req.DailyTokenLimit = 10000000
			default:
				req.DailyTokenLimit = 10000
			}
		}

		tenant, apiKey, err := th.keyManager.CreateTenant(
			r.Context(),
			req.Name,
			req.Plan,
			req.RPSLimit,
			req.DailyTokenLimit,
		)
		if err != nil {
			log.Error().Err(err).Msg("failed to create tenant")
			http.Error(w, "failed to create tenant", http.StatusInternalServerError)
			return
		}

		log.Info().
			Str("event", "tenant_create").
			Str("tenant_id", tenant.TenantID).
			Str("name", tenant.Name).
			Str("plan", tenant.Plan).
			Msg("tenant created")

		telemetry.AdminActionsTotal.WithLabelValues("tenant_create").Inc()

		response := CreateTenantResponse{
			TenantID: tenant.TenantID,
			APIKey:   apiKey,
			Tenant:   tenant,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Error().Err(err).Msg("failed to encode create tenant response")
		}
	}
}

// HandleGetTenantUsage returns usage data for a specific tenant
func (th *TenantHandlers) HandleGetTenantUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenant_id")
		if tenantID == "" {
			http.Error(w, "tenant_id required", http.StatusBadRequest)
			return
		}

		since := r.URL.Query().Get("since")
		until := r.URL.Query().Get("until")

		var sinceTime, untilTime time.Time
		var err error

		if since != "" {
			sinceTime, err = time.Parse("2006-01-02", since)
			if err != nil {
				http.Error(w, "invalid since date format (YYYY-MM-DD)", http.StatusBadRequest)
				return
			}
		} else {
			sinceTime = time.Now().AddDate(0, 0, -7)
		}

		if until != "" {
			untilTime, err = time.Parse("2006-01-02", until)
			if err != nil {
				http.Error(w, "invalid until date format (YYYY-MM-DD)", http.StatusBadRequest)
				return
			}
		} else {
			untilTime = time.Now()
		}

		aggregates, err := th.usageStore.GetDailyUsage(r.Context(), tenantID, sinceTime, untilTime)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to get tenant usage")
			http.Error(w, "failed to retrieve usage data", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(aggregates); err != nil {
			log.Error().Err(err).Msg("failed to encode tenant usage response")
		}
	}
}
