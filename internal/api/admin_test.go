package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ratnathegod/llm-dispatch/internal/capability"
	"github.com/ratnathegod/llm-dispatch/internal/dispatcher"
	"github.com/ratnathegod/llm-dispatch/internal/providers"
	"github.com/ratnathegod/llm-dispatch/internal/registry"
	"github.com/ratnathegod/llm-dispatch/internal/telemetry"
)

func TestAdminAuthMiddleware(t *testing.T) {
	telemetry.MustRegisterMetrics()

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("authorized"))
	})

	authMiddleware := func(token string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth := r.Header.Get("Authorization")
				const prefix = "Bearer "
				if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != token {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
			})
		}
	}

	expectedToken := "test-secret-token"
	protectedHandler := authMiddleware(expectedToken)(testHandler)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedBody   string
	}{
		{name: "no auth header", authHeader: "", expectedStatus: http.StatusUnauthorized, expectedBody: "unauthorized"},
		{name: "invalid auth format", authHeader: "Basic dGVzdA==", expectedStatus: http.StatusUnauthorized, expectedBody: "unauthorized"},
		{name: "wrong token", authHeader: "Bearer wrong-token", expectedStatus: http.StatusUnauthorized, expectedBody: "unauthorized"},
		{name: "correct token", authHeader: "Bearer test-secret-token", expectedStatus: http.StatusOK, expectedBody: "authorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rr := httptest.NewRecorder()
			protectedHandler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}

			body := strings.TrimSpace(rr.Body.String())
			if !strings.Contains(body, tt.expectedBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedBody, body)
			}
		})
	}
}

func TestAdminStatus(t *testing.T) {
	reg := registry.New()
	mp := providers.NewMockProvider(50, 100, 0.0, 0.002)
	budget := 10.0
	if err := reg.Register(capability.SmallText, mp.Name(), providers.HandlerFor(mp, "mock-model"), 1, registry.Profile{
		TypicalLatencyMs:     50,
		JSONReliabilityScore: 0.6,
		Cost:                 &registry.CostProfile{SimulatedModelName: "mock", CharsPerToken: 4.0, DiscountFactor: 1.0},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	d := dispatcher.New(reg, dispatcher.Config{SessionBudgetUSD: &budget})

	if _, err := d.Dispatch(context.Background(), capability.SmallText, capability.SmallText{Prompt: "hello there"}, dispatcher.Options{}); err != nil {
		t.Fatalf("warm-up dispatch failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/status", nil)
	rr := httptest.NewRecorder()

	handler := HandleAdminStatus(d, []string{mp.Name()})
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var resp AdminStatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.BuildInfo.Version == "" {
		t.Error("expected build version to be set")
	}
	if resp.Uptime == "" {
		t.Error("expected uptime to be set")
	}
	if resp.Session.Spent == 0 {
		t.Error("expected a nonzero spend after a successful dispatch")
	}
	if len(resp.ProviderSet) != 1 {
		t.Fatalf("expected 1 provider entry, got %d", len(resp.ProviderSet))
	}
	if resp.ProviderSet[0].ProviderID != mp.Name() {
		t.Errorf("expected provider %q, got %q", mp.Name(), resp.ProviderSet[0].ProviderID)
	}
	if resp.ProviderSet[0].SuccessN != 1 {
		t.Errorf("expected 1 recorded success, got %d", resp.ProviderSet[0].SuccessN)
	}
}
