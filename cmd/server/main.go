package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ratnathegod/llm-dispatch/internal/api"
	"github.com/ratnathegod/llm-dispatch/internal/auth"
	"github.com/ratnathegod/llm-dispatch/internal/capability"
	"github.com/ratnathegod/llm-dispatch/internal/config"
	"github.com/ratnathegod/llm-dispatch/internal/docs"
	"github.com/ratnathegod/llm-dispatch/internal/idempotency"
	"github.com/ratnathegod/llm-dispatch/internal/rate"
	"github.com/ratnathegod/llm-dispatch/internal/telemetry"
	"github.com/ratnathegod/llm-dispatch/internal/usage"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	zerolog.TimeFieldFormat = time.RFC3339

	cfg := config.Load()

	for _, warning := range config.ValidateConfig(cfg) {
		log.Warn().Msg(warning)
	}
	log.Info().Interface("config", cfg.MaskSecrets()).Msg("loaded configuration")

	keyManager, err := auth.NewAPIKeyManager(cfg.DDBTenantsTable, cfg.TenantsJSONPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize API key manager")
	}

	var usageStore *usage.Store
	if cfg.EnableUsageTracking {
		usageStore, err = usage.NewStore(cfg.DDBUsageTable)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize usage store")
		}
	}

	idempotencyStore, err := idempotency.NewStore(cfg.DDBUsageTable)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize idempotency store")
	}

	rateLimiter := rate.NewLimiter()
	tenantHandlers := api.NewTenantHandlers(keyManager, usageStore)
	var usageHandlers *api.UsageHandlers
	if usageStore != nil {
		usageHandlers = api.NewUsageHandlers(usageStore)
	}

	d, providerIDs := api.BuildDispatcher(cfg)
	if len(providerIDs) == 0 {
		log.Warn().Msg("no providers registered; every dispatch will fail")
	}

	r := chi.NewRouter()

	telemetry.MustRegisterMetrics()
	if shutdown, err := telemetry.InitOTEL(context.Background(), "llm-dispatch", cfg.OtelEndpoint); err != nil {
		log.Warn().Err(err).Msg("OTEL init failed")
	} else {
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	r.Use(telemetry.RequestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-API-Key", "Authorization", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Trace-ID"},
		MaxAge:           3600,
	}))

	r.Get("/v1/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if len(providerIDs) == 0 {
			http.Error(w, "no providers", http.StatusServiceUnavailable)
			return
		}
		for _, id := range providerIDs {
			if !d.Breaker().IsOpen(id, capability.SmallText) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ready"))
				return
			}
		}
		http.Error(w, "all providers tripped", http.StatusServiceUnavailable)
	})
	r.Handle("/metrics", telemetry.MetricsHandler())

	if cfg.EnableUsageTracking {
		r.Route("/v1", func(r chi.Router) {
			r.Use(keyManager.APIKeyMiddleware)
			r.Use(rateLimiter.RateLimitMiddleware)
			r.Group(func(r chi.Router) {
				r.Use(idempotencyStore.Middleware)
				r.Post("/infer", api.HandleInferWithUsageTracking(cfg, d, usageStore))
			})
			if usageHandlers != nil {
				r.Get("/usage/daily", usageHandlers.HandleDailyUsage())
				r.Get("/usage/recent", usageHandlers.HandleRecentUsage())
			}
		})
	} else {
		r.Post("/v1/infer", api.HandleInfer(cfg, d))
	}

	r.Mount("/docs", docs.SwaggerUIHandler())

	if cfg.AdminToken != "" {
		admin := chi.NewRouter()
		admin.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				authHeader := r.Header.Get("Authorization")
				const prefix = "Bearer "
				if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix || authHeader[len(prefix):] != cfg.AdminToken {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
			})
		})

		admin.Get("/status", api.HandleAdminStatus(d, providerIDs))

		if usageStore != nil {
			admin.Post("/tenants", tenantHandlers.HandleCreateTenant())
			admin.Get("/tenants/{tenant_id}/usage", tenantHandlers.HandleGetTenantUsage())
		}

		r.Mount("/v1/admin", admin)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
