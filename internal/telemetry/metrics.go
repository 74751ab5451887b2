package telemetry

import (
    "net/http"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    RequestsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "router_requests_total",
            Help: "Total requests processed by the router",
        },
        []string{"provider", "capability", "code"},
    )

    LatencyMs = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "router_latency_ms",
            Help:    "Latency of completions in milliseconds",
            Buckets: prometheus.ExponentialBuckets(10, 1.5, 12),
        },
        []string{"provider", "capability"},
    )

    CostUSDTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "router_cost_usd_total",
            Help: "Accumulated provider cost in USD",
        },
        []string{"provider"},
    )

    ErrorsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "router_errors_total",
            Help: "Total errors by provider and reason",
        },
        []string{"provider", "reason"},
    )

    CBState = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "router_cb_state",
            Help: "Circuit breaker state per provider and capability (0=closed,1=open,2=half-open)",
        },
        []string{"provider", "capability"},
    )

    SessionUtilization = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Name: "router_session_budget_utilization",
            Help: "Fraction of the configured session budget spent so far",
        },
    )

    AdminActionsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "router_admin_actions_total",
            Help: "Total admin API actions by kind",
        },
        []string{"action"},
    )
)

func MustRegisterMetrics() {
    prometheus.MustRegister(RequestsTotal, LatencyMs, CostUSDTotal, ErrorsTotal, CBState, SessionUtilization, AdminActionsTotal)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }
