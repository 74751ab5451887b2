package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
)

type Config struct {
	Port           string
	OpenAIKey      string
	OpenAIModel    string
	BedrockRegion  string
	BedrockModelID string
	OtelEndpoint   string

	EnableMockProvider bool
	MockMeanLatencyMs  int
	MockP95LatencyMs   int
	MockErrorRate      float64
	MockCostPer1kUSD   float64

	AdminToken string

	// Multi-tenant configuration
	DDBTenantsTable     string
	DDBUsageTable       string
	TenantsJSONPath     string
	EnableUsageTracking bool

	// Dispatcher tuning, mapped 1:1 onto dispatcher.Config.
	TelemetryWindow         int
	CircuitFailureThreshold int
	CircuitCoolOffMs        int64
	PerCallTimeoutMs        int64
	MaxRetries              int
	SessionBudgetUSD        float64
	SessionBudgetSet        bool
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var dotenvOnce sync.Once

func loadDotEnv() {
	dotenvOnce.Do(func() {
		f, err := os.Open(".env")
		if err != nil {
			return
		}
		defer f.Close()
		s := bufio.NewScanner(f)
		for s.Scan() {
			line := strings.TrimSpace(s.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			kv := strings.SplitN(line, "=", 2)
			if len(kv) != 2 {
				continue
			}
			k := strings.TrimSpace(kv[0])
			v := strings.TrimSpace(kv[1])
			if os.Getenv(k) == "" {
				_ = os.Setenv(k, v)
			}
		}
	})
}

// ValidateConfig performs startup validation and warnings.
func ValidateConfig(cfg Config) []string {
	var warnings []string

	providerCount := 0
	if cfg.OpenAIKey != "" {
		providerCount++
	}
	if os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != "" {
		providerCount++
	}
	if cfg.EnableMockProvider {
		providerCount++
	}
	if providerCount == 0 {
		warnings = append(warnings, "no providers configured: enable the mock provider or set OPENAI_API_KEY / AWS credentials")
	}

	if cfg.MaxRetries < 0 {
		warnings = append(warnings, "MAX_RETRIES must be >= 0, clamping to 0")
	}

	return warnings
}

// MaskSecrets returns a copy of config with secrets masked for logging.
func (c Config) MaskSecrets() Config {
	masked := c
	if masked.OpenAIKey != "" {
		masked.OpenAIKey = "***masked***"
	}
	if masked.AdminToken != "" {
		masked.AdminToken = "***masked***"
	}
	return masked
}

func Load() Config {
	loadDotEnv()
	cfg := Config{
		Port:               getenv("PORT", "8080"),
		OpenAIKey:          getenv("OPENAI_API_KEY", ""),
		OpenAIModel:        getenv("OPENAI_MODEL", "gpt-4o"),
		BedrockRegion:      getenv("BEDROCK_REGION", "us-east-1"),
		BedrockModelID:     getenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku"),
		OtelEndpoint:       getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableMockProvider: getenv("ENABLE_MOCK_PROVIDER", "") != "" && getenv("ENABLE_MOCK_PROVIDER", "") != "0",
		AdminToken:         getenv("ADMIN_TOKEN", ""),
	}

	cfg.MockMeanLatencyMs = 40
	cfg.MockP95LatencyMs = 120
	cfg.MockErrorRate = 0.01
	cfg.MockCostPer1kUSD = 0.002

	if v, err := strconv.Atoi(getenv("MOCK_MEAN_LATENCY_MS", "")); err == nil && v > 0 {
		cfg.MockMeanLatencyMs = v
	}
	if v, err := strconv.Atoi(getenv("MOCK_P95_LATENCY_MS", "")); err == nil && v > 0 {
		cfg.MockP95LatencyMs = v
	}
	if v, err := strconv.ParseFloat(getenv("MOCK_ERROR_RATE", ""), 64); err == nil && v >= 0 && v <= 1 {
		cfg.MockErrorRate = v
	}
	if v, err := strconv.ParseFloat(getenv("MOCK_COST_PER_1K_TOKENS_USD", ""), 64); err == nil && v >= 0 {
		cfg.MockCostPer1kUSD = v
	}

	cfg.TelemetryWindow = 200
	if v, err := strconv.Atoi(getenv("TELEMETRY_WINDOW", "")); err == nil && v > 0 {
		cfg.TelemetryWindow = v
	}
	cfg.CircuitFailureThreshold = 3
	if v, err := strconv.Atoi(getenv("CIRCUIT_FAILURE_THRESHOLD", "")); err == nil && v > 0 {
		cfg.CircuitFailureThreshold = v
	}
	cfg.CircuitCoolOffMs = 60_000
	if v, err := strconv.ParseInt(getenv("CIRCUIT_COOLOFF_MS", ""), 10, 64); err == nil && v > 0 {
		cfg.CircuitCoolOffMs = v
	}
	cfg.PerCallTimeoutMs = 300_000
	if v, err := strconv.ParseInt(getenv("PER_CALL_TIMEOUT_MS", ""), 10, 64); err == nil && v > 0 {
		cfg.PerCallTimeoutMs = v
	}
	cfg.MaxRetries = 2
	if v, err := strconv.Atoi(getenv("MAX_RETRIES", "")); err == nil && v >= 0 {
		cfg.MaxRetries = v
	}
	if v, err := strconv.ParseFloat(getenv("SESSION_BUDGET_USD", ""), 64); err == nil && v > 0 {
		cfg.SessionBudgetUSD = v
		cfg.SessionBudgetSet = true
	}

	// Multi-tenant config
	cfg.DDBTenantsTable = getenv("DDB_TENANTS_TABLE", "")
	cfg.DDBUsageTable = getenv("DDB_USAGE_TABLE", "")
	cfg.TenantsJSONPath = getenv("TENANTS_JSON", "")

	cfg.EnableUsageTracking = (cfg.DDBTenantsTable != "" && cfg.DDBUsageTable != "") ||
		(getenv("ENABLE_USAGE_TRACKING", "") != "" && getenv("ENABLE_USAGE_TRACKING", "") != "0") ||
		cfg.TenantsJSONPath != ""

	return cfg
}
