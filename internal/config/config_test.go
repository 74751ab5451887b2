package config

import (
	"os"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name             string
		config           Config
		envVars          map[string]string
		expectedWarnings int
		expectedWarning  string
	}{
		{
			name: "mock provider enabled",
			config: Config{
				OpenAIKey:          "test-key",
				EnableMockProvider: true,
			},
			envVars:          map[string]string{},
			expectedWarnings: 0,
		},
		{
			name:             "no providers configured",
			config:           Config{},
			envVars:          map[string]string{},
			expectedWarnings: 1,
			expectedWarning:  "no providers configured: enable the mock provider or set OPENAI_API_KEY / AWS credentials",
		},
		{
			name: "AWS creds satisfy provider check",
			config: Config{
				OpenAIKey: "",
			},
			envVars: map[string]string{
				"AWS_ACCESS_KEY_ID": "test-key-id",
			},
			expectedWarnings: 0,
		},
		{
			name: "negative max retries warns",
			config: Config{
				OpenAIKey:  "test-key",
				MaxRetries: -1,
			},
			envVars:          map[string]string{},
			expectedWarnings: 1,
			expectedWarning:  "MAX_RETRIES must be >= 0, clamping to 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldEnvVars := make(map[string]string)
			for k, v := range tt.envVars {
				oldEnvVars[k] = os.Getenv(k)
				os.Setenv(k, v)
			}

			defer func() {
				for k, oldVal := range oldEnvVars {
					if oldVal == "" {
						os.Unsetenv(k)
					} else {
						os.Setenv(k, oldVal)
					}
				}
			}()

			warnings := ValidateConfig(tt.config)

			if len(warnings) != tt.expectedWarnings {
				t.Errorf("expected %d warnings, got %d: %v", tt.expectedWarnings, len(warnings), warnings)
			}

			if tt.expectedWarning != "" && len(warnings) > 0 {
				found := false
				for _, warning := range warnings {
					if warning == tt.expectedWarning {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("expected warning %q, got %v", tt.expectedWarning, warnings)
				}
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"TELEMETRY_WINDOW", "CIRCUIT_FAILURE_THRESHOLD", "CIRCUIT_COOLOFF_MS",
		"PER_CALL_TIMEOUT_MS", "MAX_RETRIES", "SESSION_BUDGET_USD",
	} {
		old := os.Getenv(k)
		os.Unsetenv(k)
		defer func(k, v string) {
			if v != "" {
				os.Setenv(k, v)
			}
		}(k, old)
	}

	cfg := Load()

	if cfg.TelemetryWindow != 200 {
		t.Errorf("expected default TelemetryWindow 200, got %d", cfg.TelemetryWindow)
	}
	if cfg.CircuitFailureThreshold != 3 {
		t.Errorf("expected default CircuitFailureThreshold 3, got %d", cfg.CircuitFailureThreshold)
	}
	if cfg.CircuitCoolOffMs != 60_000 {
		t.Errorf("expected default CircuitCoolOffMs 60000, got %d", cfg.CircuitCoolOffMs)
	}
	if cfg.PerCallTimeoutMs != 300_000 {
		t.Errorf("expected default PerCallTimeoutMs 300000, got %d", cfg.PerCallTimeoutMs)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("expected default MaxRetries 2, got %d", cfg.MaxRetries)
	}
	if cfg.SessionBudgetSet {
		t.Error("expected SessionBudgetSet to be false with no env var")
	}
}

func TestLoadOverrides(t *testing.T) {
	overrides := map[string]string{
		"TELEMETRY_WINDOW":          "500",
		"CIRCUIT_FAILURE_THRESHOLD": "5",
		"CIRCUIT_COOLOFF_MS":        "15000",
		"PER_CALL_TIMEOUT_MS":       "10000",
		"MAX_RETRIES":               "4",
		"SESSION_BUDGET_USD":        "25.5",
	}
	for k, v := range overrides {
		old := os.Getenv(k)
		os.Setenv(k, v)
		defer func(k, v string) {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}(k, old)
	}

	cfg := Load()

	if cfg.TelemetryWindow != 500 {
		t.Errorf("expected TelemetryWindow 500, got %d", cfg.TelemetryWindow)
	}
	if cfg.CircuitFailureThreshold != 5 {
		t.Errorf("expected CircuitFailureThreshold 5, got %d", cfg.CircuitFailureThreshold)
	}
	if cfg.CircuitCoolOffMs != 15000 {
		t.Errorf("expected CircuitCoolOffMs 15000, got %d", cfg.CircuitCoolOffMs)
	}
	if cfg.PerCallTimeoutMs != 10000 {
		t.Errorf("expected PerCallTimeoutMs 10000, got %d", cfg.PerCallTimeoutMs)
	}
	if cfg.MaxRetries != 4 {
		t.Errorf("expected MaxRetries 4, got %d", cfg.MaxRetries)
	}
	if !cfg.SessionBudgetSet || cfg.SessionBudgetUSD != 25.5 {
		t.Errorf("expected SessionBudgetUSD 25.5 (set), got %v set=%v", cfg.SessionBudgetUSD, cfg.SessionBudgetSet)
	}
}

func TestMaskSecrets(t *testing.T) {
	cfg := Config{
		OpenAIKey:  "sk-1234567890abcdef",
		AdminToken: "secret-admin-token",
		Port:       "8080",
	}

	masked := cfg.MaskSecrets()

	if masked.OpenAIKey != "***masked***" {
		t.Errorf("expected OpenAIKey to be masked, got %q", masked.OpenAIKey)
	}
	if masked.AdminToken != "***masked***" {
		t.Errorf("expected AdminToken to be masked, got %q", masked.AdminToken)
	}

	if masked.Port != cfg.Port {
		t.Errorf("expected Port to be preserved, got %q", masked.Port)
	}

	if cfg.OpenAIKey == "***masked***" {
		t.Error("original config should not be modified")
	}
	if cfg.AdminToken == "***masked***" {
		t.Error("original config should not be modified")
	}
}

func TestMaskSecretsEmptyValues(t *testing.T) {
	cfg := Config{
		OpenAIKey:  "",
		AdminToken: "",
	}

	masked := cfg.MaskSecrets()

	if masked.OpenAIKey != "" {
		t.Errorf("expected empty OpenAIKey to remain empty, got %q", masked.OpenAIKey)
	}
	if masked.AdminToken != "" {
		t.Errorf("expected empty AdminToken to remain empty, got %q", masked.AdminToken)
	}
}
