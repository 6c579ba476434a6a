package core

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if got := cfg.API.Timeout(); got != 30*time.Second {
		t.Fatalf("expected 30s default timeout, got %s", got)
	}
	policy := cfg.Retry.Policy()
	if policy.MaxRetries != 3 || policy.BaseDelay != time.Second || !policy.Backoff {
		t.Fatalf("unexpected default retry policy: %+v", policy)
	}
}

func TestGatewayConfig_BaseURLSwitchesByEnvironment(t *testing.T) {
	cfg := GatewayConfig{
		Environment:   GatewayEnvironmentSandbox,
		ProductionURL: "https://pay.example.com",
		SandboxURL:    "https://sandbox.pay.example.com",
	}
	if got := cfg.BaseURL(); got != "https://sandbox.pay.example.com" {
		t.Fatalf("expected sandbox url, got %q", got)
	}
	cfg.Environment = GatewayEnvironmentProduction
	if got := cfg.BaseURL(); got != "https://pay.example.com" {
		t.Fatalf("expected production url, got %q", got)
	}
}

func TestConfig_ValidateRejectsUnknownEnvironment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Environment = "staging"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown gateway environment to fail validation")
	}
}

func TestCfgxConfigProvider_LoadMergesDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader(map[string]any{
		"api": map[string]any{
			"base_url": "https://api.example.com",
		},
	}))
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Fatalf("expected loaded base url, got %q", cfg.API.BaseURL)
	}
	if cfg.ServiceName != "outbound" {
		t.Fatalf("expected default service name to survive merge, got %q", cfg.ServiceName)
	}
}

func TestGoOptionsResolver_RuntimeWinsOverLoaded(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{ServiceName: "from-config"}
	runtime := Config{ServiceName: "from-runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime layer to win, got %q", resolved.ServiceName)
	}
	if resolved.Retry.MaxRetries != defaults.Retry.MaxRetries {
		t.Fatalf("expected defaults to fill unset retry settings")
	}
}

func TestRetryPolicy_DelaySchedule(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, Backoff: true}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for k := 1; k <= 3; k++ {
		if got := policy.Delay(k); got != want[k-1] {
			t.Fatalf("attempt %d: expected delay %s, got %s", k, want[k-1], got)
		}
	}
	flat := RetryPolicy{BaseDelay: time.Second, Backoff: false}
	for k := 1; k <= 3; k++ {
		if got := flat.Delay(k); got != time.Second {
			t.Fatalf("attempt %d: expected flat delay 1s, got %s", k, got)
		}
	}
}

func TestCredential_Freshness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cred := Credential{Value: "tok", ExpiresAt: now.Add(time.Hour)}
	if !cred.Fresh(now, DefaultCredentialRenewWindow) {
		t.Fatalf("expected credential an hour from expiry to be fresh")
	}
	if cred.Fresh(now.Add(56*time.Minute), DefaultCredentialRenewWindow) {
		t.Fatalf("expected credential inside the renew window to be stale")
	}
	if (Credential{}).Fresh(now, DefaultCredentialRenewWindow) {
		t.Fatalf("expected zero credential to be stale")
	}
	eternal := Credential{Value: "tok"}
	if !eternal.Fresh(now, DefaultCredentialRenewWindow) {
		t.Fatalf("expected credential without expiry to stay fresh")
	}
}
