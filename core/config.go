package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	GatewayEnvironmentProduction = "production"
	GatewayEnvironmentSandbox    = "sandbox"
)

type APIConfig struct {
	BaseURL   string `koanf:"base_url" mapstructure:"base_url"`
	TimeoutMS int    `koanf:"timeout_ms" mapstructure:"timeout_ms"`
	// Token endpoint for the first-party bearer credential; empty means the
	// pipeline runs unauthenticated unless a token source is injected.
	TokenURL     string `koanf:"token_url" mapstructure:"token_url"`
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
}

func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultCallTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type RetryConfig struct {
	MaxRetries  int  `koanf:"max_retries" mapstructure:"max_retries"`
	BaseDelayMS int  `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	Backoff     bool `koanf:"backoff" mapstructure:"backoff"`
}

func (c RetryConfig) Policy() RetryPolicy {
	policy := DefaultRetryPolicy()
	if c.MaxRetries >= 0 {
		policy.MaxRetries = c.MaxRetries
	}
	if c.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(c.BaseDelayMS) * time.Millisecond
	}
	policy.Backoff = c.Backoff
	return policy
}

type GatewayConfig struct {
	Environment   string `koanf:"environment" mapstructure:"environment"`
	ProductionURL string `koanf:"production_url" mapstructure:"production_url"`
	SandboxURL    string `koanf:"sandbox_url" mapstructure:"sandbox_url"`
	ClientID      string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret  string `koanf:"client_secret" mapstructure:"client_secret"`
	TokenPath     string `koanf:"token_path" mapstructure:"token_path"`
	WebhookSecret string `koanf:"webhook_secret" mapstructure:"webhook_secret"`
}

// BaseURL resolves the gateway host for the configured environment.
func (c GatewayConfig) BaseURL() string {
	if strings.EqualFold(strings.TrimSpace(c.Environment), GatewayEnvironmentProduction) {
		return strings.TrimSpace(c.ProductionURL)
	}
	return strings.TrimSpace(c.SandboxURL)
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	API         APIConfig     `koanf:"api" mapstructure:"api"`
	Retry       RetryConfig   `koanf:"retry" mapstructure:"retry"`
	Gateway     GatewayConfig `koanf:"gateway" mapstructure:"gateway"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "outbound",
		API: APIConfig{
			TimeoutMS: int(DefaultCallTimeout / time.Millisecond),
		},
		Retry: RetryConfig{
			MaxRetries:  DefaultRetryMaxRetries,
			BaseDelayMS: int(DefaultRetryBaseDelay / time.Millisecond),
			Backoff:     true,
		},
		Gateway: GatewayConfig{
			Environment: GatewayEnvironmentSandbox,
			TokenPath:   "/oauth/token",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("core: retry.max_retries must be >= 0")
	}
	environment := strings.ToLower(strings.TrimSpace(c.Gateway.Environment))
	if environment != "" &&
		environment != GatewayEnvironmentProduction &&
		environment != GatewayEnvironmentSandbox {
		return fmt.Errorf("core: gateway.environment must be %q or %q",
			GatewayEnvironmentProduction, GatewayEnvironmentSandbox)
	}
	return nil
}
