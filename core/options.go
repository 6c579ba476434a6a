package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticRawConfigLoader feeds a fixed raw map through the cfgx provider,
// mostly for tests and embedding hosts that resolve config themselves.
func StaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults, loaded config, and runtime overrides as
// layered scopes with deterministic precedence defaults < config < runtime.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	api := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.API.BaseURL) != "" {
		api["base_url"] = cfg.API.BaseURL
	}
	if includeZero || cfg.API.TimeoutMS > 0 {
		api["timeout_ms"] = cfg.API.TimeoutMS
	}
	if includeZero || strings.TrimSpace(cfg.API.TokenURL) != "" {
		api["token_url"] = cfg.API.TokenURL
	}
	if includeZero || strings.TrimSpace(cfg.API.ClientID) != "" {
		api["client_id"] = cfg.API.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.API.ClientSecret) != "" {
		api["client_secret"] = cfg.API.ClientSecret
	}
	if len(api) > 0 {
		layer["api"] = api
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxRetries != 0 {
		retry["max_retries"] = cfg.Retry.MaxRetries
	}
	if includeZero || cfg.Retry.BaseDelayMS > 0 {
		retry["base_delay_ms"] = cfg.Retry.BaseDelayMS
	}
	if includeZero || cfg.Retry.Backoff {
		retry["backoff"] = cfg.Retry.Backoff
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	gateway := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Gateway.Environment) != "" {
		gateway["environment"] = cfg.Gateway.Environment
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.ProductionURL) != "" {
		gateway["production_url"] = cfg.Gateway.ProductionURL
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.SandboxURL) != "" {
		gateway["sandbox_url"] = cfg.Gateway.SandboxURL
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.ClientID) != "" {
		gateway["client_id"] = cfg.Gateway.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.ClientSecret) != "" {
		gateway["client_secret"] = cfg.Gateway.ClientSecret
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.TokenPath) != "" {
		gateway["token_path"] = cfg.Gateway.TokenPath
	}
	if includeZero || strings.TrimSpace(cfg.Gateway.WebhookSecret) != "" {
		gateway["webhook_secret"] = cfg.Gateway.WebhookSecret
	}
	if len(gateway) > 0 {
		layer["gateway"] = gateway
	}

	return layer
}
