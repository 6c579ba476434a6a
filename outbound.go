package outbound

import (
	"fmt"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-outbound/auth"
	"github.com/goliatone/go-outbound/core"
	"github.com/goliatone/go-outbound/pipeline"
	"github.com/goliatone/go-outbound/providers/pesaflow"
	"github.com/goliatone/go-outbound/transport"
)

// Client is the composition root: it wires configuration into a first-party
// API pipeline and a payment gateway client that share logging, metrics, and
// activity recording.
type Client struct {
	config   core.Config
	logger   core.Logger
	provider core.LoggerProvider
	api      *pipeline.Pipeline
	apiCache *auth.CredentialCache
	gateway  *pesaflow.Client
}

type Option func(*clientOptions)

type clientOptions struct {
	logger      core.Logger
	provider    core.LoggerProvider
	httpClient  core.HTTPDoer
	metrics     core.MetricsRecorder
	activity    core.ActivitySink
	rateLimit   core.RateLimitPolicy
	tokenSource core.TokenSource
}

func WithLogger(logger core.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *clientOptions) {
		if provider != nil {
			o.provider = provider
		}
	}
}

func WithHTTPClient(client core.HTTPDoer) Option {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(o *clientOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

func WithActivitySink(sink core.ActivitySink) Option {
	return func(o *clientOptions) {
		if sink != nil {
			o.activity = sink
		}
	}
}

func WithRateLimitPolicy(policy core.RateLimitPolicy) Option {
	return func(o *clientOptions) {
		if policy != nil {
			o.rateLimit = policy
		}
	}
}

// WithTokenSource overrides the OAuth token source for the first-party API
// pipeline. The gateway client builds its own from gateway config.
func WithTokenSource(source core.TokenSource) Option {
	return func(o *clientOptions) {
		if source != nil {
			o.tokenSource = source
		}
	}
}

// New validates cfg and builds whichever surfaces it configures. A missing
// api.base_url skips the first-party pipeline; a missing gateway host skips
// the gateway client. Configuring neither is an error.
func New(cfg core.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := clientOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	provider, logger := glog.Resolve(cfg.ServiceName, options.provider, options.logger)
	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := &Client{
		config:   cfg,
		logger:   logger,
		provider: provider,
	}

	apiBaseURL := strings.TrimSpace(cfg.API.BaseURL)
	if apiBaseURL != "" {
		api, cache, err := buildAPIPipeline(cfg, options, httpClient, logger)
		if err != nil {
			return nil, err
		}
		client.api = api
		client.apiCache = cache
	}

	if strings.TrimSpace(cfg.Gateway.BaseURL()) != "" {
		gatewayOpts := []pesaflow.ClientOption{
			pesaflow.WithHTTPClient(httpClient),
			pesaflow.WithLogger(logger),
			pesaflow.WithRetryPolicy(cfg.Retry.Policy()),
		}
		if options.metrics != nil {
			gatewayOpts = append(gatewayOpts, pesaflow.WithMetricsRecorder(options.metrics))
		}
		if options.activity != nil {
			gatewayOpts = append(gatewayOpts, pesaflow.WithActivitySink(options.activity))
		}
		if options.rateLimit != nil {
			gatewayOpts = append(gatewayOpts, pesaflow.WithRateLimitPolicy(options.rateLimit))
		}
		gateway, err := pesaflow.NewClient(cfg.Gateway, gatewayOpts...)
		if err != nil {
			return nil, err
		}
		client.gateway = gateway
	}

	if client.api == nil && client.gateway == nil {
		return nil, fmt.Errorf("outbound: config enables neither the api pipeline nor the gateway client")
	}

	return client, nil
}

func buildAPIPipeline(
	cfg core.Config,
	options clientOptions,
	httpClient core.HTTPDoer,
	logger core.Logger,
) (*pipeline.Pipeline, *auth.CredentialCache, error) {
	source := options.tokenSource
	if source == nil && strings.TrimSpace(cfg.API.TokenURL) != "" {
		source = auth.NewOAuth2ClientCredentialsSource(auth.OAuth2ClientCredentialsConfig{
			TokenURL:     cfg.API.TokenURL,
			ClientID:     cfg.API.ClientID,
			ClientSecret: cfg.API.ClientSecret,
			Timeout:      cfg.API.Timeout(),
			HTTPClient:   httpClient,
		})
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithComponent("api"),
		pipeline.WithTimeout(cfg.API.Timeout()),
		pipeline.WithRetryPolicy(cfg.Retry.Policy()),
		pipeline.WithLogger(logger),
	}
	if options.metrics != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithMetricsRecorder(options.metrics))
	}
	if options.activity != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithActivitySink(options.activity))
	}
	if options.rateLimit != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithRateLimitPolicy(options.rateLimit))
	}

	var cache *auth.CredentialCache
	if source != nil {
		built, err := auth.NewCredentialCache(source)
		if err != nil {
			return nil, nil, err
		}
		cache = built
		pipelineOpts = append(pipelineOpts, pipeline.WithCredentialProvider(cache))
	}

	api, err := pipeline.New(cfg.API.BaseURL, transport.NewRESTAdapter(httpClient), pipelineOpts...)
	if err != nil {
		return nil, nil, err
	}
	return api, cache, nil
}

// API returns the first-party request pipeline, nil when api.base_url is not
// configured.
func (c *Client) API() *pipeline.Pipeline {
	if c == nil {
		return nil
	}
	return c.api
}

// Gateway returns the payment gateway client, nil when no gateway host is
// configured.
func (c *Client) Gateway() *pesaflow.Client {
	if c == nil {
		return nil
	}
	return c.gateway
}

// CredentialCache exposes the api pipeline credential cache so callers can
// wire refresh scheduling or invalidate on demand.
func (c *Client) CredentialCache() *auth.CredentialCache {
	if c == nil {
		return nil
	}
	return c.apiCache
}

func (c *Client) Logger() core.Logger {
	if c == nil {
		return nil
	}
	return c.logger
}

func (c *Client) LoggerProvider() core.LoggerProvider {
	if c == nil {
		return nil
	}
	return c.provider
}

func (c *Client) Config() core.Config {
	if c == nil {
		return core.Config{}
	}
	return c.config
}
