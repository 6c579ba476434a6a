package pesaflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-outbound/auth"
	"github.com/goliatone/go-outbound/core"
	"github.com/goliatone/go-outbound/pipeline"
	"github.com/goliatone/go-outbound/transport"
)

const (
	Component = "pesaflow"

	paymentsPath      = "/api/v1/payments"
	disbursementsPath = "/api/v1/disbursements"
	defaultTokenPath  = "/oauth/token"
)

// Client talks to the Pesaflow gateway. It owns its own credential cache and
// pipeline; gateway throughput problems never contend with first-party calls.
type Client struct {
	config   core.GatewayConfig
	pipeline *pipeline.Pipeline
	logger   core.Logger
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient   core.HTTPDoer
	logger       core.Logger
	metrics      core.MetricsRecorder
	activity     core.ActivitySink
	rateLimit    core.RateLimitPolicy
	tokenSource  core.TokenSource
	timeout      time.Duration
	retry        *core.RetryPolicy
	pipelineOpts []pipeline.Option
}

func WithHTTPClient(client core.HTTPDoer) ClientOption {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func WithLogger(logger core.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) ClientOption {
	return func(o *clientOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

func WithActivitySink(sink core.ActivitySink) ClientOption {
	return func(o *clientOptions) {
		if sink != nil {
			o.activity = sink
		}
	}
}

func WithRateLimitPolicy(policy core.RateLimitPolicy) ClientOption {
	return func(o *clientOptions) {
		if policy != nil {
			o.rateLimit = policy
		}
	}
}

// WithTokenSource replaces the OAuth client-credentials source; tests use it
// to avoid standing up a token endpoint.
func WithTokenSource(source core.TokenSource) ClientOption {
	return func(o *clientOptions) {
		if source != nil {
			o.tokenSource = source
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithPipelineOptions appends raw pipeline options after the ones this client
// derives from its config, so they win on conflict.
func WithPipelineOptions(opts ...pipeline.Option) ClientOption {
	return func(o *clientOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

func WithRetryPolicy(policy core.RetryPolicy) ClientOption {
	return func(o *clientOptions) {
		o.retry = &policy
	}
}

func NewClient(cfg core.GatewayConfig, opts ...ClientOption) (*Client, error) {
	baseURL := cfg.BaseURL()
	if baseURL == "" {
		return nil, fmt.Errorf("pesaflow: gateway base url is required for environment %q", cfg.Environment)
	}

	options := &clientOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(options)
	}

	tokenSource := options.tokenSource
	if tokenSource == nil {
		tokenPath := strings.TrimSpace(cfg.TokenPath)
		if tokenPath == "" {
			tokenPath = defaultTokenPath
		}
		tokenSource = auth.NewOAuth2ClientCredentialsSource(auth.OAuth2ClientCredentialsConfig{
			TokenURL:     strings.TrimRight(baseURL, "/") + tokenPath,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			HTTPClient:   options.httpClient,
		})
	}
	cache, err := auth.NewCredentialCache(tokenSource)
	if err != nil {
		return nil, fmt.Errorf("pesaflow: build credential cache: %w", err)
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithComponent(Component),
		pipeline.WithCredentialProvider(cache),
	}
	if options.logger != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithLogger(options.logger))
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
	if options.timeout > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithTimeout(options.timeout))
	}
	if options.retry != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithRetryPolicy(*options.retry))
	}
	pipelineOpts = append(pipelineOpts, options.pipelineOpts...)

	p, err := pipeline.New(baseURL, transport.NewRESTAdapter(options.httpClient), pipelineOpts...)
	if err != nil {
		return nil, fmt.Errorf("pesaflow: build pipeline: %w", err)
	}

	return &Client{
		config:   cfg,
		pipeline: p,
		logger:   options.logger,
	}, nil
}

// CreatePayment posts the intent and normalizes the gateway's answer. It
// never returns an error: any failure comes back as Success false with Error
// set so callers can render it inline.
func (c *Client) CreatePayment(ctx context.Context, intent PaymentIntent) PaymentResult {
	if c == nil || c.pipeline == nil {
		return PaymentResult{Success: false, Error: "payment client is not configured"}
	}

	body, err := json.Marshal(map[string]any{
		"amount":         intent.Amount,
		"currency":       firstNonEmpty(intent.Currency, DefaultCurrency),
		"order_id":       strings.TrimSpace(intent.OrderRef),
		"customer_phone": strings.TrimSpace(intent.CustomerPhone),
		"customer_email": strings.TrimSpace(intent.CustomerEmail),
		"customer_name":  strings.TrimSpace(intent.CustomerName),
		"description": firstNonEmpty(
			intent.Description,
			fmt.Sprintf("Payment for order %s", strings.TrimSpace(intent.OrderRef)),
		),
		"callback_url": strings.TrimSpace(intent.CallbackURL),
	})
	if err != nil {
		return PaymentResult{Success: false, Error: resultError(err)}
	}

	res, err := c.execute(ctx, http.MethodPost, paymentsPath, body)
	if err != nil {
		return PaymentResult{Success: false, Error: resultError(err)}
	}

	return PaymentResult{
		Success:       true,
		PaymentID:     firstNonEmpty(res.PaymentID, res.ID),
		CheckoutURL:   firstNonEmpty(res.CheckoutURL, res.URL),
		TransactionID: strings.TrimSpace(res.TransactionID),
		Message:       strings.TrimSpace(res.Message),
	}
}

// CreateDisbursement is CreatePayment with recipient fields.
func (c *Client) CreateDisbursement(ctx context.Context, intent DisbursementIntent) DisbursementResult {
	if c == nil || c.pipeline == nil {
		return DisbursementResult{Success: false, Error: "payment client is not configured"}
	}

	body, err := json.Marshal(map[string]any{
		"amount":          intent.Amount,
		"currency":        firstNonEmpty(intent.Currency, DefaultCurrency),
		"reference":       strings.TrimSpace(intent.Reference),
		"recipient_phone": strings.TrimSpace(intent.RecipientPhone),
		"recipient_email": strings.TrimSpace(intent.RecipientEmail),
		"recipient_name":  strings.TrimSpace(intent.RecipientName),
		"description": firstNonEmpty(
			intent.Description,
			fmt.Sprintf("Disbursement %s", strings.TrimSpace(intent.Reference)),
		),
		"callback_url": strings.TrimSpace(intent.CallbackURL),
	})
	if err != nil {
		return DisbursementResult{Success: false, Error: resultError(err)}
	}

	res, err := c.execute(ctx, http.MethodPost, disbursementsPath, body)
	if err != nil {
		return DisbursementResult{Success: false, Error: resultError(err)}
	}

	return DisbursementResult{
		Success:        true,
		DisbursementID: firstNonEmpty(res.DisbursementID, res.ID),
		TransactionID:  strings.TrimSpace(res.TransactionID),
		Message:        firstNonEmpty(res.Message, disbursementCreatedMessage),
	}
}

// CheckPaymentStatus polls one payment by id. Polling cadence belongs to the
// caller; this is a single probe.
func (c *Client) CheckPaymentStatus(ctx context.Context, paymentID string) StatusResult {
	return c.checkStatus(ctx, paymentsPath, paymentID)
}

func (c *Client) CheckDisbursementStatus(ctx context.Context, disbursementID string) StatusResult {
	return c.checkStatus(ctx, disbursementsPath, disbursementID)
}

func (c *Client) checkStatus(ctx context.Context, basePath string, id string) StatusResult {
	if c == nil || c.pipeline == nil {
		return StatusResult{Success: false, Error: "payment client is not configured"}
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return StatusResult{Success: false, Error: "id is required"}
	}

	res, err := c.execute(ctx, http.MethodGet, basePath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return StatusResult{Success: false, Error: resultError(err)}
	}

	return StatusResult{
		Success: true,
		Status:  strings.TrimSpace(res.Status),
		Message: firstNonEmpty(res.Status, res.Message),
	}
}

func (c *Client) execute(ctx context.Context, method string, path string, body []byte) (gatewayResponse, error) {
	out, err := pipeline.ExecuteJSON[gatewayResponse](ctx, c.pipeline, core.CallRequest{
		Method:       method,
		Path:         path,
		Body:         body,
		AuthRequired: true,
	})
	if err != nil {
		return gatewayResponse{}, err
	}
	return out, nil
}

// resultError extracts the human-readable reason for the tagged failure
// branch: the parsed gateway reason when there is one, the user-facing
// classification message otherwise.
func resultError(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if reason := strings.TrimSpace(strings.TrimPrefix(rich.Message, "call: ")); reason != "" {
			return reason
		}
	}
	return core.UserMessage(err)
}
