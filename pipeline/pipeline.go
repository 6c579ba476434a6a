package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-outbound/core"
)

const defaultContentType = "application/json"

// Pipeline executes logical outbound calls: credential attachment, per-attempt
// deadline, retry with exponential backoff, and a single activity record per
// call regardless of how many attempts it took.
type Pipeline struct {
	baseURL     string
	component   string
	adapter     core.TransportAdapter
	credentials core.CredentialProvider
	timeout     time.Duration
	retry       core.RetryPolicy
	logger      core.Logger
	metrics     core.MetricsRecorder
	activity    core.ActivitySink
	rateLimit   core.RateLimitPolicy
	now         func() time.Time
	wait        func(ctx context.Context, d time.Duration) error
}

type Option func(*Pipeline)

func WithComponent(component string) Option {
	return func(p *Pipeline) {
		if component = strings.TrimSpace(component); component != "" {
			p.component = component
		}
	}
}

func WithCredentialProvider(provider core.CredentialProvider) Option {
	return func(p *Pipeline) {
		if provider != nil {
			p.credentials = provider
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

func WithRetryPolicy(policy core.RetryPolicy) Option {
	return func(p *Pipeline) {
		p.retry = policy
	}
}

func WithLogger(logger core.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(p *Pipeline) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

func WithActivitySink(sink core.ActivitySink) Option {
	return func(p *Pipeline) {
		if sink != nil {
			p.activity = sink
		}
	}
}

func WithRateLimitPolicy(policy core.RateLimitPolicy) Option {
	return func(p *Pipeline) {
		if policy != nil {
			p.rateLimit = policy
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithWaiter replaces the backoff sleeper; tests use it to observe the delay
// schedule without slowing down.
func WithWaiter(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		if wait != nil {
			p.wait = wait
		}
	}
}

func New(baseURL string, adapter core.TransportAdapter, opts ...Option) (*Pipeline, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("pipeline: base url is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("pipeline: transport adapter is required")
	}
	p := &Pipeline{
		baseURL:   baseURL,
		component: "outbound",
		adapter:   adapter,
		timeout:   core.DefaultCallTimeout,
		retry:     core.DefaultRetryPolicy(),
		metrics:   core.NopMetricsRecorder{},
		activity:  core.NopActivitySink{},
		now:       func() time.Time { return time.Now().UTC() },
		wait:      waitFor,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p, nil
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs one logical call to completion: up to MaxRetries+1 attempts,
// each bounded by the call timeout, with exponential backoff between
// retryable failures. The final verdict is logged and recorded exactly once.
func (p *Pipeline) Execute(ctx context.Context, req core.CallRequest) (core.CallResponse, error) {
	if p == nil || p.adapter == nil {
		return core.CallResponse{}, goerrors.New(
			"pipeline: not configured",
			goerrors.CategoryInternal,
		).WithTextCode(core.CallErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	path := strings.TrimSpace(req.Path)
	if path == "" {
		return core.CallResponse{}, goerrors.New(
			"pipeline: request path is required",
			goerrors.CategoryBadInput,
		).WithTextCode(core.CallErrorBadInput)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	operation := strings.TrimSpace(strings.ToUpper(req.Method)) + " " + path

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	policy := p.retry
	if req.Retry != nil {
		policy = *req.Retry
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	headers, err := p.buildHeaders(ctx, req)
	if err != nil {
		return p.finish(ctx, req, operation, core.CallResponse{}, err, 1, p.now())
	}

	limitKey := core.RateLimitKey{Component: p.component, BucketKey: path}
	startedAt := p.now()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		attempts = attempt + 1

		if p.rateLimit != nil {
			if err := p.rateLimit.BeforeCall(ctx, limitKey); err != nil {
				lastErr = err
				break
			}
		}

		res, attemptErr := p.attempt(ctx, req, path, headers, timeout)
		if attemptErr == nil && res.StatusCode >= 200 && res.StatusCode < 300 {
			p.afterCall(ctx, limitKey, res)
			return p.finish(ctx, req, operation, core.CallResponse(res), nil, attempts, startedAt)
		}

		if attemptErr == nil {
			p.afterCall(ctx, limitKey, res)
			attemptErr = p.httpFailure(res)
		}
		lastErr = attemptErr

		if attempt >= policy.MaxRetries || !p.shouldRetry(attemptErr, policy) {
			break
		}

		delay := policy.Delay(attempt + 1)
		p.logRetry(operation, attempt+1, delay, attemptErr)
		if err := p.wait(ctx, delay); err != nil {
			lastErr = core.NewTimeoutError(path, timeout.Milliseconds())
			break
		}
	}

	return p.finish(ctx, req, operation, core.CallResponse{}, lastErr, attempts, startedAt)
}

// attempt runs a single transport exchange under its own deadline.
func (p *Pipeline) attempt(
	ctx context.Context,
	req core.CallRequest,
	path string,
	headers map[string]string,
	timeout time.Duration,
) (core.TransportResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := p.adapter.Do(attemptCtx, core.TransportRequest{
		Method:  strings.TrimSpace(strings.ToUpper(req.Method)),
		URL:     p.baseURL + path,
		Headers: headers,
		Query:   req.Query,
		Body:    req.Body,
	})
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return core.TransportResponse{}, core.NewTimeoutError(path, timeout.Milliseconds())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return core.TransportResponse{}, core.NewTimeoutError(path, timeout.Milliseconds())
		}
		return core.TransportResponse{}, p.transportFailure(err)
	}
	return res, nil
}

func (p *Pipeline) buildHeaders(ctx context.Context, req core.CallRequest) (map[string]string, error) {
	headers := make(map[string]string, len(req.Headers)+2)
	if len(req.Body) > 0 && !req.Binary {
		contentType := strings.TrimSpace(req.ContentType)
		if contentType == "" {
			contentType = defaultContentType
		}
		headers["Content-Type"] = contentType
	}
	headers["Accept"] = defaultContentType
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		headers[key] = value
	}

	if req.AuthRequired {
		if p.credentials == nil {
			return nil, core.NewAuthError(fmt.Errorf("pipeline: no credential provider configured"))
		}
		cred, err := p.credentials.Credential(ctx)
		if err != nil {
			return nil, err
		}
		if cred.IsZero() {
			return nil, core.NewAuthError(fmt.Errorf("pipeline: credential provider returned an empty credential"))
		}
		headers["Authorization"] = "Bearer " + cred.Value
	}
	return headers, nil
}

// transportFailure classifies a raw transport error once and stamps the
// verdict onto the returned error.
func (p *Pipeline) transportFailure(err error) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Metadata != nil {
		if _, classified := rich.Metadata["retryable"]; classified {
			return err
		}
	}
	return core.NewNetworkError(err)
}

// httpFailure converts a non-success response into a typed error carrying the
// parsed reason and the status classification verdict.
func (p *Pipeline) httpFailure(res core.TransportResponse) error {
	var body core.ErrorBody
	if len(res.Body) > 0 {
		_ = json.Unmarshal(res.Body, &body)
	}
	return core.NewHTTPError(res.StatusCode, body.Reason(), body.Code)
}

// shouldRetry applies the classification verdict, then the hard rule that a
// 4xx response other than 429 is never retried, then the caller's veto.
func (p *Pipeline) shouldRetry(err error, policy core.RetryPolicy) bool {
	status := core.HTTPStatus(err)
	if status >= 400 && status < 500 &&
		status != http.StatusTooManyRequests &&
		core.TextCode(err) != core.CallErrorTimeout {
		return false
	}
	if !core.IsRetryable(err) {
		return false
	}
	if policy.RetryIf != nil && !policy.RetryIf(err) {
		return false
	}
	return true
}

func (p *Pipeline) afterCall(ctx context.Context, key core.RateLimitKey, res core.TransportResponse) {
	if p.rateLimit == nil {
		return
	}
	meta := core.ResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers}
	if retryAfter := parseRetryAfter(res.Headers); retryAfter > 0 {
		meta.RetryAfter = &retryAfter
	}
	if err := p.rateLimit.AfterCall(ctx, key, meta); err != nil && p.logger != nil {
		p.logger.Warn("rate limit state update failed", "component", key.Component, "error", err)
	}
}

func parseRetryAfter(headers map[string]string) time.Duration {
	for key, value := range headers {
		if !strings.EqualFold(key, "Retry-After") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// finish surfaces the final verdict exactly once: activity record, log line,
// and metrics all happen here, never per attempt.
func (p *Pipeline) finish(
	ctx context.Context,
	req core.CallRequest,
	operation string,
	res core.CallResponse,
	err error,
	attempts int,
	startedAt time.Time,
) (core.CallResponse, error) {
	duration := p.now().Sub(startedAt)

	entry := core.CallActivityEntry{
		ID:        uuid.NewString(),
		Component: p.component,
		Operation: operation,
		Status:    core.CallActivityStatusOK,
		Attempts:  attempts,
		Duration:  duration,
		CreatedAt: p.now(),
	}
	tags := map[string]string{"component": p.component, "operation": operation}

	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			err = core.WithCallContext(rich, p.component, operation)
		}
		entry.Status = core.CallActivityStatusError
		entry.HTTPStatus = core.HTTPStatus(err)
		entry.Error = err.Error()
		tags["status"] = "error"
		if p.logger != nil {
			p.logger.Error("outbound call failed",
				"component", p.component,
				"operation", operation,
				"attempts", attempts,
				"duration_ms", duration.Milliseconds(),
				"error", err,
			)
		}
		p.metrics.IncCounter(ctx, "outbound.call.error", 1, tags)
	} else {
		entry.HTTPStatus = res.StatusCode
		tags["status"] = "ok"
		if p.logger != nil {
			p.logger.Debug("outbound call completed",
				"component", p.component,
				"operation", operation,
				"attempts", attempts,
				"status", res.StatusCode,
				"duration_ms", duration.Milliseconds(),
			)
		}
		p.metrics.IncCounter(ctx, "outbound.call.ok", 1, tags)
	}
	p.metrics.ObserveHistogram(ctx, "outbound.call.duration_ms", float64(duration.Milliseconds()), tags)

	if recordErr := p.activity.Record(ctx, entry); recordErr != nil && p.logger != nil {
		p.logger.Warn("activity record failed", "component", p.component, "error", recordErr)
	}

	return res, err
}

func (p *Pipeline) logRetry(operation string, attempt int, delay time.Duration, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("outbound call retrying",
		"component", p.component,
		"operation", operation,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
		"error", err,
	)
}

// ExecuteJSON runs a call and decodes a successful JSON response into T.
func ExecuteJSON[T any](ctx context.Context, p *Pipeline, req core.CallRequest) (T, error) {
	var out T
	res, err := p.Execute(ctx, req)
	if err != nil {
		return out, err
	}
	if len(res.Body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return out, goerrors.Wrap(err, goerrors.CategoryExternal, "pipeline: decode response body").
			WithTextCode(core.CallErrorInternal)
	}
	return out, nil
}
