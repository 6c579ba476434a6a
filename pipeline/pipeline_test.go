package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-outbound/core"
)

type scriptedAdapter struct {
	responses []core.TransportResponse
	errs      []error
	calls     int
	requests  []core.TransportRequest
}

func (a *scriptedAdapter) Kind() string { return "scripted" }

func (a *scriptedAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	idx := a.calls
	a.calls++
	a.requests = append(a.requests, req)
	if idx < len(a.errs) && a.errs[idx] != nil {
		return core.TransportResponse{}, a.errs[idx]
	}
	if idx < len(a.responses) {
		return a.responses[idx], nil
	}
	if len(a.responses) > 0 {
		return a.responses[len(a.responses)-1], nil
	}
	return core.TransportResponse{StatusCode: http.StatusOK}, nil
}

type staticCredentials struct {
	cred  core.Credential
	err   error
	calls int
}

func (s *staticCredentials) Credential(context.Context) (core.Credential, error) {
	s.calls++
	if s.err != nil {
		return core.Credential{}, s.err
	}
	return s.cred, nil
}

type captureSink struct {
	entries []core.CallActivityEntry
}

func (s *captureSink) Record(_ context.Context, entry core.CallActivityEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func noWait(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestPipeline_ExecuteSuccessSingleAttempt(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"ok":true}`),
	}}}
	sink := &captureSink{}
	p, err := New("https://api.example.com", adapter, WithActivitySink(sink))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	res, err := p.Execute(context.Background(), core.CallRequest{Method: "GET", Path: "/ping"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected single attempt, got %d", adapter.calls)
	}
	if adapter.requests[0].URL != "https://api.example.com/ping" {
		t.Fatalf("expected joined url, got %q", adapter.requests[0].URL)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected one activity entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Status != core.CallActivityStatusOK || entry.Attempts != 1 || entry.HTTPStatus != http.StatusOK {
		t.Fatalf("unexpected activity entry: %+v", entry)
	}
}

func TestPipeline_ExecuteRetriesServerErrorsWithBackoffSchedule(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		{StatusCode: http.StatusServiceUnavailable},
		{StatusCode: http.StatusBadGateway},
		{StatusCode: http.StatusInternalServerError},
		{StatusCode: http.StatusOK, Body: []byte(`{"ok":true}`)},
	}}
	var delays []time.Duration
	p, err := New("https://api.example.com", adapter, WithWaiter(noWait(&delays)))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	res, err := p.Execute(context.Background(), core.CallRequest{Method: "GET", Path: "/flaky"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected eventual success, got %d", res.StatusCode)
	}
	if adapter.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", adapter.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestPipeline_ExecuteBoundsAttemptsAtMaxRetriesPlusOne(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		{StatusCode: http.StatusServiceUnavailable, Body: []byte(`{"message":"maintenance"}`)},
	}}
	var delays []time.Duration
	sink := &captureSink{}
	p, err := New("https://api.example.com", adapter,
		WithWaiter(noWait(&delays)),
		WithActivitySink(sink),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	_, err = p.Execute(context.Background(), core.CallRequest{Method: "GET", Path: "/down"})
	if err == nil {
		t.Fatalf("expected exhausted retries to fail")
	}
	if adapter.calls != core.DefaultRetryMaxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", core.DefaultRetryMaxRetries+1, adapter.calls)
	}
	if got := core.UserMessage(err); got != "Service temporarily unavailable. Please try again later." {
		t.Fatalf("unexpected user message %q", got)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected one activity entry for the whole call, got %d", len(sink.entries))
	}
	if sink.entries[0].Attempts != core.DefaultRetryMaxRetries+1 {
		t.Fatalf("expected recorded attempts, got %d", sink.entries[0].Attempts)
	}
}

func TestPipeline_ExecuteDoesNotRetryClientErrors(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		{StatusCode: http.StatusBadRequest, Body: []byte(`{"error":"amount is required"}`)},
	}}
	var delays []time.Duration
	p, err := New("https://api.example.com", adapter, WithWaiter(noWait(&delays)))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	_, err = p.Execute(context.Background(), core.CallRequest{Method: "POST", Path: "/payments"})
	if err == nil {
		t.Fatalf("expected client error to surface")
	}
	if adapter.calls != 1 {
		t.Fatalf("expected a single attempt for 400, got %d", adapter.calls)
	}
	if len(delays) != 0 {
		t.Fatalf("expected no backoff for 400, got %v", delays)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.Message != "call: amount is required" {
		t.Fatalf("expected parsed reason in message, got %q", rich.Message)
	}
	if got := core.UserMessage(err); got != "Please check your input and try again." {
		t.Fatalf("unexpected user message %q", got)
	}
}

func TestPipeline_ExecuteRetriesTooManyRequests(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		{StatusCode: http.StatusTooManyRequests, Headers: map[string]string{"Retry-After": "1"}},
		{StatusCode: http.StatusOK},
	}}
	var delays []time.Duration
	p, err := New("https://api.example.com", adapter, WithWaiter(noWait(&delays)))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	res, err := p.Execute(context.Background(), core.CallRequest{Method: "GET", Path: "/limited"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected recovery after 429, got %d", res.StatusCode)
	}
	if adapter.calls != 2 {
		t.Fatalf("expected 429 to be retried, got %d attempts", adapter.calls)
	}
}

func TestPipeline_ExecuteTimesOutWithPathAndBudget(t *testing.T) {
	adapter := &scriptedAdapter{errs: []error{
		context.DeadlineExceeded,
		context.DeadlineExceeded,
		context.DeadlineExceeded,
		context.DeadlineExceeded,
	}}
	var delays []time.Duration
	p, err := New("https://api.example.com", adapter, WithWaiter(noWait(&delays)))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	_, err = p.Execute(context.Background(), core.CallRequest{
		Method:  "GET",
		Path:    "/slow",
		Timeout: 250 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected timeout to surface")
	}
	if core.TextCode(err) != core.CallErrorTimeout {
		t.Fatalf("expected timeout code, got %q", core.TextCode(err))
	}
	if want := "call: request to /slow timed out after 250ms"; !containsMessage(err, want) {
		t.Fatalf("expected %q in error, got %v", want, err)
	}
	// timeouts stay retryable even though they carry a 408 code
	if adapter.calls != core.DefaultRetryMaxRetries+1 {
		t.Fatalf("expected timeout retries, got %d attempts", adapter.calls)
	}
}

func TestPipeline_ExecuteAttachesCredential(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{{StatusCode: http.StatusOK}}}
	creds := &staticCredentials{cred: core.Credential{Value: "tok_1"}}
	p, err := New("https://api.example.com", adapter, WithCredentialProvider(creds))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	if _, err := p.Execute(context.Background(), core.CallRequest{
		Method:       "GET",
		Path:         "/me",
		AuthRequired: true,
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := adapter.requests[0].Headers["Authorization"]; got != "Bearer tok_1" {
		t.Fatalf("expected bearer header, got %q", got)
	}
	if creds.calls != 1 {
		t.Fatalf("expected one credential lookup per call, got %d", creds.calls)
	}
}

func TestPipeline_ExecuteFailsWhenAuthRequiredWithoutProvider(t *testing.T) {
	adapter := &scriptedAdapter{}
	sink := &captureSink{}
	p, err := New("https://api.example.com", adapter, WithActivitySink(sink))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	_, err = p.Execute(context.Background(), core.CallRequest{
		Method:       "GET",
		Path:         "/me",
		AuthRequired: true,
	})
	if err == nil {
		t.Fatalf("expected missing credentials to fail the call")
	}
	if core.TextCode(err) != core.CallErrorAuthFailure {
		t.Fatalf("expected auth failure, got %q", core.TextCode(err))
	}
	if adapter.calls != 0 {
		t.Fatalf("expected no transport attempt, got %d", adapter.calls)
	}
	if len(sink.entries) != 1 || sink.entries[0].Status != core.CallActivityStatusError {
		t.Fatalf("expected one error activity entry, got %+v", sink.entries)
	}
}

func TestPipeline_ExecuteHonorsRetryIfVeto(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		{StatusCode: http.StatusServiceUnavailable},
	}}
	var delays []time.Duration
	p, err := New("https://api.example.com", adapter, WithWaiter(noWait(&delays)))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	policy := core.DefaultRetryPolicy()
	policy.RetryIf = func(error) bool { return false }
	_, err = p.Execute(context.Background(), core.CallRequest{
		Method: "GET",
		Path:   "/down",
		Retry:  &policy,
	})
	if err == nil {
		t.Fatalf("expected failure to surface")
	}
	if adapter.calls != 1 {
		t.Fatalf("expected veto to stop retries, got %d attempts", adapter.calls)
	}
}

type denyAllLimiter struct{}

func (denyAllLimiter) BeforeCall(context.Context, core.RateLimitKey) error {
	return fmt.Errorf("bucket exhausted")
}

func (denyAllLimiter) AfterCall(context.Context, core.RateLimitKey, core.ResponseMeta) error {
	return nil
}

func TestPipeline_ExecuteStopsWhenRateLimitPolicyDenies(t *testing.T) {
	adapter := &scriptedAdapter{}
	p, err := New("https://api.example.com", adapter, WithRateLimitPolicy(denyAllLimiter{}))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	_, err = p.Execute(context.Background(), core.CallRequest{Method: "GET", Path: "/x"})
	if err == nil {
		t.Fatalf("expected local throttle to fail the call")
	}
	if adapter.calls != 0 {
		t.Fatalf("expected no transport attempt under throttle, got %d", adapter.calls)
	}
}

func TestExecuteJSON_DecodesSuccessBody(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"payment_id":"p1","status":"pending"}`),
	}}}
	p, err := New("https://api.example.com", adapter)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	type payment struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
	}
	got, err := ExecuteJSON[payment](context.Background(), p, core.CallRequest{Method: "GET", Path: "/payments/p1"})
	if err != nil {
		t.Fatalf("execute json: %v", err)
	}
	if got.PaymentID != "p1" || got.Status != "pending" {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func containsMessage(err error, want string) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Message == want
	}
	return false
}
