package core

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestNewHTTPError_StampsVerdictOnce(t *testing.T) {
	err := NewHTTPError(http.StatusBadRequest, "name is required", "VALIDATION")
	if IsRetryable(err) {
		t.Fatalf("expected 400 to be non-retryable")
	}
	if got := HTTPStatus(err); got != http.StatusBadRequest {
		t.Fatalf("expected http status 400, got %d", got)
	}
	if got := TextCode(err); got != CallErrorBadInput {
		t.Fatalf("expected text code %q, got %q", CallErrorBadInput, got)
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("expected reason in message, got %q", err.Error())
	}
}

func TestNewHTTPError_RateLimitIsRetryable(t *testing.T) {
	err := NewHTTPError(http.StatusTooManyRequests, "", "")
	if !IsRetryable(err) {
		t.Fatalf("expected 429 to be retryable")
	}
	if got := TextCode(err); got != CallErrorRateLimited {
		t.Fatalf("expected text code %q, got %q", CallErrorRateLimited, got)
	}
}

func TestNewTimeoutError_MessageCarriesPathAndBudget(t *testing.T) {
	err := NewTimeoutError("/api/orders", 30000)
	if !IsRetryable(err) {
		t.Fatalf("expected timeout to be retryable")
	}
	if got := HTTPStatus(err); got != http.StatusRequestTimeout {
		t.Fatalf("expected http status 408, got %d", got)
	}
	message := err.Error()
	if !strings.Contains(message, "/api/orders") || !strings.Contains(message, "30000ms") {
		t.Fatalf("expected path and timeout in message, got %q", message)
	}
	if got := UserMessage(err); !strings.Contains(got, "30000ms") {
		t.Fatalf("expected timeout budget in user message, got %q", got)
	}
}

func TestNewAuthError_IsTerminal(t *testing.T) {
	err := NewAuthError(errors.New("invalid_client"))
	if IsRetryable(err) {
		t.Fatalf("expected auth failure to be non-retryable")
	}
	if got := TextCode(err); got != CallErrorAuthFailure {
		t.Fatalf("expected text code %q, got %q", CallErrorAuthFailure, got)
	}
}

func TestIsRetryable_PlainErrorsAreNot(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("expected unclassified error to be non-retryable")
	}
}

func TestWithCallContext(t *testing.T) {
	err := WithCallContext(NewNetworkError(errors.New("dial tcp: connection refused")), "pipeline", "execute")
	if err.Metadata["component"] != "pipeline" || err.Metadata["action"] != "execute" {
		t.Fatalf("expected component/action metadata, got %v", err.Metadata)
	}
	if !IsRetryable(err) {
		t.Fatalf("expected verdict to survive context stamping")
	}
}
