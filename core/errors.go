package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CallErrorNetwork     = "NETWORK_ERROR"
	CallErrorTimeout     = "TIMEOUT"
	CallErrorHTTP        = "HTTP_ERROR"
	CallErrorAuthFailure = "AUTH_FAILURE"
	CallErrorRateLimited = "RATE_LIMITED"
	CallErrorBadInput    = "BAD_INPUT"
	CallErrorInternal    = "INTERNAL_ERROR"
)

const (
	metadataRetryable   = "retryable"
	metadataUserMessage = "user_message"
	metadataHTTPStatus  = "http_status"
	metadataComponent   = "component"
	metadataAction      = "action"
)

// NewNetworkError wraps a transport-level failure (connection refused, DNS,
// broken pipe). Classification happens here, once; the verdict is never
// re-derived later.
func NewNetworkError(source error) *goerrors.Error {
	classification := classifyNetwork()
	err := goerrors.Wrap(source, goerrors.CategoryExternal, "call: network failure").
		WithCode(http.StatusBadGateway).
		WithTextCode(CallErrorNetwork)
	err.WithMetadata(map[string]any{
		metadataRetryable:   classification.Retryable,
		metadataUserMessage: classification.UserMessage,
	})
	return err
}

// NewTimeoutError marks a call that lost the race against its deadline. The
// message carries the path and the configured timeout so operators can spot
// slow endpoints from logs alone.
func NewTimeoutError(path string, timeoutMS int64) *goerrors.Error {
	classification := classifyTimeout(timeoutMS)
	err := goerrors.New(
		fmt.Sprintf("call: request to %s timed out after %dms", strings.TrimSpace(path), timeoutMS),
		goerrors.CategoryOperation,
	).
		WithCode(http.StatusRequestTimeout).
		WithTextCode(CallErrorTimeout)
	err.WithMetadata(map[string]any{
		metadataRetryable:   classification.Retryable,
		metadataUserMessage: classification.UserMessage,
		"timeout_ms":        timeoutMS,
		"path":              strings.TrimSpace(path),
	})
	return err
}

// NewHTTPError builds the typed error for a non-success response. The reason
// is whatever the error body yielded; the user message comes from the status
// classification table.
func NewHTTPError(status int, reason string, remoteCode string) *goerrors.Error {
	classification := ClassifyStatus(status)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = fmt.Sprintf("request failed with status %d", status)
	}
	err := goerrors.New("call: "+reason, httpErrorCategory(status)).
		WithCode(status).
		WithTextCode(httpErrorTextCode(status))
	metadata := map[string]any{
		metadataRetryable:   classification.Retryable,
		metadataUserMessage: classification.UserMessage,
		metadataHTTPStatus:  status,
	}
	if remoteCode = strings.TrimSpace(remoteCode); remoteCode != "" {
		metadata["remote_code"] = remoteCode
	}
	err.WithMetadata(metadata)
	return err
}

// NewAuthError marks a failed credential fetch. Terminal for the call:
// retrying with the same bad client credentials is pointless, the caller must
// re-authenticate instead.
func NewAuthError(source error) *goerrors.Error {
	err := goerrors.Wrap(source, goerrors.CategoryAuth, "call: credential fetch failed").
		WithCode(http.StatusUnauthorized).
		WithTextCode(CallErrorAuthFailure)
	err.WithMetadata(map[string]any{
		metadataRetryable:   false,
		metadataUserMessage: "You are not authorized. Please sign in and try again.",
	})
	return err
}

// WithCallContext stamps the owning component and action onto an already
// classified error without touching its verdict.
func WithCallContext(err *goerrors.Error, component string, action string) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Metadata == nil {
		err.Metadata = map[string]any{}
	}
	if component = strings.TrimSpace(component); component != "" {
		err.Metadata[metadataComponent] = component
	}
	if action = strings.TrimSpace(action); action != "" {
		err.Metadata[metadataAction] = action
	}
	return err
}

// IsRetryable reads the verdict stamped at classification time. Errors that
// never went through the classifier are not retried.
func IsRetryable(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Metadata == nil {
		return false
	}
	retryable, ok := rich.Metadata[metadataRetryable].(bool)
	return ok && retryable
}

// UserMessage returns the user-facing message for a surfaced error, falling
// back to the generic unexpected-error text.
func UserMessage(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Metadata != nil {
		if message, ok := rich.Metadata[metadataUserMessage].(string); ok && strings.TrimSpace(message) != "" {
			return message
		}
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		return err.Error()
	}
	return "An unexpected error occurred."
}

// HTTPStatus extracts the HTTP status carried by a typed error, or 0.
func HTTPStatus(err error) int {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return 0
	}
	if rich.Metadata != nil {
		switch status := rich.Metadata[metadataHTTPStatus].(type) {
		case int:
			return status
		case int64:
			return int(status)
		case float64:
			return int(status)
		}
	}
	return rich.Code
}

// TextCode extracts the stable machine code carried by a typed error.
func TextCode(err error) string {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return ""
	}
	return strings.TrimSpace(rich.TextCode)
}

func httpErrorCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

func httpErrorTextCode(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return CallErrorRateLimited
	case status == http.StatusRequestTimeout:
		return CallErrorTimeout
	case status >= 400 && status < 500:
		return CallErrorBadInput
	default:
		return CallErrorHTTP
	}
}
