package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Classification is the one-time verdict for a raw failure: whether the
// pipeline may retry it, and what the user should be told if it sticks.
type Classification struct {
	Retryable   bool
	UserMessage string
}

const (
	messageNetwork     = "Network connection error. Please check your connection and try again."
	messageUnavailable = "Service temporarily unavailable. Please try again later."
	messageGatewayTime = "Request timed out. Please try again later."
	messageServer      = "Server error. Please try again later."
	messageRateLimited = "Too many requests. Please wait a moment and try again."
	messageBadRequest  = "Please check your input and try again."
	messageUnauth      = "You are not authorized. Please sign in and try again."
	messageForbidden   = "You do not have permission to perform this action."
	messageNotFound    = "The requested resource was not found."
	messageTimeout     = "Request timed out. Please try again."
	messageUnexpected  = "An unexpected error occurred."
)

// ClassifyStatus maps an HTTP status to its retryability verdict and
// user-facing message. The split is exact: 4xx other than 408/429 is never
// retryable, everything 5xx is.
func ClassifyStatus(status int) Classification {
	switch status {
	case http.StatusBadRequest:
		return Classification{Retryable: false, UserMessage: messageBadRequest}
	case http.StatusUnauthorized:
		return Classification{Retryable: false, UserMessage: messageUnauth}
	case http.StatusForbidden:
		return Classification{Retryable: false, UserMessage: messageForbidden}
	case http.StatusNotFound:
		return Classification{Retryable: false, UserMessage: messageNotFound}
	case http.StatusRequestTimeout:
		return Classification{Retryable: true, UserMessage: messageTimeout}
	case http.StatusTooManyRequests:
		return Classification{Retryable: true, UserMessage: messageRateLimited}
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return Classification{Retryable: true, UserMessage: messageUnavailable}
	case http.StatusGatewayTimeout:
		return Classification{Retryable: true, UserMessage: messageGatewayTime}
	}
	switch {
	case status >= 500:
		return Classification{Retryable: true, UserMessage: messageServer}
	case status >= 400:
		return Classification{
			Retryable:   false,
			UserMessage: statusFallbackMessage(status),
		}
	}
	return Classification{Retryable: false, UserMessage: messageUnexpected}
}

// Classify maps a raw transport-level failure. HTTP statuses never reach this
// path; they go through ClassifyStatus.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Retryable: true, UserMessage: messageTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{Retryable: true, UserMessage: messageTimeout}
		}
		return Classification{Retryable: true, UserMessage: messageNetwork}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Classification{Retryable: true, UserMessage: messageNetwork}
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(message, "connection refused"),
		strings.Contains(message, "no such host"),
		strings.Contains(message, "connection reset"),
		strings.Contains(message, "broken pipe"),
		strings.Contains(message, "eof"):
		return Classification{Retryable: true, UserMessage: messageNetwork}
	case strings.Contains(message, "timeout"), strings.Contains(message, "timed out"):
		return Classification{Retryable: true, UserMessage: messageTimeout}
	}
	fallback := strings.TrimSpace(err.Error())
	if fallback == "" {
		fallback = messageUnexpected
	}
	return Classification{Retryable: false, UserMessage: fallback}
}

func classifyNetwork() Classification {
	return Classification{Retryable: true, UserMessage: messageNetwork}
}

func classifyTimeout(timeoutMS int64) Classification {
	return Classification{
		Retryable:   true,
		UserMessage: fmt.Sprintf("Operation timed out after %dms.", timeoutMS),
	}
}

func statusFallbackMessage(status int) string {
	text := strings.TrimSpace(http.StatusText(status))
	if text == "" {
		return messageUnexpected
	}
	return fmt.Sprintf("Request failed: %s.", strings.ToLower(text))
}
