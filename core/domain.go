package core

import (
	"strings"
	"time"
)

const (
	// DefaultCallTimeout bounds a single logical call, including every retry
	// attempt's individual round trip.
	DefaultCallTimeout = 30 * time.Second

	// DefaultCredentialRenewWindow is how long before expiry a credential is
	// considered stale and must be replaced before the next call proceeds.
	DefaultCredentialRenewWindow = 5 * time.Minute

	DefaultRetryMaxRetries = 3
	DefaultRetryBaseDelay  = time.Second
)

// Credential is a bearer token with a known expiry. Credentials are replaced,
// never mutated, on renewal and live only in process memory.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// IsZero reports whether the credential carries no token at all.
func (c Credential) IsZero() bool {
	return strings.TrimSpace(c.Value) == ""
}

// Fresh reports whether the credential can still be attached to outgoing
// calls at the given instant. Credentials without an expiry never go stale.
func (c Credential) Fresh(now time.Time, renewWindow time.Duration) bool {
	if c.IsZero() {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	if renewWindow <= 0 {
		renewWindow = DefaultCredentialRenewWindow
	}
	return now.UTC().Before(c.ExpiresAt.UTC().Add(-renewWindow))
}

// RetryPolicy bounds the pipeline's retry loop. Attempt 0 is the first try;
// the Nth retry is attempt N.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Backoff    bool
	// RetryIf, when set, vetoes retries the classifier would otherwise allow.
	// It never forces a retry the classifier forbids.
	RetryIf func(err error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultRetryMaxRetries,
		BaseDelay:  DefaultRetryBaseDelay,
		Backoff:    true,
	}
}

// Delay returns the wait before retry attempt k (k >= 1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	if !p.Backoff || attempt < 1 {
		return base
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// CallRequest describes one logical outbound call. It is constructed per call
// and treated as immutable by the pipeline.
type CallRequest struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    []byte

	// ContentType overrides the default application/json request header.
	ContentType string
	// Binary marks multipart or raw-byte payloads; no content type is set so
	// the transport layer can pick the correct boundary.
	Binary bool

	// AuthRequired makes a missing credential a hard failure instead of an
	// anonymous call.
	AuthRequired bool

	// Timeout overrides the pipeline default for this call only.
	Timeout time.Duration

	// Retry overrides the pipeline's default retry policy for this call.
	Retry *RetryPolicy
}

// CallResponse is the decoded-transport result of a successful call. Callers
// own their payload shapes; no normalization is imposed on Body.
type CallResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// TransportRequest is the fully resolved request handed to a transport
// adapter: absolute URL, merged headers, credential already attached.
type TransportRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    []byte

	// MaxResponseBodyBytes caps how much of the response the adapter reads.
	MaxResponseBodyBytes int64
}

// TransportResponse is what a transport adapter returns for any completed
// exchange, success or not; status interpretation belongs to the pipeline.
type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// ErrorBody is the structured error contract of the first-party API:
// any of error/message is accepted as the human-readable reason.
type ErrorBody struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Reason returns the human-readable failure reason, if any.
func (b ErrorBody) Reason() string {
	if reason := strings.TrimSpace(b.Error); reason != "" {
		return reason
	}
	return strings.TrimSpace(b.Message)
}

type CallActivityStatus string

const (
	CallActivityStatusOK    CallActivityStatus = "ok"
	CallActivityStatusError CallActivityStatus = "error"
)

// CallActivityEntry is one finished logical call: recorded exactly once, at
// the point the result is finally surfaced, never per retry attempt.
type CallActivityEntry struct {
	ID         string
	Component  string
	Operation  string
	Status     CallActivityStatus
	Attempts   int
	HTTPStatus int
	Duration   time.Duration
	Error      string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// CallActivityFilter narrows ledger listings.
type CallActivityFilter struct {
	Component string
	Operation string
	Status    CallActivityStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

type CallActivityPage struct {
	Items   []CallActivityEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

// ActivityRetentionPolicy bounds ledger growth by age and by row count.
type ActivityRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}
