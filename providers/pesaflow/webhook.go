package pesaflow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw webhook
// body, keyed with the shared webhook secret.
const SignatureHeader = "X-Pesaflow-Signature"

// WebhookEvent is the payload the gateway pushes on payment state changes.
type WebhookEvent struct {
	Event         string  `json:"event"`
	PaymentID     string  `json:"payment_id"`
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Reference     string  `json:"reference"`
}

type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: strings.TrimSpace(secret)}
}

// Verify checks the signature against the raw body. An empty configured
// secret fails closed: unsigned webhooks are never trusted.
func (v *WebhookVerifier) Verify(body []byte, signature string) bool {
	if v == nil || v.secret == "" {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// Sign produces the signature for a body; used by tests and by sandbox
// tooling that replays events.
func (v *WebhookVerifier) Sign(body []byte) string {
	if v == nil || v.secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent verifies and decodes one webhook delivery.
func (v *WebhookVerifier) ParseEvent(body []byte, signature string) (WebhookEvent, error) {
	if !v.Verify(body, signature) {
		return WebhookEvent{}, fmt.Errorf("pesaflow: webhook signature mismatch")
	}
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("pesaflow: decode webhook body: %w", err)
	}
	return event, nil
}
