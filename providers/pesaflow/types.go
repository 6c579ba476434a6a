package pesaflow

import "strings"

const (
	// DefaultCurrency applies when the intent leaves Currency empty.
	DefaultCurrency = "TZS"

	disbursementCreatedMessage = "Disbursement created successfully"
)

// PaymentIntent is what callers hand to CreatePayment. OrderRef and Amount
// are required; everything else has a sensible default or is optional.
type PaymentIntent struct {
	Amount        float64
	Currency      string
	OrderRef      string
	CustomerPhone string
	CustomerEmail string
	CustomerName  string
	Description   string
	CallbackURL   string
}

// DisbursementIntent mirrors PaymentIntent with recipient fields.
type DisbursementIntent struct {
	Amount         float64
	Currency       string
	Reference      string
	RecipientPhone string
	RecipientEmail string
	RecipientName  string
	Description    string
	CallbackURL    string
}

// PaymentResult is the tagged outcome of CreatePayment. Exactly one of the
// two branches is populated: Success true with the normalized identifiers, or
// Success false with Error set.
type PaymentResult struct {
	Success       bool   `json:"success"`
	PaymentID     string `json:"payment_id,omitempty"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

type DisbursementResult struct {
	Success        bool   `json:"success"`
	DisbursementID string `json:"disbursement_id,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}

// StatusResult is the tagged outcome of the two status checks. Message is the
// gateway's status or message field, whichever it sent.
type StatusResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// gatewayResponse covers every shape the gateway sends back: create
// responses use payment_id or id, checkout_url or url; status responses use
// status or message.
type gatewayResponse struct {
	PaymentID      string `json:"payment_id"`
	DisbursementID string `json:"disbursement_id"`
	ID             string `json:"id"`
	CheckoutURL    string `json:"checkout_url"`
	URL            string `json:"url"`
	TransactionID  string `json:"transaction_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
