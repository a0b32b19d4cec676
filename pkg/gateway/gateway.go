// Package gateway is the port the engine drives to move money. Wire types
// keep the payment network's field names so payloads can be decoded as-is.
package gateway

import (
	"context"
	"encoding/json"
)

// IntentStatus mirrors the gateway's payment intent status values.
type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusRequiresCapture       IntentStatus = "requires_capture"
	StatusCanceled              IntentStatus = "canceled"
	StatusSucceeded             IntentStatus = "succeeded"
)

// Failed reports whether the intent can no longer succeed without a new
// payment method.
func (s IntentStatus) Failed() bool {
	return s == StatusRequiresPaymentMethod || s == StatusCanceled
}

// Metadata keys attached to every intent.
const (
	MetaNeedID        = "need_id"
	MetaContributorID = "contributor_id"
	MetaType          = "type"
	MetaTipAmount     = "tip_amount"
	MetaPaymentID     = "payment_id"
	MetaRetryOf       = "retry_of"
	MetaUserID        = "user_id"
)

// IntentParams describes a charge of Amount cents (contribution plus tip).
// A non-empty DestinationAccountID makes it a destination charge where the
// platform keeps ApplicationFee.
type IntentParams struct {
	Amount               int64
	Currency             string
	Description          string
	Metadata             map[string]string
	DestinationAccountID string
	ApplicationFee       int64
	IdempotencyKey       string
}

// PaymentError is last_payment_error on an intent.
type PaymentError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Intent is the payment intent object.
type Intent struct {
	ID               string            `json:"id"`
	ClientSecret     string            `json:"client_secret"`
	Status           IntentStatus      `json:"status"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *PaymentError     `json:"last_payment_error,omitempty"`
}

// FailureReason returns the gateway's human readable reason, if any.
func (i *Intent) FailureReason() (reason, code string) {
	if i.LastPaymentError == nil {
		return "", ""
	}
	return i.LastPaymentError.Message, i.LastPaymentError.Code
}

// Account is the connected payout account object.
type Account struct {
	ID               string            `json:"id"`
	PayoutsEnabled   bool              `json:"payouts_enabled"`
	ChargesEnabled   bool              `json:"charges_enabled"`
	DetailsSubmitted bool              `json:"details_submitted"`
	Metadata         map[string]string `json:"metadata"`
}

// Event is a gateway callback reduced to what reconciliation needs.
// Payload holds the event's data.object.
type Event struct {
	ID      string          `json:"eventId"`
	Type    string          `json:"eventType"`
	Payload json.RawMessage `json:"payload"`
}

// Gateway creates and inspects payment intents.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, params *IntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
}

// Null is the gateway used when no payment integration is configured. Every
// call reports ErrNotConfigured so callers take the direct settlement path.
type Null struct{}

func (Null) Name() string { return "none" }

func (Null) CreateIntent(context.Context, *IntentParams) (*Intent, error) {
	return nil, ErrNotConfigured
}

func (Null) RetrieveIntent(context.Context, string) (*Intent, error) {
	return nil, ErrNotConfigured
}

var _ Gateway = Null{}
