package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Receipt is created exactly once per completed payment.
type Receipt struct {
	ID            uuid.UUID
	PaymentID     uuid.UUID
	ReceiptNumber string
	Amount        int64
	NeedTitle     string
	CreatedAt     time.Time
}

// NewReceipt stamps a lexically sortable, unique receipt number.
func NewReceipt(paymentID uuid.UUID, amount int64, needTitle string) *Receipt {
	return &Receipt{
		ID:            uuid.New(),
		PaymentID:     paymentID,
		ReceiptNumber: "MG-" + ulid.Make().String(),
		Amount:        amount,
		NeedTitle:     needTitle,
		CreatedAt:     time.Now().UTC(),
	}
}

// ConnectedAccount routes a recipient's payouts through the gateway.
type ConnectedAccount struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	GatewayAccountID   string
	OnboardingComplete bool
	PayoutsEnabled     bool
	ChargesEnabled     bool
	DetailsSubmitted   bool
	LastWebhookAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ApplyStatus records gateway capability flags. Onboarding is complete only
// once details are submitted and charges are enabled.
func (a *ConnectedAccount) ApplyStatus(payouts, charges, details bool, at time.Time) {
	a.PayoutsEnabled = payouts
	a.ChargesEnabled = charges
	a.DetailsSubmitted = details
	a.OnboardingComplete = details && charges
	a.LastWebhookAt = &at
}

// WebhookEvent is the log used to detect redelivered gateway events.
type WebhookEvent struct {
	ID              uuid.UUID
	EventID         string
	EventType       string
	Payload         json.RawMessage
	Processed       bool
	ProcessedAt     *time.Time
	ProcessingError string
	CreatedAt       time.Time
}
