package action

import (
	"encoding/json"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/fees"
	"github.com/amirasaad/microgive/pkg/money"
	"github.com/amirasaad/microgive/pkg/service/payout"
	"github.com/amirasaad/microgive/pkg/service/retry"
	"github.com/google/uuid"
)

// Action names.
const (
	CreateCheckout       = "create_checkout"
	VerifyPayment        = "verify_payment"
	RetryPayment         = "retry_payment"
	FetchFailedPayments  = "fetch_failed_payments"
	ProcessWebhook       = "process_webhook"
	FetchPayoutDashboard = "fetch_payout_dashboard"
	PreviewSpread        = "preview_spread"
)

// DirectModeNotice is shown when a contribution settled without a card charge.
const DirectModeNotice = "Your contribution was processed without a card charge."

// SpreadAllocation is one need's share in a spread checkout.
type SpreadAllocation struct {
	NeedID uuid.UUID    `json:"needId" validate:"required"`
	Amount money.Amount `json:"amount" validate:"gt=0"`
}

// CreateCheckoutRequest starts a contribution.
type CreateCheckoutRequest struct {
	Amount            money.Amount       `json:"amount" validate:"gt=0"`
	TipAmount         money.Amount       `json:"tipAmount" validate:"gte=0"`
	NeedID            *uuid.UUID         `json:"needId" validate:"required_without=SpreadAllocations,excluded_with=SpreadAllocations"`
	SpreadAllocations []SpreadAllocation `json:"spreadAllocations" validate:"omitempty,dive"`
	SpreadStrategy    string             `json:"spreadStrategy" validate:"omitempty,oneof=closest_to_goal oldest_first newest_first fewest_contributors"`
	ContributorID     *uuid.UUID         `json:"contributorId"`
	IsAnonymous       bool               `json:"isAnonymous"`
	Note              string             `json:"note" validate:"max=500"`
}

// CheckoutResponse reports the created payment.
type CheckoutResponse struct {
	PaymentID           uuid.UUID      `json:"paymentId"`
	ClientSecret        string         `json:"clientSecret,omitempty"`
	Status              payment.Status `json:"status"`
	Mode                payment.Mode   `json:"mode"`
	DestinationCharge   bool           `json:"destinationCharge"`
	RecipientReceives   money.Amount   `json:"recipientReceives"`
	Fee                 money.Amount   `json:"fee"`
	TipAmount           money.Amount   `json:"tipAmount"`
	ChargeTotal         money.Amount   `json:"chargeTotal"`
	StripeNotConfigured bool           `json:"stripeNotConfigured"`
	Duplicate           bool           `json:"duplicate,omitempty"`
	ReceiptNumber       string         `json:"receiptNumber,omitempty"`
	Notice              string         `json:"notice,omitempty"`
}

// VerifyPaymentRequest asks for a payment's confirmed status.
type VerifyPaymentRequest struct {
	PaymentID uuid.UUID `json:"paymentId" validate:"required"`
}

// VerifyPaymentResponse is the payment status after verification.
type VerifyPaymentResponse struct {
	PaymentID     uuid.UUID      `json:"paymentId"`
	Status        payment.Status `json:"status"`
	Mode          payment.Mode   `json:"mode"`
	FailureReason string         `json:"failureReason,omitempty"`
	FailureCode   string         `json:"failureCode,omitempty"`
}

// RetryPaymentRequest retries a failed payment.
type RetryPaymentRequest struct {
	FailedPaymentID uuid.UUID `json:"failedPaymentId" validate:"required"`
}

// RetryPaymentResponse describes the new attempt.
type RetryPaymentResponse struct {
	PaymentID        uuid.UUID      `json:"paymentId"`
	ClientSecret     string         `json:"clientSecret,omitempty"`
	Mode             payment.Mode   `json:"mode"`
	Status           payment.Status `json:"status"`
	RetryNumber      int            `json:"retryNumber"`
	RetriesRemaining int            `json:"retriesRemaining"`
	Notice           string         `json:"notice,omitempty"`
}

// UserRequest names a user. The authenticated principal takes precedence.
type UserRequest struct {
	UserID *uuid.UUID `json:"userId"`
}

// RetryDTO is one retry row.
type RetryDTO struct {
	RetryNumber  int                 `json:"retryNumber"`
	Status       payment.RetryStatus `json:"status"`
	NewPaymentID *uuid.UUID          `json:"newPaymentId,omitempty"`
	ScheduledAt  time.Time           `json:"scheduledAt"`
	AttemptedAt  *time.Time          `json:"attemptedAt,omitempty"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
	Result       string              `json:"result,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// FailedPaymentDTO is a failed payment with its retry history.
type FailedPaymentDTO struct {
	ID               uuid.UUID    `json:"id"`
	NeedID           *uuid.UUID   `json:"needId,omitempty"`
	Amount           money.Amount `json:"amount"`
	TipAmount        money.Amount `json:"tipAmount"`
	FailureReason    string       `json:"failureReason,omitempty"`
	FailureCode      string       `json:"failureCode,omitempty"`
	FailedAt         *time.Time   `json:"failedAt,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	Retries          []RetryDTO   `json:"retries"`
	RetriesRemaining int          `json:"retriesRemaining"`
	CanRetry         bool         `json:"canRetry"`
}

// FailedPaymentsResponse wraps the list.
type FailedPaymentsResponse struct {
	FailedPayments []FailedPaymentDTO `json:"failedPayments"`
}

// ProcessWebhookRequest carries a gateway event that was already verified.
type ProcessWebhookRequest struct {
	EventID   string          `json:"eventId" validate:"required"`
	EventType string          `json:"eventType" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// ProcessWebhookResponse is the reconciler's outcome.
type ProcessWebhookResponse struct {
	EventID   string     `json:"eventId"`
	Result    string     `json:"result"`
	PaymentID *uuid.UUID `json:"paymentId,omitempty"`
}

// AccountDTO is a connected payout account.
type AccountDTO struct {
	GatewayAccountID   string     `json:"gatewayAccountId"`
	OnboardingComplete bool       `json:"onboardingComplete"`
	PayoutsEnabled     bool       `json:"payoutsEnabled"`
	ChargesEnabled     bool       `json:"chargesEnabled"`
	DetailsSubmitted   bool       `json:"detailsSubmitted"`
	LastWebhookAt      *time.Time `json:"lastWebhookAt,omitempty"`
}

// NeedDTO is a need as shown on the dashboard.
type NeedDTO struct {
	ID               uuid.UUID    `json:"id"`
	Title            string       `json:"title"`
	GoalAmount       money.Amount `json:"goalAmount"`
	RaisedAmount     money.Amount `json:"raisedAmount"`
	ContributorCount int          `json:"contributorCount"`
	Status           need.Status  `json:"status"`
}

// SummaryDTO mirrors payout.Summary in major units.
type SummaryDTO struct {
	TotalGross         money.Amount `json:"totalGross"`
	TotalNet           money.Amount `json:"totalNet"`
	TotalFees          money.Amount `json:"totalFees"`
	DestinationCharges int          `json:"destinationCharges"`
	PlatformHeld       int          `json:"platformHeld"`
	DirectPayments     int          `json:"directPayments"`
	PaymentCount       int          `json:"paymentCount"`
}

// MonthDTO is one point of the monthly net series.
type MonthDTO struct {
	Month string       `json:"month"`
	Net   money.Amount `json:"net"`
}

// TransactionDTO is one recent transaction.
type TransactionDTO struct {
	PaymentID         uuid.UUID    `json:"paymentId"`
	NeedID            uuid.UUID    `json:"needId"`
	NeedTitle         string       `json:"needTitle"`
	Gross             money.Amount `json:"gross"`
	Fee               money.Amount `json:"fee"`
	Net               money.Amount `json:"net"`
	Mode              payment.Mode `json:"mode"`
	DestinationCharge bool         `json:"destinationCharge"`
	CompletedAt       time.Time    `json:"completedAt"`
}

// DashboardDTO is the payout dashboard.
type DashboardDTO struct {
	Account            *AccountDTO      `json:"account"`
	Summary            SummaryDTO       `json:"summary"`
	Needs              []NeedDTO        `json:"needs"`
	MonthlyData        []MonthDTO       `json:"monthlyData"`
	RecentTransactions []TransactionDTO `json:"recentTransactions"`
}

// DashboardResponse wraps the dashboard.
type DashboardResponse struct {
	Dashboard DashboardDTO `json:"dashboard"`
}

// PreviewSpreadRequest asks how a pool would be spread.
type PreviewSpreadRequest struct {
	Amount   money.Amount `json:"amount" validate:"gt=0"`
	Strategy string       `json:"strategy" validate:"omitempty,oneof=closest_to_goal oldest_first newest_first fewest_contributors"`
}

// AllocationDTO is one proposed share.
type AllocationDTO struct {
	NeedID uuid.UUID    `json:"needId"`
	Amount money.Amount `json:"amount"`
	Fee    money.Amount `json:"fee"`
}

// PreviewSpreadResponse is the proposed spread.
type PreviewSpreadResponse struct {
	Strategy       fees.Strategy   `json:"strategy"`
	Allocations    []AllocationDTO `json:"allocations"`
	TotalAmount    money.Amount    `json:"totalAmount"`
	Unallocated    money.Amount    `json:"unallocated"`
	TotalPeople    int             `json:"totalPeople"`
	GoalsCompleted int             `json:"goalsCompleted"`
}

func toFailedPaymentDTO(fp retry.FailedPayment) FailedPaymentDTO {
	retries := make([]RetryDTO, 0, len(fp.Retries))
	for _, r := range fp.Retries {
		retries = append(retries, RetryDTO{
			RetryNumber:  r.RetryNumber,
			Status:       r.Status,
			NewPaymentID: r.NewPaymentID,
			ScheduledAt:  r.ScheduledAt,
			AttemptedAt:  r.AttemptedAt,
			CompletedAt:  r.CompletedAt,
			Result:       r.Result,
			Error:        r.Error,
		})
	}
	p := fp.Payment
	return FailedPaymentDTO{
		ID:               p.ID,
		NeedID:           p.NeedID,
		Amount:           money.Amount(p.Amount),
		TipAmount:        money.Amount(p.TipAmount),
		FailureReason:    p.FailureReason,
		FailureCode:      p.FailureCode,
		FailedAt:         p.FailedAt,
		CreatedAt:        p.CreatedAt,
		Retries:          retries,
		RetriesRemaining: fp.RetriesRemaining,
		CanRetry:         fp.CanRetry,
	}
}

func toDashboardDTO(d *payout.Dashboard) DashboardDTO {
	out := DashboardDTO{
		Summary: SummaryDTO{
			TotalGross:         money.Amount(d.Summary.TotalGross),
			TotalNet:           money.Amount(d.Summary.TotalNet),
			TotalFees:          money.Amount(d.Summary.TotalFees),
			DestinationCharges: d.Summary.DestinationCharges,
			PlatformHeld:       d.Summary.PlatformHeld,
			DirectPayments:     d.Summary.DirectPayments,
			PaymentCount:       d.Summary.PaymentCount,
		},
		Needs:              make([]NeedDTO, 0, len(d.Needs)),
		MonthlyData:        make([]MonthDTO, 0, len(d.MonthlyData)),
		RecentTransactions: make([]TransactionDTO, 0, len(d.RecentTransactions)),
	}
	if a := d.Account; a != nil {
		out.Account = &AccountDTO{
			GatewayAccountID:   a.GatewayAccountID,
			OnboardingComplete: a.OnboardingComplete,
			PayoutsEnabled:     a.PayoutsEnabled,
			ChargesEnabled:     a.ChargesEnabled,
			DetailsSubmitted:   a.DetailsSubmitted,
			LastWebhookAt:      a.LastWebhookAt,
		}
	}
	for _, n := range d.Needs {
		out.Needs = append(out.Needs, NeedDTO{
			ID:               n.ID,
			Title:            n.Title,
			GoalAmount:       money.Amount(n.GoalAmount),
			RaisedAmount:     money.Amount(n.RaisedAmount),
			ContributorCount: n.ContributorCount,
			Status:           n.Status,
		})
	}
	for _, m := range d.MonthlyData {
		out.MonthlyData = append(out.MonthlyData, MonthDTO{Month: m.Month, Net: money.Amount(m.Net)})
	}
	for _, t := range d.RecentTransactions {
		out.RecentTransactions = append(out.RecentTransactions, TransactionDTO{
			PaymentID:         t.PaymentID,
			NeedID:            t.NeedID,
			NeedTitle:         t.NeedTitle,
			Gross:             money.Amount(t.Gross),
			Fee:               money.Amount(t.Fee),
			Net:               money.Amount(t.Net),
			Mode:              t.Mode,
			DestinationCharge: t.DestinationCharge,
			CompletedAt:       t.CompletedAt,
		})
	}
	return out
}

func toPreviewDTO(res fees.SpreadResult) PreviewSpreadResponse {
	allocs := make([]AllocationDTO, 0, len(res.Allocations))
	for _, a := range res.Allocations {
		allocs = append(allocs, AllocationDTO{NeedID: a.NeedID, Amount: money.Amount(a.Amount), Fee: money.Amount(a.Fee)})
	}
	return PreviewSpreadResponse{
		Strategy:       res.Strategy,
		Allocations:    allocs,
		TotalAmount:    money.Amount(res.TotalAmount),
		Unallocated:    money.Amount(res.Unallocated),
		TotalPeople:    res.TotalPeople,
		GoalsCompleted: res.GoalsCompleted,
	}
}
