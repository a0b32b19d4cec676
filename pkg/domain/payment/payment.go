// Package payment holds the settlement unit and the records hanging off it:
// allocations, retries, receipts, connected payout accounts and the webhook
// event log.
package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status of a payment. completed and failed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Mode tells whether a real gateway charge backs the payment.
type Mode string

const (
	ModeGateway Mode = "gateway"
	ModeDirect  Mode = "direct"
)

// Intent metadata types.
const (
	TypeSingle = "single"
	TypeSpread = "spread"
)

var (
	// ErrRetryCapExceeded is terminal: no new attempt and no new row is created.
	ErrRetryCapExceeded = errors.New("retry limit reached: no further automatic retries will occur")
	// ErrNotFailed is returned when retrying a payment that is not failed.
	ErrNotFailed = errors.New("only failed payments can be retried")
	// ErrInvalidTarget is returned when a checkout names neither or both of
	// a need and a spread.
	ErrInvalidTarget = errors.New("exactly one of needId or spreadAllocations is required")
	// ErrDuplicateInFlight is returned when an identical checkout is already
	// being created.
	ErrDuplicateInFlight = errors.New("an identical contribution is already being processed")
)

// Allocation is the share of a payment credited to one need.
type Allocation struct {
	NeedID uuid.UUID `json:"needId"`
	Amount int64     `json:"amount"`
	Fee    int64     `json:"fee"`
}

// Payment tracks one contributor charge attempt covering one or more needs.
// Single-recipient payments carry NeedID and one allocation; spread payments
// leave NeedID nil and carry one allocation per need.
type Payment struct {
	ID                   uuid.UUID
	ContributorID        *uuid.UUID
	Anonymous            bool
	NeedID               *uuid.UUID
	Allocations          []Allocation
	SpreadStrategy       string
	Amount               int64
	TipAmount            int64
	FeeAmount            int64
	Currency             string
	Note                 string
	GatewayIntentID      string
	ClientSecret         string
	Status               Status
	Mode                 Mode
	DestinationCharge    bool
	DestinationAccountID string
	RetryOf              *uuid.UUID
	FailureReason        string
	FailureCode          string
	CompletedAt          *time.Time
	FailedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsSpread reports whether the payment targets several needs.
func (p *Payment) IsSpread() bool { return p.NeedID == nil }

// ChargeTotal is what the contributor is charged: amount plus tip.
func (p *Payment) ChargeTotal() int64 { return p.Amount + p.TipAmount }

// ApplicationFee is what the platform keeps on a destination charge.
func (p *Payment) ApplicationFee() int64 { return p.FeeAmount + p.TipAmount }

// NetAmount is what recipients receive in total.
func (p *Payment) NetAmount() int64 { return p.Amount - p.FeeAmount }

// MetadataType returns the intent metadata "type" value.
func (p *Payment) MetadataType() string {
	if p.IsSpread() {
		return TypeSpread
	}
	return TypeSingle
}

// Attribution returns the contributor to credit, nil for anonymous gifts.
func (p *Payment) Attribution() *uuid.UUID {
	if p.Anonymous {
		return nil
	}
	return p.ContributorID
}

// Clone copies the payment for a new attempt, keeping routing and allocations.
func (p *Payment) Clone() *Payment {
	c := *p
	c.Allocations = append([]Allocation(nil), p.Allocations...)
	c.ID = uuid.New()
	c.GatewayIntentID = ""
	c.ClientSecret = ""
	c.Status = StatusPending
	c.FailureReason = ""
	c.FailureCode = ""
	c.CompletedAt = nil
	c.FailedAt = nil
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	return &c
}

// ContributorStats is a contributor's lifetime giving.
type ContributorStats struct {
	UserID             uuid.UUID
	TotalGiven         int64
	ContributionsCount int
	LastContributionAt *time.Time
}
