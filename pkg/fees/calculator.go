// Package fees is the pure fee and split calculator. Nothing here touches
// storage or the gateway; every function is deterministic in its inputs.
package fees

import (
	"errors"
	"fmt"

	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinContribution is one cent.
const MinContribution int64 = 1

var (
	ErrAmountTooSmall      = errors.New("amount must be at least 0.01")
	ErrAmountTooLarge      = errors.New("amount exceeds the per-contribution limit")
	ErrNegativeTip         = errors.New("tip amount cannot be negative")
	ErrInvalidRate         = errors.New("fee rate must be between 0 and 1")
	ErrAllocationMismatch  = errors.New("spread allocations must sum to the contribution amount")
	ErrInvalidAllocation   = errors.New("spread allocation amounts must be positive")
	ErrDuplicateAllocation = errors.New("spread allocations must name each need once")
)

// Calculator turns requested amounts into fees and allocations.
// The platform fee rate is configuration: 0 gives the tip-only product.
type Calculator struct {
	rate            decimal.Decimal
	maxContribution int64
}

// NewCalculator validates the rate and builds a Calculator.
// maxContribution <= 0 disables the upper bound.
func NewCalculator(rate decimal.Decimal, maxContribution int64) (*Calculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}
	return &Calculator{rate: rate, maxContribution: maxContribution}, nil
}

// Rate returns the configured platform fee rate.
func (c *Calculator) Rate() decimal.Decimal { return c.rate }

// Breakdown is the single-recipient quote. All values are cents.
type Breakdown struct {
	Amount            int64 `json:"amount"`
	Tip               int64 `json:"tip"`
	Fee               int64 `json:"fee"`
	NetAmount         int64 `json:"netAmount"`
	RecipientReceives int64 `json:"recipientReceives"`
	ChargeTotal       int64 `json:"chargeTotal"`
	ApplicationFee    int64 `json:"applicationFee"`
}

// ValidateAmount enforces 0.01 <= amount <= cap.
func (c *Calculator) ValidateAmount(amount int64) error {
	if amount < MinContribution {
		return ErrAmountTooSmall
	}
	if c.maxContribution > 0 && amount > c.maxContribution {
		return fmt.Errorf("%w (%s)", ErrAmountTooLarge, money.Format(c.maxContribution))
	}
	return nil
}

// Fee is the platform fee on amount.
func (c *Calculator) Fee(amount int64) int64 {
	return money.ApplyRate(amount, c.rate)
}

// Quote prices a contribution of amount plus an optional tip. NetAmount is
// what counts towards the goal; the tip is platform revenue only.
func (c *Calculator) Quote(amount, tip int64) (Breakdown, error) {
	if err := c.ValidateAmount(amount); err != nil {
		return Breakdown{}, err
	}
	if tip < 0 {
		return Breakdown{}, ErrNegativeTip
	}
	fee := c.Fee(amount)
	return Breakdown{
		Amount:            amount,
		Tip:               tip,
		Fee:               fee,
		NetAmount:         amount,
		RecipientReceives: amount - fee,
		ChargeTotal:       amount + tip,
		ApplicationFee:    fee + tip,
	}, nil
}

// Allocate validates caller-supplied spread allocations against amount and
// prices each one. The input slice is not modified.
func (c *Calculator) Allocate(amount int64, allocations []payment.Allocation) ([]payment.Allocation, error) {
	if err := c.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return nil, payment.ErrInvalidTarget
	}
	seen := make(map[uuid.UUID]struct{}, len(allocations))
	out := make([]payment.Allocation, 0, len(allocations))
	var sum int64
	for _, a := range allocations {
		if a.Amount <= 0 {
			return nil, ErrInvalidAllocation
		}
		if _, dup := seen[a.NeedID]; dup {
			return nil, ErrDuplicateAllocation
		}
		seen[a.NeedID] = struct{}{}
		sum += a.Amount
		out = append(out, payment.Allocation{NeedID: a.NeedID, Amount: a.Amount, Fee: c.Fee(a.Amount)})
	}
	if sum != amount {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrAllocationMismatch, money.Format(sum), money.Format(amount))
	}
	return out, nil
}

// TotalFee sums allocation fees.
func TotalFee(allocations []payment.Allocation) int64 {
	var fee int64
	for _, a := range allocations {
		fee += a.Fee
	}
	return fee
}
