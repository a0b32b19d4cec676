package repository

import (
	"context"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/google/uuid"
)

// NeedRepository is the need ledger. ApplyContribution is the only way
// raised amounts change, and it never does a blind read-modify-write.
type NeedRepository interface {
	Create(ctx context.Context, n *need.Need) error
	Get(ctx context.Context, id uuid.UUID) (*need.Need, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]need.Need, error)
	ListOpen(ctx context.Context, limit int) ([]need.Need, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]need.Need, error)
	// ApplyContribution credits amount to the need with optimistic
	// concurrency on its version, clamping at the goal.
	ApplyContribution(ctx context.Context, id uuid.UUID, amount int64) (*need.Need, need.Applied, error)
}

// ContributionRepository appends contributions. There is no update or delete.
type ContributionRepository interface {
	Create(ctx context.Context, c *need.Contribution) error
	ListByNeed(ctx context.Context, needID uuid.UUID) ([]need.Contribution, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]need.Contribution, error)
	SumByNeed(ctx context.Context, needID uuid.UUID) (int64, error)
}

// PaymentRepository persists payments with their allocations.
type PaymentRepository interface {
	Create(ctx context.Context, p *payment.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*payment.Payment, error)
	// MarkCompleted flips a payment to completed unless it already is.
	// It reports false when another caller got there first.
	MarkCompleted(ctx context.Context, id uuid.UUID, mode payment.Mode, at time.Time) (bool, error)
	// MarkFailed never overrides a completed payment.
	MarkFailed(ctx context.Context, id uuid.UUID, reason, code string, at time.Time) (bool, error)
	ListFailedByContributor(ctx context.Context, contributorID uuid.UUID) ([]payment.Payment, error)
	ListCompletedForNeeds(ctx context.Context, needIDs []uuid.UUID) ([]payment.Payment, error)
}

// RetryRepository tracks retry attempts per original payment.
type RetryRepository interface {
	Create(ctx context.Context, r *payment.Retry) error
	CountByPayment(ctx context.Context, paymentID uuid.UUID) (int, error)
	ListByPayments(ctx context.Context, paymentIDs []uuid.UUID) (map[uuid.UUID][]payment.Retry, error)
	// Resolve moves the pending retry that spawned newPaymentID to a final
	// status. Rows that are no longer pending are left alone.
	Resolve(ctx context.Context, newPaymentID uuid.UUID, status payment.RetryStatus, result string, at time.Time) (bool, error)
}

// ReceiptRepository stores one receipt per completed payment.
type ReceiptRepository interface {
	Create(ctx context.Context, r *payment.Receipt) error
	GetByPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Receipt, error)
}

// ConnectedAccountRepository stores payout routing per recipient.
type ConnectedAccountRepository interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*payment.ConnectedAccount, error)
	GetByGatewayAccount(ctx context.Context, gatewayAccountID string) (*payment.ConnectedAccount, error)
	Upsert(ctx context.Context, a *payment.ConnectedAccount) error
}

// WebhookEventRepository is the redelivery log.
type WebhookEventRepository interface {
	Get(ctx context.Context, eventID string) (*payment.WebhookEvent, error)
	// Record inserts the raw event; an existing row is left untouched.
	Record(ctx context.Context, e *payment.WebhookEvent) error
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, eventID string, cause string) error
}

// ContributorStatsRepository keeps lifetime giving counters.
type ContributorStatsRepository interface {
	Increment(ctx context.Context, userID uuid.UUID, amount int64, at time.Time) error
	Get(ctx context.Context, userID uuid.UUID) (*payment.ContributorStats, error)
}
