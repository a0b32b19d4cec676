package repository

import (
	"time"

	"github.com/google/uuid"
)

// Need is the need ledger row. Version guards concurrent credits.
type Need struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID          uuid.UUID `gorm:"type:uuid;index;not null"`
	Title            string    `gorm:"size:200"`
	GoalAmount       int64     `gorm:"not null"`
	RaisedAmount     int64     `gorm:"not null"`
	ContributorCount int       `gorm:"not null"`
	Status           string    `gorm:"type:varchar(32);index;not null"`
	Version          int64     `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Need) TableName() string { return "needs" }

// Contribution is append-only.
type Contribution struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	NeedID        uuid.UUID  `gorm:"type:uuid;index;not null"`
	PaymentID     uuid.UUID  `gorm:"type:uuid;index;not null"`
	ContributorID *uuid.UUID `gorm:"type:uuid;index"`
	Amount        int64      `gorm:"not null"`
	Note          string     `gorm:"type:text"`
	CreatedAt     time.Time
}

func (Contribution) TableName() string { return "contributions" }

// Payment is the settlement unit.
type Payment struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ContributorID        *uuid.UUID `gorm:"type:uuid;index"`
	Anonymous            bool
	NeedID               *uuid.UUID `gorm:"type:uuid;index"`
	SpreadStrategy       string     `gorm:"type:varchar(32)"`
	Amount               int64      `gorm:"not null"`
	TipAmount            int64      `gorm:"not null"`
	FeeAmount            int64      `gorm:"not null"`
	Currency             string     `gorm:"type:varchar(3);not null"`
	Note                 string     `gorm:"type:text"`
	GatewayIntentID      *string    `gorm:"type:varchar(255);uniqueIndex"`
	ClientSecret         string     `gorm:"type:varchar(255)"`
	Status               string     `gorm:"type:varchar(16);index;not null"`
	Mode                 string     `gorm:"type:varchar(16);not null"`
	DestinationCharge    bool
	DestinationAccountID string     `gorm:"type:varchar(255)"`
	RetryOf              *uuid.UUID `gorm:"type:uuid;index"`
	FailureReason        string     `gorm:"type:text"`
	FailureCode          string     `gorm:"type:varchar(64)"`
	CompletedAt          *time.Time
	FailedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Allocations          []PaymentAllocation `gorm:"foreignKey:PaymentID"`
}

func (Payment) TableName() string { return "payments" }

// PaymentAllocation is one row per need a payment credits.
type PaymentAllocation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	PaymentID uuid.UUID `gorm:"type:uuid;index;not null"`
	NeedID    uuid.UUID `gorm:"type:uuid;index;not null"`
	Position  int       `gorm:"not null"`
	Amount    int64     `gorm:"not null"`
	Fee       int64     `gorm:"not null"`
}

func (PaymentAllocation) TableName() string { return "payment_allocations" }

// PaymentRetry rows are unique per (payment, retry number).
type PaymentRetry struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PaymentID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_payment_retries_number"`
	RetryNumber  int        `gorm:"not null;uniqueIndex:idx_payment_retries_number"`
	Status       string     `gorm:"type:varchar(16);not null"`
	NewPaymentID *uuid.UUID `gorm:"type:uuid;index"`
	ScheduledAt  time.Time
	AttemptedAt  *time.Time
	CompletedAt  *time.Time
	Result       string `gorm:"type:text"`
	Error        string `gorm:"type:text"`
}

func (PaymentRetry) TableName() string { return "payment_retries" }

type Receipt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	PaymentID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	ReceiptNumber string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	Amount        int64     `gorm:"not null"`
	NeedTitle     string    `gorm:"size:200"`
	CreatedAt     time.Time
}

func (Receipt) TableName() string { return "receipts" }

type ConnectedAccount struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID             uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	GatewayAccountID   string    `gorm:"type:varchar(255);index"`
	OnboardingComplete bool
	PayoutsEnabled     bool
	ChargesEnabled     bool
	DetailsSubmitted   bool
	LastWebhookAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (ConnectedAccount) TableName() string { return "connected_accounts" }

type WebhookEvent struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID         string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	EventType       string    `gorm:"type:varchar(128);index;not null"`
	Payload         string    `gorm:"type:text"`
	Processed       bool
	ProcessedAt     *time.Time
	ProcessingError string `gorm:"type:text"`
	CreatedAt       time.Time
}

func (WebhookEvent) TableName() string { return "webhook_events" }

type ContributorStats struct {
	UserID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TotalGiven         int64     `gorm:"not null"`
	ContributionsCount int       `gorm:"not null"`
	LastContributionAt *time.Time
	UpdatedAt          time.Time
}

func (ContributorStats) TableName() string { return "contributor_stats" }

// Models lists every table, in dependency order, for AutoMigrate.
func Models() []any {
	return []any{
		&Need{},
		&Contribution{},
		&Payment{},
		&PaymentAllocation{},
		&PaymentRetry{},
		&Receipt{},
		&ConnectedAccount{},
		&WebhookEvent{},
		&ContributorStats{},
	}
}
