package repository

import (
	"context"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type receiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) repository.ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, rc *payment.Receipt) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&Receipt{
			ID:            rc.ID,
			PaymentID:     rc.PaymentID,
			ReceiptNumber: rc.ReceiptNumber,
			Amount:        rc.Amount,
			NeedTitle:     rc.NeedTitle,
			CreatedAt:     rc.CreatedAt,
		}).Error
	})
}

func (r *receiptRepository) GetByPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Receipt, error) {
	var m Receipt
	if err := r.db.WithContext(ctx).First(&m, "payment_id = ?", paymentID).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return &payment.Receipt{
		ID:            m.ID,
		PaymentID:     m.PaymentID,
		ReceiptNumber: m.ReceiptNumber,
		Amount:        m.Amount,
		NeedTitle:     m.NeedTitle,
		CreatedAt:     m.CreatedAt,
	}, nil
}

type connectedAccountRepository struct {
	db *gorm.DB
}

func NewConnectedAccountRepository(db *gorm.DB) repository.ConnectedAccountRepository {
	return &connectedAccountRepository{db: db}
}

func (r *connectedAccountRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*payment.ConnectedAccount, error) {
	var m ConnectedAccount
	if err := r.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapAccountToDomain(&m), nil
}

func (r *connectedAccountRepository) GetByGatewayAccount(
	ctx context.Context,
	gatewayAccountID string,
) (*payment.ConnectedAccount, error) {
	var m ConnectedAccount
	if err := r.db.WithContext(ctx).First(&m, "gateway_account_id = ?", gatewayAccountID).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapAccountToDomain(&m), nil
}

// Upsert inserts the account or refreshes its gateway flags, keyed by user.
func (r *connectedAccountRepository) Upsert(ctx context.Context, a *payment.ConnectedAccount) error {
	now := time.Now().UTC()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"gateway_account_id",
					"onboarding_complete",
					"payouts_enabled",
					"charges_enabled",
					"details_submitted",
					"last_webhook_at",
					"updated_at",
				}),
			}).
			Create(mapAccountToModel(a)).Error
	})
}

type webhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) repository.WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Get(ctx context.Context, eventID string) (*payment.WebhookEvent, error) {
	var m WebhookEvent
	if err := r.db.WithContext(ctx).First(&m, "event_id = ?", eventID).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapWebhookEventToDomain(&m), nil
}

func (r *webhookEventRepository) Record(ctx context.Context, e *payment.WebhookEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).
			Create(&WebhookEvent{
				ID:        e.ID,
				EventID:   e.EventID,
				EventType: e.EventType,
				Payload:   string(e.Payload),
				CreatedAt: e.CreatedAt,
			}).Error
	})
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&WebhookEvent{}).
			Where("event_id = ?", eventID).
			Updates(map[string]any{
				"processed":        true,
				"processed_at":     at,
				"processing_error": "",
			}).Error
	})
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, eventID string, cause string) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&WebhookEvent{}).
			Where("event_id = ? AND processed = ?", eventID, false).
			Update("processing_error", cause).Error
	})
}

type contributorStatsRepository struct {
	db *gorm.DB
}

func NewContributorStatsRepository(db *gorm.DB) repository.ContributorStatsRepository {
	return &contributorStatsRepository{db: db}
}

// Increment adds amount to the contributor's lifetime total in a single
// upsert statement.
func (r *contributorStatsRepository) Increment(
	ctx context.Context,
	userID uuid.UUID,
	amount int64,
	at time.Time,
) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"total_given":          gorm.Expr("contributor_stats.total_given + ?", amount),
					"contributions_count":  gorm.Expr("contributor_stats.contributions_count + 1"),
					"last_contribution_at": at,
					"updated_at":           at,
				}),
			}).
			Create(&ContributorStats{
				UserID:             userID,
				TotalGiven:         amount,
				ContributionsCount: 1,
				LastContributionAt: &at,
				UpdatedAt:          at,
			}).Error
	})
}

func (r *contributorStatsRepository) Get(ctx context.Context, userID uuid.UUID) (*payment.ContributorStats, error) {
	var m ContributorStats
	if err := r.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return &payment.ContributorStats{
		UserID:             m.UserID,
		TotalGiven:         m.TotalGiven,
		ContributionsCount: m.ContributionsCount,
		LastContributionAt: m.LastContributionAt,
	}, nil
}
