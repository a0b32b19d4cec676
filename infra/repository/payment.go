package repository

import (
	"context"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a payment store. Allocations are written and
// loaded together with their payment.
func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	now := time.Now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(mapPaymentToModel(p)).Error
	})
}

func (r *paymentRepository) withAllocations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Allocations", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var m Payment
	if err := r.withAllocations(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapPaymentToDomain(&m), nil
}

func (r *paymentRepository) GetByIntentID(ctx context.Context, intentID string) (*payment.Payment, error) {
	var m Payment
	if err := r.withAllocations(ctx).First(&m, "gateway_intent_id = ?", intentID).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapPaymentToDomain(&m), nil
}

// MarkCompleted is the settlement guard: the status check and the write are
// one statement, so exactly one caller sees true.
func (r *paymentRepository) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	mode payment.Mode,
	at time.Time,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND status <> ?", id, string(payment.StatusCompleted)).
		Updates(map[string]any{
			"status":       string(payment.StatusCompleted),
			"mode":         string(mode),
			"completed_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	reason, code string,
	at time.Time,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND status <> ?", id, string(payment.StatusCompleted)).
		Updates(map[string]any{
			"status":         string(payment.StatusFailed),
			"failure_reason": reason,
			"failure_code":   code,
			"failed_at":      at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRepository) ListFailedByContributor(
	ctx context.Context,
	contributorID uuid.UUID,
) ([]payment.Payment, error) {
	var rows []Payment
	if err := r.withAllocations(ctx).
		Where("contributor_id = ? AND status = ? AND retry_of IS NULL", contributorID, string(payment.StatusFailed)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapPayments(rows), nil
}

// ListCompletedForNeeds returns completed payments with at least one
// allocation on the given needs. All allocations are loaded; callers filter.
func (r *paymentRepository) ListCompletedForNeeds(
	ctx context.Context,
	needIDs []uuid.UUID,
) ([]payment.Payment, error) {
	if len(needIDs) == 0 {
		return []payment.Payment{}, nil
	}
	sub := r.db.WithContext(ctx).
		Model(&PaymentAllocation{}).
		Select("payment_id").
		Where("need_id IN ?", needIDs)
	var rows []Payment
	if err := r.withAllocations(ctx).
		Where("status = ? AND id IN (?)", string(payment.StatusCompleted), sub).
		Order("completed_at DESC").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapPayments(rows), nil
}

func mapPayments(rows []Payment) []payment.Payment {
	out := make([]payment.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, *mapPaymentToDomain(&rows[i]))
	}
	return out
}

type retryRepository struct {
	db *gorm.DB
}

// NewRetryRepository creates the retry attempt store.
func NewRetryRepository(db *gorm.DB) repository.RetryRepository {
	return &retryRepository{db: db}
}

func (r *retryRepository) Create(ctx context.Context, rt *payment.Retry) error {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(mapRetryToModel(rt)).Error
	})
}

func (r *retryRepository) CountByPayment(ctx context.Context, paymentID uuid.UUID) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&PaymentRetry{}).Where("payment_id = ?", paymentID).Count(&n).Error
	return int(n), MapGormErrorToDomain(err)
}

func (r *retryRepository) ListByPayments(
	ctx context.Context,
	paymentIDs []uuid.UUID,
) (map[uuid.UUID][]payment.Retry, error) {
	out := make(map[uuid.UUID][]payment.Retry, len(paymentIDs))
	if len(paymentIDs) == 0 {
		return out, nil
	}
	var rows []PaymentRetry
	if err := r.db.WithContext(ctx).
		Where("payment_id IN ?", paymentIDs).
		Order("retry_number ASC").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	for i := range rows {
		out[rows[i].PaymentID] = append(out[rows[i].PaymentID], mapRetryToDomain(&rows[i]))
	}
	return out, nil
}

func (r *retryRepository) Resolve(
	ctx context.Context,
	newPaymentID uuid.UUID,
	status payment.RetryStatus,
	result string,
	at time.Time,
) (bool, error) {
	updates := map[string]any{
		"status": string(status),
		"result": result,
	}
	if status == payment.RetryCompleted {
		updates["completed_at"] = at
	} else {
		updates["error"] = result
	}
	res := r.db.WithContext(ctx).
		Model(&PaymentRetry{}).
		Where("new_payment_id = ? AND status = ?", newPaymentID, string(payment.RetryPending)).
		Updates(updates)
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}
