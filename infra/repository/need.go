package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultApplyAttempts bounds the optimistic retry loop in ApplyContribution.
const DefaultApplyAttempts = 5

type needRepository struct {
	db          *gorm.DB
	maxAttempts int
}

// NewNeedRepository creates a need ledger backed by db.
func NewNeedRepository(db *gorm.DB, maxAttempts int) repository.NeedRepository {
	if maxAttempts <= 0 {
		maxAttempts = DefaultApplyAttempts
	}
	return &needRepository{db: db, maxAttempts: maxAttempts}
}

func (r *needRepository) Create(ctx context.Context, n *need.Need) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(mapNeedToModel(n)).Error
	})
}

func (r *needRepository) Get(ctx context.Context, id uuid.UUID) (*need.Need, error) {
	var m Need
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapNeedToDomain(&m), nil
}

func (r *needRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]need.Need, error) {
	if len(ids) == 0 {
		return []need.Need{}, nil
	}
	var rows []Need
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapNeeds(rows), nil
}

func (r *needRepository) ListOpen(ctx context.Context, limit int) ([]need.Need, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND raised_amount < goal_amount", string(need.StatusCollecting)).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Need
	if err := q.Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapNeeds(rows), nil
}

func (r *needRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]need.Need, error) {
	var rows []Need
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapNeeds(rows), nil
}

// ApplyContribution reads the need, applies the capped credit in memory and
// writes it back only if the version is unchanged. A lost race re-reads and
// tries again.
func (r *needRepository) ApplyContribution(
	ctx context.Context,
	id uuid.UUID,
	amount int64,
) (*need.Need, need.Applied, error) {
	const op = "repository.ApplyContribution"
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		var m Need
		if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
			return nil, need.Applied{}, fmt.Errorf("%s: %w", op, MapGormErrorToDomain(err))
		}
		n := mapNeedToDomain(&m)
		applied := n.Apply(amount)
		now := time.Now().UTC()

		res := r.db.WithContext(ctx).
			Model(&Need{}).
			Where("id = ? AND version = ?", id, m.Version).
			Updates(map[string]any{
				"raised_amount":     n.RaisedAmount,
				"contributor_count": n.ContributorCount,
				"status":            string(n.Status),
				"version":           gorm.Expr("version + 1"),
				"updated_at":        now,
			})
		if res.Error != nil {
			return nil, need.Applied{}, fmt.Errorf("%s: %w", op, MapGormErrorToDomain(res.Error))
		}
		if res.RowsAffected == 1 {
			n.Version = m.Version + 1
			n.UpdatedAt = now
			return n, applied, nil
		}
	}
	return nil, need.Applied{}, fmt.Errorf("%s: need %s: %w", op, id, domain.ErrConcurrentUpdate)
}

func mapNeeds(rows []Need) []need.Need {
	out := make([]need.Need, 0, len(rows))
	for i := range rows {
		out = append(out, *mapNeedToDomain(&rows[i]))
	}
	return out
}

type contributionRepository struct {
	db *gorm.DB
}

// NewContributionRepository creates an append-only contribution store.
func NewContributionRepository(db *gorm.DB) repository.ContributionRepository {
	return &contributionRepository{db: db}
}

func (r *contributionRepository) Create(ctx context.Context, c *need.Contribution) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&Contribution{
			ID:            c.ID,
			NeedID:        c.NeedID,
			PaymentID:     c.PaymentID,
			ContributorID: c.ContributorID,
			Amount:        c.Amount,
			Note:          c.Note,
			CreatedAt:     c.CreatedAt,
		}).Error
	})
}

func (r *contributionRepository) ListByNeed(ctx context.Context, needID uuid.UUID) ([]need.Contribution, error) {
	return r.list(ctx, "need_id = ?", needID)
}

func (r *contributionRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]need.Contribution, error) {
	return r.list(ctx, "payment_id = ?", paymentID)
}

func (r *contributionRepository) list(ctx context.Context, where string, arg any) ([]need.Contribution, error) {
	var rows []Contribution
	if err := r.db.WithContext(ctx).Where(where, arg).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]need.Contribution, 0, len(rows))
	for i := range rows {
		out = append(out, mapContributionToDomain(&rows[i]))
	}
	return out, nil
}

func (r *contributionRepository) SumByNeed(ctx context.Context, needID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&Contribution{}).
		Where("need_id = ?", needID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, MapGormErrorToDomain(err)
}
