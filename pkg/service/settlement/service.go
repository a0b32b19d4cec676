// Package settlement owns the only code path that moves money into the need
// ledger. Every caller (checkout verification, webhooks, retries and the
// direct fallback) funnels through Service so that a payment settles at most
// once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/events"
	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/eventbus"
	"github.com/amirasaad/microgive/pkg/metrics"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/google/uuid"
)

// ErrInvalidPayment is returned when a payment has nothing to settle.
var ErrInvalidPayment = errors.New("payment has no allocations to settle")

// Hook runs inside the settlement transaction after the ledger writes.
type Hook func(ctx context.Context, tx repository.UnitOfWork, p *payment.Payment) error

// Option tunes a single settlement.
type Option func(*settleOptions)

type settleOptions struct {
	mode  payment.Mode
	hooks []Hook
}

// WithMode overrides the mode recorded on the payment, e.g. direct for a
// retry that fell back to a trust-based settlement.
func WithMode(mode payment.Mode) Option {
	return func(o *settleOptions) { o.mode = mode }
}

// WithHook adds work to the settlement transaction.
func WithHook(h Hook) Option {
	return func(o *settleOptions) { o.hooks = append(o.hooks, h) }
}

// AppliedAllocation reports what one allocation did to its need.
type AppliedAllocation struct {
	NeedID      uuid.UUID `json:"needId"`
	Requested   int64     `json:"requested"`
	Amount      int64     `json:"amount"`
	Clamped     bool      `json:"clamped"`
	ReachedGoal bool      `json:"reachedGoal"`
}

// Result of a settlement attempt.
type Result struct {
	PaymentID      uuid.UUID
	Mode           payment.Mode
	AlreadySettled bool
	Receipt        *payment.Receipt
	Applied        []AppliedAllocation
}

// Service settles payments.
type Service struct {
	uow     repository.UnitOfWork
	bus     eventbus.Bus
	metrics *metrics.Engine
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a settlement service. bus and m may be nil.
func New(uow repository.UnitOfWork, bus eventbus.Bus, m *metrics.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:     uow,
		bus:     bus,
		metrics: m,
		logger:  logger.With("service", "settlement"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Settle completes an existing payment. A payment that is already completed
// yields Result.AlreadySettled and no writes.
func (s *Service) Settle(ctx context.Context, paymentID uuid.UUID, opts ...Option) (*Result, error) {
	const op = "settlement.Settle"
	o := settleOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	started := time.Now()
	var (
		res     *Result
		pending []events.Event
	)
	err := s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		payments, err := tx.PaymentRepository()
		if err != nil {
			return err
		}
		p, err := payments.Get(ctx, paymentID)
		if err != nil {
			return err
		}
		mode := p.Mode
		if o.mode != "" {
			mode = o.mode
		}
		now := s.now()

		won, err := payments.MarkCompleted(ctx, p.ID, mode, now)
		if err != nil {
			return err
		}
		if !won {
			res = &Result{PaymentID: p.ID, Mode: p.Mode, AlreadySettled: true}
			return nil
		}
		p.Status = payment.StatusCompleted
		p.Mode = mode
		p.CompletedAt = &now

		res, pending, err = s.apply(ctx, tx, p, now)
		if err != nil {
			return err
		}
		for _, h := range o.hooks {
			if err := h(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.Settlement(modeLabel(o.mode), metrics.ResultFailed, time.Since(started))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.finish(ctx, res, pending, started)
	return res, nil
}

// SettleByIntent settles the payment created for a gateway intent.
func (s *Service) SettleByIntent(ctx context.Context, intentID string, opts ...Option) (*Result, error) {
	const op = "settlement.SettleByIntent"
	payments, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := payments.GetByIntentID(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.Settle(ctx, p.ID, opts...)
}

// SettleDirect records a contribution that no gateway charge backs: the
// payment is inserted already completed in direct mode and the ledger is
// credited in the same transaction.
func (s *Service) SettleDirect(ctx context.Context, p *payment.Payment, opts ...Option) (*Result, error) {
	const op = "settlement.SettleDirect"
	if len(p.Allocations) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPayment)
	}
	o := settleOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	started := time.Now()
	var (
		res     *Result
		pending []events.Event
	)
	err := s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		payments, err := tx.PaymentRepository()
		if err != nil {
			return err
		}
		now := s.now()
		p.Status = payment.StatusCompleted
		p.Mode = payment.ModeDirect
		p.DestinationCharge = false
		p.DestinationAccountID = ""
		p.CompletedAt = &now
		if err := payments.Create(ctx, p); err != nil {
			return err
		}

		res, pending, err = s.apply(ctx, tx, p, now)
		if err != nil {
			return err
		}
		for _, h := range o.hooks {
			if err := h(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.Settlement(string(payment.ModeDirect), metrics.ResultFailed, time.Since(started))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.finish(ctx, res, pending, started)
	return res, nil
}

// Fail records a gateway-reported failure. A completed payment is never
// overridden; the returned bool reports whether the payment changed. A
// pending retry row pointing at the payment is resolved as failed.
func (s *Service) Fail(ctx context.Context, paymentID uuid.UUID, reason, code string) (bool, error) {
	const op = "settlement.Fail"
	var (
		changed bool
		p       *payment.Payment
	)
	now := s.now()
	err := s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		payments, err := tx.PaymentRepository()
		if err != nil {
			return err
		}
		if p, err = payments.Get(ctx, paymentID); err != nil {
			return err
		}
		if p.Status == payment.StatusCompleted {
			return nil
		}
		if changed, err = payments.MarkFailed(ctx, paymentID, reason, code, now); err != nil || !changed {
			return err
		}
		if p.RetryOf != nil {
			retries, err := tx.RetryRepository()
			if err != nil {
				return err
			}
			if _, err := retries.Resolve(ctx, p.ID, payment.RetryFailed, reason, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !changed {
		return false, nil
	}
	s.logger.Warn("❌ payment failed", "payment_id", paymentID, "reason", reason, "code", code)
	if s.bus != nil {
		if err := s.bus.Emit(ctx, events.PaymentFailed{
			PaymentID:     paymentID,
			ContributorID: p.ContributorID,
			Reason:        reason,
			Code:          code,
			OccurredAt:    now,
		}); err != nil {
			s.logger.Error("failed to emit payment failure", "error", err)
		}
	}
	return true, nil
}

// apply performs the ledger side of a settlement for a payment that has just
// been marked completed inside tx.
func (s *Service) apply(
	ctx context.Context,
	tx repository.UnitOfWork,
	p *payment.Payment,
	now time.Time,
) (*Result, []events.Event, error) {
	if len(p.Allocations) == 0 {
		return nil, nil, ErrInvalidPayment
	}
	needs, err := tx.NeedRepository()
	if err != nil {
		return nil, nil, err
	}
	contributions, err := tx.ContributionRepository()
	if err != nil {
		return nil, nil, err
	}

	res := &Result{PaymentID: p.ID, Mode: p.Mode}
	var pending []events.Event
	var credited int64
	var titles []string
	contributor := p.Attribution()

	for _, alloc := range p.Allocations {
		n, applied, err := needs.ApplyContribution(ctx, alloc.NeedID, alloc.Amount)
		if err != nil {
			return nil, nil, err
		}
		if applied.Clamped {
			s.logger.Warn("contribution clamped at goal",
				"payment_id", p.ID,
				"need_id", n.ID,
				"requested", applied.Requested,
				"applied", applied.Amount,
				"status", n.Status,
			)
			s.metrics.Clamped()
		}
		res.Applied = append(res.Applied, AppliedAllocation{
			NeedID:      n.ID,
			Requested:   applied.Requested,
			Amount:      applied.Amount,
			Clamped:     applied.Clamped,
			ReachedGoal: applied.ReachedGoal,
		})
		titles = append(titles, n.Title)
		if applied.Amount == 0 {
			continue
		}
		if err := contributions.Create(ctx, &need.Contribution{
			NeedID:        n.ID,
			PaymentID:     p.ID,
			ContributorID: contributor,
			Amount:        applied.Amount,
			Note:          p.Note,
			CreatedAt:     now,
		}); err != nil {
			return nil, nil, err
		}
		credited += applied.Amount

		pending = append(pending, events.ContributionReceived{
			PaymentID:     p.ID,
			NeedID:        n.ID,
			OwnerID:       n.OwnerID,
			ContributorID: contributor,
			Amount:        applied.Amount,
			Mode:          string(p.Mode),
			OccurredAt:    now,
		})
		if applied.ReachedGoal {
			pending = append(pending, events.NeedGoalMet{
				NeedID:     n.ID,
				OwnerID:    n.OwnerID,
				GoalAmount: n.GoalAmount,
				OccurredAt: now,
			})
		}
	}

	if contributor != nil && credited > 0 {
		stats, err := tx.ContributorStatsRepository()
		if err != nil {
			return nil, nil, err
		}
		if err := stats.Increment(ctx, *contributor, credited, now); err != nil {
			return nil, nil, err
		}
	}

	receipts, err := tx.ReceiptRepository()
	if err != nil {
		return nil, nil, err
	}
	rc := payment.NewReceipt(p.ID, p.ChargeTotal(), receiptTitle(titles))
	if err := receipts.Create(ctx, rc); err != nil {
		return nil, nil, err
	}
	res.Receipt = rc

	if p.RetryOf != nil {
		retries, err := tx.RetryRepository()
		if err != nil {
			return nil, nil, err
		}
		if _, err := retries.Resolve(ctx, p.ID, payment.RetryCompleted, "settled", now); err != nil {
			return nil, nil, err
		}
	}

	if p.Mode == payment.ModeDirect {
		pending = append(pending, events.DirectModeUsed{
			PaymentID:  p.ID,
			Amount:     p.Amount,
			RetryOf:    p.RetryOf,
			OccurredAt: now,
		})
	}
	return res, pending, nil
}

// finish runs after commit: notifications are best effort and never undo
// a settlement.
func (s *Service) finish(ctx context.Context, res *Result, pending []events.Event, started time.Time) {
	if res.AlreadySettled {
		s.logger.Info("🔁 payment already settled", "payment_id", res.PaymentID)
		s.metrics.Settlement(string(res.Mode), metrics.ResultDuplicate, time.Since(started))
		return
	}
	s.metrics.Settlement(string(res.Mode), metrics.ResultOK, time.Since(started))
	s.logger.Info("✅ payment settled",
		"payment_id", res.PaymentID,
		"mode", res.Mode,
		"allocations", len(res.Applied),
		"receipt", res.Receipt.ReceiptNumber,
	)
	if s.bus == nil {
		return
	}
	for _, evt := range pending {
		if err := s.bus.Emit(ctx, evt); err != nil {
			s.logger.Error("failed to emit settlement event", "type", evt.Type(), "error", err)
		}
	}
}

func receiptTitle(titles []string) string {
	switch len(titles) {
	case 0:
		return ""
	case 1:
		return titles[0]
	default:
		return fmt.Sprintf("%s and %d more", titles[0], len(titles)-1)
	}
}

func modeLabel(m payment.Mode) string {
	if m == "" {
		return "unknown"
	}
	return string(m)
}
