// Package retry re-charges failed payments under a per-payment cap.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/metrics"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/amirasaad/microgive/pkg/service/checkout"
	"github.com/amirasaad/microgive/pkg/service/settlement"
	"github.com/google/uuid"
)

// Service schedules retries.
type Service struct {
	uow        repository.UnitOfWork
	gw         gateway.Gateway
	settlement *settlement.Service
	metrics    *metrics.Engine
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

// New builds a retry service. maxRetries <= 0 uses payment.DefaultMaxRetries.
func New(
	uow repository.UnitOfWork,
	gw gateway.Gateway,
	s *settlement.Service,
	m *metrics.Engine,
	logger *slog.Logger,
	maxRetries int,
) *Service {
	if maxRetries <= 0 {
		maxRetries = payment.DefaultMaxRetries
	}
	if gw == nil {
		gw = gateway.Null{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:        uow,
		gw:         gw,
		settlement: s,
		metrics:    m,
		logger:     logger.With("service", "retry"),
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Outcome of a retry attempt.
type Outcome string

const (
	OutcomeScheduled Outcome = "scheduled"
	OutcomeDirect    Outcome = "direct"
	OutcomeRejected  Outcome = "rejected"
)

// Result of RetryPayment.
type Result struct {
	Outcome          Outcome
	RetryNumber      int
	RetryID          uuid.UUID
	NewPaymentID     *uuid.UUID
	ClientSecret     string
	RetriesRemaining int
	FailureReason    string
	FailureCode      string
}

// RetryPayment starts attempt n+1 for a failed payment. A failed retry
// payment resolves to the payment it retried, so the cap spans the chain.
func (s *Service) RetryPayment(ctx context.Context, failedPaymentID uuid.UUID) (*Result, error) {
	const op = "retry.RetryPayment"
	payments, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	original, err := payments.Get(ctx, failedPaymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Attempts are counted against the payment that was first declined.
	if original.RetryOf != nil {
		if original, err = payments.Get(ctx, *original.RetryOf); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if original.Status != payment.StatusFailed {
		return nil, payment.ErrNotFailed
	}
	retries, err := s.uow.RetryRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	history, err := retries.ListByPayments(ctx, []uuid.UUID{original.ID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	attempts := history[original.ID]
	if err := payment.CheckRetryable(attempts); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	used := len(attempts)
	if used >= s.maxRetries {
		s.metrics.Retry(metrics.ResultCapped)
		return nil, payment.ErrRetryCapExceeded
	}
	number := used + 1
	log := s.logger.With("payment_id", original.ID, "retry_number", number)

	next := original.Clone()
	next.RetryOf = &original.ID
	next.Mode = payment.ModeGateway
	key := fmt.Sprintf("retry-%s-%d", original.ID, number)

	intent, err := s.gw.CreateIntent(ctx, checkout.IntentFor(next, key))
	switch {
	case gateway.IsNotConfigured(err):
		return s.direct(ctx, original, number)
	case err != nil:
		if rej, ok := gateway.AsRejected(err); ok {
			return s.rejected(ctx, original.ID, number, rej)
		}
		s.metrics.Retry(metrics.ResultTransient)
		log.Warn("retry attempt failed transiently", "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next.GatewayIntentID = intent.ID
	next.ClientSecret = intent.ClientSecret
	now := s.now()
	row := &payment.Retry{
		PaymentID:    original.ID,
		RetryNumber:  number,
		Status:       payment.RetryPending,
		NewPaymentID: &next.ID,
		ScheduledAt:  now,
		AttemptedAt:  &now,
	}
	err = s.uow.Do(ctx, func(tx repository.UnitOfWork) error {
		txPayments, err := tx.PaymentRepository()
		if err != nil {
			return err
		}
		if err := txPayments.Create(ctx, next); err != nil {
			return err
		}
		txRetries, err := tx.RetryRepository()
		if err != nil {
			return err
		}
		return txRetries.Create(ctx, row)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Retry(metrics.ResultOK)
	log.Info("🔁 retry scheduled", "new_payment_id", next.ID, "intent_id", intent.ID)
	return &Result{
		Outcome:          OutcomeScheduled,
		RetryNumber:      number,
		RetryID:          row.ID,
		NewPaymentID:     &next.ID,
		ClientSecret:     intent.ClientSecret,
		RetriesRemaining: payment.RetriesRemaining(number, s.maxRetries),
	}, nil
}

// direct settles the original payment itself and records a completed retry
// row in the same transaction.
func (s *Service) direct(ctx context.Context, original *payment.Payment, number int) (*Result, error) {
	const op = "retry.direct"
	row := &payment.Retry{
		PaymentID:   original.ID,
		RetryNumber: number,
		Status:      payment.RetryCompleted,
		Result:      string(OutcomeDirect),
	}
	record := func(ctx context.Context, tx repository.UnitOfWork, p *payment.Payment) error {
		now := s.now()
		row.ScheduledAt = now
		row.AttemptedAt = &now
		row.CompletedAt = &now
		retries, err := tx.RetryRepository()
		if err != nil {
			return err
		}
		return retries.Create(ctx, row)
	}
	res, err := s.settlement.Settle(ctx, original.ID,
		settlement.WithMode(payment.ModeDirect),
		settlement.WithHook(record),
	)
	if err != nil {
		s.metrics.Retry(metrics.ResultFailed)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res.AlreadySettled {
		// Settled concurrently by a late webhook; no retry consumed.
		return nil, payment.ErrNotFailed
	}
	s.metrics.Retry(metrics.ResultOK)
	s.logger.Warn("⚠️ gateway not configured, retry settled directly", "payment_id", original.ID)
	return &Result{
		Outcome:          OutcomeDirect,
		RetryNumber:      number,
		RetryID:          row.ID,
		RetriesRemaining: payment.RetriesRemaining(number, s.maxRetries),
	}, nil
}

// rejected consumes the retry slot with a failed row.
func (s *Service) rejected(
	ctx context.Context,
	paymentID uuid.UUID,
	number int,
	rej *gateway.RejectedError,
) (*Result, error) {
	const op = "retry.rejected"
	now := s.now()
	row := &payment.Retry{
		PaymentID:   paymentID,
		RetryNumber: number,
		Status:      payment.RetryFailed,
		ScheduledAt: now,
		AttemptedAt: &now,
		CompletedAt: &now,
		Error:       rej.Error(),
	}
	retries, err := s.uow.RetryRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := retries.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Retry(metrics.ResultRejected)
	s.logger.Warn("❌ retry rejected", "payment_id", paymentID, "retry_number", number, "code", rej.Code)
	return &Result{
		Outcome:          OutcomeRejected,
		RetryNumber:      number,
		RetryID:          row.ID,
		RetriesRemaining: payment.RetriesRemaining(number, s.maxRetries),
		FailureReason:    rej.Reason,
		FailureCode:      rej.Code,
	}, nil
}

// FailedPayment is a failed payment with its retry history.
type FailedPayment struct {
	Payment          payment.Payment
	Retries          []payment.Retry
	RetriesRemaining int
	CanRetry         bool
}

// FetchFailedPayments lists a contributor's failed payments, newest first.
// Failed retry payments appear in their original's retry history only.
func (s *Service) FetchFailedPayments(ctx context.Context, contributorID uuid.UUID) ([]FailedPayment, error) {
	const op = "retry.FetchFailedPayments"
	payments, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	failed, err := payments.ListFailedByContributor(ctx, contributorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ids := make([]uuid.UUID, 0, len(failed))
	for _, p := range failed {
		ids = append(ids, p.ID)
	}
	retries, err := s.uow.RetryRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	byPayment, err := retries.ListByPayments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]FailedPayment, 0, len(failed))
	for _, p := range failed {
		rows := byPayment[p.ID]
		if rows == nil {
			rows = []payment.Retry{}
		}
		remaining := payment.RetriesRemaining(len(rows), s.maxRetries)
		out = append(out, FailedPayment{
			Payment:          p,
			Retries:          rows,
			RetriesRemaining: remaining,
			CanRetry:         remaining > 0 && payment.CheckRetryable(rows) == nil,
		})
	}
	return out, nil
}

// MaxRetries returns the configured cap.
func (s *Service) MaxRetries() int { return s.maxRetries }
