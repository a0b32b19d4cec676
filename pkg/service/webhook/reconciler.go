// Package webhook reconciles gateway callbacks with local payment state.
// Every event is logged before it is handled, so redeliveries are detected
// and a failed handling is retried by the gateway.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/metrics"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/amirasaad/microgive/pkg/service/settlement"
	"github.com/google/uuid"
)

// Gateway event types the reconciler acts on.
const (
	TypeIntentSucceeded = "payment_intent.succeeded"
	TypeIntentFailed    = "payment_intent.payment_failed"
	TypeAccountUpdated  = "account.updated"
)

// Outcome of processing one event.
type Outcome string

const (
	OutcomeSettled        Outcome = "settled"
	OutcomeAlreadySettled Outcome = "already_settled"
	OutcomeFailed         Outcome = "failed"
	OutcomeAccountUpdated Outcome = "account_updated"
	OutcomeUnmatched      Outcome = "unmatched"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeUnconfirmed    Outcome = "unconfirmed"
)

// Result of Process.
type Result struct {
	EventID   string
	Duplicate bool
	Outcome   Outcome
	PaymentID *uuid.UUID
}

// ErrUnverifiable is returned when an unsigned event cannot be confirmed
// with the gateway.
var ErrUnverifiable = fmt.Errorf("%w: event cannot be confirmed with the payment gateway", domain.ErrUnauthorized)

// Reconciler applies gateway events.
type Reconciler struct {
	uow        repository.UnitOfWork
	settlement *settlement.Service
	gw         gateway.Gateway
	metrics    *metrics.Engine
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a Reconciler. gw confirms events that arrive without a
// verified signature.
func New(
	uow repository.UnitOfWork,
	s *settlement.Service,
	gw gateway.Gateway,
	m *metrics.Engine,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if gw == nil {
		gw = gateway.Null{}
	}
	return &Reconciler{
		uow:        uow,
		settlement: s,
		gw:         gw,
		metrics:    m,
		logger:     logger.With("service", "webhook"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessUnverified handles an event whose signature was not checked.
// Intent events are replaced by the intent as the gateway reports it, so
// the caller's payload only names the intent. Account events are refused.
func (r *Reconciler) ProcessUnverified(ctx context.Context, ev gateway.Event) (*Result, error) {
	const op = "webhook.ProcessUnverified"
	switch ev.Type {
	case TypeIntentSucceeded, TypeIntentFailed:
	case TypeAccountUpdated:
		return nil, fmt.Errorf("%s: %w", op, ErrUnverifiable)
	default:
		return r.Process(ctx, ev)
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("%s: %w: eventId and eventType are required", op, domain.ErrValidation)
	}
	claimed, err := decode[gateway.Intent](ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if claimed.ID == "" {
		return nil, fmt.Errorf("%s: %w: payload.id is required", op, domain.ErrValidation)
	}

	intent, err := r.gw.RetrieveIntent(ctx, claimed.ID)
	switch {
	case gateway.IsNotConfigured(err):
		return nil, fmt.Errorf("%s: %w", op, ErrUnverifiable)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case intent.Status == gateway.StatusSucceeded:
		ev.Type = TypeIntentSucceeded
	case intent.Status.Failed():
		ev.Type = TypeIntentFailed
	default:
		r.logger.Info("unsigned intent event not final at the gateway",
			"event_id", ev.ID, "intent_id", intent.ID, "status", intent.Status)
		return &Result{EventID: ev.ID, Outcome: OutcomeUnconfirmed}, nil
	}
	if ev.Payload, err = json.Marshal(intent); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r.Process(ctx, ev)
}

// Process handles one signed event at most once. A handling error is
// stored on the event log entry and returned so the gateway redelivers.
func (r *Reconciler) Process(ctx context.Context, ev gateway.Event) (*Result, error) {
	const op = "webhook.Process"
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("%s: %w: eventId and eventType are required", op, domain.ErrValidation)
	}
	log := r.logger.With("event_id", ev.ID, "event_type", ev.Type)

	events, err := r.uow.WebhookEventRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	existing, err := events.Get(ctx, ev.ID)
	switch {
	case err == nil && existing.Processed:
		log.Info("🔁 duplicate webhook")
		r.metrics.Webhook(ev.Type, metrics.ResultDuplicate)
		return &Result{EventID: ev.ID, Duplicate: true}, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := events.Record(ctx, &payment.WebhookEvent{
		EventID:   ev.ID,
		EventType: ev.Type,
		Payload:   ev.Payload,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := r.handle(ctx, ev)
	if err != nil {
		log.Error("❌ webhook handling failed", "error", err)
		if markErr := events.MarkFailed(context.WithoutCancel(ctx), ev.ID, err.Error()); markErr != nil {
			log.Error("failed to record webhook error", "error", markErr)
		}
		r.metrics.Webhook(ev.Type, metrics.ResultFailed)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res.EventID = ev.ID

	if err := events.MarkProcessed(ctx, ev.ID, r.now()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r.metrics.Webhook(ev.Type, metricResult(res.Outcome))
	log.Info("✅ webhook processed", "outcome", res.Outcome)
	return res, nil
}

func (r *Reconciler) handle(ctx context.Context, ev gateway.Event) (*Result, error) {
	switch ev.Type {
	case TypeIntentSucceeded:
		intent, err := decode[gateway.Intent](ev.Payload)
		if err != nil {
			return nil, err
		}
		return r.succeeded(ctx, intent)
	case TypeIntentFailed:
		intent, err := decode[gateway.Intent](ev.Payload)
		if err != nil {
			return nil, err
		}
		return r.failed(ctx, intent)
	case TypeAccountUpdated:
		acct, err := decode[gateway.Account](ev.Payload)
		if err != nil {
			return nil, err
		}
		return r.accountUpdated(ctx, acct)
	default:
		return &Result{Outcome: OutcomeIgnored}, nil
	}
}

func (r *Reconciler) succeeded(ctx context.Context, intent *gateway.Intent) (*Result, error) {
	res, err := r.settlement.SettleByIntent(ctx, intent.ID)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn("succeeded intent has no payment", "intent_id", intent.ID)
		return &Result{Outcome: OutcomeUnmatched}, nil
	}
	if err != nil {
		return nil, err
	}
	out := &Result{Outcome: OutcomeSettled, PaymentID: &res.PaymentID}
	if res.AlreadySettled {
		out.Outcome = OutcomeAlreadySettled
	}
	return out, nil
}

func (r *Reconciler) failed(ctx context.Context, intent *gateway.Intent) (*Result, error) {
	payments, err := r.uow.PaymentRepository()
	if err != nil {
		return nil, err
	}
	p, err := payments.GetByIntentID(ctx, intent.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return &Result{Outcome: OutcomeUnmatched}, nil
	}
	if err != nil {
		return nil, err
	}
	reason, code := intent.FailureReason()
	if reason == "" {
		reason = "payment failed"
	}
	changed, err := r.settlement.Fail(ctx, p.ID, reason, code)
	if err != nil {
		return nil, err
	}
	out := &Result{Outcome: OutcomeFailed, PaymentID: &p.ID}
	if !changed && p.Status == payment.StatusCompleted {
		out.Outcome = OutcomeAlreadySettled
	}
	return out, nil
}

func (r *Reconciler) accountUpdated(ctx context.Context, in *gateway.Account) (*Result, error) {
	accounts, err := r.uow.ConnectedAccountRepository()
	if err != nil {
		return nil, err
	}
	acct, err := accounts.GetByGatewayAccount(ctx, in.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		userID, perr := uuid.Parse(in.Metadata[gateway.MetaUserID])
		if perr != nil {
			r.logger.Warn("account update for unknown user", "account_id", in.ID)
			return &Result{Outcome: OutcomeUnmatched}, nil
		}
		acct = &payment.ConnectedAccount{UserID: userID}
	case err != nil:
		return nil, err
	}
	acct.GatewayAccountID = in.ID
	acct.ApplyStatus(in.PayoutsEnabled, in.ChargesEnabled, in.DetailsSubmitted, r.now())
	if err := accounts.Upsert(ctx, acct); err != nil {
		return nil, err
	}
	r.logger.Info("connected account updated",
		"account_id", in.ID,
		"user_id", acct.UserID,
		"onboarding_complete", acct.OnboardingComplete,
	)
	return &Result{Outcome: OutcomeAccountUpdated}, nil
}

func decode[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: malformed event payload: %v", domain.ErrValidation, err)
	}
	return &v, nil
}

func metricResult(o Outcome) string {
	switch o {
	case OutcomeIgnored, OutcomeUnconfirmed:
		return metrics.ResultIgnored
	case OutcomeUnmatched:
		return metrics.ResultUnmatched
	case OutcomeAlreadySettled:
		return metrics.ResultDuplicate
	default:
		return metrics.ResultOK
	}
}
