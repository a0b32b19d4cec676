// Package checkout creates payment intents for contributions and confirms
// them. When no gateway is configured it degrades to direct settlement.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/fees"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/idempotency"
	"github.com/amirasaad/microgive/pkg/metrics"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/amirasaad/microgive/pkg/service/settlement"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Config holds checkout settings.
type Config struct {
	Currency          string
	IdempotencyWindow time.Duration
	IdempotencyTTL    time.Duration
	// PreviewLimit bounds how many open needs a spread preview considers.
	PreviewLimit int
}

// Deps are the collaborators of Service.
type Deps struct {
	Uow        repository.UnitOfWork
	Gateway    gateway.Gateway
	Settlement *settlement.Service
	Calculator *fees.Calculator
	// Idempotency may be nil, which disables key de-duplication.
	Idempotency idempotency.Store
	Metrics     *metrics.Engine
	Logger      *slog.Logger
}

// Service orchestrates checkouts.
type Service struct {
	uow        repository.UnitOfWork
	gw         gateway.Gateway
	settlement *settlement.Service
	calc       *fees.Calculator
	idem       idempotency.Store
	metrics    *metrics.Engine
	logger     *slog.Logger
	cfg        Config
	verifies   singleflight.Group
	now        func() time.Time
}

// New builds a checkout service.
func New(deps Deps, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gw := deps.Gateway
	if gw == nil {
		gw = gateway.Null{}
	}
	return &Service{
		uow:        deps.Uow,
		gw:         gw,
		settlement: deps.Settlement,
		calc:       deps.Calculator,
		idem:       deps.Idempotency,
		metrics:    deps.Metrics,
		logger:     logger.With("service", "checkout"),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Request asks to contribute Amount cents to one need or a spread.
type Request struct {
	Amount            int64
	TipAmount         int64
	NeedID            *uuid.UUID
	SpreadAllocations []payment.Allocation
	SpreadStrategy    string
	ContributorID     *uuid.UUID
	Anonymous         bool
	Note              string
}

// Response describes the created payment.
type Response struct {
	PaymentID           uuid.UUID
	ClientSecret        string
	Status              payment.Status
	Mode                payment.Mode
	DestinationCharge   bool
	Quote               fees.Breakdown
	StripeNotConfigured bool
	Duplicate           bool
	ReceiptNumber       string
}

// CreateCheckout validates the request, routes it and opens a gateway
// intent. Nothing touches the ledger until the intent is confirmed, except
// on the direct fallback which settles synchronously.
func (s *Service) CreateCheckout(ctx context.Context, req Request) (resp *Response, err error) {
	const op = "checkout.CreateCheckout"
	hasNeed := req.NeedID != nil && *req.NeedID != uuid.Nil
	if hasNeed == (len(req.SpreadAllocations) > 0) {
		return nil, payment.ErrInvalidTarget
	}
	quote, err := s.calc.Quote(req.Amount, req.TipAmount)
	if err != nil {
		return nil, err
	}

	p := &payment.Payment{
		ID:             uuid.New(),
		ContributorID:  req.ContributorID,
		Anonymous:      req.Anonymous,
		SpreadStrategy: req.SpreadStrategy,
		Amount:         req.Amount,
		TipAmount:      req.TipAmount,
		Currency:       s.cfg.Currency,
		Note:           strings.TrimSpace(req.Note),
		Status:         payment.StatusPending,
		Mode:           payment.ModeGateway,
	}
	target, err := s.route(ctx, p, req, quote)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := ""
	if req.ContributorID != nil && s.idem != nil {
		key = idempotency.Key(*req.ContributorID, target, req.Amount, req.TipAmount, s.now(), s.cfg.IdempotencyWindow)
		var dup *Response
		dup, err = s.claim(ctx, key)
		if err != nil || dup != nil {
			return dup, err
		}
		defer func() {
			if err != nil || resp == nil {
				if relErr := s.idem.Release(context.WithoutCancel(ctx), key); relErr != nil {
					s.logger.Error("failed to release idempotency key", "error", relErr)
				}
				return
			}
			if cErr := s.idem.Complete(ctx, key, resp.PaymentID.String(), s.cfg.IdempotencyTTL); cErr != nil {
				s.logger.Error("failed to store idempotency key", "error", cErr)
			}
		}()
	}

	idemKey := key
	if idemKey == "" {
		idemKey = "checkout-" + p.ID.String()
	}
	intent, err := s.gw.CreateIntent(ctx, IntentFor(p, idemKey))
	switch {
	case gateway.IsNotConfigured(err):
		return s.direct(ctx, p, quote)
	case err != nil:
		s.recordGatewayError(err)
		s.metrics.Checkout(string(payment.ModeGateway), resultFor(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p.GatewayIntentID = intent.ID
	p.ClientSecret = intent.ClientSecret
	payments, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Checkout(string(payment.ModeGateway), metrics.ResultOK)
	s.logger.Info("🟢 checkout created",
		"payment_id", p.ID,
		"intent_id", intent.ID,
		"amount", p.Amount,
		"destination_charge", p.DestinationCharge,
		"spread", p.IsSpread(),
	)
	return &Response{
		PaymentID:         p.ID,
		ClientSecret:      intent.ClientSecret,
		Status:            payment.StatusPending,
		Mode:              payment.ModeGateway,
		DestinationCharge: p.DestinationCharge,
		Quote:             quote,
	}, nil
}

// route fills allocations and payout routing and returns the target string
// used for idempotency.
func (s *Service) route(ctx context.Context, p *payment.Payment, req Request, quote fees.Breakdown) (string, error) {
	needs, err := s.uow.NeedRepository()
	if err != nil {
		return "", err
	}

	if req.NeedID != nil && *req.NeedID != uuid.Nil {
		n, err := needs.Get(ctx, *req.NeedID)
		if err != nil {
			return "", err
		}
		if !n.Open() {
			return "", need.ErrNotCollecting
		}
		p.NeedID = &n.ID
		p.FeeAmount = quote.Fee
		p.Allocations = []payment.Allocation{{NeedID: n.ID, Amount: req.Amount, Fee: quote.Fee}}

		accounts, err := s.uow.ConnectedAccountRepository()
		if err != nil {
			return "", err
		}
		acct, err := accounts.GetByUser(ctx, n.OwnerID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return "", err
		case acct.OnboardingComplete && acct.GatewayAccountID != "":
			p.DestinationCharge = true
			p.DestinationAccountID = acct.GatewayAccountID
		}
		return n.ID.String(), nil
	}

	allocs, err := s.calc.Allocate(req.Amount, req.SpreadAllocations)
	if err != nil {
		return "", err
	}
	ids := make([]uuid.UUID, 0, len(allocs))
	for _, a := range allocs {
		ids = append(ids, a.NeedID)
	}
	found, err := needs.ListByIDs(ctx, ids)
	if err != nil {
		return "", err
	}
	if len(found) != len(ids) {
		return "", fmt.Errorf("spread target: %w", domain.ErrNotFound)
	}
	p.Allocations = allocs
	p.FeeAmount = fees.TotalFee(allocs)

	keys := make([]string, 0, len(allocs))
	for _, a := range allocs {
		keys = append(keys, fmt.Sprintf("%s:%d", a.NeedID, a.Amount))
	}
	sort.Strings(keys)
	return "spread:" + strings.Join(keys, ","), nil
}

// claim returns a response for a duplicate request, or nil when the key
// was claimed by this call.
func (s *Service) claim(ctx context.Context, key string) (*Response, error) {
	existing, claimed, err := s.idem.Claim(ctx, key, s.cfg.IdempotencyTTL)
	if err != nil {
		// The store is an optimisation; the settlement guard still holds.
		s.logger.Error("idempotency store unavailable", "error", err)
		return nil, nil
	}
	if claimed {
		return nil, nil
	}
	if existing == idempotency.InFlight {
		s.metrics.Checkout("", metrics.ResultDuplicate)
		return nil, payment.ErrDuplicateInFlight
	}
	id, err := uuid.Parse(existing)
	if err != nil {
		return nil, payment.ErrDuplicateInFlight
	}
	payments, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, err
	}
	p, err := payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.Checkout(string(p.Mode), metrics.ResultDuplicate)
	s.logger.Info("🔁 duplicate checkout", "payment_id", p.ID)
	q, _ := s.calc.Quote(p.Amount, p.TipAmount)
	return &Response{
		PaymentID:         p.ID,
		ClientSecret:      p.ClientSecret,
		Status:            p.Status,
		Mode:              p.Mode,
		DestinationCharge: p.DestinationCharge,
		Quote:             q,
		Duplicate:         true,
	}, nil
}

func (s *Service) direct(ctx context.Context, p *payment.Payment, quote fees.Breakdown) (*Response, error) {
	res, err := s.settlement.SettleDirect(ctx, p)
	if err != nil {
		s.metrics.Checkout(string(payment.ModeDirect), metrics.ResultFailed)
		return nil, err
	}
	s.metrics.Checkout(string(payment.ModeDirect), metrics.ResultOK)
	s.logger.Warn("⚠️ gateway not configured, settled directly", "payment_id", p.ID, "amount", p.Amount)
	// Direct payments never route to a connected account.
	quote.ApplicationFee = 0
	return &Response{
		PaymentID:           p.ID,
		Status:              payment.StatusCompleted,
		Mode:                payment.ModeDirect,
		Quote:               quote,
		StripeNotConfigured: true,
		ReceiptNumber:       res.Receipt.ReceiptNumber,
	}, nil
}

// VerifyResult is the outcome of VerifyPayment.
type VerifyResult struct {
	PaymentID     uuid.UUID
	Status        payment.Status
	Mode          payment.Mode
	IntentStatus  gateway.IntentStatus
	FailureReason string
	FailureCode   string
}

// VerifyPayment asks the gateway for the intent's status and settles or
// fails the payment accordingly. Concurrent calls for one payment share a
// single gateway round trip. The shared call outlives any one caller's
// cancellation; each caller stops waiting when its own ctx is done.
func (s *Service) VerifyPayment(ctx context.Context, paymentID uuid.UUID) (*VerifyResult, error) {
	flight := context.WithoutCancel(ctx)
	ch := s.verifies.DoChan(paymentID.String(), func() (any, error) {
		return s.verify(flight, paymentID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*VerifyResult), nil
	}
}

func (s *Service) verify(ctx context.Context, paymentID uuid.UUID) (*VerifyResult, error) {
	const op = "checkout.VerifyPayment"
	payments, err := s.uow.PaymentRepository()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := payments.Get(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res := &VerifyResult{
		PaymentID:     p.ID,
		Status:        p.Status,
		Mode:          p.Mode,
		FailureReason: p.FailureReason,
		FailureCode:   p.FailureCode,
	}
	if p.Status == payment.StatusCompleted || p.Mode == payment.ModeDirect || p.GatewayIntentID == "" {
		return res, nil
	}

	intent, err := s.gw.RetrieveIntent(ctx, p.GatewayIntentID)
	if err != nil {
		if gateway.IsNotConfigured(err) {
			// Nothing to ask; report what we know.
			return res, nil
		}
		s.recordGatewayError(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res.IntentStatus = intent.Status

	switch {
	case intent.Status == gateway.StatusSucceeded:
		if _, err := s.settlement.Settle(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.Status = payment.StatusCompleted
	case intent.Status.Failed():
		reason, code := intent.FailureReason()
		if reason == "" {
			reason = "payment " + string(intent.Status)
		}
		if _, err := s.settlement.Fail(ctx, p.ID, reason, code); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		current, err := payments.Get(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.Status = current.Status
		res.FailureReason = current.FailureReason
		res.FailureCode = current.FailureCode
	default:
		res.Status = payment.StatusPending
	}
	return res, nil
}

// PreviewSpread shows how amount would be spread over open needs.
func (s *Service) PreviewSpread(ctx context.Context, amount int64, strategy fees.Strategy) (fees.SpreadResult, error) {
	const op = "checkout.PreviewSpread"
	if err := s.calc.ValidateAmount(amount); err != nil {
		return fees.SpreadResult{}, err
	}
	needs, err := s.uow.NeedRepository()
	if err != nil {
		return fees.SpreadResult{}, fmt.Errorf("%s: %w", op, err)
	}
	open, err := needs.ListOpen(ctx, s.cfg.PreviewLimit)
	if err != nil {
		return fees.SpreadResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.calc.Spread(amount, open, strategy)
}

func (s *Service) recordGatewayError(err error) {
	s.metrics.GatewayError(resultFor(err))
	s.logger.Error("gateway call failed", "gateway", s.gw.Name(), "error", err)
}

func resultFor(err error) string {
	if _, ok := gateway.AsRejected(err); ok {
		return metrics.ResultRejected
	}
	if gateway.IsTransient(err) {
		return metrics.ResultTransient
	}
	return metrics.ResultFailed
}
