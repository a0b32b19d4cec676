package action

import (
	"context"
	"fmt"

	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/fees"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/money"
	"github.com/amirasaad/microgive/pkg/service/checkout"
	"github.com/amirasaad/microgive/pkg/service/payout"
	"github.com/amirasaad/microgive/pkg/service/retry"
	"github.com/amirasaad/microgive/pkg/service/webhook"
)

// Services are the engine operations exposed as actions.
type Services struct {
	Checkout *checkout.Service
	Retry    *retry.Service
	Webhook  *webhook.Reconciler
	Payout   *payout.Service
}

// RegisterAll registers every engine action on r.
func RegisterAll(r *Registry, s Services) {
	Register(r, CreateCheckout, createCheckout(s.Checkout))
	Register(r, VerifyPayment, verifyPayment(s.Checkout))
	Register(r, PreviewSpread, previewSpread(s.Checkout))
	Register(r, RetryPayment, retryPayment(s.Retry))
	Register(r, FetchFailedPayments, fetchFailedPayments(s.Retry))
	Register(r, ProcessWebhook, processWebhook(s.Webhook))
	Register(r, FetchPayoutDashboard, fetchPayoutDashboard(s.Payout))
}

func createCheckout(svc *checkout.Service) Handler[CreateCheckoutRequest] {
	return func(ctx context.Context, req *CreateCheckoutRequest) (any, error) {
		in := checkout.Request{
			Amount:         req.Amount.Cents(),
			TipAmount:      req.TipAmount.Cents(),
			NeedID:         req.NeedID,
			SpreadStrategy: req.SpreadStrategy,
			ContributorID:  actingUser(ctx, req.ContributorID),
			Anonymous:      req.IsAnonymous,
			Note:           req.Note,
		}
		for _, a := range req.SpreadAllocations {
			in.SpreadAllocations = append(in.SpreadAllocations, payment.Allocation{
				NeedID: a.NeedID,
				Amount: a.Amount.Cents(),
			})
		}
		res, err := svc.CreateCheckout(ctx, in)
		if err != nil {
			return nil, err
		}
		out := CheckoutResponse{
			PaymentID:           res.PaymentID,
			ClientSecret:        res.ClientSecret,
			Status:              res.Status,
			Mode:                res.Mode,
			DestinationCharge:   res.DestinationCharge,
			RecipientReceives:   money.Amount(res.Quote.RecipientReceives),
			Fee:                 money.Amount(res.Quote.Fee),
			TipAmount:           money.Amount(res.Quote.Tip),
			ChargeTotal:         money.Amount(res.Quote.ChargeTotal),
			StripeNotConfigured: res.StripeNotConfigured,
			Duplicate:           res.Duplicate,
			ReceiptNumber:       res.ReceiptNumber,
		}
		if res.StripeNotConfigured {
			out.Notice = DirectModeNotice
		}
		return out, nil
	}
}

func verifyPayment(svc *checkout.Service) Handler[VerifyPaymentRequest] {
	return func(ctx context.Context, req *VerifyPaymentRequest) (any, error) {
		res, err := svc.VerifyPayment(ctx, req.PaymentID)
		if err != nil {
			return nil, err
		}
		return VerifyPaymentResponse{
			PaymentID:     res.PaymentID,
			Status:        res.Status,
			Mode:          res.Mode,
			FailureReason: res.FailureReason,
			FailureCode:   res.FailureCode,
		}, nil
	}
}

func previewSpread(svc *checkout.Service) Handler[PreviewSpreadRequest] {
	return func(ctx context.Context, req *PreviewSpreadRequest) (any, error) {
		strategy, err := fees.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		res, err := svc.PreviewSpread(ctx, req.Amount.Cents(), strategy)
		if err != nil {
			return nil, err
		}
		return toPreviewDTO(res), nil
	}
}

func retryPayment(svc *retry.Service) Handler[RetryPaymentRequest] {
	return func(ctx context.Context, req *RetryPaymentRequest) (any, error) {
		res, err := svc.RetryPayment(ctx, req.FailedPaymentID)
		if err != nil {
			return nil, err
		}
		switch res.Outcome {
		case retry.OutcomeRejected:
			return nil, &Failure{
				Err: &gateway.RejectedError{Reason: res.FailureReason, Code: res.FailureCode},
				Fields: map[string]any{
					"retryNumber":      res.RetryNumber,
					"retriesRemaining": res.RetriesRemaining,
					"failureCode":      res.FailureCode,
				},
			}
		case retry.OutcomeDirect:
			return RetryPaymentResponse{
				PaymentID:        req.FailedPaymentID,
				Mode:             payment.ModeDirect,
				Status:           payment.StatusCompleted,
				RetryNumber:      res.RetryNumber,
				RetriesRemaining: res.RetriesRemaining,
				Notice:           DirectModeNotice,
			}, nil
		default:
			return RetryPaymentResponse{
				PaymentID:        *res.NewPaymentID,
				ClientSecret:     res.ClientSecret,
				Mode:             payment.ModeGateway,
				Status:           payment.StatusPending,
				RetryNumber:      res.RetryNumber,
				RetriesRemaining: res.RetriesRemaining,
			}, nil
		}
	}
}

func fetchFailedPayments(svc *retry.Service) Handler[UserRequest] {
	return func(ctx context.Context, req *UserRequest) (any, error) {
		user := actingUser(ctx, req.UserID)
		if user == nil {
			return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
		}
		list, err := svc.FetchFailedPayments(ctx, *user)
		if err != nil {
			return nil, err
		}
		out := FailedPaymentsResponse{FailedPayments: make([]FailedPaymentDTO, 0, len(list))}
		for _, fp := range list {
			out.FailedPayments = append(out.FailedPayments, toFailedPaymentDTO(fp))
		}
		return out, nil
	}
}

func processWebhook(rec *webhook.Reconciler) Handler[ProcessWebhookRequest] {
	return func(ctx context.Context, req *ProcessWebhookRequest) (any, error) {
		res, err := rec.ProcessUnverified(ctx, gateway.Event{ID: req.EventID, Type: req.EventType, Payload: req.Payload})
		if err != nil {
			return nil, err
		}
		out := ProcessWebhookResponse{EventID: req.EventID, Result: string(res.Outcome), PaymentID: res.PaymentID}
		if res.Duplicate {
			out.Result = "duplicate"
		}
		return out, nil
	}
}

func fetchPayoutDashboard(svc *payout.Service) Handler[UserRequest] {
	return func(ctx context.Context, req *UserRequest) (any, error) {
		user := actingUser(ctx, req.UserID)
		if user == nil {
			return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
		}
		d, err := svc.Dashboard(ctx, *user)
		if err != nil {
			return nil, err
		}
		return DashboardResponse{Dashboard: toDashboardDTO(d)}, nil
	}
}
