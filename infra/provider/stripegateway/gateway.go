package stripegateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/stripe/stripe-go/v82"
)

const defaultTimeout = 10 * time.Second

// Gateway drives Stripe PaymentIntents.
type Gateway struct {
	client  *stripe.Client
	cfg     *config.Stripe
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a Stripe gateway. opts are passed to stripe.NewClient.
func New(cfg *config.Stripe, logger *slog.Logger, opts ...stripe.ClientOption) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:  stripe.NewClient(cfg.ApiKey, opts...),
		cfg:     cfg,
		timeout: timeout,
		logger:  logger.With("gateway", "stripe"),
	}
}

func (g *Gateway) Name() string { return "stripe" }

// CreateIntent creates a PaymentIntent with automatic payment methods.
func (g *Gateway) CreateIntent(
	ctx context.Context,
	p *gateway.IntentParams,
) (*gateway.Intent, error) {
	const op = "stripe.CreateIntent"
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	currency := p.Currency
	if currency == "" {
		currency = g.cfg.Currency
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.DestinationAccountID != "" {
		params.TransferData = &stripe.PaymentIntentCreateTransferDataParams{
			Destination: stripe.String(p.DestinationAccountID),
		}
		if p.ApplicationFee > 0 {
			params.ApplicationFeeAmount = stripe.Int64(p.ApplicationFee)
		}
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		cerr := classify(err)
		g.logger.Warn("payment intent creation failed", "op", op, "error", err, "class", errorClass(cerr))
		return nil, fmt.Errorf("%s: %w", op, cerr)
	}
	g.logger.Info("payment intent created",
		"intent_id", pi.ID,
		"amount", p.Amount,
		"destination", p.DestinationAccountID != "",
	)
	return toIntent(pi), nil
}

// RetrieveIntent fetches the current state of an intent.
func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	const op = "stripe.RetrieveIntent"
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, intentID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return toIntent(pi), nil
}

// CheckHealth makes one authenticated call to tell a usable key from a
// missing or revoked one.
func (g *Gateway) CheckHealth(ctx context.Context) error {
	const op = "stripe.CheckHealth"
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if _, err := g.client.V1Balance.Retrieve(ctx, nil); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// Select runs the startup configuration check once and returns the gateway
// the engine should use. A missing key or an authentication failure selects
// the Null gateway; a transient failure keeps Stripe so that calls surface
// retryable errors instead of silently settling without a charge.
func Select(
	ctx context.Context,
	cfg *config.Stripe,
	logger *slog.Logger,
	opts ...stripe.ClientOption,
) gateway.Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.ApiKey) == "" {
		logger.Warn("⚠️ Stripe API key not set, contributions will settle in direct mode")
		return gateway.Null{}
	}
	g := New(cfg, logger, opts...)
	if !cfg.HealthCheck {
		return g
	}
	err := g.CheckHealth(ctx)
	switch {
	case err == nil:
		logger.Info("✅ Stripe gateway healthy")
		return g
	case gateway.IsNotConfigured(err):
		logger.Error("Stripe rejected the configured credentials, falling back to direct mode", "error", err)
		return gateway.Null{}
	default:
		logger.Warn("Stripe health check inconclusive, keeping gateway", "error", err)
		return g
	}
}

func toIntent(pi *stripe.PaymentIntent) *gateway.Intent {
	in := &gateway.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       gateway.IntentStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		code := string(pi.LastPaymentError.Code)
		if pi.LastPaymentError.DeclineCode != "" {
			code = string(pi.LastPaymentError.DeclineCode)
		}
		in.LastPaymentError = &gateway.PaymentError{
			Message: pi.LastPaymentError.Msg,
			Code:    code,
		}
	}
	return in
}

// classify maps Stripe and transport errors onto the gateway error classes.
// Anything unrecognised is transient: it must never be mistaken for a
// missing configuration.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusUnauthorized || se.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", gateway.ErrNotConfigured, se.Msg)
		case se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError:
			return gateway.Transient(err)
		case se.Type == stripe.ErrorTypeCard || se.Type == stripe.ErrorTypeInvalidRequest:
			code := string(se.Code)
			if se.DeclineCode != "" {
				code = string(se.DeclineCode)
			}
			return &gateway.RejectedError{Reason: se.Msg, Code: code}
		}
		return gateway.Transient(err)
	}
	// deadlines, connection resets and anything else the transport raises
	return gateway.Transient(err)
}

func errorClass(err error) string {
	switch {
	case gateway.IsNotConfigured(err):
		return "not_configured"
	case gateway.IsTransient(err):
		return "transient"
	default:
		if _, ok := gateway.AsRejected(err); ok {
			return "rejected"
		}
		return "unknown"
	}
}

var _ gateway.Gateway = (*Gateway)(nil)
