// Package app wires the settlement engine's services together.
package app

import (
	"fmt"
	"log/slog"

	"github.com/amirasaad/microgive/pkg/action"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/eventbus"
	"github.com/amirasaad/microgive/pkg/fees"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/handler/notification"
	"github.com/amirasaad/microgive/pkg/idempotency"
	"github.com/amirasaad/microgive/pkg/metrics"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/amirasaad/microgive/pkg/service/checkout"
	"github.com/amirasaad/microgive/pkg/service/payout"
	"github.com/amirasaad/microgive/pkg/service/retry"
	"github.com/amirasaad/microgive/pkg/service/settlement"
	"github.com/amirasaad/microgive/pkg/service/webhook"
)

// Deps are the infrastructure pieces the services run on.
type Deps struct {
	Uow         repository.UnitOfWork
	Gateway     gateway.Gateway
	EventBus    eventbus.Bus
	Idempotency idempotency.Store
	Metrics     *metrics.Engine
	Notifier    notification.Notifier
	Logger      *slog.Logger
}

type App struct {
	Deps       *Deps
	Config     *config.App
	Calculator *fees.Calculator
	Settlement *settlement.Service
	Checkout   *checkout.Service
	Retry      *retry.Service
	Webhook    *webhook.Reconciler
	Payout     *payout.Service
	Actions    *action.Registry
}

func New(deps *Deps, cfg *config.App) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gateway == nil {
		deps.Gateway = gateway.Null{}
	}
	calc, err := fees.NewCalculator(cfg.Fee.PlatformRate, cfg.Fee.MaxContributionCents())
	if err != nil {
		return nil, fmt.Errorf("fee calculator: %w", err)
	}

	a := &App{
		Deps:       deps,
		Config:     cfg,
		Calculator: calc,
	}
	a.setupEventBus()

	a.Settlement = settlement.New(deps.Uow, deps.EventBus, deps.Metrics, deps.Logger)
	a.Checkout = checkout.New(checkout.Deps{
		Uow:         deps.Uow,
		Gateway:     deps.Gateway,
		Settlement:  a.Settlement,
		Calculator:  calc,
		Idempotency: deps.Idempotency,
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
	}, checkout.Config{
		Currency:          cfg.Stripe.Currency,
		IdempotencyWindow: cfg.Idempotency.Window,
		IdempotencyTTL:    cfg.Idempotency.TTL,
		PreviewLimit:      100,
	})
	a.Retry = retry.New(deps.Uow, deps.Gateway, a.Settlement, deps.Metrics, deps.Logger, cfg.Retry.MaxAttempts)
	a.Webhook = webhook.New(deps.Uow, a.Settlement, deps.Gateway, deps.Metrics, deps.Logger)
	a.Payout = payout.New(deps.Uow, cfg.Payout.RecentLimit)

	a.Actions = action.NewRegistry(deps.Logger)
	action.RegisterAll(a.Actions, action.Services{
		Checkout: a.Checkout,
		Retry:    a.Retry,
		Webhook:  a.Webhook,
		Payout:   a.Payout,
	})
	return a, nil
}
