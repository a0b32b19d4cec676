// Package notification turns settlement events into messages for need
// owners and contributors. Delivery is behind Notifier; the default
// implementation writes to the log.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirasaad/microgive/pkg/domain/events"
	"github.com/amirasaad/microgive/pkg/eventbus"
	"github.com/amirasaad/microgive/pkg/money"
	"github.com/google/uuid"
)

// Message is one notification.
type Message struct {
	UserID uuid.UUID
	Title  string
	Body   string
	Kind   string
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// LogNotifier logs messages instead of delivering them.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, m Message) error {
	n.Logger.Info("📣 notification", "user_id", m.UserID, "kind", m.Kind, "title", m.Title, "body", m.Body)
	return nil
}

// as accepts both value events (in-process buses) and pointer events
// (decoded from the wire).
func as[T any](e events.Event) (*T, bool) {
	switch v := any(e).(type) {
	case T:
		return &v, true
	case *T:
		return v, v != nil
	}
	return nil, false
}

// HandleContributionReceived tells the need owner about a credited contribution.
func HandleContributionReceived(n Notifier, logger *slog.Logger) eventbus.HandlerFunc {
	return func(ctx context.Context, e events.Event) error {
		log := logger.With("handler", "notification.HandleContributionReceived")
		ev, ok := as[events.ContributionReceived](e)
		if !ok {
			log.Error("Skipping unexpected event type", "event_type", e.Type())
			return nil
		}
		return n.Notify(ctx, Message{
			UserID: ev.OwnerID,
			Kind:   e.Type(),
			Title:  "New contribution",
			Body:   fmt.Sprintf("Someone contributed $%s to your need.", money.Format(ev.Amount)),
		})
	}
}

// HandleNeedGoalMet tells the owner the goal was reached.
func HandleNeedGoalMet(n Notifier, logger *slog.Logger) eventbus.HandlerFunc {
	return func(ctx context.Context, e events.Event) error {
		ev, ok := as[events.NeedGoalMet](e)
		if !ok {
			logger.Error("Skipping unexpected event type", "handler", "notification.HandleNeedGoalMet", "event_type", e.Type())
			return nil
		}
		return n.Notify(ctx, Message{
			UserID: ev.OwnerID,
			Kind:   e.Type(),
			Title:  "Goal reached 🎉",
			Body:   fmt.Sprintf("Your need reached its $%s goal.", money.Format(ev.GoalAmount)),
		})
	}
}

// HandlePaymentFailed tells the contributor their charge failed. Anonymous
// or unknown contributors are skipped.
func HandlePaymentFailed(n Notifier, logger *slog.Logger) eventbus.HandlerFunc {
	return func(ctx context.Context, e events.Event) error {
		ev, ok := as[events.PaymentFailed](e)
		if !ok {
			logger.Error("Skipping unexpected event type", "handler", "notification.HandlePaymentFailed", "event_type", e.Type())
			return nil
		}
		if ev.ContributorID == nil {
			return nil
		}
		return n.Notify(ctx, Message{
			UserID: *ev.ContributorID,
			Kind:   e.Type(),
			Title:  "Payment failed",
			Body:   ev.Reason,
		})
	}
}

// HandleDirectModeUsed records contributions that settled without a charge
// so operators notice a missing gateway configuration.
func HandleDirectModeUsed(logger *slog.Logger) eventbus.HandlerFunc {
	return func(_ context.Context, e events.Event) error {
		ev, ok := as[events.DirectModeUsed](e)
		if !ok {
			return nil
		}
		logger.Warn("⚠️ contribution settled without a card charge",
			"payment_id", ev.PaymentID,
			"amount", money.Format(ev.Amount),
			"retry_of", ev.RetryOf,
		)
		return nil
	}
}

// Register wires every handler on bus.
func Register(bus eventbus.Bus, n Notifier, logger *slog.Logger) {
	bus.Register(events.EventTypeContributionReceived, HandleContributionReceived(n, logger))
	bus.Register(events.EventTypeNeedGoalMet, HandleNeedGoalMet(n, logger))
	bus.Register(events.EventTypePaymentFailed, HandlePaymentFailed(n, logger))
	bus.Register(events.EventTypeDirectModeUsed, HandleDirectModeUsed(logger))
}
