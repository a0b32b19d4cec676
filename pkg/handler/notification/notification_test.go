package notification

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sent []Message
}

func (r *recorder) Notify(_ context.Context, m Message) error {
	r.sent = append(r.sent, m)
	return nil
}

func TestHandlers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	owner := uuid.New()
	contributor := uuid.New()

	tests := []struct {
		name    string
		handler func(Notifier) func(context.Context, events.Event) error
		event   events.Event
		want    *Message
	}{
		{
			name:    "contribution value event",
			handler: func(n Notifier) func(context.Context, events.Event) error { return HandleContributionReceived(n, logger) },
			event:   events.ContributionReceived{OwnerID: owner, Amount: 2500},
			want:    &Message{UserID: owner, Kind: events.EventTypeContributionReceived.String(), Title: "New contribution", Body: "Someone contributed $25.00 to your need."},
		},
		{
			name:    "contribution decoded event",
			handler: func(n Notifier) func(context.Context, events.Event) error { return HandleContributionReceived(n, logger) },
			event:   &events.ContributionReceived{OwnerID: owner, Amount: 100},
			want:    &Message{UserID: owner, Kind: events.EventTypeContributionReceived.String(), Title: "New contribution", Body: "Someone contributed $1.00 to your need."},
		},
		{
			name:    "goal met",
			handler: func(n Notifier) func(context.Context, events.Event) error { return HandleNeedGoalMet(n, logger) },
			event:   events.NeedGoalMet{OwnerID: owner, GoalAmount: 10000, OccurredAt: time.Now()},
			want:    &Message{UserID: owner, Kind: events.EventTypeNeedGoalMet.String(), Title: "Goal reached 🎉", Body: "Your need reached its $100.00 goal."},
		},
		{
			name:    "payment failed",
			handler: func(n Notifier) func(context.Context, events.Event) error { return HandlePaymentFailed(n, logger) },
			event:   events.PaymentFailed{ContributorID: &contributor, Reason: "Your card was declined."},
			want:    &Message{UserID: contributor, Kind: events.EventTypePaymentFailed.String(), Title: "Payment failed", Body: "Your card was declined."},
		},
		{
			name:    "anonymous failure skipped",
			handler: func(n Notifier) func(context.Context, events.Event) error { return HandlePaymentFailed(n, logger) },
			event:   events.PaymentFailed{Reason: "declined"},
		},
		{
			name:    "wrong type skipped",
			handler: func(n Notifier) func(context.Context, events.Event) error { return HandleNeedGoalMet(n, logger) },
			event:   events.PaymentFailed{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			require.NoError(t, tt.handler(rec)(context.Background(), tt.event))
			if tt.want == nil {
				assert.Empty(t, rec.sent)
				return
			}
			require.Len(t, rec.sent, 1)
			assert.Equal(t, *tt.want, rec.sent[0])
		})
	}
}
