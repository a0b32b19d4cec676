// Package events defines the notifications the settlement engine emits once
// a unit of work has committed.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of an event in the system.
type EventType string

func (t EventType) String() string { return string(t) }

const (
	EventTypeContributionReceived EventType = "Contribution.Received"
	EventTypeNeedGoalMet          EventType = "Need.GoalMet"
	EventTypePaymentFailed        EventType = "Payment.Failed"
	EventTypeDirectModeUsed       EventType = "Payment.DirectMode"
)

// Event is implemented by every domain event.
type Event interface {
	Type() string
}

// ContributionReceived tells a need owner that money was credited.
type ContributionReceived struct {
	PaymentID     uuid.UUID  `json:"paymentId"`
	NeedID        uuid.UUID  `json:"needId"`
	OwnerID       uuid.UUID  `json:"ownerId"`
	ContributorID *uuid.UUID `json:"contributorId,omitempty"`
	Amount        int64      `json:"amount"`
	Mode          string     `json:"mode"`
	OccurredAt    time.Time  `json:"occurredAt"`
}

func (ContributionReceived) Type() string { return EventTypeContributionReceived.String() }

// NeedGoalMet is emitted when a settlement closes a need's gap.
type NeedGoalMet struct {
	NeedID     uuid.UUID `json:"needId"`
	OwnerID    uuid.UUID `json:"ownerId"`
	GoalAmount int64     `json:"goalAmount"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (NeedGoalMet) Type() string { return EventTypeNeedGoalMet.String() }

// PaymentFailed is emitted when the gateway reports a failed charge.
type PaymentFailed struct {
	PaymentID     uuid.UUID  `json:"paymentId"`
	ContributorID *uuid.UUID `json:"contributorId,omitempty"`
	Reason        string     `json:"reason"`
	Code          string     `json:"code"`
	OccurredAt    time.Time  `json:"occurredAt"`
}

func (PaymentFailed) Type() string { return EventTypePaymentFailed.String() }

// DirectModeUsed flags a contribution recorded without a card charge.
type DirectModeUsed struct {
	PaymentID  uuid.UUID  `json:"paymentId"`
	Amount     int64      `json:"amount"`
	RetryOf    *uuid.UUID `json:"retryOf,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

func (DirectModeUsed) Type() string { return EventTypeDirectModeUsed.String() }

// EventTypes maps a wire type to a constructor, used by decoding buses.
var EventTypes = map[EventType]func() Event{
	EventTypeContributionReceived: func() Event { return &ContributionReceived{} },
	EventTypeNeedGoalMet:          func() Event { return &NeedGoalMet{} },
	EventTypePaymentFailed:        func() Event { return &PaymentFailed{} },
	EventTypeDirectModeUsed:       func() Event { return &DirectModeUsed{} },
}
