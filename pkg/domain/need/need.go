// Package need models funding requests and the contributions applied to them.
//
// Invariants:
//   - 0 <= RaisedAmount <= GoalAmount at all times.
//   - A need moves to GoalMet the instant RaisedAmount == GoalAmount.
//   - Contributions are append-only and record the amount actually credited,
//     so the sum of a need's contributions always equals its RaisedAmount.
package need

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a need.
type Status string

const (
	StatusCollecting      Status = "collecting"
	StatusGoalMet         Status = "goal_met"
	StatusPayoutRequested Status = "payout_requested"
	StatusPaid            Status = "paid"
	StatusExpired         Status = "expired"
)

var (
	// ErrInvalidGoal is returned when a goal is not positive or exceeds the cap.
	ErrInvalidGoal = errors.New("goal amount must be positive and within the configured cap")
	// ErrNotCollecting is returned when a new contribution targets a closed need.
	ErrNotCollecting = errors.New("need is not accepting contributions")
)

// Need is a funding request with a goal amount.
type Need struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	Title            string
	GoalAmount       int64
	RaisedAmount     int64
	ContributorCount int
	Status           Status
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// New validates and builds a collecting need. goalCap <= 0 disables the cap.
func New(ownerID uuid.UUID, title string, goal, goalCap int64) (*Need, error) {
	if goal <= 0 || (goalCap > 0 && goal > goalCap) {
		return nil, ErrInvalidGoal
	}
	now := time.Now().UTC()
	return &Need{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Title:      strings.TrimSpace(title),
		GoalAmount: goal,
		Status:     StatusCollecting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Remaining is the gap between goal and raised amount, never negative.
func (n *Need) Remaining() int64 {
	if r := n.GoalAmount - n.RaisedAmount; r > 0 {
		return r
	}
	return 0
}

// Open reports whether the need can take new contributions.
func (n *Need) Open() bool {
	return n.Status == StatusCollecting && n.Remaining() > 0
}

// Applied describes what a settled contribution did to a need.
type Applied struct {
	Requested   int64
	Amount      int64
	Clamped     bool
	ReachedGoal bool
}

// Apply credits amount to the need, clamping at the goal. Money that has
// already moved is never refused, so Apply works on any status; it only
// flips Collecting to GoalMet. A fully clamped contribution does not count
// as a contributor.
func (n *Need) Apply(amount int64) Applied {
	credit := amount
	if credit > n.Remaining() {
		credit = n.Remaining()
	}
	if credit < 0 {
		credit = 0
	}
	n.RaisedAmount += credit
	if credit > 0 {
		n.ContributorCount++
	}
	res := Applied{Requested: amount, Amount: credit, Clamped: credit != amount}
	if n.RaisedAmount == n.GoalAmount && n.Status == StatusCollecting {
		n.Status = StatusGoalMet
		res.ReachedGoal = true
	}
	return res
}

// Contribution is an immutable record of funds applied to a need.
type Contribution struct {
	ID            uuid.UUID
	NeedID        uuid.UUID
	PaymentID     uuid.UUID
	ContributorID *uuid.UUID
	Amount        int64
	Note          string
	CreatedAt     time.Time
}
