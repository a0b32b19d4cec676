package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetryStatus of a single retry attempt.
type RetryStatus string

const (
	RetryPending   RetryStatus = "pending"
	RetryAttempted RetryStatus = "attempted"
	RetryCompleted RetryStatus = "completed"
	RetryFailed    RetryStatus = "failed"
)

// DefaultMaxRetries bounds retries per original payment.
const DefaultMaxRetries = 3

// Retry is one attempt at re-charging a failed payment.
type Retry struct {
	ID           uuid.UUID
	PaymentID    uuid.UUID
	RetryNumber  int
	Status       RetryStatus
	NewPaymentID *uuid.UUID
	ScheduledAt  time.Time
	AttemptedAt  *time.Time
	CompletedAt  *time.Time
	Result       string
	Error        string
}

// RetriesRemaining returns how many attempts are left under maxRetries.
func RetriesRemaining(used, maxRetries int) int {
	if r := maxRetries - used; r > 0 {
		return r
	}
	return 0
}

// CheckRetryable reports why no further attempt may start given the
// attempts already made. A settled attempt means the contribution was
// recovered; an unresolved one is still in flight.
func CheckRetryable(attempts []Retry) error {
	var inFlight *Retry
	for i := range attempts {
		switch attempts[i].Status {
		case RetryCompleted:
			return fmt.Errorf("%w: retry %d already settled", ErrNotFailed, attempts[i].RetryNumber)
		case RetryPending, RetryAttempted:
			if inFlight == nil {
				inFlight = &attempts[i]
			}
		}
	}
	if inFlight != nil {
		return fmt.Errorf("%w: retry %d has not resolved", ErrDuplicateInFlight, inFlight.RetryNumber)
	}
	return nil
}
