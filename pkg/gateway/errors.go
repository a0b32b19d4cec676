package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means no usable gateway integration exists. It is the
	// only error that may trigger direct settlement.
	ErrNotConfigured = errors.New("payment gateway is not configured")
	// ErrTransient marks failures worth retrying later: timeouts, 5xx, rate limits.
	ErrTransient = errors.New("payment gateway temporarily unavailable")
)

// RejectedError is a definitive refusal, such as a declined card.
type RejectedError struct {
	Reason string
	Code   string
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return "payment rejected: " + e.Reason
	}
	return fmt.Sprintf("payment rejected: %s (%s)", e.Reason, e.Code)
}

// TransientError wraps the underlying cause of a retryable failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTransient, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// Transient wraps err as a TransientError.
func Transient(err error) error { return &TransientError{Err: err} }

// IsNotConfigured reports whether err is a configuration-class failure.
func IsNotConfigured(err error) bool { return errors.Is(err, ErrNotConfigured) }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// AsRejected extracts a RejectedError from err.
func AsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
