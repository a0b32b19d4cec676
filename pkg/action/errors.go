package action

import (
	"errors"
	"net/http"

	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/fees"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/money"
)

// Error codes returned in the envelope.
const (
	CodeValidation       = "validation_error"
	CodeUnknownAction    = "unknown_action"
	CodeNotFound         = "not_found"
	CodeNotCollecting    = "need_not_collecting"
	CodeNotFailed        = "payment_not_failed"
	CodeRejected         = "payment_rejected"
	CodeUnavailable      = "gateway_unavailable"
	CodeRetryCapExceeded = "retry_cap_exceeded"
	CodeDuplicate        = "duplicate_in_flight"
	CodeConflict         = "conflict"
	CodeForbidden        = "forbidden"
	CodeInternal         = "internal_error"
)

// Classification is how an error is shown to the caller.
type Classification struct {
	Status  int
	Code    string
	Message string
}

// Failure attaches extra response fields to an error.
type Failure struct {
	Err    error
	Fields map[string]any
}

func (f *Failure) Error() string { return f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// Classify maps engine errors onto status codes and user-visible messages.
// Gateway rejections keep the gateway's own reason.
func Classify(err error) Classification {
	if rej, ok := gateway.AsRejected(err); ok {
		return Classification{http.StatusPaymentRequired, CodeRejected, rej.Reason}
	}
	switch {
	case errors.Is(err, ErrUnknownAction):
		return Classification{http.StatusBadRequest, CodeUnknownAction, err.Error()}
	case errors.Is(err, payment.ErrRetryCapExceeded):
		return Classification{http.StatusConflict, CodeRetryCapExceeded, payment.ErrRetryCapExceeded.Error()}
	case errors.Is(err, payment.ErrDuplicateInFlight):
		return Classification{http.StatusConflict, CodeDuplicate, payment.ErrDuplicateInFlight.Error()}
	case errors.Is(err, payment.ErrNotFailed):
		return Classification{http.StatusConflict, CodeNotFailed, payment.ErrNotFailed.Error()}
	case errors.Is(err, need.ErrNotCollecting):
		return Classification{http.StatusUnprocessableEntity, CodeNotCollecting, need.ErrNotCollecting.Error()}
	case isValidation(err):
		return Classification{http.StatusBadRequest, CodeValidation, err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return Classification{http.StatusNotFound, CodeNotFound, "not found"}
	case errors.Is(err, domain.ErrUnauthorized):
		return Classification{http.StatusForbidden, CodeForbidden, domain.ErrUnauthorized.Error()}
	case gateway.IsTransient(err):
		return Classification{
			http.StatusServiceUnavailable,
			CodeUnavailable,
			"The payment service is temporarily unavailable. Please try again.",
		}
	case errors.Is(err, domain.ErrConcurrentUpdate), errors.Is(err, domain.ErrAlreadyExists):
		return Classification{http.StatusConflict, CodeConflict, "the request conflicted with another update, please retry"}
	default:
		return Classification{http.StatusInternalServerError, CodeInternal, "an unexpected error occurred"}
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		payment.ErrInvalidTarget,
		money.ErrInvalidAmount,
		money.ErrTooPrecise,
		fees.ErrAmountTooSmall,
		fees.ErrAmountTooLarge,
		fees.ErrNegativeTip,
		fees.ErrAllocationMismatch,
		fees.ErrInvalidAllocation,
		fees.ErrDuplicateAllocation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
