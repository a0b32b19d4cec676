package stripegateway

import (
	"errors"
	"fmt"

	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	// ErrSigningSecretMissing is returned when webhooks arrive but no
	// signing secret is configured.
	ErrSigningSecretMissing = errors.New("webhook signing secret not configured")
	// ErrInvalidSignature is returned when the payload fails verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ParseWebhook verifies the Stripe-Signature header and reduces the event
// to its id, type and data.object.
func ParseWebhook(payload []byte, header, secret string) (*gateway.Event, error) {
	if secret == "" {
		return nil, ErrSigningSecretMissing
	}
	evt, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &gateway.Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data != nil {
		out.Payload = evt.Data.Raw
	}
	return out, nil
}
