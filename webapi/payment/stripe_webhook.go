// Package payment receives gateway callbacks.
package payment

import (
	"errors"
	"log/slog"

	"github.com/amirasaad/microgive/infra/provider/stripegateway"
	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/amirasaad/microgive/pkg/service/webhook"
	"github.com/amirasaad/microgive/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// Routes mounts the Stripe webhook endpoint.
func Routes(app *fiber.App, reconciler *webhook.Reconciler, secret string, logger *slog.Logger) {
	app.Post("/api/v1/webhooks/stripe", StripeWebhookHandler(reconciler, secret, logger))
}

// StripeWebhookHandler verifies the signature and hands the event to the
// reconciler. Anything but a 2xx makes Stripe redeliver, so processing
// errors surface as 500 while permanent problems are 400.
func StripeWebhookHandler(reconciler *webhook.Reconciler, secret string, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		signature := c.Get("Stripe-Signature")
		if signature == "" {
			return common.ProblemDetailsJSON(c, "Bad Request",
				errors.New("missing Stripe-Signature header"), fiber.StatusBadRequest)
		}
		payload := c.Body()
		if len(payload) == 0 {
			return common.ProblemDetailsJSON(c, "Bad Request",
				errors.New("empty request body"), fiber.StatusBadRequest)
		}

		event, err := stripegateway.ParseWebhook(payload, signature, secret)
		switch {
		case errors.Is(err, stripegateway.ErrSigningSecretMissing):
			logger.Error("Webhook received but no signing secret is configured")
			return common.ProblemDetailsJSON(c, "Service Unavailable", err, fiber.StatusServiceUnavailable)
		case err != nil:
			logger.Warn("Rejected webhook", "error", err)
			return common.ProblemDetailsJSON(c, "Invalid signature", err, fiber.StatusBadRequest)
		}

		res, err := reconciler.Process(c.UserContext(), *event)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return common.ProblemDetailsJSON(c, "Bad Request", err, fiber.StatusBadRequest)
			}
			logger.Error("Webhook processing failed", "event_id", event.ID, "type", event.Type, "error", err)
			return common.ProblemDetailsJSON(c, "Internal Server Error", err, fiber.StatusInternalServerError)
		}

		return c.JSON(fiber.Map{
			"received":  true,
			"eventId":   res.EventID,
			"duplicate": res.Duplicate,
			"outcome":   res.Outcome,
		})
	}
}
