// Package webapi is the HTTP surface of the settlement engine:
// - action: the single action endpoint
// - payment: gateway webhooks
// - common: problem details and rate limiting
package webapi

import (
	"errors"

	"github.com/amirasaad/microgive/pkg/app"
	actionweb "github.com/amirasaad/microgive/webapi/action"
	"github.com/amirasaad/microgive/webapi/common"
	"github.com/amirasaad/microgive/webapi/payment"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupApp Initialize Fiber with custom configuration
func SetupApp(a *app.App) *fiber.App {
	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	})

	if a.Config.RateLimit != nil && a.Config.RateLimit.MaxRequests > 0 {
		fiberApp.Use(common.RateLimiter(a.Config.RateLimit))
	}
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())

	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("MicroGive settlement engine is running! 🚀")
	})
	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"gateway": a.Deps.Gateway.Name(),
			"actions": a.Actions.Names(),
		})
	})
	fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	var secret string
	if a.Config.Stripe != nil {
		secret = a.Config.Stripe.SigningSecret
	}
	actionweb.Routes(fiberApp, a.Actions, a.Config)
	payment.Routes(fiberApp, a.Webhook, secret, a.Deps.Logger)

	fiberApp.Use(func(c *fiber.Ctx) error {
		return common.ProblemDetailsJSON(c, "Not Found", errors.New("route not found"), fiber.StatusNotFound)
	})
	return fiberApp
}
