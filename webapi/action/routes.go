// Package action exposes the action registry over HTTP.
package action

import (
	"github.com/amirasaad/microgive/pkg/action"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

// Routes mounts POST /api/v1/actions. With auth enabled every call needs a
// bearer token whose subject becomes the acting user.
func Routes(app *fiber.App, registry *action.Registry, cfg *config.App) {
	handlers := []fiber.Handler{}
	if cfg.Auth != nil && cfg.Auth.Enabled && cfg.Auth.Jwt != nil {
		handlers = append(handlers, middleware.JwtProtected(cfg.Auth.Jwt))
	}
	handlers = append(handlers, Dispatch(registry))
	app.Post("/api/v1/actions", handlers...)
}

// Dispatch runs the action named in the body and writes the envelope with
// the status the registry chose.
func Dispatch(registry *action.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status, env := registry.Dispatch(c.UserContext(), c.Body())
		return c.Status(status).JSON(env)
	}
}
