// Package common holds the pieces every HTTP route group shares.
package common

import (
	"errors"
	"strings"

	"github.com/amirasaad/microgive/pkg/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// MIMEProblemJSON is the media type of ProblemDetails bodies.
const MIMEProblemJSON = "application/problem+json"

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ProblemDetailsJSON writes an application/problem+json response. The
// status defaults to the fiber error code, or 500.
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, status ...int) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if len(status) > 0 {
		code = status[0]
	}
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   code,
		Instance: c.OriginalURL(),
	}
	if err != nil {
		pd.Detail = err.Error()
	}
	return c.Status(code).JSON(pd, MIMEProblemJSON)
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func ClientIP(c *fiber.Ctx) string {
	if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
		if i := strings.Index(forwardedFor, ","); i != -1 {
			return strings.TrimSpace(forwardedFor[:i])
		}
		return strings.TrimSpace(forwardedFor)
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.IP()
}

// RateLimiter limits requests per client IP.
func RateLimiter(cfg *config.RateLimit) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          cfg.MaxRequests,
		Expiration:   cfg.Window,
		KeyGenerator: ClientIP,
		LimitReached: func(c *fiber.Ctx) error {
			return ProblemDetailsJSON(
				c,
				"Too Many Requests",
				errors.New("rate limit exceeded"),
				fiber.StatusTooManyRequests,
			)
		},
	})
}
