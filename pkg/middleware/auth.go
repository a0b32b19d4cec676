// Package middleware holds fiber middleware shared by the HTTP surface.
package middleware

import (
	"errors"
	"strings"

	"github.com/amirasaad/microgive/pkg/action"
	"github.com/amirasaad/microgive/pkg/config"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey is where the parsed token is stored in fiber locals.
const ContextKey = "user"

// JwtProtected verifies HS256 bearer tokens and exposes the subject as the
// action principal.
func JwtProtected(cfg *config.Jwt) fiber.Handler {
	verify := jwtware.New(jwtware.Config{
		SigningKey:     jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.Secret)},
		ContextKey:     ContextKey,
		ErrorHandler:   jwtError,
		SuccessHandler: withPrincipal,
	})
	return verify
}

func withPrincipal(c *fiber.Ctx) error {
	id, err := UserID(c)
	if err != nil {
		return problem(c, fiber.StatusUnauthorized, "Invalid or expired JWT", err.Error())
	}
	c.SetUserContext(action.WithPrincipal(c.UserContext(), id))
	return c.Next()
}

// UserID reads the user id from the verified token: the "user_id" claim
// when present, the subject otherwise.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals(ContextKey).(*jwt.Token)
	if !ok {
		return uuid.Nil, errors.New("missing user context")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("unexpected token claims")
	}
	if raw, ok := claims["user_id"].(string); ok && raw != "" {
		return uuid.Parse(raw)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, errors.New("token has no subject")
	}
	return uuid.Parse(sub)
}

func jwtError(c *fiber.Ctx, err error) error {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) ||
		strings.EqualFold(err.Error(), "Missing or malformed JWT") {
		return problem(c, fiber.StatusBadRequest, "Missing or malformed JWT", err.Error())
	}
	return problem(c, fiber.StatusUnauthorized, "Invalid or expired JWT", err.Error())
}

func problem(c *fiber.Ctx, status int, title, detail string) error {
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(status).JSON(fiber.Map{
		"type":     "about:blank",
		"title":    title,
		"status":   status,
		"detail":   detail,
		"instance": c.OriginalURL(),
	})
}
