package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirasaad/microgive/pkg/action"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func protectedApp() *fiber.App {
	app := fiber.New()
	app.Use(JwtProtected(&config.Jwt{Secret: secret}))
	app.Get("/", func(c *fiber.Ctx) error {
		id, ok := action.Principal(c.UserContext())
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(id.String())
	})
	return app
}

func TestJwtProtected(t *testing.T) {
	user := uuid.New()
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusBadRequest},
		{"bad signature", "Bearer " + func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": user.String()}).SignedString([]byte("other"))
			return s
		}(), fiber.StatusUnauthorized},
		{"subject", "Bearer " + sign(t, jwt.MapClaims{"sub": user.String(), "exp": time.Now().Add(time.Hour).Unix()}), fiber.StatusOK},
		{"user_id claim", "Bearer " + sign(t, jwt.MapClaims{"user_id": user.String()}), fiber.StatusOK},
		{"no subject", "Bearer " + sign(t, jwt.MapClaims{"name": "x"}), fiber.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"sub": user.String(), "exp": time.Now().Add(-time.Hour).Unix()}), fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := protectedApp().Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestJwtError_Malformed(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		return jwtError(c, errors.New("Missing or malformed JWT"))
	})
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected %d, got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestJwtError_Invalid(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		return jwtError(c, errors.New("any other error"))
	})
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("expected %d, got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}
}
