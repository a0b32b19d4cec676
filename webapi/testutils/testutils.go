// Package testutils builds a fully wired fiber app on sqlite for HTTP tests.
package testutils

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/microgive/infra/eventbus"
	"github.com/amirasaad/microgive/internal/fixtures"
	"github.com/amirasaad/microgive/internal/fixtures/testdb"
	"github.com/amirasaad/microgive/pkg/app"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/amirasaad/microgive/webapi"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Harness bundles what an HTTP test needs to drive and inspect the engine.
type Harness struct {
	Fiber  *fiber.App
	App    *app.App
	Uow    repository.UnitOfWork
	Config *config.App
}

// NewHarness wires the engine against a fresh sqlite database. configure
// may adjust the config before the services are built.
func NewHarness(t testing.TB, gw gateway.Gateway, configure func(*config.App)) *Harness {
	t.Helper()
	uow, _ := testdb.UoW(t)
	cfg := fixtures.Config()
	if configure != nil {
		configure(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(&app.Deps{
		Uow:      uow,
		Gateway:  gw,
		EventBus: infraeventbus.NewWithMemory(logger),
		Logger:   logger,
	}, cfg)
	require.NoError(t, err)
	return &Harness{Fiber: webapi.SetupApp(a), App: a, Uow: uow, Config: cfg}
}

// MakeRequestWithApp sends a request through app.Test. token, when set, is
// sent as a bearer token.
func MakeRequestWithApp(app *fiber.App, method, path, body, token string, headers ...string) *http.Response {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, int((5 * time.Second).Milliseconds()))
	if err != nil {
		panic(err)
	}
	return resp
}

// Token signs an HS256 token for user with secret.
func Token(t testing.TB, secret string, user uuid.UUID) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}
