package webapi_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/amirasaad/microgive/internal/fixtures"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/amirasaad/microgive/pkg/domain/payment"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/amirasaad/microgive/webapi/testutils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82/webhook"
)

const signingSecret = "whsec_test"

type WebAPITestSuite struct {
	suite.Suite
	h *testutils.Harness
}

func (s *WebAPITestSuite) SetupTest() {
	s.h = testutils.NewHarness(s.T(), gateway.Null{}, func(cfg *config.App) {
		cfg.Stripe.SigningSecret = signingSecret
	})
}

func (s *WebAPITestSuite) decode(resp *http.Response) map[string]any {
	defer resp.Body.Close() //nolint: errcheck
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	var out map[string]any
	s.Require().NoError(json.Unmarshal(body, &out), string(body))
	return out
}

func (s *WebAPITestSuite) signed(payload string) (string, string) {
	p := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    signingSecret,
		Timestamp: time.Now(),
	})
	return string(p.Payload), p.Header
}

func (s *WebAPITestSuite) TestHealth() {
	resp := testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodGet, "/health", "", "")
	s.Equal(fiber.StatusOK, resp.StatusCode)
	body := s.decode(resp)
	s.Equal("ok", body["status"])
	s.Equal("none", body["gateway"])
	s.Contains(body["actions"], "create_checkout")
}

func (s *WebAPITestSuite) TestMetrics() {
	resp := testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodGet, "/metrics", "", "")
	defer resp.Body.Close() //nolint: errcheck
	s.Equal(fiber.StatusOK, resp.StatusCode)
}

func (s *WebAPITestSuite) TestUnknownRoute() {
	resp := testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodGet, "/nope", "", "")
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
	s.Equal("application/problem+json", resp.Header.Get(fiber.HeaderContentType))
	s.Equal("Not Found", s.decode(resp)["title"])
}

func (s *WebAPITestSuite) TestCreateCheckoutDirect() {
	n := fixtures.Need(s.T(), s.h.Uow, uuid.New(), "groceries", 10000, 0)
	resp := testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodPost, "/api/v1/actions",
		fmt.Sprintf(`{"action":"create_checkout","amount":"25.00","needId":%q}`, n.ID), "")
	s.Equal(fiber.StatusOK, resp.StatusCode)
	body := s.decode(resp)
	s.Equal(true, body["success"])
	s.Equal("direct", body["mode"])
	s.Equal(int64(2500), fixtures.Get(s.T(), s.h.Uow, n.ID).RaisedAmount)
}

func (s *WebAPITestSuite) TestActionErrors() {
	resp := testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodPost, "/api/v1/actions", `{"action":"launch"}`, "")
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	body := s.decode(resp)
	s.Equal(false, body["success"])
	s.Equal("unknown_action", body["code"])

	resp = testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodPost, "/api/v1/actions", `not json`, "")
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	s.Equal("validation_error", s.decode(resp)["code"])
}

func (s *WebAPITestSuite) TestWebhookRejectsUnsigned() {
	resp := testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodPost, "/api/v1/webhooks/stripe", `{}`, "")
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close() //nolint: errcheck

	resp = testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodPost, "/api/v1/webhooks/stripe", `{}`, "",
		"Stripe-Signature", "t=1,v1=deadbeef")
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	s.Equal("Invalid signature", s.decode(resp)["title"])
}

func (s *WebAPITestSuite) TestWebhookSettlesOnce() {
	n := fixtures.Need(s.T(), s.h.Uow, uuid.New(), "rent", 5000, 0)
	p := fixtures.PendingPayment(s.T(), s.h.Uow, nil, n, 1000, "pi_web")

	payload, header := s.signed(`{"id":"evt_web","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27",` +
		`"data":{"object":{"id":"pi_web","object":"payment_intent","status":"succeeded","amount":1000}}}`)

	resp := testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodPost, "/api/v1/webhooks/stripe", payload, "",
		"Stripe-Signature", header)
	s.Equal(fiber.StatusOK, resp.StatusCode)
	body := s.decode(resp)
	s.Equal("settled", body["outcome"])
	s.Equal(false, body["duplicate"])

	resp = testutils.MakeRequestWithApp(s.h.Fiber, fiber.MethodPost, "/api/v1/webhooks/stripe", payload, "",
		"Stripe-Signature", header)
	s.Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal(true, s.decode(resp)["duplicate"])

	s.Equal(int64(1000), fixtures.Get(s.T(), s.h.Uow, n.ID).RaisedAmount)

	var status payment.Status
	s.Require().NoError(s.h.Uow.Do(s.T().Context(), func(uow repository.UnitOfWork) error {
		repo, err := uow.PaymentRepository()
		if err != nil {
			return err
		}
		got, err := repo.Get(s.T().Context(), p.ID)
		if err != nil {
			return err
		}
		status = got.Status
		return nil
	}))
	s.Equal(payment.StatusCompleted, status)
}

func TestWebAPITestSuite(t *testing.T) {
	suite.Run(t, new(WebAPITestSuite))
}

func TestWebhookWithoutSecret(t *testing.T) {
	h := testutils.NewHarness(t, gateway.Null{}, nil)
	resp := testutils.MakeRequestWithApp(h.Fiber, fiber.MethodPost, "/api/v1/webhooks/stripe", `{}`, "",
		"Stripe-Signature", "t=1,v1=x")
	defer resp.Body.Close() //nolint: errcheck
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestActionsRequireTokenWhenAuthEnabled(t *testing.T) {
	const secret = "test-secret"
	h := testutils.NewHarness(t, gateway.Null{}, func(cfg *config.App) {
		cfg.Auth = &config.Auth{Enabled: true, Jwt: &config.Jwt{Secret: secret}}
	})
	body := `{"action":"fetch_failed_payments","contributorId":"` + uuid.NewString() + `"}`

	resp := testutils.MakeRequestWithApp(h.Fiber, fiber.MethodPost, "/api/v1/actions", body, "")
	resp.Body.Close() //nolint: errcheck
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("missing token status = %d, want 400", resp.StatusCode)
	}

	resp = testutils.MakeRequestWithApp(h.Fiber, fiber.MethodPost, "/api/v1/actions", body,
		testutils.Token(t, secret, uuid.New()))
	resp.Body.Close() //nolint: errcheck
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("authorized status = %d, want 200", resp.StatusCode)
	}
}
