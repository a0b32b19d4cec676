package common

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirasaad/microgive/pkg/config"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RateLimitTestSuite struct {
	suite.Suite
	app *fiber.App
}

func (s *RateLimitTestSuite) SetupTest() {
	s.app = fiber.New()
	s.app.Use(RateLimiter(&config.RateLimit{MaxRequests: 5, Window: time.Second}))
	s.app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
}

func (s *RateLimitTestSuite) get(forwardedFor string) int {
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	resp, err := s.app.Test(req)
	s.Require().NoError(err)
	defer resp.Body.Close() //nolint: errcheck
	if resp.StatusCode == fiber.StatusTooManyRequests {
		var pd ProblemDetails
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&pd))
		s.Equal("Too Many Requests", pd.Title)
		s.Equal(MIMEProblemJSON, resp.Header.Get(fiber.HeaderContentType))
	}
	return resp.StatusCode
}

func (s *RateLimitTestSuite) TestRateLimit() {
	for i := range [6]int{} {
		status := s.get("10.0.0.1")
		if i < 5 {
			s.Equal(fiber.StatusOK, status, "request %d", i+1)
		} else {
			s.Equal(fiber.StatusTooManyRequests, status, "request %d", i+1)
		}
	}

	// A different forwarded client has its own budget.
	s.Equal(fiber.StatusOK, s.get("10.0.0.2, 172.16.0.1"))

	time.Sleep(1100 * time.Millisecond)
	s.Equal(fiber.StatusOK, s.get("10.0.0.1"), "window reset")
}

func TestRateLimitTestSuite(t *testing.T) {
	suite.Run(t, new(RateLimitTestSuite))
}

func TestClientIP(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(ClientIP(c)) })

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8"}, want: "1.2.3.4"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "9.9.9.9"}, want: "9.9.9.9"},
		{name: "direct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close() //nolint: errcheck
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			if tt.want == "" {
				assert.NotEmpty(t, string(body))
				return
			}
			assert.Equal(t, tt.want, string(body))
		})
	}
}
