package fixtures

import (
	"time"

	"github.com/amirasaad/microgive/pkg/config"
	"github.com/shopspring/decimal"
)

// Config returns an App config with the same values as the env defaults,
// using sqlite and the in-memory bus and idempotency store.
func Config() *config.App {
	return &config.App{
		Env:      "test",
		Server:   &config.Server{Scheme: "http", Host: "localhost", Port: 3000},
		Log:      &config.Log{Format: "text", TimeFormat: time.DateTime, Prefix: "[microgive]"},
		DB:       &config.DB{Driver: "sqlite", Url: "file::memory:?cache=shared"},
		Auth:     &config.Auth{Jwt: &config.Jwt{Expiry: 24 * time.Hour}},
		Redis:    &config.Redis{KeyPrefix: "microgive:"},
		EventBus: &config.EventBus{Driver: "memory", TopicPrefix: "microgive.events"},
		RateLimit: &config.RateLimit{
			MaxRequests: 1000,
			Window:      time.Minute,
		},
		Stripe: &config.Stripe{Currency: "usd", Timeout: 10 * time.Second},
		Fee: &config.Fee{
			PlatformRate:    decimal.Zero,
			MaxContribution: decimal.NewFromInt(10000),
		},
		Ledger:      &config.Ledger{GoalCap: decimal.NewFromInt(50000), MaxApplyAttempts: 5},
		Retry:       &config.Retry{MaxAttempts: 3},
		Idempotency: &config.Idempotency{Store: "memory", Window: 10 * time.Minute, TTL: 24 * time.Hour},
		Payout:      &config.Payout{RecentLimit: 10},
	}
}
