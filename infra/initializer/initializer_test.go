package initializer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/amirasaad/microgive/infra/cache"
	infra_eventbus "github.com/amirasaad/microgive/infra/eventbus"
	"github.com/amirasaad/microgive/internal/fixtures"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitEventBus(t *testing.T) {
	tests := []struct {
		name     string
		bus      *config.EventBus
		wantType any
		wantErr  bool
	}{
		{name: "nil config", bus: nil, wantType: &infra_eventbus.MemoryAsyncEventBus{}},
		{name: "default driver", bus: &config.EventBus{Driver: ""}, wantType: &infra_eventbus.MemoryAsyncEventBus{}},
		{name: "sync memory", bus: &config.EventBus{Driver: "memory"}, wantType: &infra_eventbus.MemoryEventBus{}},
		{name: "kafka without brokers", bus: &config.EventBus{Driver: "kafka"}, wantErr: true},
		{
			name:     "kafka unreachable falls back",
			bus:      &config.EventBus{Driver: "kafka", Brokers: "127.0.0.1:1"},
			wantType: &infra_eventbus.MemoryAsyncEventBus{},
		},
		{name: "unsupported", bus: &config.EventBus{Driver: "nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, err := initEventBus(&config.App{EventBus: tt.bus}, discard())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.IsType(t, tt.wantType, bus)
		})
	}
}

func TestInitIdempotency(t *testing.T) {
	ctx := context.Background()

	store, err := initIdempotency(ctx, &config.App{}, discard())
	require.NoError(t, err)
	require.IsType(t, &cache.MemoryStore{}, store)
	store.(*cache.MemoryStore).Close()

	_, err = initIdempotency(ctx, &config.App{
		Idempotency: &config.Idempotency{Store: "redis"},
		Redis:       &config.Redis{},
	}, discard())
	require.Error(t, err)

	store, err = initIdempotency(ctx, &config.App{
		Idempotency: &config.Idempotency{Store: "redis"},
		Redis:       &config.Redis{URL: "redis://127.0.0.1:1/0"},
	}, discard())
	require.NoError(t, err)
	require.IsType(t, &cache.MemoryStore{}, store, "unreachable redis falls back to memory")
	store.(*cache.MemoryStore).Close()

	_, err = initIdempotency(ctx, &config.App{Idempotency: &config.Idempotency{Store: "etcd"}}, discard())
	require.Error(t, err)
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "logfmt", "unknown"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, &config.Log{Format: format, TimeFormat: "15:04:05"})
			logger.Info("💸 settled", "payment_id", "p-1")
			assert.Contains(t, buf.String(), "p-1")
		})
	}
}

func TestInitializeDependencies_SQLite(t *testing.T) {
	cfg := fixtures.Config()
	cfg.DB = &config.DB{Driver: "sqlite", Url: filepath.Join(t.TempDir(), "microgive.db")}
	cfg.Stripe = &config.Stripe{}
	cfg.Log = &config.Log{Format: "text"}

	deps, err := InitializeDependencies(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { Close(deps) })

	assert.NotNil(t, deps.Uow)
	assert.NotNil(t, deps.EventBus)
	assert.NotNil(t, deps.Idempotency)
	assert.NotNil(t, deps.Metrics)
	assert.Equal(t, gateway.Null{}.Name(), deps.Gateway.Name())
}

func TestInitializeDependencies_MissingDatabase(t *testing.T) {
	cfg := fixtures.Config()
	cfg.DB = &config.DB{Driver: "sqlite"}
	_, err := InitializeDependencies(cfg)
	require.Error(t, err)
}
