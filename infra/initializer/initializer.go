package initializer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/amirasaad/microgive/infra"
	"github.com/amirasaad/microgive/infra/cache"
	infra_eventbus "github.com/amirasaad/microgive/infra/eventbus"
	"github.com/amirasaad/microgive/infra/provider/stripegateway"
	infra_repository "github.com/amirasaad/microgive/infra/repository"
	"github.com/amirasaad/microgive/pkg/app"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/eventbus"
	"github.com/amirasaad/microgive/pkg/handler/notification"
	"github.com/amirasaad/microgive/pkg/idempotency"
	"github.com/amirasaad/microgive/pkg/metrics"
)

const (
	busMemory      = "memory"
	busMemoryAsync = "memory-async"
	busKafka       = "kafka"

	storeMemory = "memory"
	storeRedis  = "redis"

	startupTimeout = 15 * time.Second
	memorySweep    = time.Minute
)

// InitializeDependencies initializes all the application dependencies
func InitializeDependencies(cfg *config.App) (
	deps *app.Deps,
	err error,
) {
	deps = &app.Deps{}
	logger := setupLogger(cfg.Log)
	deps.Logger = logger

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// Initialize database
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, err
	}
	if err = infra.Migrate(db, cfg.DB.Driver); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize unit of work
	var uowOpts []infra_repository.Option
	if cfg.Ledger != nil && cfg.Ledger.MaxApplyAttempts > 0 {
		uowOpts = append(uowOpts, infra_repository.WithApplyAttempts(cfg.Ledger.MaxApplyAttempts))
	}
	deps.Uow = infra_repository.NewUoW(db, uowOpts...)

	deps.EventBus, err = initEventBus(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}

	deps.Idempotency, err = initIdempotency(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize idempotency store: %w", err)
	}

	deps.Gateway = stripegateway.Select(ctx, cfg.Stripe, logger)
	deps.Metrics = metrics.Default()
	deps.Notifier = notification.LogNotifier{Logger: logger}

	logger.Info("✅ Dependencies initialized",
		"db_driver", cfg.DB.Driver,
		"gateway", deps.Gateway.Name(),
	)
	return
}

// Close releases the event bus and the idempotency store.
func Close(deps *app.Deps) {
	if deps == nil {
		return
	}
	for _, res := range []any{deps.EventBus, deps.Idempotency} {
		switch c := res.(type) {
		case io.Closer:
			if err := c.Close(); err != nil && deps.Logger != nil {
				deps.Logger.Warn("close failed", "error", err)
			}
		case interface{ Close() }:
			c.Close()
		}
	}
}

func initEventBus(cfg *config.App, logger *slog.Logger) (eventbus.Bus, error) {
	if cfg.EventBus == nil {
		return infra_eventbus.NewWithMemoryAsync(logger), nil
	}
	switch cfg.EventBus.Driver {
	case busMemory:
		return infra_eventbus.NewWithMemory(logger), nil
	case "", busMemoryAsync:
		return infra_eventbus.NewWithMemoryAsync(logger), nil
	case busKafka:
		if cfg.EventBus.Brokers == "" {
			return nil, fmt.Errorf("kafka event bus requires brokers")
		}
		bus, err := infra_eventbus.NewKafka(cfg.EventBus.Brokers, logger, infra_eventbus.KafkaConfig{
			GroupID:      cfg.EventBus.GroupID,
			TopicPrefix:  cfg.EventBus.TopicPrefix,
			MaxAttempts:  cfg.EventBus.MaxAttempts,
			RetryBackoff: cfg.EventBus.RetryBackoff,
		})
		if err != nil {
			logger.Warn("⚠️ Kafka unavailable, falling back to in-memory event bus", "error", err)
			return infra_eventbus.NewWithMemoryAsync(logger), nil
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus driver %q", cfg.EventBus.Driver)
	}
}

func initIdempotency(ctx context.Context, cfg *config.App, logger *slog.Logger) (idempotency.Store, error) {
	driver := storeMemory
	if cfg.Idempotency != nil && cfg.Idempotency.Store != "" {
		driver = cfg.Idempotency.Store
	}
	switch driver {
	case storeMemory:
		return cache.NewMemoryStore(memorySweep), nil
	case storeRedis:
		if cfg.Redis == nil || cfg.Redis.URL == "" {
			return nil, fmt.Errorf("redis idempotency store requires a url")
		}
		store, err := cache.NewRedisStore(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("⚠️ Redis unavailable, keeping idempotency keys in memory", "error", err)
			return cache.NewMemoryStore(memorySweep), nil
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported idempotency store %q", driver)
	}
}
