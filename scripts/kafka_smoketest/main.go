package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	infra_eventbus "github.com/amirasaad/microgive/infra/eventbus"
	"github.com/amirasaad/microgive/pkg/domain/events"
	"github.com/google/uuid"
)

// RunSmokeTest emits a settlement event through the Kafka event bus and
// waits for the registered handler to see it come back off the topic.
func RunSmokeTest() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	brokers := strings.TrimSpace(os.Getenv("BROKERS"))
	if brokers == "" {
		brokers = "localhost:9093,localhost:9092"
	}
	cfg := infra_eventbus.KafkaConfig{
		GroupID:     strings.TrimSpace(os.Getenv("GROUP_ID")),
		TopicPrefix: "microgive.smoketest",
	}

	bus, err := infra_eventbus.NewKafka(brokers, logger, cfg)
	if err != nil {
		logger.Error("kafka bus init failed", "error", err)
		return err
	}
	defer func() { _ = bus.Close() }()

	want := uuid.New()
	seen := make(chan uuid.UUID, 1)
	bus.Register(events.EventTypeDirectModeUsed, func(_ context.Context, e events.Event) error {
		var id uuid.UUID
		switch ev := e.(type) {
		case *events.DirectModeUsed:
			id = ev.PaymentID
		case events.DirectModeUsed:
			id = ev.PaymentID
		}
		if id == want {
			seen <- id
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bus.Emit(ctx, events.DirectModeUsed{PaymentID: want, Amount: 2500, OccurredAt: time.Now().UTC()}); err != nil {
		logger.Error("emit failed", "error", err)
		return err
	}
	logger.Info("produced", "payment_id", want)

	select {
	case id := <-seen:
		logger.Info("consumed", "payment_id", id)
	case <-ctx.Done():
		return fmt.Errorf("event not consumed: %w", ctx.Err())
	}

	logger.Info("kafka smoke test passed")
	return nil
}

// main runs the smoke test and exits non-zero on failure.
func main() {
	if err := RunSmokeTest(); err != nil {
		os.Exit(1)
	}
}
