package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/microgive/pkg/domain/events"
	"github.com/amirasaad/microgive/pkg/eventbus"
	"github.com/segmentio/kafka-go"
)

const defaultTopicPrefix = "microgive.events"

// KafkaConfig tunes the Kafka bus. Zero values take defaults.
type KafkaConfig struct {
	GroupID      string
	TopicPrefix  string
	MaxAttempts  int
	RetryBackoff time.Duration
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.GroupID == "" {
		c.GroupID = "microgive"
	}
	if strings.TrimSpace(c.TopicPrefix) == "" {
		c.TopicPrefix = defaultTopicPrefix
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBus carries settlement events over one topic per event type.
// Subscribers are post-commit side effects, so a message whose handlers
// keep failing is logged and committed after MaxAttempts deliveries.
type KafkaBus struct {
	brokers []string
	writer  messageWriter
	dialer  *kafka.Dialer
	cfg     KafkaConfig
	logger  *slog.Logger

	mu        sync.RWMutex
	handlers  map[events.EventType][]eventbus.HandlerFunc
	consumers map[events.EventType]*kafka.Reader

	topics      sync.Map
	createTopic func(ctx context.Context, topic string) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafka dials the first broker and returns a ready bus. brokers is a
// comma separated list.
func NewKafka(brokers string, logger *slog.Logger, cfg KafkaConfig) (*KafkaBus, error) {
	addrs := parseBrokers(brokers)
	if len(addrs) == 0 {
		return nil, errors.New("kafka bus: no brokers")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
	}
	b := newKafkaBus(addrs, writer, dialer, logger, cfg)

	conn, err := dialer.DialContext(b.ctx, "tcp", addrs[0])
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("kafka bus: dial %s: %w", addrs[0], err)
	}
	_ = conn.Close()

	logger.Info("🚀 Kafka event bus ready", "brokers", addrs, "group_id", b.cfg.GroupID, "topic_prefix", b.cfg.TopicPrefix)
	return b, nil
}

func newKafkaBus(
	brokers []string,
	writer messageWriter,
	dialer *kafka.Dialer,
	logger *slog.Logger,
	cfg KafkaConfig,
) *KafkaBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &KafkaBus{
		brokers:   brokers,
		writer:    writer,
		dialer:    dialer,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("bus", "kafka"),
		handlers:  make(map[events.EventType][]eventbus.HandlerFunc),
		consumers: make(map[events.EventType]*kafka.Reader),
		ctx:       ctx,
		cancel:    cancel,
	}
	b.createTopic = b.createTopicOnBroker
	return b
}

// Register subscribes handler and starts the topic's consumer on first use.
func (b *KafkaBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	if _, ok := b.consumers[eventType]; ok {
		return
	}

	topic := b.topic(eventType)
	if err := b.ensureTopic(b.ctx, topic); err != nil {
		b.logger.Error("❌ topic unavailable, handler not consuming", "topic", topic, "error", err)
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     b.cfg.GroupID,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     time.Second,
		Dialer:      b.dialer,
	})
	b.consumers[eventType] = reader
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(reader)
	}()
}

// Emit writes the event envelope to its type's topic, keyed by type.
func (b *KafkaBus) Emit(ctx context.Context, event events.Event) error {
	const op = "kafka.Emit"
	raw, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	topic := b.topic(events.EventType(event.Type()))
	if err := b.ensureTopic(ctx, topic); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.Type()),
		Value: raw,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%s: publish failed: %w", op, err)
	}
	return nil
}

// Close stops the consumers and flushes the writer.
func (b *KafkaBus) Close() error {
	b.cancel()
	b.mu.Lock()
	for _, r := range b.consumers {
		_ = r.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return b.writer.Close()
}

func (b *KafkaBus) consume(reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Error("fetch failed", "topic", reader.Config().Topic, "error", err)
			if !b.sleep(b.cfg.RetryBackoff) {
				return
			}
			continue
		}
		b.deliver(b.ctx, msg)
		if err := reader.CommitMessages(b.ctx, msg); err != nil && b.ctx.Err() == nil {
			b.logger.Error("commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// deliver runs the handlers for one message, redelivering on failure up
// to MaxAttempts. It returns the number of attempts made; zero means the
// message was not deliverable at all.
func (b *KafkaBus) deliver(ctx context.Context, msg kafka.Message) int {
	evt, err := decodeEnvelope(msg.Value)
	if err != nil {
		b.logger.Error("🗑️ undecodable message dropped", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return 0
	}
	eventType := events.EventType(evt.Type())
	b.mu.RLock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
	b.mu.RUnlock()
	if len(handlers) == 0 {
		return 0
	}

	for attempt := 1; ; attempt++ {
		err := runHandlers(ctx, evt, handlers)
		if err == nil {
			return attempt
		}
		log := b.logger.With("event_type", eventType, "offset", msg.Offset, "attempt", attempt)
		if attempt >= b.cfg.MaxAttempts {
			log.Error("🚫 event dropped after retries", "error", err)
			return attempt
		}
		log.Warn("handler failed, redelivering", "error", err)
		if !b.sleep(b.cfg.RetryBackoff * time.Duration(attempt)) {
			return attempt
		}
	}
}

// runHandlers calls every handler concurrently and joins their errors.
func runHandlers(ctx context.Context, evt events.Event, handlers []eventbus.HandlerFunc) error {
	errs := make([]error, len(handlers))
	var wg sync.WaitGroup
	for i, h := range handlers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h(ctx, evt)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (b *KafkaBus) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-b.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (b *KafkaBus) topic(eventType events.EventType) string {
	return topicFor(b.cfg.TopicPrefix, eventType)
}

func (b *KafkaBus) ensureTopic(ctx context.Context, topic string) error {
	if _, ok := b.topics.Load(topic); ok {
		return nil
	}
	if err := b.createTopic(ctx, topic); err != nil {
		return err
	}
	b.topics.Store(topic, struct{}{})
	return nil
}

func (b *KafkaBus) createTopicOnBroker(ctx context.Context, topic string) error {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka bus: dial: %w", err)
	}
	defer func() { _ = conn.Close() }()
	err = conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("kafka bus: create topic %s: %w", topic, err)
	}
	return nil
}

func parseBrokers(brokers string) []string {
	var out []string
	for _, p := range strings.Split(brokers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// topicFor maps Need.GoalMet to <prefix>.need.goalmet.
func topicFor(prefix string, eventType events.EventType) string {
	return prefix + "." + strings.ToLower(eventType.String())
}

var _ eventbus.Bus = (*KafkaBus)(nil)
