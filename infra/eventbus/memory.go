package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/amirasaad/microgive/pkg/domain/events"
	"github.com/amirasaad/microgive/pkg/eventbus"
)

// MemoryEventBus dispatches synchronously in the emitting goroutine.
// Handler errors are logged, never returned: emitting happens after commit.
type MemoryEventBus struct {
	handlers  map[events.EventType][]eventbus.HandlerFunc
	mu        sync.RWMutex
	logger    *slog.Logger
	published []events.Event
}

// NewWithMemory creates a new in-memory event bus.
func NewWithMemory(logger *slog.Logger) *MemoryEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryEventBus{
		handlers:  make(map[events.EventType][]eventbus.HandlerFunc),
		logger:    logger.With("bus", "memory"),
		published: make([]events.Event, 0),
	}
}

// Register registers a handler for a specific event type.
func (b *MemoryEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit dispatches the event to all registered handlers for its type.
func (b *MemoryEventBus) Emit(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[events.EventType(event.Type())]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Error("event handler failed", "type", event.Type(), "error", err)
		}
	}
	return nil
}

// ClearPublished clears the list of published events.
func (b *MemoryEventBus) ClearPublished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = make([]events.Event, 0)
}

// Published returns a copy of everything emitted so far.
func (b *MemoryEventBus) Published() []events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]events.Event(nil), b.published...)
}

var _ eventbus.Bus = (*MemoryEventBus)(nil)

type queued struct {
	ctx   context.Context
	event events.Event
}

// MemoryAsyncEventBus hands events to a background worker so Emit never
// blocks a request on slow handlers.
type MemoryAsyncEventBus struct {
	handlers map[events.EventType][]eventbus.HandlerFunc
	mu       sync.RWMutex
	eventCh  chan queued
	wg       sync.WaitGroup
	stateMu  sync.Mutex
	closed   bool
	log      *slog.Logger
}

// NewWithMemoryAsync creates the asynchronous in-memory bus.
func NewWithMemoryAsync(logger *slog.Logger) *MemoryAsyncEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &MemoryAsyncEventBus{
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		eventCh:  make(chan queued, 100),
		log:      logger.With("bus", "memory-async"),
	}
	go b.process()
	return b
}

func (b *MemoryAsyncEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

func (b *MemoryAsyncEventBus) Emit(ctx context.Context, event events.Event) error {
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return nil
	}
	b.wg.Add(1)
	b.stateMu.Unlock()
	// Handlers outlive the request that emitted.
	b.eventCh <- queued{ctx: context.WithoutCancel(ctx), event: event}
	return nil
}

// Close drains queued events and stops the worker.
func (b *MemoryAsyncEventBus) Close() error {
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return nil
	}
	b.closed = true
	b.stateMu.Unlock()
	b.wg.Wait()
	close(b.eventCh)
	return nil
}

func (b *MemoryAsyncEventBus) process() {
	for w := range b.eventCh {
		b.dispatch(w)
	}
}

func (b *MemoryAsyncEventBus) dispatch(w queued) {
	defer b.wg.Done()
	b.mu.RLock()
	handlers := append([]eventbus.HandlerFunc{}, b.handlers[events.EventType(w.event.Type())]...)
	b.mu.RUnlock()
	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("panic recovered in event handler", "type", w.event.Type(), "panic", r)
				}
			}()
			if err := handler(w.ctx, w.event); err != nil {
				b.log.Error("failed to process event", "type", w.event.Type(), "error", err)
			}
		}()
	}
}

var _ eventbus.Bus = (*MemoryAsyncEventBus)(nil)
