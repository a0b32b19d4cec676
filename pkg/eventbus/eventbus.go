package eventbus

import (
	"context"

	"github.com/amirasaad/microgive/pkg/domain/events"
)

// HandlerFunc handles a single emitted event.
type HandlerFunc func(ctx context.Context, e events.Event) error

// Bus publishes domain events to registered handlers.
type Bus interface {
	Emit(ctx context.Context, event events.Event) error
	Register(eventType events.EventType, handler HandlerFunc)
}
