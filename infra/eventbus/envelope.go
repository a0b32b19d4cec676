package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/amirasaad/microgive/pkg/domain/events"
)

// envelope is the wire format shared by every non-memory bus.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func encodeEnvelope(event events.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("event bus: marshal failed: %w", err)
	}
	out, err := json.Marshal(envelope{Type: event.Type(), Payload: data})
	if err != nil {
		return nil, fmt.Errorf("event bus: envelope marshal failed: %w", err)
	}
	return out, nil
}

// decodeEnvelope resolves the concrete event through events.EventTypes.
func decodeEnvelope(raw []byte) (events.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("event bus: bad envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event bus: missing event type")
	}
	constructor, ok := events.EventTypes[events.EventType(env.Type)]
	if !ok {
		return nil, fmt.Errorf("event bus: unknown event type %q", env.Type)
	}
	evt := constructor()
	if err := json.Unmarshal(env.Payload, evt); err != nil {
		return nil, fmt.Errorf("event bus: bad %s payload: %w", env.Type, err)
	}
	return evt, nil
}
