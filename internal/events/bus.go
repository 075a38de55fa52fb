package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is an in-process domain event. AggregateID is the checkout session
// identifier the event belongs to.
type Event struct {
	ID          string
	Topic       string
	AggregateID string
	Payload     json.RawMessage
	OccurredAt  time.Time
}

// Notifier reacts to emitted events (logging, metrics, etc.).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus fans domain events out to its notifiers. Notifier errors never fail the
// operation that emitted the event.
type Bus struct {
	Notifiers []Notifier
	Logger    zerolog.Logger
}

// Emit dispatches the event to all configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev := Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
		OccurredAt:  time.Now().UTC(),
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			b.Logger.Warn().Str("topic", topic).Err(notifyErr).Msg("event_notifier_failed")
		}
	}
	return ev, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append(json.RawMessage(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		return json.Marshal(payload)
	}
}

// LogNotifier writes each event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Msg("domain_event")
	return nil
}
