package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/forkline/api/internal/services"
)

// PubSubEventPublisher publishes order lifecycle events to a Pub/Sub topic.
// Kitchen displays and notification workers subscribe downstream.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Publish enqueues an event message on the configured topic. The event type
// and routing identifiers ride as attributes so subscribers can filter
// without decoding the payload.
func (p *PubSubEventPublisher) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	kind := strings.TrimSpace(eventType)
	if kind == "" {
		return errors.New("pubsub event publisher: event type is required")
	}

	data, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := map[string]string{"eventType": kind}
	setAttr(attrs, "orderId", stringField(payload, "orderId"))
	setAttr(attrs, "tenantId", stringField(payload, "tenantId"))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.EventPublisher = (*PubSubEventPublisher)(nil)
