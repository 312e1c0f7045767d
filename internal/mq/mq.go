// Package mq publishes user-change events to a message broker. The HTTP
// service is the only producer; notification and email workers consume the
// events elsewhere, so only the publishing side lives here.
package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SunSc05/siyuantao-backend-sub001/types"
)

// Backend defines the broker-agnostic operations used by the publisher.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Publisher sends user events to a fixed channel on a backend.
type Publisher struct {
	backend Backend
	channel string
}

// NewPublisher constructs a Publisher for the provided backend and channel.
func NewPublisher(backend Backend, channel string) *Publisher {
	return &Publisher{backend: backend, channel: channel}
}

// PublishUserEvent marshals the event and sends it. The event kind is also
// carried as a message attribute so consumers can filter without decoding.
func (p *Publisher) PublishUserEvent(ctx context.Context, event types.UserEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal user event: %w", err)
	}
	attrs := map[string]string{"kind": event.Kind}
	if _, err := p.backend.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish user event: %w", err)
	}
	return nil
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	return p.backend.Close()
}
