package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/MiniLink/internal/app/model"
)

// EventPublisher emits link lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event model.LinkEvent) error
}

// NopPublisher drops every event. It is used when NATS is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.LinkEvent) error { return nil }

// LinkPublisher publishes link events to NATS JetStream.
type LinkPublisher struct {
	js nats.JetStreamContext
}

// NewLinkPublisher creates a new link event publisher.
func NewLinkPublisher(js nats.JetStreamContext) *LinkPublisher {
	return &LinkPublisher{js: js}
}

// EnsureStream creates the LINKS stream when it does not exist yet.
func (p *LinkPublisher) EnsureStream() error {
	_, err := p.js.StreamInfo(model.LinkStreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", model.LinkStreamName, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:      model.LinkStreamName,
		Subjects:  []string{model.LinkStreamSubjects},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxBytes:  model.LinkStreamMaxBytes,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", model.LinkStreamName, err)
	}
	return nil
}

// Publish sends the event asynchronously; acks are not awaited.
func (p *LinkPublisher) Publish(ctx context.Context, event model.LinkEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.PublishAsync(event.Subject(), data)
	return err
}

// Flush waits until outstanding async publishes are acknowledged or ctx ends.
func (p *LinkPublisher) Flush(ctx context.Context) error {
	select {
	case <-p.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
