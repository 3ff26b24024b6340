package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

/* Publisher represents the event ingestion entrypoint: it persists the
 * event, fans out one pending delivery per matching active webhook and
 * returns. Delivery outcomes never propagate back to the caller
 */

// PublisherUseCase defines the ingestion operations
type PublisherUseCase interface {
	Publish(ctx context.Context, eventType string, payload json.RawMessage) (Event, []Delivery, error)
	Delivery(ctx context.Context, id string) (Delivery, error)
	Deliveries(ctx context.Context, webhookID string, limit int) ([]Delivery, error)
}

type Publisher struct {
	Repo     Repository
	Registry RegistryUseCase
	Logger   *slog.Logger
}

// NewPublisher creates a new publisher service with dependency injection
func NewPublisher(repo Repository, registry RegistryUseCase, logger *slog.Logger) *Publisher {
	return &Publisher{
		Repo:     repo,
		Registry: registry,
		Logger:   logger,
	}
}

// Publish accepts an event and enqueues deliveries for its subscribers
func (p *Publisher) Publish(ctx context.Context, eventType string, payload json.RawMessage) (Event, []Delivery, error) {
	now := time.Now().UTC()
	ev := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: now,
	}
	if err := ev.Validate(); err != nil {
		return Event{}, nil, fmt.Errorf("validating event: %w", err)
	}

	if err := p.Repo.StoreEvent(ctx, ev); err != nil {
		return Event{}, nil, fmt.Errorf("storing event: %w", err)
	}

	subscribers, err := p.Registry.ResolveSubscribers(ctx, eventType)
	if err != nil {
		return Event{}, nil, fmt.Errorf("resolving subscribers: %w", err)
	}

	deliveries := make([]Delivery, 0, len(subscribers))
	for _, wh := range subscribers {
		d := NewDelivery(uuid.New().String(), wh, ev, now)

		if err := p.Repo.StoreDelivery(ctx, d); err != nil {
			return Event{}, nil, fmt.Errorf("storing delivery: %w", err)
		}
		if err := p.Repo.Schedule(ctx, d); err != nil {
			return Event{}, nil, fmt.Errorf("scheduling delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	if p.Logger != nil {
		p.Logger.Info("event published",
			"event_id", ev.ID,
			"event_type", ev.Type,
			"deliveries", len(deliveries),
		)
	}
	return ev, deliveries, nil
}

// Delivery returns a delivery with its attempt history
func (p *Publisher) Delivery(ctx context.Context, id string) (Delivery, error) {
	d, err := p.Repo.GetDelivery(ctx, id)
	if err != nil {
		return Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	return d, nil
}

// Deliveries returns the most recent deliveries for a webhook
func (p *Publisher) Deliveries(ctx context.Context, webhookID string, limit int) ([]Delivery, error) {
	ds, err := p.Repo.ListDeliveries(ctx, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return ds, nil
}
