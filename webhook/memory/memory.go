/* Package memory is an in-process implementation of webhook.Repository.
 * It backs the unit tests and local development; production runs on the
 * Redis repository.
 */
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
)

type Repository struct {
	mu         sync.Mutex
	webhooks   map[string]webhook.Webhook
	events     map[string]webhook.Event
	deliveries map[string]webhook.Delivery
	attempts   map[string][]webhook.Attempt
	queue      map[string]time.Time // delivery ID -> due time
	claims     map[string]time.Time // delivery ID -> lease expiry
}

// NewRepository creates an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{
		webhooks:   make(map[string]webhook.Webhook),
		events:     make(map[string]webhook.Event),
		deliveries: make(map[string]webhook.Delivery),
		attempts:   make(map[string][]webhook.Attempt),
		queue:      make(map[string]time.Time),
		claims:     make(map[string]time.Time),
	}
}

func (r *Repository) GetWebhook(ctx context.Context, id string) (webhook.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok {
		return webhook.Webhook{}, webhook.ErrNotFound
	}
	return wh, nil
}

func (r *Repository) ListWebhooks(ctx context.Context) ([]webhook.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	whs := make([]webhook.Webhook, 0, len(r.webhooks))
	for _, wh := range r.webhooks {
		whs = append(whs, wh)
	}
	sort.Slice(whs, func(i, j int) bool { return whs[i].CreatedAt.Before(whs[j].CreatedAt) })
	return whs, nil
}

func (r *Repository) ListByEventType(ctx context.Context, eventType string) ([]webhook.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var whs []webhook.Webhook
	for _, wh := range r.webhooks {
		if wh.Subscribed(eventType) {
			whs = append(whs, wh)
		}
	}
	sort.Slice(whs, func(i, j int) bool { return whs[i].CreatedAt.Before(whs[j].CreatedAt) })
	return whs, nil
}

func (r *Repository) StoreWebhook(ctx context.Context, wh webhook.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[wh.ID] = wh
	return nil
}

func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok {
		return webhook.ErrNotFound
	}
	wh.Active = active
	wh.UpdatedAt = time.Now().UTC()
	r.webhooks[id] = wh
	return nil
}

func (r *Repository) RecordFailure(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok {
		return 0, webhook.ErrNotFound
	}
	wh.ConsecutiveFailures++
	wh.UpdatedAt = time.Now().UTC()
	r.webhooks[id] = wh
	return wh.ConsecutiveFailures, nil
}

func (r *Repository) ResetFailures(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok {
		return webhook.ErrNotFound
	}
	wh.ConsecutiveFailures = 0
	wh.UpdatedAt = time.Now().UTC()
	r.webhooks[id] = wh
	return nil
}

func (r *Repository) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return webhook.Delivery{}, webhook.ErrNotFound
	}
	return d, nil
}

func (r *Repository) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ds []webhook.Delivery
	for _, d := range r.deliveries {
		if d.WebhookID == webhookID {
			ds = append(ds, d)
		}
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].CreatedAt.After(ds[j].CreatedAt) })
	if limit > 0 && len(ds) > limit {
		ds = ds[:limit]
	}
	return ds, nil
}

func (r *Repository) StoreDelivery(ctx context.Context, d webhook.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[d.ID] = d
	return nil
}

func (r *Repository) StoreEvent(ctx context.Context, ev webhook.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[ev.ID] = ev
	return nil
}

func (r *Repository) AppendAttempt(ctx context.Context, deliveryID string, attempt webhook.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[deliveryID] = append(r.attempts[deliveryID], attempt)
	return nil
}

func (r *Repository) Due(ctx context.Context, now time.Time, limit int) ([]webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []webhook.Delivery
	for id, at := range r.queue {
		if at.After(now) {
			continue
		}
		if d, ok := r.deliveries[id]; ok {
			due = append(due, d)
		}
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due, nil
}

func (r *Repository) Claim(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if expiry, held := r.claims[deliveryID]; held && expiry.After(now) {
		return false, nil
	}
	r.claims[deliveryID] = now.Add(ttl)
	return true, nil
}

func (r *Repository) Release(ctx context.Context, deliveryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, deliveryID)
	return nil
}

func (r *Repository) Schedule(ctx context.Context, d webhook.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Status.IsFinal() || d.NextRetryAt == nil {
		delete(r.queue, d.ID)
		return nil
	}
	r.queue[d.ID] = *d.NextRetryAt
	return nil
}

func (r *Repository) Close(ctx context.Context) error {
	return nil
}
