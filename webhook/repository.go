package webhook

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a webhook or delivery does not exist
var ErrNotFound = errors.New("not found")

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// RegistryReader provides read operations for webhook subscriptions
type RegistryReader interface {
	/* Context is always the first parameter in functions that do I/O
	 * This allows for cancellation, timeouts, and shared values
	 */
	GetWebhook(ctx context.Context, id string) (Webhook, error)
	ListWebhooks(ctx context.Context) ([]Webhook, error)
	// ListByEventType returns webhooks whose subscriptions cover the event type,
	// active or not; activity filtering is the registry's concern
	ListByEventType(ctx context.Context, eventType string) ([]Webhook, error)
}

// RegistryWriter provides write operations for webhook subscriptions
type RegistryWriter interface {
	StoreWebhook(ctx context.Context, wh Webhook) error
	SetActive(ctx context.Context, id string, active bool) error
	/* RecordFailure atomically increments the consecutive-failure counter
	 * and returns the new value; concurrent dispatch completions for the
	 * same webhook must not lose updates
	 */
	RecordFailure(ctx context.Context, id string) (int, error)
	ResetFailures(ctx context.Context, id string) error
}

// DeliveryReader provides read operations for deliveries
type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	ListDeliveries(ctx context.Context, webhookID string, limit int) ([]Delivery, error)
}

// DeliveryWriter provides write operations for deliveries
type DeliveryWriter interface {
	StoreDelivery(ctx context.Context, d Delivery) error
	StoreEvent(ctx context.Context, ev Event) error
	/* AppendAttempt writes a delivery's attempt record to the audit
	 * history. Best-effort: callers log failures and carry on, a broken
	 * history write never fails the delivery transition
	 */
	AppendAttempt(ctx context.Context, deliveryID string, attempt Attempt) error
}

// Queue provides the due-delivery scheduling operations for workers
type Queue interface {
	/* Due returns up to limit deliveries whose next attempt time has
	 * passed. Returned deliveries are not yet claimed
	 */
	Due(ctx context.Context, now time.Time, limit int) ([]Delivery, error)
	/* Claim takes an exclusive lease on a delivery so no two workers
	 * process it concurrently. Returns false when another worker holds it
	 */
	Claim(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, deliveryID string) error
	// Schedule (re)enqueues a delivery at its NextRetryAt, or removes it
	// from the queue when the delivery is terminal
	Schedule(ctx context.Context, d Delivery) error
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	RegistryReader
	RegistryWriter
	DeliveryReader
	DeliveryWriter
	Queue
	Close(ctx context.Context) error
}
