package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-outbox/webhook/signature"
)

/* Registry manages webhook subscriptions and the consecutive-failure
 * circuit breaker. Uses pointer semantics as it's an API, not data
 */

// RegistryUseCase defines the subscription management operations
type RegistryUseCase interface {
	Register(ctx context.Context, url, description string, eventTypes []string) (Webhook, error)
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context) ([]Webhook, error)
	ResolveSubscribers(ctx context.Context, eventType string) ([]Webhook, error)
	RecordOutcome(ctx context.Context, webhookID string, succeeded bool) error
	Deactivate(ctx context.Context, id string) error
	Reactivate(ctx context.Context, id string) error
}

type Registry struct {
	Repo             Repository
	FailureThreshold int
	Logger           *slog.Logger
}

// NewRegistry creates a new registry with dependency injection
func NewRegistry(repo Repository, failureThreshold int, logger *slog.Logger) *Registry {
	return &Registry{
		Repo:             repo,
		FailureThreshold: failureThreshold,
		Logger:           logger,
	}
}

/* Register validates the subscription input, generates a fresh signing
 * secret and stores the webhook active with a clean failure counter.
 * Malformed input is rejected here and never reaches the delivery
 * pipeline
 */
func (r *Registry) Register(ctx context.Context, url, description string, eventTypes []string) (Webhook, error) {
	secret, err := signature.GenerateSecret()
	if err != nil {
		return Webhook{}, fmt.Errorf("generating secret: %w", err)
	}

	now := time.Now().UTC()
	wh := Webhook{
		ID:          uuid.New().String(),
		URL:         url,
		Secret:      secret,
		Description: description,
		EventTypes:  eventTypes,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := wh.Validate(); err != nil {
		return Webhook{}, fmt.Errorf("validating webhook: %w", err)
	}

	if err := r.Repo.StoreWebhook(ctx, wh); err != nil {
		return Webhook{}, fmt.Errorf("storing webhook: %w", err)
	}

	return wh, nil
}

// Get retrieves a webhook by ID. The secret is redacted: it is only
// ever returned once, by Register.
func (r *Registry) Get(ctx context.Context, id string) (Webhook, error) {
	wh, err := r.Repo.GetWebhook(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	return wh.Redacted(), nil
}

// List returns all registered webhooks, secrets redacted
func (r *Registry) List(ctx context.Context) ([]Webhook, error) {
	whs, err := r.Repo.ListWebhooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	for i := range whs {
		whs[i] = whs[i].Redacted()
	}
	return whs, nil
}

// ResolveSubscribers returns the active webhooks subscribed to the event type
func (r *Registry) ResolveSubscribers(ctx context.Context, eventType string) ([]Webhook, error) {
	whs, err := r.Repo.ListByEventType(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("resolving subscribers: %w", err)
	}

	subscribers := make([]Webhook, 0, len(whs))
	for _, wh := range whs {
		if wh.Active && wh.Subscribed(eventType) {
			subscribers = append(subscribers, wh)
		}
	}
	return subscribers, nil
}

/* RecordOutcome updates the circuit breaker after a dispatch. Success
 * resets the counter; failure increments it atomically and deactivates
 * the webhook once the threshold is crossed. Deactivation is terminal
 * until Reactivate is called
 */
func (r *Registry) RecordOutcome(ctx context.Context, webhookID string, succeeded bool) error {
	if succeeded {
		if err := r.Repo.ResetFailures(ctx, webhookID); err != nil {
			return fmt.Errorf("resetting failures: %w", err)
		}
		return nil
	}

	failures, err := r.Repo.RecordFailure(ctx, webhookID)
	if err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}

	if failures >= r.FailureThreshold {
		if err := r.Repo.SetActive(ctx, webhookID, false); err != nil {
			return fmt.Errorf("deactivating webhook: %w", err)
		}
		if r.Logger != nil {
			r.Logger.Warn("webhook deactivated by circuit breaker",
				"webhook_id", webhookID,
				"consecutive_failures", failures,
			)
		}
	}
	return nil
}

// Deactivate disables a webhook; future events will skip it
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	if err := r.Repo.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivating webhook: %w", err)
	}
	return nil
}

/* Reactivate re-enables a webhook, clears its failure counter and puts
 * its parked non-terminal deliveries back on the due queue. Deliveries
 * skipped while the breaker was open resume from where they stopped
 */
func (r *Registry) Reactivate(ctx context.Context, id string) error {
	if err := r.Repo.ResetFailures(ctx, id); err != nil {
		return fmt.Errorf("resetting failures: %w", err)
	}
	if err := r.Repo.SetActive(ctx, id, true); err != nil {
		return fmt.Errorf("reactivating webhook: %w", err)
	}

	deliveries, err := r.Repo.ListDeliveries(ctx, id, reactivateRequeueLimit)
	if err != nil {
		return fmt.Errorf("listing deliveries: %w", err)
	}
	for _, d := range deliveries {
		if d.Status.IsFinal() || d.NextRetryAt == nil {
			continue
		}
		if err := r.Repo.Schedule(ctx, d); err != nil {
			return fmt.Errorf("rescheduling delivery %s: %w", d.ID, err)
		}
	}
	return nil
}

// reactivateRequeueLimit bounds how far back Reactivate looks for
// parked deliveries
const reactivateRequeueLimit = 1000
