package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Repository
 * Hashes hold webhook and delivery state, a sorted set scored by
 * next-retry time is the due queue, and SET NX lease keys arbitrate
 * claims between workers
 */

const (
	webhookPrefix  = "webhook"            // webhook:{id}
	webhookIndex   = "webhooks:index"     // set of all webhook IDs
	eventIndex     = "webhooks:by_event"  // webhooks:by_event:{type} -> set of webhook IDs
	wildcardIndex  = "webhooks:wildcards" // set of webhook IDs with wildcard subscriptions
	eventPrefix    = "event"              // event:{id}
	deliveryPrefix = "delivery"           // delivery:{id}, delivery:{id}:attempts, delivery:{id}:claim
	dueKey         = "deliveries:due"       // ZSET scored by next_retry_at (unix millis)
	completedKey   = "deliveries:completed" // ZSET of successful deliveries scored by completion time

	// terminal deliveries are kept for inspection, then expire
	succeededTTL = 24 * time.Hour
	exhaustedTTL = 7 * 24 * time.Hour

	// recent-deliveries list per webhook is capped
	recentDeliveries = 1000
)

type Repository struct {
	client *redis.Client
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Repository{
		client: client,
	}, nil
}

// StoreWebhook writes the webhook hash and maintains the event-type indexes
func (r *Repository) StoreWebhook(ctx context.Context, wh webhook.Webhook) error {
	eventTypes, err := json.Marshal(wh.EventTypes)
	if err != nil {
		return fmt.Errorf("marshaling event types: %w", err)
	}

	hashKey := fmt.Sprintf("%s:%s", webhookPrefix, wh.ID)
	err = r.client.HSet(ctx, hashKey, map[string]interface{}{
		"id":                   wh.ID,
		"url":                  wh.URL,
		"secret":               wh.Secret,
		"description":          wh.Description,
		"event_types":          string(eventTypes),
		"active":               boolField(wh.Active),
		"consecutive_failures": wh.ConsecutiveFailures,
		"created_at":           wh.CreatedAt.Unix(),
		"updated_at":           wh.UpdatedAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing webhook: %w", err)
	}

	if err := r.client.SAdd(ctx, webhookIndex, wh.ID).Err(); err != nil {
		return fmt.Errorf("indexing webhook: %w", err)
	}
	for _, et := range wh.EventTypes {
		if len(et) > 2 && et[len(et)-2:] == ".*" {
			if err := r.client.SAdd(ctx, wildcardIndex, wh.ID).Err(); err != nil {
				return fmt.Errorf("indexing wildcard subscription: %w", err)
			}
			continue
		}
		key := fmt.Sprintf("%s:%s", eventIndex, et)
		if err := r.client.SAdd(ctx, key, wh.ID).Err(); err != nil {
			return fmt.Errorf("indexing event type: %w", err)
		}
	}

	return nil
}

// GetWebhook retrieves a webhook by ID
func (r *Repository) GetWebhook(ctx context.Context, id string) (webhook.Webhook, error) {
	hashKey := fmt.Sprintf("%s:%s", webhookPrefix, id)

	data, err := r.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	if len(data) == 0 {
		return webhook.Webhook{}, webhook.ErrNotFound
	}

	return parseWebhook(data)
}

// ListWebhooks returns all registered webhooks
func (r *Repository) ListWebhooks(ctx context.Context) ([]webhook.Webhook, error) {
	ids, err := r.client.SMembers(ctx, webhookIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("listing webhook index: %w", err)
	}

	whs := make([]webhook.Webhook, 0, len(ids))
	for _, id := range ids {
		wh, err := r.GetWebhook(ctx, id)
		if err == webhook.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		whs = append(whs, wh)
	}
	return whs, nil
}

// ListByEventType returns webhooks that may be subscribed to the event
// type: exact matches from the index plus every wildcard subscriber
func (r *Repository) ListByEventType(ctx context.Context, eventType string) ([]webhook.Webhook, error) {
	key := fmt.Sprintf("%s:%s", eventIndex, eventType)
	ids, err := r.client.SUnion(ctx, key, wildcardIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("reading event index: %w", err)
	}

	whs := make([]webhook.Webhook, 0, len(ids))
	for _, id := range ids {
		wh, err := r.GetWebhook(ctx, id)
		if err == webhook.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		whs = append(whs, wh)
	}
	return whs, nil
}

// SetActive flips the active flag
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	hashKey := fmt.Sprintf("%s:%s", webhookPrefix, id)

	exists, err := r.client.Exists(ctx, hashKey).Result()
	if err != nil {
		return fmt.Errorf("checking webhook: %w", err)
	}
	if exists == 0 {
		return webhook.ErrNotFound
	}

	err = r.client.HSet(ctx, hashKey, map[string]interface{}{
		"active":     boolField(active),
		"updated_at": time.Now().Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("setting active flag: %w", err)
	}
	return nil
}

/* RecordFailure bumps the consecutive-failure counter with HIncrBy.
 * The increment is a single atomic step on the server, so concurrent
 * dispatch completions for the same webhook cannot lose updates
 */
func (r *Repository) RecordFailure(ctx context.Context, id string) (int, error) {
	hashKey := fmt.Sprintf("%s:%s", webhookPrefix, id)

	n, err := r.client.HIncrBy(ctx, hashKey, "consecutive_failures", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing failures: %w", err)
	}
	return int(n), nil
}

// ResetFailures zeroes the consecutive-failure counter
func (r *Repository) ResetFailures(ctx context.Context, id string) error {
	hashKey := fmt.Sprintf("%s:%s", webhookPrefix, id)

	err := r.client.HSet(ctx, hashKey, "consecutive_failures", 0).Err()
	if err != nil {
		return fmt.Errorf("resetting failures: %w", err)
	}
	return nil
}

// StoreEvent persists a published event for inspection
func (r *Repository) StoreEvent(ctx context.Context, ev webhook.Event) error {
	hashKey := fmt.Sprintf("%s:%s", eventPrefix, ev.ID)

	err := r.client.HSet(ctx, hashKey, map[string]interface{}{
		"id":         ev.ID,
		"type":       ev.Type,
		"payload":    string(ev.Payload),
		"created_at": ev.CreatedAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing event: %w", err)
	}
	return nil
}

// StoreDelivery writes the delivery hash; terminal deliveries get a TTL
func (r *Repository) StoreDelivery(ctx context.Context, d webhook.Delivery) error {
	hashKey := fmt.Sprintf("%s:%s", deliveryPrefix, d.ID)

	attempts, err := json.Marshal(d.Attempts)
	if err != nil {
		return fmt.Errorf("marshaling attempts: %w", err)
	}

	var nextRetry int64
	if d.NextRetryAt != nil {
		nextRetry = d.NextRetryAt.UnixMilli()
	}

	isNew, err := r.client.Exists(ctx, hashKey).Result()
	if err != nil {
		return fmt.Errorf("checking delivery: %w", err)
	}

	err = r.client.HSet(ctx, hashKey, map[string]interface{}{
		"id":            d.ID,
		"webhook_id":    d.WebhookID,
		"event_id":      d.EventID,
		"event_type":    d.EventType,
		"payload":       string(d.Payload),
		"status":        d.Status.String(),
		"attempts":      string(attempts),
		"next_retry_at": nextRetry,
		"created_at":    d.CreatedAt.Unix(),
		"updated_at":    d.UpdatedAt.Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing delivery: %w", err)
	}

	if isNew == 0 {
		listKey := fmt.Sprintf("%s:%s:deliveries", webhookPrefix, d.WebhookID)
		if err := r.client.LPush(ctx, listKey, d.ID).Err(); err != nil {
			return fmt.Errorf("indexing delivery: %w", err)
		}
		r.client.LTrim(ctx, listKey, 0, recentDeliveries-1)
	}

	switch d.Status {
	case webhook.Succeeded:
		// feeds the throughput metrics, trimmed by the collector
		r.client.ZAdd(ctx, completedKey, redis.Z{
			Score:  float64(d.UpdatedAt.UnixMilli()),
			Member: d.ID,
		})
		r.client.Expire(ctx, hashKey, succeededTTL)
		r.client.Expire(ctx, fmt.Sprintf("%s:attempts", hashKey), succeededTTL)
	case webhook.Exhausted:
		r.client.Expire(ctx, hashKey, exhaustedTTL)
		r.client.Expire(ctx, fmt.Sprintf("%s:attempts", hashKey), exhaustedTTL)
	}

	return nil
}

// GetDelivery retrieves a delivery with its attempt history
func (r *Repository) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	hashKey := fmt.Sprintf("%s:%s", deliveryPrefix, id)

	data, err := r.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return webhook.Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	if len(data) == 0 {
		return webhook.Delivery{}, webhook.ErrNotFound
	}

	return parseDelivery(data)
}

// ListDeliveries returns the most recent deliveries for a webhook
func (r *Repository) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]webhook.Delivery, error) {
	listKey := fmt.Sprintf("%s:%s:deliveries", webhookPrefix, webhookID)

	if limit <= 0 {
		limit = recentDeliveries
	}
	ids, err := r.client.LRange(ctx, listKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}

	ds := make([]webhook.Delivery, 0, len(ids))
	for _, id := range ids {
		d, err := r.GetDelivery(ctx, id)
		if err == webhook.ErrNotFound {
			// expired terminal delivery, index entry outlived the hash
			continue
		}
		if err != nil {
			return nil, err
		}
		ds = append(ds, d)
	}
	return ds, nil
}

/* AppendAttempt pushes an attempt record onto the audit list. Callers
 * treat failures here as log-and-continue; nothing in the delivery path
 * depends on this list
 */
func (r *Repository) AppendAttempt(ctx context.Context, deliveryID string, attempt webhook.Attempt) error {
	listKey := fmt.Sprintf("%s:%s:attempts", deliveryPrefix, deliveryID)

	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshaling attempt: %w", err)
	}
	if err := r.client.RPush(ctx, listKey, data).Err(); err != nil {
		return fmt.Errorf("appending attempt: %w", err)
	}
	return nil
}

// Due returns up to limit deliveries whose retry time has passed
func (r *Repository) Due(ctx context.Context, now time.Time, limit int) ([]webhook.Delivery, error) {
	ids, err := r.client.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading due queue: %w", err)
	}

	due := make([]webhook.Delivery, 0, len(ids))
	for _, id := range ids {
		d, err := r.GetDelivery(ctx, id)
		if err == webhook.ErrNotFound {
			// stale queue entry
			r.client.ZRem(ctx, dueKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, nil
}

/* Claim takes the per-delivery lease with SET NX. The TTL bounds how
 * long a crashed worker can park a delivery; once the lease expires the
 * delivery is claimable again
 */
func (r *Repository) Claim(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	claimKey := fmt.Sprintf("%s:%s:claim", deliveryPrefix, deliveryID)

	ok, err := r.client.SetNX(ctx, claimKey, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming delivery: %w", err)
	}
	return ok, nil
}

// Release drops the claim lease
func (r *Repository) Release(ctx context.Context, deliveryID string) error {
	claimKey := fmt.Sprintf("%s:%s:claim", deliveryPrefix, deliveryID)

	if err := r.client.Del(ctx, claimKey).Err(); err != nil {
		return fmt.Errorf("releasing claim: %w", err)
	}
	return nil
}

// Schedule puts a delivery on the due queue at its retry time, or
// removes it when there is nothing left to do
func (r *Repository) Schedule(ctx context.Context, d webhook.Delivery) error {
	if d.Status.IsFinal() || d.NextRetryAt == nil {
		if err := r.client.ZRem(ctx, dueKey, d.ID).Err(); err != nil {
			return fmt.Errorf("removing from due queue: %w", err)
		}
		return nil
	}

	err := r.client.ZAdd(ctx, dueKey, redis.Z{
		Score:  float64(d.NextRetryAt.UnixMilli()),
		Member: d.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("adding to due queue: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

// Helper functions

func parseWebhook(data map[string]string) (webhook.Webhook, error) {
	var eventTypes []string
	if s, ok := data["event_types"]; ok && s != "" {
		if err := json.Unmarshal([]byte(s), &eventTypes); err != nil {
			return webhook.Webhook{}, fmt.Errorf("unmarshaling event types: %w", err)
		}
	}

	return webhook.Webhook{
		ID:                  data["id"],
		URL:                 data["url"],
		Secret:              data["secret"],
		Description:         data["description"],
		EventTypes:          eventTypes,
		Active:              data["active"] == "1",
		ConsecutiveFailures: int(parseInt64(data["consecutive_failures"])),
		CreatedAt:           time.Unix(parseInt64(data["created_at"]), 0),
		UpdatedAt:           time.Unix(parseInt64(data["updated_at"]), 0),
	}, nil
}

func parseDelivery(data map[string]string) (webhook.Delivery, error) {
	var attempts []webhook.Attempt
	if s, ok := data["attempts"]; ok && s != "" {
		if err := json.Unmarshal([]byte(s), &attempts); err != nil {
			return webhook.Delivery{}, fmt.Errorf("unmarshaling attempts: %w", err)
		}
	}

	var nextRetryAt *time.Time
	if ms := parseInt64(data["next_retry_at"]); ms > 0 {
		t := time.UnixMilli(ms)
		nextRetryAt = &t
	}

	return webhook.Delivery{
		ID:          data["id"],
		WebhookID:   data["webhook_id"],
		EventID:     data["event_id"],
		EventType:   data["event_type"],
		Payload:     []byte(data["payload"]),
		Status:      webhook.NewStatus(data["status"]),
		Attempts:    attempts,
		NextRetryAt: nextRetryAt,
		CreatedAt:   time.Unix(parseInt64(data["created_at"]), 0),
		UpdatedAt:   time.Unix(parseInt64(data["updated_at"]), 0),
	}, nil
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
