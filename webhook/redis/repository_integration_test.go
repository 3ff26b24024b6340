//go:build integration

package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWebhook(id string) webhook.Webhook {
	now := time.Now().UTC().Truncate(time.Second)
	return webhook.Webhook{
		ID:         id,
		URL:        "https://orders.internal/hooks",
		Secret:     "whsec_integration",
		EventTypes: []string{"order.created"},
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testDelivery(id, webhookID string) webhook.Delivery {
	now := time.Now().UTC().Truncate(time.Second)
	due := now
	return webhook.Delivery{
		ID:          id,
		WebhookID:   webhookID,
		EventID:     "evt-1",
		EventType:   "order.created",
		Payload:     json.RawMessage(`{"order_id":42}`),
		Status:      webhook.Pending,
		NextRetryAt: &due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRepository_Webhooks_Integration(t *testing.T) {
	ctx := context.Background()

	t.Run("store and retrieve webhook", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		wh := testWebhook("wh-1")
		wh.Description = "order consumer"
		require.NoError(t, repo.StoreWebhook(ctx, wh))

		got, err := repo.GetWebhook(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, wh.ID, got.ID)
		assert.Equal(t, wh.URL, got.URL)
		assert.Equal(t, wh.Secret, got.Secret)
		assert.Equal(t, wh.Description, got.Description)
		assert.Equal(t, wh.EventTypes, got.EventTypes)
		assert.True(t, got.Active)
		assert.Zero(t, got.ConsecutiveFailures)
	})

	t.Run("missing webhook", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		_, err := repo.GetWebhook(ctx, "nope")
		assert.ErrorIs(t, err, webhook.ErrNotFound)

		assert.ErrorIs(t, repo.SetActive(ctx, "nope", false), webhook.ErrNotFound)
	})

	t.Run("event type index resolves exact and wildcard subscribers", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		exact := testWebhook("wh-exact")
		wildcard := testWebhook("wh-wildcard")
		wildcard.EventTypes = []string{"user.*"}
		other := testWebhook("wh-other")
		other.EventTypes = []string{"invoice.paid"}

		require.NoError(t, repo.StoreWebhook(ctx, exact))
		require.NoError(t, repo.StoreWebhook(ctx, wildcard))
		require.NoError(t, repo.StoreWebhook(ctx, other))

		whs, err := repo.ListByEventType(ctx, "order.created")
		require.NoError(t, err)

		ids := make([]string, 0, len(whs))
		for _, wh := range whs {
			ids = append(ids, wh.ID)
		}
		// the wildcard subscriber is a candidate; Subscribed() filters it later
		assert.ElementsMatch(t, []string{"wh-exact", "wh-wildcard"}, ids)

		all, err := repo.ListWebhooks(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("failure counter is atomic and resettable", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		wh := testWebhook("wh-failing")
		require.NoError(t, repo.StoreWebhook(ctx, wh))

		for i := 1; i <= 3; i++ {
			n, err := repo.RecordFailure(ctx, wh.ID)
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}

		require.NoError(t, repo.ResetFailures(ctx, wh.ID))
		got, err := repo.GetWebhook(ctx, wh.ID)
		require.NoError(t, err)
		assert.Zero(t, got.ConsecutiveFailures)
	})
}

func TestRepository_Deliveries_Integration(t *testing.T) {
	ctx := context.Background()

	t.Run("store and retrieve delivery", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		d := testDelivery("del-1", "wh-1")
		d.Attempts = []webhook.Attempt{
			{Number: 0, Timestamp: time.Now().UTC(), StatusCode: 500, Succeeded: false},
		}
		require.NoError(t, repo.StoreDelivery(ctx, d))

		got, err := repo.GetDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)
		assert.Equal(t, d.WebhookID, got.WebhookID)
		assert.Equal(t, d.EventType, got.EventType)
		assert.JSONEq(t, string(d.Payload), string(got.Payload))
		assert.Equal(t, webhook.Pending, got.Status)
		require.NotNil(t, got.NextRetryAt)
		assert.Equal(t, d.NextRetryAt.UnixMilli(), got.NextRetryAt.UnixMilli())
		require.Len(t, got.Attempts, 1)
		assert.Equal(t, 500, got.Attempts[0].StatusCode)
	})

	t.Run("per-webhook delivery index", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		for _, id := range []string{"del-a", "del-b", "del-c"} {
			require.NoError(t, repo.StoreDelivery(ctx, testDelivery(id, "wh-1")))
		}
		// updating an existing delivery must not duplicate the index entry
		d := testDelivery("del-a", "wh-1")
		d.Status = webhook.Failed
		require.NoError(t, repo.StoreDelivery(ctx, d))

		ds, err := repo.ListDeliveries(ctx, "wh-1", 10)
		require.NoError(t, err)
		assert.Len(t, ds, 3)

		ds, err = repo.ListDeliveries(ctx, "wh-1", 2)
		require.NoError(t, err)
		assert.Len(t, ds, 2)
	})

	t.Run("terminal deliveries expire", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		succeeded := testDelivery("del-ok", "wh-1")
		succeeded.Status = webhook.Succeeded
		succeeded.NextRetryAt = nil
		require.NoError(t, repo.StoreDelivery(ctx, succeeded))

		exhausted := testDelivery("del-dead", "wh-1")
		exhausted.Status = webhook.Exhausted
		exhausted.NextRetryAt = nil
		require.NoError(t, repo.StoreDelivery(ctx, exhausted))

		okTTL := GetKeyTTL(t, redisContainer.Addr, "delivery:del-ok")
		assert.Greater(t, okTTL, int64(0))
		assert.LessOrEqual(t, okTTL, int64(24*60*60))

		deadTTL := GetKeyTTL(t, redisContainer.Addr, "delivery:del-dead")
		assert.Greater(t, deadTTL, int64(24*60*60))
		assert.LessOrEqual(t, deadTTL, int64(7*24*60*60))

		// pending deliveries never expire
		pending := testDelivery("del-pending", "wh-1")
		require.NoError(t, repo.StoreDelivery(ctx, pending))
		assert.Equal(t, int64(-1), GetKeyTTL(t, redisContainer.Addr, "delivery:del-pending"))
	})

	t.Run("attempt history list", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		require.NoError(t, repo.AppendAttempt(ctx, "del-1", webhook.Attempt{
			Number: 0, Timestamp: time.Now().UTC(), StatusCode: 503,
		}))
		require.NoError(t, repo.AppendAttempt(ctx, "del-1", webhook.Attempt{
			Number: 1, Timestamp: time.Now().UTC(), StatusCode: 200, Succeeded: true,
		}))

		assert.True(t, KeyExists(t, redisContainer.Addr, "delivery:del-1:attempts"))
	})
}

func TestRepository_Queue_Integration(t *testing.T) {
	ctx := context.Background()

	t.Run("schedule and fetch due deliveries", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		now := time.Now().UTC()

		past := testDelivery("del-past", "wh-1")
		pastAt := now.Add(-time.Minute)
		past.NextRetryAt = &pastAt
		require.NoError(t, repo.StoreDelivery(ctx, past))
		require.NoError(t, repo.Schedule(ctx, past))

		future := testDelivery("del-future", "wh-1")
		futureAt := now.Add(time.Hour)
		future.NextRetryAt = &futureAt
		require.NoError(t, repo.StoreDelivery(ctx, future))
		require.NoError(t, repo.Schedule(ctx, future))

		due, err := repo.Due(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "del-past", due[0].ID)

		// an hour later both are due
		due, err = repo.Due(ctx, now.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, due, 2)
	})

	t.Run("terminal schedule removes from queue", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		d := testDelivery("del-1", "wh-1")
		require.NoError(t, repo.StoreDelivery(ctx, d))
		require.NoError(t, repo.Schedule(ctx, d))

		d.Status = webhook.Succeeded
		d.NextRetryAt = nil
		require.NoError(t, repo.StoreDelivery(ctx, d))
		require.NoError(t, repo.Schedule(ctx, d))

		due, err := repo.Due(ctx, time.Now().UTC().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("stale queue entries are pruned", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		// schedule a delivery that was never stored
		ghost := testDelivery("del-ghost", "wh-1")
		require.NoError(t, repo.Schedule(ctx, ghost))

		due, err := repo.Due(ctx, time.Now().UTC().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = repo.Due(ctx, time.Now().UTC().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("claim is exclusive until released or expired", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		claimed, err := repo.Claim(ctx, "del-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = repo.Claim(ctx, "del-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, claimed, "second claim must lose")

		require.NoError(t, repo.Release(ctx, "del-1"))

		claimed, err = repo.Claim(ctx, "del-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, claimed, "released delivery is claimable again")
	})

	t.Run("claim lease expires on its own", func(t *testing.T) {
		redisContainer, cleanup := SetupRedisContainer(t, ctx)
		defer cleanup()

		repo := CreateTestRepository(t, redisContainer.Addr)
		defer repo.Close(ctx)

		claimed, err := repo.Claim(ctx, "del-1", 100*time.Millisecond)
		require.NoError(t, err)
		require.True(t, claimed)

		time.Sleep(200 * time.Millisecond)

		claimed, err = repo.Claim(ctx, "del-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, claimed, "expired lease does not block a new claim")
	})
}
