package webhook_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/marcelsud/webhook-outbox/webhook/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*webhook.Publisher, *webhook.Registry, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	registry := webhook.NewRegistry(repo, 10, nil)
	return webhook.NewPublisher(repo, registry, nil), registry, repo
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out one delivery per active subscriber", func(t *testing.T) {
		publisher, registry, repo := newTestPublisher(t)

		first, err := registry.Register(ctx, "https://a.example.com", "", []string{"order.created"})
		require.NoError(t, err)
		second, err := registry.Register(ctx, "https://b.example.com", "", []string{"order.*"})
		require.NoError(t, err)
		_, err = registry.Register(ctx, "https://c.example.com", "", []string{"user.created"})
		require.NoError(t, err)

		ev, deliveries, err := publisher.Publish(ctx, "order.created", json.RawMessage(`{"order_id":42}`))

		require.NoError(t, err)
		assert.NotEmpty(t, ev.ID)
		require.Len(t, deliveries, 2)

		targets := map[string]bool{}
		for _, d := range deliveries {
			targets[d.WebhookID] = true
			assert.Equal(t, webhook.Pending, d.Status)
			assert.Equal(t, ev.ID, d.EventID)
			assert.Equal(t, "order.created", d.EventType)
			assert.JSONEq(t, `{"order_id":42}`, string(d.Payload))
			require.NotNil(t, d.NextRetryAt)
			assert.True(t, d.Due(time.Now().UTC().Add(time.Second)))
		}
		assert.True(t, targets[first.ID])
		assert.True(t, targets[second.ID])

		// deliveries are on the due queue for the workers
		due, err := repo.Due(ctx, time.Now().UTC().Add(time.Second), 10)
		require.NoError(t, err)
		assert.Len(t, due, 2)
	})

	t.Run("no subscribers means no deliveries", func(t *testing.T) {
		publisher, _, _ := newTestPublisher(t)

		ev, deliveries, err := publisher.Publish(ctx, "order.created", json.RawMessage(`{}`))

		require.NoError(t, err)
		assert.NotEmpty(t, ev.ID)
		assert.Empty(t, deliveries)
	})

	t.Run("rejects invalid event type", func(t *testing.T) {
		publisher, _, _ := newTestPublisher(t)

		_, _, err := publisher.Publish(ctx, "not an event", json.RawMessage(`{}`))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating event")
	})

	t.Run("rejects invalid payload", func(t *testing.T) {
		publisher, _, _ := newTestPublisher(t)

		_, _, err := publisher.Publish(ctx, "order.created", json.RawMessage(`{broken`))

		require.Error(t, err)
	})
}

func TestPublisher_Delivery(t *testing.T) {
	ctx := context.Background()
	publisher, registry, _ := newTestPublisher(t)

	wh, err := registry.Register(ctx, "https://a.example.com", "", []string{"order.created"})
	require.NoError(t, err)

	_, deliveries, err := publisher.Publish(ctx, "order.created", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	t.Run("by id", func(t *testing.T) {
		d, err := publisher.Delivery(ctx, deliveries[0].ID)

		require.NoError(t, err)
		assert.Equal(t, deliveries[0].ID, d.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := publisher.Delivery(ctx, "missing")

		require.Error(t, err)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("by webhook", func(t *testing.T) {
		ds, err := publisher.Deliveries(ctx, wh.ID, 10)

		require.NoError(t, err)
		require.Len(t, ds, 1)
		assert.Equal(t, deliveries[0].ID, ds[0].ID)
	})
}
