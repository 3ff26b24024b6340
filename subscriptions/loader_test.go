package subscriptions_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcelsud/webhook-outbox/subscriptions"
	"github.com/marcelsud/webhook-outbox/webhook/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webhooks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Load(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := writeConfig(t, `
webhooks:
  - id: orders-backend
    url: https://orders.internal/hooks
    description: Order lifecycle consumer
    event_types:
      - order.created
      - order.cancelled
    secret: whsec_fixed
  - id: analytics
    url: https://analytics.internal/ingest
    event_types:
      - "user.*"
`)

		loader := subscriptions.NewLoader()
		require.NoError(t, loader.Load(path))
		assert.Len(t, loader.List(), 2)

		wh, err := loader.Get("orders-backend")
		require.NoError(t, err)
		assert.Equal(t, "https://orders.internal/hooks", wh.URL)
		assert.Equal(t, "whsec_fixed", wh.Secret)
		assert.Equal(t, []string{"order.created", "order.cancelled"}, wh.EventTypes)
		assert.True(t, wh.Active)
	})

	t.Run("missing secret is generated", func(t *testing.T) {
		path := writeConfig(t, `
webhooks:
  - id: analytics
    url: https://analytics.internal/ingest
    event_types: ["user.*"]
`)

		loader := subscriptions.NewLoader()
		require.NoError(t, loader.Load(path))

		wh, err := loader.Get("analytics")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(wh.Secret, "whsec_"))
	})

	t.Run("missing id", func(t *testing.T) {
		path := writeConfig(t, `
webhooks:
  - url: https://orders.internal/hooks
    event_types: ["order.created"]
`)

		err := subscriptions.NewLoader().Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing an id")
	})

	t.Run("duplicate id", func(t *testing.T) {
		path := writeConfig(t, `
webhooks:
  - id: orders-backend
    url: https://orders.internal/hooks
    event_types: ["order.created"]
  - id: orders-backend
    url: https://other.internal/hooks
    event_types: ["order.cancelled"]
`)

		err := subscriptions.NewLoader().Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate webhook id")
	})

	t.Run("invalid url rejected", func(t *testing.T) {
		path := writeConfig(t, `
webhooks:
  - id: bad
    url: "not a url"
    event_types: ["order.created"]
`)

		err := subscriptions.NewLoader().Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating webhook bad")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "webhooks: [broken")
		assert.Error(t, subscriptions.NewLoader().Load(path))
	})

	t.Run("missing file", func(t *testing.T) {
		err := subscriptions.NewLoader().Load("/nonexistent/webhooks.yaml")
		assert.Error(t, err)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		_, err := subscriptions.NewLoader().Get("nobody")
		assert.Error(t, err)
	})
}

func TestLoader_Seed(t *testing.T) {
	ctx := context.Background()
	path := writeConfig(t, `
webhooks:
  - id: orders-backend
    url: https://orders.internal/hooks
    event_types: ["order.created"]
    secret: whsec_seeded
`)

	loader := subscriptions.NewLoader()
	require.NoError(t, loader.Load(path))

	repo := memory.NewRepository()

	seeded, err := loader.Seed(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)

	// A second seed run of the same file changes nothing
	seeded, err = loader.Seed(ctx, repo)
	require.NoError(t, err)
	assert.Zero(t, seeded)

	// An already-registered webhook keeps its stored state
	wh, err := repo.GetWebhook(ctx, "orders-backend")
	require.NoError(t, err)
	wh.Secret = "whsec_rotated"
	require.NoError(t, repo.StoreWebhook(ctx, wh))

	_, err = loader.Seed(ctx, repo)
	require.NoError(t, err)
	wh, err = repo.GetWebhook(ctx, "orders-backend")
	require.NoError(t, err)
	assert.Equal(t, "whsec_rotated", wh.Secret)
}
