package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-outbox/webhook"
)

// Handlers sets up the webhook API routes
func Handlers(ctx context.Context, registry webhook.RegistryUseCase, publisher webhook.PublisherUseCase) *chi.Mux {
	logger := httplog.NewLogger("webhook-outbox", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		// Event ingestion
		r.Post("/events", postEvent(publisher).ServeHTTP)

		// Subscription management
		r.Post("/webhooks", postWebhook(registry).ServeHTTP)
		r.Get("/webhooks", getWebhooks(registry).ServeHTTP)
		r.Get("/webhooks/{webhook_id}", getWebhook(registry).ServeHTTP)
		r.Post("/webhooks/{webhook_id}/deactivate", setWebhookActive(registry, false).ServeHTTP)
		r.Post("/webhooks/{webhook_id}/reactivate", setWebhookActive(registry, true).ServeHTTP)
		r.Get("/webhooks/{webhook_id}/deliveries", getWebhookDeliveries(publisher).ServeHTTP)

		// Delivery introspection
		r.Get("/deliveries/{delivery_id}", getDelivery(publisher).ServeHTTP)
	})

	return r
}
