package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-outbox/webhook"
)

/* HTTP layer DTOs for the subscription API
 * Separate from domain entities to avoid leaking internal structure
 */

// registerRequest is the payload for creating a webhook subscription
type registerRequest struct {
	URL         string   `json:"url"`
	Description string   `json:"description"`
	EventTypes  []string `json:"event_types"`
}

// registerResponse carries the signing secret - the only time it is returned
type registerResponse struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
	Secret     string   `json:"secret"`
}

// webhookResponse represents a subscription in read APIs, secret redacted
type webhookResponse struct {
	ID                  string    `json:"id"`
	URL                 string    `json:"url"`
	Description         string    `json:"description,omitempty"`
	EventTypes          []string  `json:"event_types"`
	Active              bool      `json:"active"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CreatedAt           time.Time `json:"created_at"`
}

func newWebhookResponse(wh webhook.Webhook) webhookResponse {
	return webhookResponse{
		ID:                  wh.ID,
		URL:                 wh.URL,
		Description:         wh.Description,
		EventTypes:          wh.EventTypes,
		Active:              wh.Active,
		ConsecutiveFailures: wh.ConsecutiveFailures,
		CreatedAt:           wh.CreatedAt,
	}
}

// postWebhook handles POST /v1/webhooks
func postWebhook(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		wh, err := registry.Register(r.Context(), req.URL, req.Description, req.EventTypes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(registerResponse{
			ID:         wh.ID,
			URL:        wh.URL,
			EventTypes: wh.EventTypes,
			Secret:     wh.Secret,
		})
	})
}

// getWebhooks handles GET /v1/webhooks
func getWebhooks(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		whs, err := registry.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		responses := make([]webhookResponse, 0, len(whs))
		for _, wh := range whs {
			responses = append(responses, newWebhookResponse(wh))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(responses); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getWebhook handles GET /v1/webhooks/{webhook_id}
func getWebhook(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "webhook_id")

		wh, err := registry.Get(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, webhook.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(newWebhookResponse(wh))
	})
}

// setWebhookActive handles the deactivate/reactivate admin endpoints
func setWebhookActive(registry webhook.RegistryUseCase, active bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "webhook_id")

		var err error
		if active {
			err = registry.Reactivate(r.Context(), id)
		} else {
			err = registry.Deactivate(r.Context(), id)
		}
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, webhook.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
