package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-outbox/webhook"
)

// eventRequest is the ingestion payload
type eventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// eventResponse is returned once the event is persisted and its
// deliveries are enqueued; delivery outcomes arrive asynchronously
type eventResponse struct {
	EventID    string   `json:"event_id"`
	EventType  string   `json:"event_type"`
	Deliveries []string `json:"deliveries"`
}

// deliveryResponse exposes a delivery's status and attempt history
type deliveryResponse struct {
	ID          string            `json:"id"`
	WebhookID   string            `json:"webhook_id"`
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	Status      string            `json:"status"`
	Attempts    []attemptResponse `json:"attempts"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type attemptResponse struct {
	Number     int       `json:"number"`
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Succeeded  bool      `json:"succeeded"`
}

func newDeliveryResponse(d webhook.Delivery) deliveryResponse {
	attempts := make([]attemptResponse, 0, len(d.Attempts))
	for _, a := range d.Attempts {
		attempts = append(attempts, attemptResponse{
			Number:     a.Number,
			Timestamp:  a.Timestamp,
			StatusCode: a.StatusCode,
			Error:      a.Error,
			Succeeded:  a.Succeeded,
		})
	}
	return deliveryResponse{
		ID:          d.ID,
		WebhookID:   d.WebhookID,
		EventID:     d.EventID,
		EventType:   d.EventType,
		Status:      d.Status.String(),
		Attempts:    attempts,
		NextRetryAt: d.NextRetryAt,
		CreatedAt:   d.CreatedAt,
	}
}

// postEvent handles POST /v1/events
func postEvent(publisher webhook.PublisherUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		ev, deliveries, err := publisher.Publish(r.Context(), req.EventType, req.Payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ids := make([]string, 0, len(deliveries))
		for _, d := range deliveries {
			ids = append(ids, d.ID)
		}

		// 202: the event is accepted, delivery happens asynchronously
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(eventResponse{
			EventID:    ev.ID,
			EventType:  ev.Type,
			Deliveries: ids,
		})
	})
}

// getDelivery handles GET /v1/deliveries/{delivery_id}
func getDelivery(publisher webhook.PublisherUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "delivery_id")

		d, err := publisher.Delivery(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, webhook.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(newDeliveryResponse(d))
	})
}

// getWebhookDeliveries handles GET /v1/webhooks/{webhook_id}/deliveries
func getWebhookDeliveries(publisher webhook.PublisherUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "webhook_id")

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		ds, err := publisher.Deliveries(r.Context(), id, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		responses := make([]deliveryResponse, 0, len(ds))
		for _, d := range ds {
			responses = append(responses, newDeliveryResponse(d))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(responses)
	})
}
