package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook/signature"
)

/* Dispatcher performs the outbound HTTP call for a single delivery
 * attempt and classifies the result. It holds an explicitly constructed
 * http.Client with a bounded timeout; a hung endpoint can never hold a
 * worker past the deadline.
 *
 * Retry decisions do not live here: the dispatcher reports an Outcome
 * and the delivery transition does the rest
 */
type Dispatcher struct {
	Client *http.Client
	Logger *slog.Logger
}

// NewDispatcher creates a dispatcher with the given request timeout
func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Dispatch signs and posts the delivery's stored payload to the webhook URL.
// 2xx is success; any other status, timeout or connection error is failure.
func (d *Dispatcher) Dispatch(ctx context.Context, del Delivery, wh Webhook) Outcome {
	body, err := EncodeBody(del.EventType, del.Payload)
	if err != nil {
		return ErrorOutcome("encode: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return ErrorOutcome("request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.SignatureHeader, signature.SignString(string(body), wh.Secret))
	req.Header.Set(signature.EventTypeHeader, del.EventType)
	req.Header.Set(signature.DeliveryHeader, del.ID)

	resp, err := d.Client.Do(req)
	if err != nil {
		return ErrorOutcome(classifyTransportError(err))
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SuccessOutcome(resp.StatusCode)
	}
	return FailureOutcome(resp.StatusCode)
}

// classifyTransportError maps transport failures to a stable error class
// recorded on the attempt, so history stays readable across Go versions
func classifyTransportError(err error) string {
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "connection_error"
	}
}
