package webhook

import (
	"fmt"
	"net/url"
	"time"
)

/* Webhook represents a registered subscription in the system
 * Uses value semantics as it represents data, not behavior
 */
type Webhook struct {
	ID                  string
	URL                 string
	Secret              string
	Description         string
	EventTypes          []string
	Active              bool
	ConsecutiveFailures int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate checks the registration input before it reaches the delivery pipeline
func (w Webhook) Validate() error {
	u, err := url.Parse(w.URL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must be http or https: %s", w.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("url must have a host: %s", w.URL)
	}
	if len(w.EventTypes) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	for _, et := range w.EventTypes {
		if err := ValidateEventType(et); err != nil {
			return fmt.Errorf("invalid event type %q: %w", et, err)
		}
	}
	return nil
}

// Subscribed reports whether the webhook is subscribed to the given event type.
// Supports exact matching and wildcard suffixes (e.g. "order.*" matches "order.created").
func (w Webhook) Subscribed(eventType string) bool {
	for _, et := range w.EventTypes {
		if et == eventType {
			return true
		}
		if len(et) > 2 && et[len(et)-2:] == ".*" {
			prefix := et[:len(et)-2]
			if len(eventType) > len(prefix) && eventType[:len(prefix)] == prefix && eventType[len(prefix)] == '.' {
				return true
			}
		}
	}
	return false
}

// Redacted returns a copy safe to expose over read APIs.
// The secret is only shown once, at registration time.
func (w Webhook) Redacted() Webhook {
	w.Secret = ""
	return w
}
