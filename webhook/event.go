package webhook

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

/* Event is an immutable published fact, matched against webhook
 * subscriptions by its type
 */
type Event struct {
	ID        string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Validate checks the event structure
func (e Event) Validate() error {
	if err := ValidateEventType(e.Type); err != nil {
		return err
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if !json.Valid(e.Payload) {
		return fmt.Errorf("payload must be valid JSON")
	}
	return nil
}

// ValidateEventType validates an event type format
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	// Allow wildcard suffix for subscription filters
	if len(eventType) > 2 && eventType[len(eventType)-2:] == ".*" {
		eventType = eventType[:len(eventType)-2]
	}

	if !eventTypePattern.MatchString(eventType) {
		return fmt.Errorf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", eventType)
	}

	return nil
}

/* Body is the outbound request body for a delivery attempt.
 * Encoding goes through encoding/json with fixed field order, so the
 * bytes that get signed are the bytes that get sent.
 */
type Body struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// EncodeBody builds the deterministic wire encoding for a delivery
func EncodeBody(eventType string, payload json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(Body{EventType: eventType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	return b, nil
}
