package webhook

import (
	"encoding/json"
	"time"
)

/* Delivery is one attempt-sequence carrying a single event to a single
 * webhook. Event type and payload are copied at creation time so later
 * mutation of the webhook or event cannot rewrite history.
 */
type Delivery struct {
	ID          string
	WebhookID   string
	EventID     string
	EventType   string
	Payload     json.RawMessage
	Status      Status
	Attempts    []Attempt
	NextRetryAt *time.Time // nil once terminal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Attempt records a single dispatch of a delivery
type Attempt struct {
	Number     int       `json:"number"`
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Succeeded  bool      `json:"succeeded"`
}

// NewDelivery creates a pending delivery due for an immediate first attempt
func NewDelivery(id string, wh Webhook, ev Event, now time.Time) Delivery {
	due := now
	return Delivery{
		ID:          id,
		WebhookID:   wh.ID,
		EventID:     ev.ID,
		EventType:   ev.Type,
		Payload:     ev.Payload,
		Status:      Pending,
		NextRetryAt: &due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Due reports whether the delivery may be dispatched at the given time.
// A delivery is never dispatched ahead of schedule.
func (d Delivery) Due(now time.Time) bool {
	return !d.Status.IsFinal() && d.NextRetryAt != nil && !d.NextRetryAt.After(now)
}

/* Apply records the outcome of a dispatch and transitions the delivery.
 * Success is terminal. On failure the schedule decides: either a retry
 * time is set and the delivery waits as failed, or the schedule is
 * exhausted and the delivery is terminal.
 *
 * Pure function of (delivery, outcome, schedule, now); persistence is
 * the caller's concern.
 */
func (d Delivery) Apply(outcome Outcome, sched Schedule, now time.Time) Delivery {
	d.Attempts = append(d.Attempts, Attempt{
		Number:     len(d.Attempts),
		Timestamp:  now,
		StatusCode: outcome.StatusCode,
		Error:      outcome.Error,
		Succeeded:  outcome.Succeeded,
	})
	d.UpdatedAt = now

	if outcome.Succeeded {
		d.Status = Succeeded
		d.NextRetryAt = nil
		return d
	}

	// The delay is keyed on the attempt that just failed; once the
	// schedule's attempt budget is spent the delivery is terminal.
	if len(d.Attempts) >= sched.MaxAttempts() {
		d.Status = Exhausted
		d.NextRetryAt = nil
		return d
	}
	next, ok := sched.NextRetry(len(d.Attempts)-1, now)
	if !ok {
		d.Status = Exhausted
		d.NextRetryAt = nil
		return d
	}

	d.Status = Failed
	d.NextRetryAt = &next
	return d
}

// LastAttempt returns the most recent attempt and true, or false when
// nothing has been dispatched yet
func (d Delivery) LastAttempt() (Attempt, bool) {
	if len(d.Attempts) == 0 {
		return Attempt{}, false
	}
	return d.Attempts[len(d.Attempts)-1], true
}
