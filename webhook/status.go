package webhook

import "fmt"

/* Status represents the current state of a delivery
 * Follows the lifecycle: Pending -> Attempting -> Succeeded/Exhausted,
 * with Failed as the transient label between a failed attempt and the
 * next scheduled retry
 */
type Status int

const (
	Pending Status = iota + 1
	Attempting
	Succeeded
	Failed
	Exhausted
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Attempting:
		return "attempting"
	case Succeeded:
		return "success"
	case Failed:
		return "failed"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "attempting":
		return Attempting
	case "success":
		return Succeeded
	case "failed":
		return Failed
	case "exhausted":
		return Exhausted
	default:
		return Pending
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > Exhausted {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Succeeded || s == Exhausted
}
