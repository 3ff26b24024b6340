package webhook

/* Outcome is the classified result of a single dispatch.
 * Failures travel as values, not errors: the delivery transition is a
 * pure function of the outcome, and transport errors are failures like
 * any non-2xx response.
 */
type Outcome struct {
	Succeeded  bool
	StatusCode int    // HTTP status, 0 when the request never completed
	Error      string // error class for transport failures, empty otherwise
}

// SuccessOutcome builds the outcome for a 2xx response
func SuccessOutcome(statusCode int) Outcome {
	return Outcome{Succeeded: true, StatusCode: statusCode}
}

// FailureOutcome builds the outcome for a non-2xx response
func FailureOutcome(statusCode int) Outcome {
	return Outcome{StatusCode: statusCode}
}

// ErrorOutcome builds the outcome for a timeout or connection error
func ErrorOutcome(reason string) Outcome {
	return Outcome{Error: reason}
}
