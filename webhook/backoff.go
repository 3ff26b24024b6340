package webhook

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

/* Schedule maps an attempt index to the delay before the next try.
 * The table is fixed: 1m, 5m, 30m, 2h, 24h. Each delay gets ±10%
 * jitter so simultaneous failures don't retry in lockstep.
 */
type Schedule struct {
	Delays []time.Duration
	Jitter float64
}

// DefaultSchedule returns the standard five-attempt retry schedule
func DefaultSchedule() Schedule {
	return Schedule{
		Delays: []time.Duration{
			1 * time.Minute,
			5 * time.Minute,
			30 * time.Minute,
			2 * time.Hour,
			24 * time.Hour,
		},
		Jitter: 0.10,
	}
}

/* ParseSchedule builds a schedule from a comma-separated list of delay
 * seconds, truncated to maxAttempts entries. Feeds the RETRY_DELAYS /
 * MAX_RETRY_ATTEMPTS configuration surface
 */
func ParseSchedule(csv string, maxAttempts int) (Schedule, error) {
	parts := strings.Split(csv, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		secs, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || secs <= 0 {
			return Schedule{}, fmt.Errorf("invalid retry delay %q", p)
		}
		delays = append(delays, time.Duration(secs)*time.Second)
	}
	if len(delays) == 0 {
		return Schedule{}, fmt.Errorf("retry delay table cannot be empty")
	}
	if maxAttempts > 0 && len(delays) > maxAttempts {
		delays = delays[:maxAttempts]
	}
	return Schedule{Delays: delays, Jitter: 0.10}, nil
}

// MaxAttempts returns the total number of attempts the schedule allows
func (s Schedule) MaxAttempts() int {
	return len(s.Delays)
}

/* NextRetry returns the time of the next attempt for a 0-based attempt
 * index, or false when the schedule is exhausted. The returned time is
 * always within delay*(1±Jitter) of now.
 */
func (s Schedule) NextRetry(attempt int, now time.Time) (time.Time, bool) {
	if attempt < 0 || attempt >= len(s.Delays) {
		return time.Time{}, false
	}

	delay := s.Delays[attempt]
	// uniform draw in [-Jitter, +Jitter]
	factor := 1 + s.Jitter*(2*rand.Float64()-1)
	jittered := time.Duration(float64(delay) * factor)

	return now.Add(jittered), true
}
