package replicate

import "time"

// retrySchedule is consulted by attempt index (0-based); once
// exhausted, backoffFor keeps doubling the last entry, capped at
// maxBackoff.
var retrySchedule = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

const maxBackoff = 5 * time.Minute

// backoffFor returns the delay to wait before retry attempt (0-based).
func backoffFor(attempt int) time.Duration {
	if attempt < len(retrySchedule) {
		return retrySchedule[attempt]
	}
	extra := attempt - len(retrySchedule) + 1
	d := retrySchedule[len(retrySchedule)-1]
	for i := 0; i < extra; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
