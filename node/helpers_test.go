package node

import "time"

// mustTime returns a deterministic, strictly increasing time for a given
// small offset, used by tests that only care about relative ordering.
func mustTime(offsetSeconds int64) time.Time {
	return time.Unix(1700000000+offsetSeconds, 0)
}
