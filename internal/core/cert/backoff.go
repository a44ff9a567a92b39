package cert

import "time"

// =============================================================================
// Challenge Failure Backoff
// =============================================================================

const (
	backoffBase = time.Minute
	backoffCap  = time.Hour
)

// Backoff returns the wait before retrying after the given number of
// consecutive challenge failures. Exponential from one minute, capped at one
// hour. Zero failures means no wait.
func Backoff(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := backoffBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
