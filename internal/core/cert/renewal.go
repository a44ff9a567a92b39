package cert

import "time"

// =============================================================================
// Renewal Window
// =============================================================================

// DefaultRenewalWindow is the time before expiry at which a certificate
// becomes renewal-due. A third of a 90-day certificate lifetime.
const DefaultRenewalWindow = 30 * 24 * time.Hour

// RenewalDue reports whether a certificate expiring at notAfter has crossed
// the renewal threshold at now. A zero window uses DefaultRenewalWindow.
func RenewalDue(notAfter, now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultRenewalWindow
	}
	return !now.Before(notAfter.Add(-window))
}

// Expired reports whether a certificate expiring at notAfter is no longer
// valid at now.
func Expired(notAfter, now time.Time) bool {
	return !now.Before(notAfter)
}
