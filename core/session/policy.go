package session

import "time"

// RevocationPolicy computes the absolute revocation time for a session
// issued now.
type RevocationPolicy func(now time.Time) time.Time

// ExpireAfter returns a policy revoking sessions a fixed duration
// after login.
func ExpireAfter(ttl time.Duration) RevocationPolicy {
	return func(now time.Time) time.Time {
		return now.Add(ttl)
	}
}

// NeverExpire returns a policy with a far-future revocation time.
// Logout remains the only way to end such a session.
func NeverExpire() RevocationPolicy {
	return func(now time.Time) time.Time {
		return now.AddDate(100, 0, 0)
	}
}
