package domain

import "time"

// DefaultSessionTTL is the inactivity window after which a session is
// treated as expired.
const DefaultSessionTTL = 2 * time.Hour

// SessionMetrics holds usage counters for a session.
type SessionMetrics struct {
	AnalysesCount int `json:"analysesCount"`
}

// Session associates one uploaded dataset's conversation thread with its
// artifacts and usage metrics. TTLExpiresAt is fixed at creation time and
// is never extended by reads.
type Session struct {
	ID           string         `json:"id"`
	ThreadID     string         `json:"threadId"`
	CreatedAt    time.Time      `json:"createdAt"`
	TTLExpiresAt time.Time      `json:"ttlExpiresAt"`
	Metrics      SessionMetrics `json:"metrics"`
}

// Expired reports whether the session's TTL has passed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.TTLExpiresAt)
}
