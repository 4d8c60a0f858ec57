package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached JSON response body.
type Entry struct {
	// Body is the raw JSON response body.
	Body json.RawMessage `json:"body"`

	// FetchedAt is when the upstream response was received.
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the entry is stale.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
