package cache

import (
	"net/http"
	"time"
)

// Entry is a cached ChurchTools response.
type Entry struct {
	Data         []byte      `json:"data"`
	ETag         string      `json:"etag,omitempty"`
	Expires      time.Time   `json:"expires"`
	LastModified time.Time   `json:"last_modified,omitempty"`
	StatusCode   int         `json:"status_code"`
	Headers      http.Header `json:"headers"`
	CachedAt     time.Time   `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
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

// HasValidators reports whether the entry carries an ETag or Last-Modified
// value that ChurchTools can revalidate.
func (e *Entry) HasValidators() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	if e.CachedAt.IsZero() {
		return 0
	}
	return time.Since(e.CachedAt)
}
