// Package ratelimit tracks ChurchTools 429 Too Many Requests responses and gates
// further requests until the server's Retry-After window has passed.
//
// The state lives in Redis when a client is configured, so several processes
// running bulk jobs against the same instance back off together. Without Redis
// the state is kept in memory.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyBlockedUntil = "ct:rate_limit:blocked_until"
	RedisKeyLastUpdate   = "ct:rate_limit:last_update"
	RedisKeyHits         = "ct:rate_limit:hits"
)

// DefaultBlock is used when a 429 response carries no usable Retry-After header.
const DefaultBlock = 60 * time.Second

// MaxBlock caps Retry-After values so a bogus header cannot stall a job for hours.
const MaxBlock = 15 * time.Minute

// State is the current rate limit state.
type State struct {
	// BlockedUntil is when requests may resume. Zero when not blocked.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when a 429 was last recorded.
	LastUpdate time.Time `json:"last_update"`

	// Hits counts 429 responses seen in the current block window.
	Hits int `json:"hits"`
}

// Blocked reports whether requests must wait at the given time.
func (s *State) Blocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// Remaining returns how long requests still have to wait. Returns 0 if not blocked.
func (s *State) Remaining(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter parses a Retry-After header value, either delay-seconds or an
// HTTP date. Invalid or missing values yield DefaultBlock.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultBlock
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	} else {
		return DefaultBlock
	}

	switch {
	case d <= 0:
		return time.Second
	case d > MaxBlock:
		return MaxBlock
	default:
		return d
	}
}
