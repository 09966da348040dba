package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_rate_limit_blocks_total",
		Help: "Total number of requests rejected because the rate limit wait was too long",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_rate_limit_waits_total",
		Help: "Total number of requests delayed until the rate limit window passed",
	})

	rateLimitBlockedSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ct_rate_limit_blocked_seconds",
		Help: "Length of the most recent Retry-After window in seconds",
	})
)

// ErrBlocked is returned by Wait when the remaining block exceeds the allowed wait.
var ErrBlocked = errors.New("rate limited by server")

// Decision is the result of a rate limit check.
type Decision struct {
	Allowed bool
	Wait    time.Duration
}

// recordBlockScript keeps the later of the stored and the new block end, so a
// short Retry-After never shortens a block recorded by another process. All
// keys expire with the block.
var recordBlockScript = redis.NewScript(`
local untilMs = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if untilMs > current then
	redis.call('SET', KEYS[1], untilMs)
	current = untilMs
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('INCR', KEYS[3])
redis.call('PEXPIREAT', KEYS[1], current)
redis.call('PEXPIREAT', KEYS[2], current)
redis.call('PEXPIREAT', KEYS[3], current)
return current
`)

// Tracker records 429 responses and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local State
}

// NewTracker creates a tracker. A nil redisClient keeps the state in memory.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns the current state. No stored state means not blocked.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	blockedUntil, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get blocked until: %w", err)
	}
	if err == redis.Nil {
		return &State{}, nil
	}

	lastUpdate, err := t.redis.Get(ctx, RedisKeyLastUpdate).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	hits, err := t.redis.Get(ctx, RedisKeyHits).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get hits: %w", err)
	}

	return &State{
		BlockedUntil: time.UnixMilli(blockedUntil),
		LastUpdate:   time.UnixMilli(lastUpdate),
		Hits:         hits,
	}, nil
}

// RecordTooManyRequests stores a block window derived from the Retry-After header
// of a 429 response and returns its length.
func (t *Tracker) RecordTooManyRequests(ctx context.Context, headers http.Header) (time.Duration, error) {
	now := t.now()
	block := ParseRetryAfter(headers.Get("Retry-After"), now)
	until := now.Add(block)

	rateLimitBlockedSeconds.Set(block.Seconds())

	if t.redis == nil {
		t.mu.Lock()
		if until.After(t.local.BlockedUntil) {
			t.local.BlockedUntil = until
		}
		until = t.local.BlockedUntil
		t.local.LastUpdate = now
		t.local.Hits++
		t.mu.Unlock()
	} else {
		stored, err := recordBlockScript.Run(ctx, t.redis,
			[]string{RedisKeyBlockedUntil, RedisKeyLastUpdate, RedisKeyHits},
			until.UnixMilli(), now.UnixMilli(),
		).Int64()
		if err != nil {
			return block, fmt.Errorf("store rate limit state in redis: %w", err)
		}
		until = time.UnixMilli(stored)
	}

	t.logger.Warn().
		Dur("retry_after", block).
		Time("blocked_until", until).
		Msg("ChurchTools rate limit hit - pausing requests")

	return block, nil
}

// Check reports whether a request may be sent now and, if not, how long to wait.
func (t *Tracker) Check(ctx context.Context) (Decision, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.now()
	if !state.Blocked(now) {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, Wait: state.Remaining(now)}, nil
}

// Wait blocks until requests may be sent. If the remaining window is longer than
// maxWait it returns ErrBlocked immediately.
func (t *Tracker) Wait(ctx context.Context, maxWait time.Duration) error {
	decision, err := t.Check(ctx)
	if err != nil {
		return err
	}
	if decision.Allowed {
		return nil
	}

	if decision.Wait > maxWait {
		t.logger.Error().
			Dur("wait", decision.Wait).
			Dur("max_wait", maxWait).
			Msg("Rate limit window exceeds allowed wait - blocking request")
		rateLimitBlocksTotal.Inc()
		return fmt.Errorf("%w: retry in %s", ErrBlocked, decision.Wait.Round(time.Second))
	}

	t.logger.Warn().
		Dur("wait", decision.Wait).
		Msg("Waiting for rate limit window")
	rateLimitWaitsTotal.Inc()

	timer := time.NewTimer(decision.Wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
