// Package client provides the ChurchTools HTTP client with rate limiting,
// caching, retries and transparent pagination.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/churchtools-client/pkg/cache"
	"github.com/Sternrassler/churchtools-client/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version is sent in the default User-Agent.
const Version = "0.3.0"

// Prometheus metrics for ChurchTools client operations.
var (
	ctRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_requests_total",
		Help: "Total ChurchTools requests by endpoint and status",
	}, []string{"endpoint", "status"})

	ctRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ct_request_duration_seconds",
		Help:    "ChurchTools request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	ctErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_errors_total",
		Help: "Total ChurchTools errors by class",
	}, []string{"class"})
)

// Client is the ChurchTools API client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Store
	scope       string
	retryPolicy retryPolicy
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the ChurchTools instance, e.g. "https://example.church.tools".
	BaseURL string

	// Token is a login token, sent as "Authorization: Login <token>".
	// Leave empty for public endpoints.
	Token string

	// UserAgent header. Defaults to "churchtools-client/<Version>".
	UserAgent string

	// Redis enables the shared response cache and shared rate-limit state.
	// Optional.
	Redis *redis.Client

	// CacheTTL is how long GET responses are served from cache. ChurchTools
	// sends no Expires header, so this is the only freshness source.
	CacheTTL time.Duration

	// HTTPTimeout bounds a single HTTP attempt.
	HTTPTimeout time.Duration

	// MaxRateLimitWait is the longest the client waits out a 429 block before
	// failing with ErrRateLimited.
	MaxRateLimitWait time.Duration

	// MaxAttempts and InitialBackoff override the per-class retry defaults
	// when set.
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:          baseURL,
		Token:            token,
		UserAgent:        "churchtools-client/" + Version,
		CacheTTL:         cache.DefaultTTL,
		HTTPTimeout:      30 * time.Second,
		MaxRateLimitWait: 2 * time.Minute,
	}
}

// New creates a new ChurchTools client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must use http or https (got %q)", cfg.BaseURL)
	}
	if baseURL.Host == "" {
		return nil, fmt.Errorf("base url must include a host (got %q)", cfg.BaseURL)
	}

	defaults := DefaultConfig(cfg.BaseURL, cfg.Token)
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaults.HTTPTimeout
	}
	if cfg.MaxRateLimitWait <= 0 {
		cfg.MaxRateLimitWait = defaults.MaxRateLimitWait
	}

	logger := log.With().Str("component", "churchtools-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		baseURL:     baseURL,
		rateLimiter: ratelimit.NewTracker(cfg.Redis, logger),
		scope:       cache.ScopeFor(cfg.Token),
		config:      cfg,
		logger:      logger,
	}
	c.retryPolicy = c.retryConfigFor

	if cfg.Redis != nil {
		c.cache = cache.NewStore(cfg.Redis)
	}

	return c, nil
}

// retryConfigFor applies the Config overrides to the per-class defaults.
func (c *Client) retryConfigFor(class ErrorClass) RetryConfig {
	rc := RetryConfigForErrorClass(class)
	if c.config.MaxAttempts > 0 {
		rc.MaxAttempts = c.config.MaxAttempts
	}
	if c.config.InitialBackoff > 0 {
		rc.InitialBackoff = c.config.InitialBackoff
		if rc.MaxBackoff < rc.InitialBackoff {
			rc.MaxBackoff = rc.InitialBackoff
		}
	}
	return rc
}

// Do performs an HTTP request with rate limiting, caching, and error handling.
//
// Non-retryable error statuses (4xx) are returned as a response for the caller
// to inspect. Retryable failures that persist are returned as an error wrapping
// ErrRetryExhausted and the last *APIError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(req, true)
}

func (c *Client) do(req *http.Request, useCache bool) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		ctRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Cache
	cacheable := useCache && c.cache != nil && req.Method == http.MethodGet
	cacheKey := cache.Key{Path: req.URL.Path, Query: req.URL.Query(), Scope: c.scope}

	var cachedEntry *cache.Entry
	if cacheable {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		cachedEntry = entry
	}

	// Step 2: Serve fresh entries without validators directly, revalidate the rest
	if cachedEntry != nil {
		if !cache.ShouldMakeConditionalRequest(cachedEntry) {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("age", cachedEntry.Age()).
				Msg("Serving response from cache")
			ctRequestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			return cache.EntryToResponse(cachedEntry, req), nil
		}
		cache.AddConditionalHeaders(req, cachedEntry)
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	// Step 3: Set headers
	c.setHeaders(req)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Msg("Executing ChurchTools request")

	// Step 4: Execute with rate-limit gate and retries
	var resp *http.Response
	attempt := 0

	retryErr := retryWithPolicy(ctx, c.retryPolicy, func() error {
		attempt++
		if err := c.rateLimiter.Wait(ctx, c.config.MaxRateLimitWait); err != nil {
			if errors.Is(err, ratelimit.ErrBlocked) {
				ctRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
				return fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrContextCancelled, err)
			}
			c.logger.Warn().Err(err).Msg("Rate limit check failed - continuing")
		}

		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrContextCancelled, reqErr)
			}
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			ctErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			ctRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return reqErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if _, err := c.rateLimiter.RecordTooManyRequests(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit")
			}
		}

		status := strconv.Itoa(resp.StatusCode)
		ctRequestsTotal.WithLabelValues(endpoint, status).Inc()

		if resp.StatusCode >= 400 {
			errClass := classifyStatus(resp.StatusCode)
			ctErrorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Msg("ChurchTools request error")

			if shouldRetry(errClass) {
				return newAPIError(req, resp)
			}
		}
		return nil
	}, classifyError)

	if retryErr != nil {
		return nil, retryErr
	}

	// Step 5: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()
		resp.Body.Close()

		if err := c.cache.UpdateTTL(ctx, cacheKey, time.Now().Add(c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	// Step 6: Update cache on success
	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	// Step 7: Mutations invalidate cached reads of the resource
	if c.cache != nil && isMutation(req.Method) && resp.StatusCode < 400 {
		root := resourceRoot(req.URL.Path)
		if n, err := c.cache.InvalidatePath(ctx, root, c.scope); err != nil {
			c.logger.Warn().Err(err).Str("path", root).Msg("Failed to invalidate cache")
		} else if n > 0 {
			c.logger.Debug().Str("path", root).Int("keys", n).Msg("Invalidated cached responses")
		}
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Login "+c.config.Token)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// BaseURL returns the configured ChurchTools instance URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Cache returns the response cache store, or nil when Redis is not configured.
func (c *Client) Cache() *cache.Store {
	return c.cache
}

// RateLimiter returns the 429 tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

// endpointLabel replaces numeric path segments so metrics keep a bounded
// label set: /api/groups/42/members becomes /api/groups/{id}/members.
func endpointLabel(path string) string {
	for numericSegment.MatchString(path) {
		path = numericSegment.ReplaceAllString(path, "/{id}$1")
	}
	return path
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// resourceRoot returns the top-level resource of an API path, e.g.
// /api/groups/42/members/7 -> /api/groups. Writes invalidate everything below it
// because list endpoints such as /api/groups/members embed other resources.
func resourceRoot(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "api" {
		return "/api/" + segments[1]
	}
	return path
}
