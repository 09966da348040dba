package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_cache_hits_total",
		Help: "Total number of ChurchTools response cache hits",
	})

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_cache_misses_total",
		Help: "Total number of ChurchTools response cache misses",
	})

	// NotModifiedResponses tracks 304 answers served from cache.
	NotModifiedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_304_responses_total",
		Help: "Total number of 304 Not Modified responses served from cache",
	})

	// Invalidations tracks keys dropped after writes.
	Invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_cache_invalidations_total",
		Help: "Total number of cache keys removed by write invalidation",
	})

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_cache_errors_total",
		Help: "Total number of cache operation errors",
	}, []string{"operation"}) // "get", "set", "delete", "invalidate"
)
