// Package cache stores ChurchTools GET responses in Redis.
//
// ChurchTools does not send Expires headers, so entries live for a configured
// TTL. When the server does send an ETag or Last-Modified header, the cached
// entry is revalidated with a conditional request and a 304 Not Modified answer
// is served from the cache.
//
// # Basic Usage
//
//	store := cache.NewStore(redisClient)
//
//	key := cache.Key{
//		Path:  "/api/groups/42/members",
//		Query: url.Values{"page": []string{"2"}},
//		Scope: cache.ScopeFor(token),
//	}
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from ChurchTools
//	}
//
// Every key carries a scope derived from the login token so that responses
// fetched with different permissions never mix.
//
// # Invalidation
//
// Writes through pkg/client call InvalidatePath for the resource they modified,
// which drops every cached GET at or below that path:
//
//	store.InvalidatePath(ctx, "/api/groups/42", scope)
//
// # Metrics
//
//   - ct_cache_hits_total
//   - ct_cache_misses_total
//   - ct_cache_errors_total{operation}
//   - ct_cache_invalidations_total
//   - ct_304_responses_total
package cache
