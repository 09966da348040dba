// Package pagination combines paginated ChurchTools list responses into a single result.
//
// ChurchTools wraps every response in an envelope:
//
//	{"data": [...], "meta": {"pagination": {"total": 120, "current": 1, "limit": 50, "lastPage": 3}}}
//
// Single-resource endpoints return an object in "data" and carry no pagination block.
// The Aggregator turns the first envelope of a request into the complete result by asking
// a PageFetcher for pages 2..lastPage, one at a time and in ascending order:
//
//	first, err := pagination.ParseEnvelope(body)
//	if err != nil {
//		return err
//	}
//	result, err := pagination.Aggregate(ctx, first, fetcher, params)
//	if err != nil {
//		return err // no partial results
//	}
//	groups, err := pagination.DecodeItems[Group](result)
//
// The aggregator never builds HTTP requests itself. The transport (see pkg/client)
// implements PageFetcher and owns authentication, retries and rate limiting.
package pagination
