package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_pagination_pages_fetched_total",
		Help: "Total number of follow-up pages fetched during aggregation",
	})

	aggregationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_pagination_aggregations_total",
		Help: "Total number of aggregations by result (single, collection, error)",
	}, []string{"result"})
)

// PageFetcher fetches one additional page of the request that produced the
// first envelope. Implementations issue the same request with only the page
// number changed.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int, params url.Values) (*Envelope, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, page int, params url.Values) (*Envelope, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, page int, params url.Values) (*Envelope, error) {
	return f(ctx, page, params)
}

// Aggregator combines all pages of a list response.
// It holds no state between calls and may be shared.
type Aggregator struct {
	fetcher PageFetcher
	logger  zerolog.Logger
}

// NewAggregator creates an aggregator that fetches follow-up pages through fetcher.
func NewAggregator(fetcher PageFetcher, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Aggregate is a shorthand for NewAggregator(fetcher, log.Logger).Aggregate.
func Aggregate(ctx context.Context, first *Envelope, fetcher PageFetcher, params url.Values) (Result, error) {
	return NewAggregator(fetcher, log.Logger).Aggregate(ctx, first, params)
}

// Aggregate returns the complete result for the request that produced first.
//
// Object payloads are returned unchanged. Array payloads are extended with the
// data of pages 2..lastPage, fetched sequentially in ascending order. Any fetch
// failure aborts with a *TransportError and no partial result.
func (a *Aggregator) Aggregate(ctx context.Context, first *Envelope, params url.Values) (Result, error) {
	result, err := a.aggregate(ctx, first, params)
	if err != nil {
		aggregationsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	aggregationsTotal.WithLabelValues(result.Kind().String()).Inc()
	return result, nil
}

func (a *Aggregator) aggregate(ctx context.Context, first *Envelope, params url.Values) (Result, error) {
	if first == nil {
		return Result{}, fmt.Errorf("%w: nil envelope", ErrMalformedEnvelope)
	}

	switch first.kind() {
	case dataObject:
		if first.IsPaginated() {
			return Result{}, fmt.Errorf("%w: paginated response with object data", ErrMalformedEnvelope)
		}
		return Single(first.Data), nil
	case dataArray:
	default:
		return Result{}, fmt.Errorf("%w: data must be an object or an array", ErrMalformedEnvelope)
	}

	items, err := first.items()
	if err != nil {
		return Result{}, err
	}

	lastPage := first.LastPage()
	if lastPage == 1 {
		return Collection(items), nil
	}

	start := time.Now()
	a.logger.Debug().
		Int("last_page", lastPage).
		Int("first_page_items", len(items)).
		Msg("Aggregating paginated response")

	for page := 2; page <= lastPage; page++ {
		if err := ctx.Err(); err != nil {
			return Result{}, &TransportError{Page: page, Err: err}
		}

		env, err := a.fetcher.FetchPage(ctx, page, cloneParams(params))
		if err != nil {
			a.logger.Warn().
				Err(err).
				Int("page", page).
				Int("last_page", lastPage).
				Msg("Page fetch failed - aborting aggregation")
			return Result{}, &TransportError{Page: page, Err: err}
		}
		if env == nil {
			return Result{}, fmt.Errorf("%w: page %d: nil envelope", ErrMalformedEnvelope, page)
		}
		pagesFetchedTotal.Inc()

		pageItems, err := env.items()
		if err != nil {
			return Result{}, fmt.Errorf("page %d: %w", page, err)
		}
		items = append(items, pageItems...)

		a.logger.Debug().
			Int("page", page).
			Int("items", len(pageItems)).
			Msg("Page fetched")
	}

	a.logger.Info().
		Int("pages", lastPage).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Aggregation complete")

	return Collection(items), nil
}

// cloneParams returns a deep copy so fetchers can set the page number freely.
func cloneParams(params url.Values) url.Values {
	out := make(url.Values, len(params)+1)
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	return out
}

var _ json.Marshaler = Result{}
