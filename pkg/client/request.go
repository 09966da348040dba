package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/Sternrassler/churchtools-client/pkg/pagination"
)

// newRequest builds a request for an API path relative to the base URL.
// A non-nil body is JSON encoded.
func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body any) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// getEnvelope performs a GET and parses the ChurchTools envelope.
// Any status other than 200 is returned as *APIError.
func (c *Client) getEnvelope(ctx context.Context, path string, params url.Values) (*pagination.Envelope, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(req, resp)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return pagination.ParseEnvelope(body)
}

// list fetches path and follows pagination until the complete data set is
// assembled. Single-object responses are returned unchanged.
func (c *Client) list(ctx context.Context, path string, params url.Values) (pagination.Result, error) {
	first, err := c.getEnvelope(ctx, path, params)
	if err != nil {
		return pagination.Result{}, err
	}
	return pagination.NewAggregator(c.PageFetcher(path), c.logger).Aggregate(ctx, first, params)
}

// Fetch performs a GET on any API path and returns the aggregated data.
func (c *Client) Fetch(ctx context.Context, path string, params url.Values) (pagination.Result, error) {
	return c.list(ctx, path, params)
}

// PageFetcher returns a pagination.PageFetcher that re-issues GET path with
// the page parameter overridden.
func (c *Client) PageFetcher(path string) pagination.PageFetcher {
	return pagination.PageFetcherFunc(func(ctx context.Context, page int, params url.Values) (*pagination.Envelope, error) {
		if params == nil {
			params = url.Values{}
		}
		params.Set("page", strconv.Itoa(page))
		return c.getEnvelope(ctx, path, params)
	})
}

// send performs a mutation and checks the status against want. The parsed
// envelope is returned when the response has a body, nil otherwise.
func (c *Client) send(ctx context.Context, method, path string, body any, want ...int) (*pagination.Envelope, error) {
	req, err := c.newRequest(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(want, resp.StatusCode) {
		return nil, newAPIError(req, resp)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return pagination.ParseEnvelope(data)
}

// decodeData unmarshals the envelope's data into v.
func decodeData(env *pagination.Envelope, v any) error {
	if env == nil {
		return fmt.Errorf("%w: empty response", pagination.ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func intParams(values url.Values, key string, ids []int) {
	for _, id := range ids {
		values.Add(key, strconv.Itoa(id))
	}
}
