// Package testutil provides testing utilities for the ChurchTools client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request received by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

// MockChurchTools is a configurable mock ChurchTools server for testing.
type MockChurchTools struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	requests          []RecordedRequest
}

// NewMockChurchTools creates a new mock ChurchTools server.
func NewMockChurchTools() *MockChurchTools {
	mock := &MockChurchTools{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockChurchTools) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockChurchTools) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockChurchTools) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.requests = nil
}

// SetHandler sets a custom handler for a path. The pattern is either a path
// ("/api/groups") or a method and path ("PATCH /api/groups/1").
func (m *MockChurchTools) SetHandler(pattern string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = handler
}

// SetResponse configures a fixed response for a pattern.
func (m *MockChurchTools) SetResponse(pattern string, resp MockResponse) {
	m.SetHandler(pattern, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetObject serves {"data": object} for GET pattern.
func (m *MockChurchTools) SetObject(pattern, object string) {
	m.SetResponse(pattern, NewDataResponse(object))
}

// SetPaginated serves items as a paginated list, pageSize items per page,
// selected by the "page" query parameter (default 1). Items are raw JSON.
func (m *MockChurchTools) SetPaginated(pattern string, items []string, pageSize int) {
	m.SetHandler(pattern, PaginatedHandler(items, pageSize))
}

// Requests returns all recorded requests in arrival order.
func (m *MockChurchTools) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestsFor returns the recorded requests with the given method and path.
func (m *MockChurchTools) RequestsFor(method, path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockChurchTools) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockChurchTools) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// defaultHandler answers like ChurchTools does for unknown routes.
func (m *MockChurchTools) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `{"message":"Route not found","translatedMessage":"Route %s not found","errors":[]}`, r.URL.Path)
}

// PaginatedHandler serves items as ChurchTools list pages.
func PaginatedHandler(items []string, pageSize int) http.HandlerFunc {
	if pageSize < 1 {
		pageSize = 10
	}
	lastPage := (len(items) + pageSize - 1) / pageSize
	if lastPage == 0 {
		lastPage = 1
	}

	return func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
			page = p
		}

		start := (page - 1) * pageSize
		end := start + pageSize
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"data":[%s],"meta":{"count":%d,"pagination":{"total":%d,"current":%d,"limit":%d,"lastPage":%d}}}`,
			strings.Join(items[start:end], ","), end-start, len(items), page, pageSize, lastPage)
	}
}

// NewDataResponse wraps data (raw JSON) in a 200 envelope.
func NewDataResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":` + data + `}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewETagResponse is NewDataResponse with an ETag validator.
func NewETagResponse(data, etag string) MockResponse {
	resp := NewDataResponse(data)
	resp.Headers["ETag"] = etag
	return resp
}

// NewErrorResponse creates a ChurchTools error body with the given status.
func NewErrorResponse(status int, message string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"message":           message,
		"translatedMessage": message,
		"errors":            []any{},
	})
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	resp := NewErrorResponse(http.StatusTooManyRequests, "Too Many Requests")
	resp.Headers["Retry-After"] = strconv.Itoa(retryAfter)
	return resp
}

// NewConditionalHandler responds with 304 when If-None-Match equals etag.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":` + data + `}`))
	}
}

// NewSequenceHandler answers with responses in order, repeating the last one.
func NewSequenceHandler(responses ...MockResponse) http.HandlerFunc {
	var (
		mu   sync.Mutex
		next int
	)
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}
