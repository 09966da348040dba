package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when ChurchTools asked us to back off for longer
	// than Config.MaxRateLimitWait, or when a 429 response is surfaced to the caller.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound matches APIErrors with status 404.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized matches APIErrors with status 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is returned when ChurchTools answers with an unexpected status.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Class      ErrorClass

	// Message and TranslatedMessage come from the ChurchTools error body.
	Message           string
	TranslatedMessage string
	Errors            json.RawMessage
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.TranslatedMessage
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("churchtools %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets callers test for ErrNotFound, ErrUnauthorized and ErrRateLimited.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// newAPIError builds an APIError from resp and closes its body.
func newAPIError(req *http.Request, resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		Path:       req.URL.Path,
		Class:      classifyStatus(resp.StatusCode),
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	var payload struct {
		Message           string          `json:"message"`
		TranslatedMessage string          `json:"translatedMessage"`
		Errors            json.RawMessage `json:"errors"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Message
		apiErr.TranslatedMessage = payload.TranslatedMessage
		apiErr.Errors = payload.Errors
	} else if len(body) > 0 && len(body) < 512 {
		apiErr.Message = string(body)
	}

	return apiErr
}

// classifyStatus maps an HTTP status to an ErrorClass. Success codes return "".
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// classifyError categorizes an error returned from a request attempt.
// Errors that must not be retried (caller cancellation, rate-limit gate) return "".
func classifyError(err error) ErrorClass {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Class
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrContextCancelled):
		return ""
	default:
		return ErrorClassNetwork
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are permanent
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
