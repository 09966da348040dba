package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "translated message preferred",
			err: &APIError{
				StatusCode:        403,
				Method:            "GET",
				Path:              "/api/groups/1",
				Message:           "Forbidden",
				TranslatedMessage: "Keine Berechtigung",
			},
			want: "churchtools GET /api/groups/1: status 403: Keine Berechtigung",
		},
		{
			name: "raw message",
			err:  &APIError{StatusCode: 400, Method: "POST", Path: "/api/tags", Message: "invalid type"},
			want: "churchtools POST /api/tags: status 400: invalid type",
		},
		{
			name: "status text fallback",
			err:  &APIError{StatusCode: 500, Method: "GET", Path: "/api/songs"},
			want: "churchtools GET /api/songs: status 500: Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		status int
		target error
		want   bool
	}{
		{404, ErrNotFound, true},
		{401, ErrUnauthorized, true},
		{403, ErrUnauthorized, true},
		{429, ErrRateLimited, true},
		{400, ErrNotFound, false},
		{404, ErrUnauthorized, false},
		{500, ErrRetryExhausted, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%v", tt.status, tt.target), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &APIError{StatusCode: tt.status})
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Errorf("errors.Is(%d, %v) = %v, want %v", tt.status, tt.target, got, tt.want)
			}
		})
	}
}

func TestNewAPIError(t *testing.T) {
	req, _ := http.NewRequest("DELETE", "https://example.church.tools/api/tags", nil)

	t.Run("churchtools error body", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: 422,
			Body: io.NopCloser(strings.NewReader(
				`{"message":"Validation failed","translatedMessage":"Ungültig","errors":[{"fieldId":"name"}]}`)),
		}

		apiErr := newAPIError(req, resp)

		if apiErr.StatusCode != 422 || apiErr.Method != "DELETE" || apiErr.Path != "/api/tags" {
			t.Errorf("unexpected request fields: %+v", apiErr)
		}
		if apiErr.Class != ErrorClassClient {
			t.Errorf("Class = %q, want client", apiErr.Class)
		}
		if apiErr.Message != "Validation failed" || apiErr.TranslatedMessage != "Ungültig" {
			t.Errorf("messages = %q / %q", apiErr.Message, apiErr.TranslatedMessage)
		}
		if string(apiErr.Errors) != `[{"fieldId":"name"}]` {
			t.Errorf("Errors = %s", apiErr.Errors)
		}
	})

	t.Run("plain text body", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: 502,
			Body:       io.NopCloser(strings.NewReader("upstream down")),
		}

		apiErr := newAPIError(req, resp)

		if apiErr.Message != "upstream down" {
			t.Errorf("Message = %q", apiErr.Message)
		}
		if apiErr.Class != ErrorClassServer {
			t.Errorf("Class = %q, want server", apiErr.Class)
		}
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "nil", err: nil, want: ""},
		{name: "network", err: io.ErrUnexpectedEOF, want: ErrorClassNetwork},
		{name: "api server error", err: &APIError{StatusCode: 500, Class: ErrorClassServer}, want: ErrorClassServer},
		{name: "wrapped api error", err: fmt.Errorf("x: %w", &APIError{StatusCode: 429, Class: ErrorClassRateLimit}), want: ErrorClassRateLimit},
		{name: "rate limit gate", err: fmt.Errorf("%w: blocked", ErrRateLimited), want: ""},
		{name: "cancelled", err: fmt.Errorf("%w: deadline", ErrContextCancelled), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}
	for _, tt := range tests {
		if got := shouldRetry(tt.class); got != tt.want {
			t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
		}
	}
}
