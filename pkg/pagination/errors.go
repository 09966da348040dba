package pagination

import (
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is returned when a response does not have the expected
// data/meta shape.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// TransportError reports that fetching a page failed. Aggregation stops at the
// first TransportError and returns no partial data.
type TransportError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
