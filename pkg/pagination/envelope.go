package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the JSON wrapper returned by every ChurchTools API call.
type Envelope struct {
	// Data is the payload: an object for single resources, an array for lists.
	Data json.RawMessage `json:"data"`

	// Meta is optional and only carries pagination for list endpoints.
	Meta *Meta `json:"meta,omitempty"`
}

// Meta holds response metadata.
type Meta struct {
	Count      int         `json:"count,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes the page slice a list response belongs to.
type Pagination struct {
	Total    int `json:"total"`
	Current  int `json:"current"`
	Limit    int `json:"limit"`
	LastPage int `json:"lastPage"`
}

// dataKind is the JSON shape of an envelope's data field.
type dataKind int

const (
	dataInvalid dataKind = iota
	dataObject
	dataArray
)

// ParseEnvelope decodes a response body into an Envelope.
// A body without a data field (or with "data": null) is malformed.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.kind() == dataInvalid {
		return nil, fmt.Errorf("%w: data must be an object or an array", ErrMalformedEnvelope)
	}
	return &env, nil
}

// LastPage returns the last page number announced by the envelope.
// Absent pagination metadata means the response is complete (1).
func (e *Envelope) LastPage() int {
	if e.Meta == nil || e.Meta.Pagination == nil || e.Meta.Pagination.LastPage < 1 {
		return 1
	}
	return e.Meta.Pagination.LastPage
}

// IsPaginated reports whether the envelope carries a pagination block.
func (e *Envelope) IsPaginated() bool {
	return e.Meta != nil && e.Meta.Pagination != nil
}

func (e *Envelope) kind() dataKind {
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 {
		return dataInvalid
	}
	switch trimmed[0] {
	case '{':
		return dataObject
	case '[':
		return dataArray
	default:
		return dataInvalid
	}
}

// items splits an array payload into its raw elements, preserving order.
func (e *Envelope) items() ([]json.RawMessage, error) {
	if e.kind() != dataArray {
		return nil, fmt.Errorf("%w: data is not an array", ErrMalformedEnvelope)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(e.Data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return items, nil
}
