package pagination

import (
	"encoding/json"
	"fmt"
)

// Kind tells whether a Result holds a single object or a collection.
type Kind int

const (
	// KindSingle is a non-paginated single resource.
	KindSingle Kind = iota + 1

	// KindCollection is the concatenation of every page of a list.
	KindCollection
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// Result is the aggregated response of a request. It is decided once from the
// first envelope and never changes kind afterwards.
type Result struct {
	kind   Kind
	object json.RawMessage
	items  []json.RawMessage
}

// Single wraps one JSON object.
func Single(object json.RawMessage) Result {
	return Result{kind: KindSingle, object: object}
}

// Collection wraps an ordered list of JSON objects.
func Collection(items []json.RawMessage) Result {
	if items == nil {
		items = []json.RawMessage{}
	}
	return Result{kind: KindCollection, items: items}
}

// Kind returns the result kind.
func (r Result) Kind() Kind { return r.kind }

// IsSingle reports whether the result is a single object.
func (r Result) IsSingle() bool { return r.kind == KindSingle }

// Object returns the single object, or false for collections.
func (r Result) Object() (json.RawMessage, bool) {
	if r.kind != KindSingle {
		return nil, false
	}
	return r.object, true
}

// Items returns the collection elements, or false for single results.
func (r Result) Items() ([]json.RawMessage, bool) {
	if r.kind != KindCollection {
		return nil, false
	}
	return r.items, true
}

// Len returns the number of objects held by the result.
func (r Result) Len() int {
	switch r.kind {
	case KindSingle:
		return 1
	case KindCollection:
		return len(r.items)
	default:
		return 0
	}
}

// List returns the result as a list. A single object becomes a one-element list,
// which is how list endpoints that answered with one object are presented.
func (r Result) List() []json.RawMessage {
	switch r.kind {
	case KindSingle:
		return []json.RawMessage{r.object}
	case KindCollection:
		return r.items
	default:
		return nil
	}
}

// MarshalJSON encodes the result as an object or an array.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case KindSingle:
		return r.object, nil
	case KindCollection:
		return json.Marshal(r.items)
	default:
		return []byte("null"), nil
	}
}

// Decode unmarshals the result into v: the object for single results, the
// array for collections.
func (r Result) Decode(v any) error {
	data, err := r.MarshalJSON()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s result: %w", r.kind, err)
	}
	return nil
}

// DecodeItems decodes every object of the result into T, in order.
// Single results decode to a one-element slice.
func DecodeItems[T any](r Result) ([]T, error) {
	list := r.List()
	out := make([]T, 0, len(list))
	for i, raw := range list {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// DecodeObject decodes a single result into T.
func DecodeObject[T any](r Result) (*T, error) {
	raw, ok := r.Object()
	if !ok {
		return nil, fmt.Errorf("%w: expected a single object, got %s", ErrMalformedEnvelope, r.kind)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return &out, nil
}
