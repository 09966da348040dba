package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/churchtools-client/pkg/pagination"
)

// TagType is the domain a tag belongs to.
type TagType string

const (
	TagTypeSongs   TagType = "songs"
	TagTypePersons TagType = "persons"
)

type tagRequest struct {
	Name string  `json:"name"`
	Type TagType `json:"type"`
}

// CreateTag creates a tag in the given domain.
func (c *Client) CreateTag(ctx context.Context, name string, tagType TagType) error {
	if _, err := c.send(ctx, http.MethodPost, "/api/tags", tagRequest{Name: name, Type: tagType}, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("create %s tag %q: %w", tagType, name, err)
	}
	return nil
}

// DeleteTag deletes a tag. Not every ChurchTools version supports this; an
// unsupported call surfaces as *APIError.
func (c *Client) DeleteTag(ctx context.Context, name string, tagType TagType) error {
	if _, err := c.send(ctx, http.MethodDelete, "/api/tags", tagRequest{Name: name, Type: tagType}, http.StatusNoContent); err != nil {
		return fmt.Errorf("delete %s tag %q: %w", tagType, name, err)
	}
	return nil
}

// GetTags returns all tags of a domain. An empty tagType means songs.
func (c *Client) GetTags(ctx context.Context, tagType TagType) ([]Tag, error) {
	if tagType == "" {
		tagType = TagTypeSongs
	}
	result, err := c.list(ctx, "/api/tags", url.Values{"type": {string(tagType)}})
	if err != nil {
		return nil, fmt.Errorf("get %s tags: %w", tagType, err)
	}
	return pagination.DecodeItems[Tag](result)
}

// TagsByID maps tag id to name.
func TagsByID(tags []Tag) map[int]string {
	out := make(map[int]string, len(tags))
	for _, t := range tags {
		out[t.ID] = t.Name
	}
	return out
}

// TagsByName maps tag name to id.
func TagsByName(tags []Tag) map[string]int {
	out := make(map[string]int, len(tags))
	for _, t := range tags {
		out[t.Name] = t.ID
	}
	return out
}
