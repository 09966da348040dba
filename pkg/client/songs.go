package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/Sternrassler/churchtools-client/pkg/pagination"
)

// SongsQuery filters GetSongs. Zero values are omitted.
type SongsQuery struct {
	IDs      []int
	Practice *bool
	Key      string
	Limit    int
}

func (q SongsQuery) values() url.Values {
	v := url.Values{}
	intParams(v, "ids[]", q.IDs)
	if q.Practice != nil {
		v.Set("practice", strconv.FormatBool(*q.Practice))
	}
	if q.Key != "" {
		v.Set("key_of_arrangement", q.Key)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// GetSongs returns all songs matching q, across all pages.
func (c *Client) GetSongs(ctx context.Context, q SongsQuery) ([]Song, error) {
	result, err := c.list(ctx, "/api/songs", q.values())
	if err != nil {
		return nil, fmt.Errorf("get songs: %w", err)
	}
	return pagination.DecodeItems[Song](result)
}

// GetSong returns a single song.
func (c *Client) GetSong(ctx context.Context, songID int) (*Song, error) {
	result, err := c.list(ctx, "/api/songs/"+strconv.Itoa(songID), nil)
	if err != nil {
		return nil, fmt.Errorf("get song %d: %w", songID, err)
	}
	return pagination.DecodeObject[Song](result)
}

// DownloadFile streams the file at fileURL into w. Relative URLs are resolved
// against the base URL. Downloads bypass the response cache.
//
// Files hosted elsewhere (external link files) are fetched without the login
// token and outside the ChurchTools rate limit.
func (c *Client) DownloadFile(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	ref, err := url.Parse(fileURL)
	if err != nil {
		return 0, fmt.Errorf("parse file url: %w", err)
	}
	target := c.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")

	var resp *http.Response
	if c.sameOrigin(target) {
		resp, err = c.do(req, false)
	} else {
		c.logger.Debug().Str("host", target.Host).Msg("Downloading external file without credentials")
		req.Header.Set("User-Agent", c.config.UserAgent)
		resp, err = c.httpClient.Do(req)
	}
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", target.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: %w", target.Path, newAPIError(req, resp))
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", target.Path, err)
	}
	return n, nil
}

// sameOrigin reports whether u points at the configured ChurchTools instance.
func (c *Client) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.baseURL.Scheme) && strings.EqualFold(u.Host, c.baseURL.Host)
}

// DownloadFileTo downloads fileURL into path. A partially written file is
// removed on failure.
func (c *Client) DownloadFileTo(ctx context.Context, fileURL, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := c.DownloadFile(ctx, fileURL, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", path, closeErr)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}
