package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/churchtools-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func songItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id":%d,"name":"Song %d","category":{"id":%d,"name":"Cat"},"arrangements":[{"id":1,"name":"Default","isDefault":true,"files":[{"name":"song%d.sng","fileUrl":"/files/%d"}]}]}`,
			i+1, i+1, i%2+1, i+1, i+1)
	}
	return items
}

func TestGetSongs(t *testing.T) {
	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetPaginated("/api/songs", songItems(7), 3)

	client := newTestClient(t, mock.URL(), nil)

	songs, err := client.GetSongs(context.Background(), SongsQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, songs, 7)
	assert.Equal(t, "Song 7", songs[6].Name)
	assert.Equal(t, "/files/1", songs[0].Arrangements[0].Files[0].FileURL)

	requests := mock.RequestsFor("GET", "/api/songs")
	require.Len(t, requests, 3)
	for _, r := range requests {
		assert.Equal(t, []string{"3"}, r.Query["limit"])
	}
}

func TestGetSong(t *testing.T) {
	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetObject("/api/songs/5", `{"id":5,"name":"Amazing Grace","category":{"id":1,"name":"EG"},"arrangements":[]}`)

	client := newTestClient(t, mock.URL(), nil)

	song, err := client.GetSong(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Amazing Grace", song.Name)
	assert.Equal(t, 1, song.Category.ID)
}

func TestDownloadFile(t *testing.T) {
	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetResponse("/files/1", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "#Title=Song 1\n---\nLine",
		Headers:    map[string]string{"Content-Type": "application/octet-stream"},
	})

	client := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := client.DownloadFile(ctx, "/files/1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "#Title=Song 1\n---\nLine", buf.String())

	buf.Reset()
	_, err = client.DownloadFile(ctx, mock.URL()+"/files/1", &buf)
	require.NoError(t, err)
	assert.Equal(t, "#Title=Song 1\n---\nLine", buf.String())

	assert.Equal(t, "Login test-token", mock.LastRequestHeader.Get("Authorization"))
}

func TestDownloadFileTo(t *testing.T) {
	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetResponse("/files/1", testutil.MockResponse{StatusCode: http.StatusOK, Body: "content"})

	client := newTestClient(t, mock.URL(), nil)
	dir := t.TempDir()

	target := filepath.Join(dir, "song.sng")
	_, err := client.DownloadFileTo(context.Background(), "/files/1", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestDownloadFileTo_FailureRemovesFile(t *testing.T) {
	mock := testutil.NewMockChurchTools()
	defer mock.Close()

	client := newTestClient(t, mock.URL(), nil)
	target := filepath.Join(t.TempDir(), "missing.sng")

	_, err := client.DownloadFileTo(context.Background(), "/files/404", target)
	assert.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr), "partial file should be removed")
}

func TestDownloadFile_ForeignHostGetsNoToken(t *testing.T) {
	mock := testutil.NewMockChurchTools()
	defer mock.Close()

	var gotAuth []string
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.Write([]byte("external"))
	}))
	defer foreign.Close()

	client := newTestClient(t, mock.URL(), nil)

	var buf bytes.Buffer
	n, err := client.DownloadFile(context.Background(), foreign.URL+"/files/1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "external", buf.String())

	require.Len(t, gotAuth, 1)
	assert.Empty(t, gotAuth[0], "token must not leave the ChurchTools host")
	assert.Zero(t, mock.GetRequestCount())
}

func TestDownloadFile_SameHostAbsoluteURLGetsToken(t *testing.T) {
	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetHandler("/files/9", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("internal"))
	})

	client := newTestClient(t, mock.URL(), nil)

	var buf bytes.Buffer
	_, err := client.DownloadFile(context.Background(), mock.URL()+"/files/9", &buf)
	require.NoError(t, err)

	requests := mock.RequestsFor("GET", "/files/9")
	require.Len(t, requests, 1)
	assert.Equal(t, "Login test-token", requests[0].Header.Get("Authorization"))
}
