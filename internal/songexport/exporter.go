// Package songexport downloads the sheet files of all songs in one song
// category into a directory.
package songexport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/churchtools-client/pkg/client"
)

// SongClient is the part of *client.Client the exporter needs.
type SongClient interface {
	GetSongs(ctx context.Context, q client.SongsQuery) ([]client.Song, error)
	DownloadFileTo(ctx context.Context, fileURL, path string) (int64, error)
}

// Exporter exports the first file of the first arrangement of each song.
type Exporter struct {
	client     SongClient
	categoryID int
	dir        string
	logger     zerolog.Logger
}

// Failure is a song whose file could not be downloaded.
type Failure struct {
	SongID int
	File   string
	Err    error
}

// Report summarizes an export.
type Report struct {
	Songs      int // songs in the category
	Downloaded int
	Bytes      int64
	Skipped    int // songs without a file
	Failures   []Failure
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(c SongClient, categoryID int, dir string, logger zerolog.Logger) *Exporter {
	return &Exporter{
		client:     c,
		categoryID: categoryID,
		dir:        dir,
		logger:     logger.With().Str("component", "songexport").Logger(),
	}
}

// Run lists all songs and downloads the files of those in the category.
// Download failures are collected in the report.
func (e *Exporter) Run(ctx context.Context) (Report, error) {
	var report Report

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return report, fmt.Errorf("create %s: %w", e.dir, err)
	}

	songs, err := e.client.GetSongs(ctx, client.SongsQuery{})
	if err != nil {
		return report, fmt.Errorf("list songs: %w", err)
	}

	for _, song := range songs {
		if song.Category.ID != e.categoryID {
			continue
		}
		report.Songs++

		file, ok := firstFile(song)
		if !ok {
			report.Skipped++
			e.logger.Debug().Int("song_id", song.ID).Str("song", song.Name).Msg("Song has no file, skipping")
			continue
		}

		name := fileName(file.Name)
		if name == "" {
			report.Skipped++
			e.logger.Warn().Int("song_id", song.ID).Str("file", file.Name).Msg("Unusable file name, skipping")
			continue
		}

		target := filepath.Join(e.dir, name)
		n, err := e.client.DownloadFileTo(ctx, file.FileURL, target)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failures = append(report.Failures, Failure{SongID: song.ID, File: name, Err: err})
			e.logger.Error().Err(err).Int("song_id", song.ID).Str("file", name).Msg("Download failed")
			continue
		}

		report.Downloaded++
		report.Bytes += n
		e.logger.Debug().Int("song_id", song.ID).Str("file", target).Int64("bytes", n).Msg("Downloaded")
	}

	e.logger.Info().
		Int("category_id", e.categoryID).
		Int("songs", report.Songs).
		Int("downloaded", report.Downloaded).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failures)).
		Msg("Song export finished")

	return report, nil
}

func firstFile(song client.Song) (client.File, bool) {
	if len(song.Arrangements) == 0 || len(song.Arrangements[0].Files) == 0 {
		return client.File{}, false
	}
	file := song.Arrangements[0].Files[0]
	return file, file.FileURL != ""
}

// fileName strips any directory part so downloads stay inside the export dir.
func fileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}
