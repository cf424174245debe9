package store

import (
	"fmt"
	"regexp"

	"github.com/jwheet/MovieHound/internal/magnet"
)

const (
	DefaultManualQuality = "1080p"
	DefaultManualSize    = "Unknown"
)

var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// FormatMovieName builds the canonical "Title (Year) [quality]" name used
// for torrents and renamed files. Quality is optional.
func FormatMovieName(title, year, quality string) string {
	name := fmt.Sprintf("%s (%s)", unsafeNameChars.ReplaceAllString(title, ""), year)
	if quality != "" {
		name += " [" + quality + "]"
	}
	return name
}

// ManualMagnet is an operator-supplied locator for a pending item.
type ManualMagnet struct {
	PendingFile string `json:"errorsFilename"`
	CatalogID   string `json:"tmdbId"`
	Locator     string `json:"magnetLink"`
	Quality     string `json:"quality,omitempty"`
	Size        string `json:"size,omitempty"`
}

// AddManualMagnet moves the pending row for m.CatalogID into the matching
// results list. The row is looked up by its catalog id column; a missing
// IMDb id is written as "tt<catalog id>".
func (s *Store) AddManualMagnet(m ManualMagnet) (ResultRow, error) {
	if !IsPendingName(m.PendingFile) {
		return ResultRow{}, fmt.Errorf("%w: %q is not a pending list", ErrInvalidFilename, m.PendingFile)
	}
	if err := magnet.Validate(m.Locator); err != nil {
		return ResultRow{}, err
	}
	path, err := s.Path(m.PendingFile)
	if err != nil {
		return ResultRow{}, err
	}
	header, lines, err := readLines(path)
	if err != nil {
		return ResultRow{}, err
	}

	idx := -1
	var found PendingRow
	for i, l := range lines {
		row := parsePendingRow(l)
		if len(splitRow(l)) >= pendingColumns && row.CatalogID == m.CatalogID {
			idx, found = i, row
			break
		}
	}
	if idx < 0 {
		return ResultRow{}, fmt.Errorf("%w: catalog id %s in %s", ErrRowNotFound, m.CatalogID, m.PendingFile)
	}

	quality := m.Quality
	if quality == "" {
		quality = DefaultManualQuality
	}
	size := m.Size
	if size == "" {
		size = DefaultManualSize
	}
	ext := found.ExternalIDOrEmpty()
	if ext == "" {
		ext = "tt" + m.CatalogID
	}

	row := ResultRow{
		MovieName:  FormatMovieName(found.Title, found.Year, quality),
		Locator:    m.Locator,
		Title:      found.Title,
		ExternalID: ext,
		CatalogID:  m.CatalogID,
		Year:       found.Year,
		Quality:    quality,
		Size:       size,
	}
	if err := s.AppendResult(ResultsName(m.PendingFile), row); err != nil {
		return ResultRow{}, err
	}

	remaining := append(lines[:idx:idx], lines[idx+1:]...)
	if header == "" {
		header = PendingHeader
	}
	if err := writeLines(path, header, remaining); err != nil {
		return row, err
	}

	s.logger.Info().Str("title", found.Title).Str("file", m.PendingFile).Msg("Added manual magnet")
	return row, nil
}
