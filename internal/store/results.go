package store

import (
	"strings"
)

const resultColumns = 8

// ResultRow is one resolved torrent.
type ResultRow struct {
	MovieName  string `json:"movieName"`
	Locator    string `json:"magnetLink"`
	Title      string `json:"title"`
	ExternalID string `json:"imdbId"`
	CatalogID  string `json:"tmdbId"`
	Year       string `json:"year"`
	Quality    string `json:"quality"`
	Size       string `json:"size"`
}

func (r ResultRow) line() string {
	return strings.Join([]string{
		r.MovieName, r.Locator, r.Title, r.ExternalID,
		r.CatalogID, r.Year, r.Quality, r.Size,
	}, "\t")
}

func parseResultRow(line string) (ResultRow, bool) {
	p := splitRow(line)
	if len(p) < resultColumns {
		return ResultRow{}, false
	}
	return ResultRow{
		MovieName:  p[0],
		Locator:    p[1],
		Title:      p[2],
		ExternalID: p[3],
		CatalogID:  p[4],
		Year:       p[5],
		Quality:    p[6],
		Size:       p[7],
	}, true
}

// ReadResults returns the well-formed rows of a results list. A missing
// file has no rows.
func (s *Store) ReadResults(name string) ([]ResultRow, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	_, lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	rows := make([]ResultRow, 0, len(lines))
	for _, l := range lines {
		if r, ok := parseResultRow(l); ok {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// AppendResult adds one row, creating the list with its header if needed.
func (s *Store) AppendResult(name string, row ResultRow) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	return appendLine(path, ResultsHeader, row.line())
}
