package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	StatusMissing = "MISSING"
	manualPrefix  = "MANUAL"

	// pendingColumns is the minimum for a row to carry an item key.
	pendingColumns = 5

	noExternalID = "N/A"
)

// PendingRow is one unresolved item. Rows read from disk keep their
// original text so that rewriting a list never alters rows it did not touch.
type PendingRow struct {
	Status     string `json:"status"`
	Title      string `json:"title"`
	ExternalID string `json:"imdbId"`
	CatalogID  string `json:"tmdbId"`
	Year       string `json:"year"`
	Error      string `json:"error"`

	raw string
}

// Manual reports whether the row was set aside for manual handling and must
// not be retried automatically.
func (p PendingRow) Manual() bool {
	return strings.HasPrefix(p.raw, manualPrefix) || (p.raw == "" && strings.HasPrefix(p.Status, manualPrefix))
}

// Valid reports whether the row has enough columns to identify an item.
func (p PendingRow) Valid() bool {
	return p.raw == "" || len(splitRow(p.raw)) >= pendingColumns
}

// ExternalIDOrEmpty returns the IMDb id, or "" for the N/A placeholder.
func (p PendingRow) ExternalIDOrEmpty() string {
	if p.ExternalID == noExternalID {
		return ""
	}
	return strings.TrimSpace(p.ExternalID)
}

// WithError returns a copy carrying a new error reason.
func (p PendingRow) WithError(reason string) PendingRow {
	p.Error = reason
	p.raw = ""
	return p
}

func (p PendingRow) sameItem(catalogID, year string) bool {
	return p.Valid() && p.CatalogID == catalogID && p.Year == year
}

func (p PendingRow) line() string {
	if p.raw != "" {
		return p.raw
	}
	status := p.Status
	if status == "" {
		status = StatusMissing
	}
	ext := p.ExternalID
	if ext == "" {
		ext = noExternalID
	}
	return strings.Join([]string{status, p.Title, ext, p.CatalogID, p.Year, p.Error}, "\t")
}

func parsePendingRow(line string) PendingRow {
	p := splitRow(line)
	row := PendingRow{raw: line}
	fields := []*string{&row.Status, &row.Title, &row.ExternalID, &row.CatalogID, &row.Year, &row.Error}
	for i := 0; i < len(fields) && i < len(p); i++ {
		*fields[i] = p[i]
	}
	return row
}

// ReadPending returns every data row of a pending list, including manual
// and malformed rows. A list that does not exist is ErrListNotFound.
func (s *Store) ReadPending(name string) ([]PendingRow, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, name)
	}
	_, lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	rows := make([]PendingRow, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, parsePendingRow(l))
	}
	return rows, nil
}

// WritePending rewrites a pending list with the canonical header.
func (s *Store) WritePending(name string, rows []PendingRow) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = r.line()
	}
	return writeLines(path, PendingHeader, lines)
}

// RemovePending drops every row for (catalogID, year), keeping the file's
// existing header. It reports how many rows were removed.
func (s *Store) RemovePending(name, catalogID, year string) (int, error) {
	path, err := s.Path(name)
	if err != nil {
		return 0, err
	}
	header, lines, err := readLines(path)
	if err != nil {
		return 0, err
	}
	if header == "" {
		header = PendingHeader
	}

	kept := lines[:0]
	removed := 0
	for _, l := range lines {
		if parsePendingRow(l).sameItem(catalogID, year) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, writeLines(path, header, kept)
}
