// Package store reads and writes the tab-separated result and pending lists
// kept in the lists directory, and the conversion history kept in sqlite.
//
// A results list ("movies.txt") holds one resolved torrent per row. Its
// pending list ("movies_errors.txt") holds the items that still need one.
// Writes are whole-file rewrites or appends and are not locked; callers
// must not run two writers against the same pair of files.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ResultsHeader = "Movie Name\tMagnet Link\tTitle\tIMDB ID\tTMDB ID\tRelease Year\tQuality\tSize"
	PendingHeader = "Status\tTitle\tIMDB ID\tTMDB ID\tRelease Year\tError"

	pendingSuffix = "_errors.txt"
	listExt       = ".txt"
)

var (
	ErrRowNotFound     = errors.New("row not found")
	ErrListNotFound    = errors.New("list not found")
	ErrInvalidFilename = errors.New("invalid list filename")
)

// Store is rooted at one lists directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

func New(dir string, logger zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Dir returns the lists directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path resolves a bare list filename inside the lists directory. Names with
// directory components are rejected.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return filepath.Join(s.dir, name), nil
}

// PendingName maps "movies.txt" to "movies_errors.txt".
func PendingName(results string) string {
	return strings.TrimSuffix(results, listExt) + pendingSuffix
}

// ResultsName maps "movies_errors.txt" to "movies.txt".
func ResultsName(pending string) string {
	return strings.TrimSuffix(pending, pendingSuffix) + listExt
}

// IsPendingName reports whether name is a pending list.
func IsPendingName(name string) bool {
	return strings.HasSuffix(name, pendingSuffix)
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create lists directory: %w", err)
	}
	return nil
}
