package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// CleanupDetail describes the changes made to one pair of lists.
type CleanupDetail struct {
	File              string `json:"file"`
	DuplicatesRemoved int    `json:"duplicatesRemoved"`
	MalformedRemoved  int    `json:"malformedRemoved"`
	ErrorsFixed       int    `json:"errorsFixed"`
}

// CleanupReport summarizes one sweep over the lists directory.
type CleanupReport struct {
	FilesScanned      int             `json:"filesScanned"`
	DuplicatesRemoved int             `json:"duplicatesRemoved"`
	ErrorsFixed       int             `json:"errorsFixed"`
	Details           []CleanupDetail `json:"details"`
}

// Cleanup deduplicates every results list on (catalog id, year, quality),
// drops malformed result rows, and removes pending rows whose item already
// has a result. Files are rewritten only when something changed, so a
// second sweep changes nothing.
func (s *Store) Cleanup(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{Details: []CleanupDetail{}}

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, listExt) || IsPendingName(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.FilesScanned++

		detail, err := s.cleanupPair(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("Cleanup failed for list")
			continue
		}
		if detail.DuplicatesRemoved+detail.MalformedRemoved+detail.ErrorsFixed == 0 {
			continue
		}
		report.DuplicatesRemoved += detail.DuplicatesRemoved
		report.ErrorsFixed += detail.ErrorsFixed
		report.Details = append(report.Details, detail)
	}

	s.logger.Info().
		Int("filesScanned", report.FilesScanned).
		Int("duplicatesRemoved", report.DuplicatesRemoved).
		Int("errorsFixed", report.ErrorsFixed).
		Msg("Cleanup finished")
	return report, nil
}

func (s *Store) cleanupPair(resultsName string) (CleanupDetail, error) {
	detail := CleanupDetail{File: resultsName}

	resultsPath, err := s.Path(resultsName)
	if err != nil {
		return detail, err
	}
	header, lines, err := readLines(resultsPath)
	if err != nil {
		return detail, err
	}
	if header == "" {
		header = ResultsHeader
	}

	seen := make(map[string]bool, len(lines))
	have := make(map[string]bool, len(lines))
	unique := make([]string, 0, len(lines))
	for _, l := range lines {
		r, ok := parseResultRow(l)
		if !ok {
			detail.MalformedRemoved++
			continue
		}
		key := r.CatalogID + "-" + r.Year + "-" + r.Quality
		if seen[key] {
			detail.DuplicatesRemoved++
			continue
		}
		seen[key] = true
		have[r.CatalogID+"-"+r.Year] = true
		unique = append(unique, l)
	}

	if detail.DuplicatesRemoved+detail.MalformedRemoved > 0 {
		if err := writeLines(resultsPath, header, unique); err != nil {
			return detail, err
		}
	}

	pendingPath, err := s.Path(PendingName(resultsName))
	if err != nil {
		return detail, err
	}
	pHeader, pLines, err := readLines(pendingPath)
	if err != nil {
		return detail, err
	}
	if len(pLines) == 0 {
		return detail, nil
	}

	kept := make([]string, 0, len(pLines))
	for _, l := range pLines {
		row := parsePendingRow(l)
		if len(splitRow(l)) >= pendingColumns && have[row.CatalogID+"-"+row.Year] {
			detail.ErrorsFixed++
			continue
		}
		kept = append(kept, l)
	}
	if detail.ErrorsFixed > 0 {
		if pHeader == "" {
			pHeader = PendingHeader
		}
		if err := writeLines(pendingPath, pHeader, kept); err != nil {
			return detail, err
		}
	}
	return detail, nil
}
