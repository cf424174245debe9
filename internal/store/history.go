package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jwheet/MovieHound/internal/resolver"
)

var ErrHistoryNotFound = errors.New("history entry not found")

// HistoryEntry aggregates one conversion: a results list and its pending
// list.
type HistoryEntry struct {
	ResultsFilename string    `json:"resultsFilename"`
	ErrorsFilename  string    `json:"errorsFilename"`
	Date            time.Time `json:"date"`
	SuccessCount    int       `json:"successCount"`
	ErrorCount      int       `json:"errorCount"`
	TotalCount      int       `json:"totalCount"`
	Quality         string    `json:"quality"`
	TotalSize       string    `json:"totalSize"`
	TotalSizeBytes  int64     `json:"totalSizeBytes"`
}

// RefreshUpdate is what a finished refresh job adds to its entry.
type RefreshUpdate struct {
	ResultsFilename string
	ErrorsFilename  string
	Quality         string
	Found           int
	Remaining       int
	AddedBytes      int64
}

// History persists conversion history in sqlite.
type History struct {
	db     *sql.DB
	store  *Store
	clock  clockwork.Clock
	logger zerolog.Logger
}

func NewHistory(db *sql.DB, store *Store, logger zerolog.Logger) *History {
	return &History{
		db:     db,
		store:  store,
		clock:  clockwork.NewRealClock(),
		logger: logger.With().Str("component", "history").Logger(),
	}
}

const historyColumns = `results_filename, errors_filename, date, success_count, error_count,
	total_count, quality, total_size, total_size_bytes`

func scanHistory(row interface{ Scan(...any) error }) (*HistoryEntry, error) {
	var e HistoryEntry
	var date string
	if err := row.Scan(&e.ResultsFilename, &e.ErrorsFilename, &date, &e.SuccessCount, &e.ErrorCount,
		&e.TotalCount, &e.Quality, &e.TotalSize, &e.TotalSizeBytes); err != nil {
		return nil, err
	}
	e.Date, _ = time.Parse(time.RFC3339Nano, date)
	return &e, nil
}

// List returns every entry, newest first.
func (h *History) List(ctx context.Context) ([]*HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT `+historyColumns+` FROM conversion_history ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := []*HistoryEntry{}
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (h *History) Get(ctx context.Context, resultsFilename string) (*HistoryEntry, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM conversion_history WHERE results_filename = ?`, resultsFilename)
	e, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	return e, err
}

// Save inserts or replaces an entry.
func (h *History) Save(ctx context.Context, e *HistoryEntry) error {
	if e.Date.IsZero() {
		e.Date = h.clock.Now().UTC()
	}
	e.TotalSize = resolver.FormatBytes(e.TotalSizeBytes)

	_, err := h.db.ExecContext(ctx, `INSERT INTO conversion_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(results_filename) DO UPDATE SET
			errors_filename = excluded.errors_filename,
			date = excluded.date,
			success_count = excluded.success_count,
			error_count = excluded.error_count,
			total_count = excluded.total_count,
			quality = excluded.quality,
			total_size = excluded.total_size,
			total_size_bytes = excluded.total_size_bytes`,
		e.ResultsFilename, e.ErrorsFilename, e.Date.Format(time.RFC3339Nano), e.SuccessCount, e.ErrorCount,
		e.TotalCount, e.Quality, e.TotalSize, e.TotalSizeBytes)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	return nil
}

// ApplyRefresh folds a finished refresh into the entry for its results
// list: the success count grows by Found, the error count becomes
// Remaining and the total size grows by AddedBytes. A list with no entry
// gets a fresh one.
func (h *History) ApplyRefresh(ctx context.Context, u RefreshUpdate) (*HistoryEntry, error) {
	e, err := h.Get(ctx, u.ResultsFilename)
	switch {
	case errors.Is(err, ErrHistoryNotFound):
		e = &HistoryEntry{
			ResultsFilename: u.ResultsFilename,
			ErrorsFilename:  u.ErrorsFilename,
			Quality:         u.Quality,
			TotalCount:      u.Found + u.Remaining,
		}
	case err != nil:
		return nil, err
	}

	e.SuccessCount += u.Found
	e.ErrorCount = u.Remaining
	e.TotalSizeBytes += u.AddedBytes
	if e.ErrorsFilename == "" {
		e.ErrorsFilename = u.ErrorsFilename
	}

	if err := h.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes the entry along with its results and pending lists. Files
// that are already gone are ignored.
func (h *History) Delete(ctx context.Context, resultsFilename string) error {
	e, err := h.Get(ctx, resultsFilename)
	if err != nil {
		return err
	}

	for _, name := range []string{e.ResultsFilename, e.ErrorsFilename} {
		if name == "" {
			continue
		}
		path, err := h.store.Path(name)
		if err != nil {
			return err
		}
		err = os.Remove(path)
		switch {
		case os.IsNotExist(err):
			h.logger.Debug().Str("file", name).Msg("List file already deleted")
		case err != nil:
			return fmt.Errorf("failed to delete %s: %w", name, err)
		}
	}

	if _, err := h.db.ExecContext(ctx, `DELETE FROM conversion_history WHERE results_filename = ?`, resultsFilename); err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	h.logger.Info().Str("file", resultsFilename).Msg("Deleted conversion")
	return nil
}
