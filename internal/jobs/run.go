package jobs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jwheet/MovieHound/internal/resolver"
	"github.com/jwheet/MovieHound/internal/store"
)

func itemKey(catalogID, year string) string {
	return catalogID + "-" + year
}

func (m *Manager) run(id string, p Params, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			m.fail(id, fmt.Errorf("refresh panicked: %v", r))
		}
	}()

	ctx := m.background
	logger := m.logger.With().Str("job", id).Logger()

	rows, err := m.lists.ReadPending(p.ErrorsFilename)
	if err != nil {
		m.fail(id, err)
		return
	}

	items := make([]store.PendingRow, 0, len(rows))
	for _, r := range rows {
		if r.Manual() || !r.Valid() {
			continue
		}
		items = append(items, r)
	}
	if _, ok := m.update(id, func(j *Job) { j.Total = len(items) }); !ok {
		return
	}

	notFound := make(map[string]bool)
	var addedBytes int64

	for _, row := range items {
		snap, ok := m.update(id, func(j *Job) { j.Current = row.Title })
		if !ok {
			logger.Info().Msg("Job removed from table, stopping")
			return
		}
		m.publish(snap)

		item := resolver.Item{
			ID:         itemKey(row.CatalogID, row.Year),
			Title:      row.Title,
			Year:       row.Year,
			ExternalID: row.ExternalIDOrEmpty(),
			CatalogID:  row.CatalogID,
		}
		out, err := m.resolver.Resolve(ctx, item, p.Quality, p.ForceQuality)
		if err != nil {
			m.fail(id, err)
			return
		}

		if out.Found && out.Candidate != nil {
			n, err := m.persistFind(p, row, *out.Candidate)
			if err != nil {
				m.fail(id, err)
				return
			}
			addedBytes += n
			logger.Info().Str("title", row.Title).Str("tier", out.Tier).Msg("Found torrent")
		} else {
			notFound[item.ID] = true
			logger.Debug().Str("title", row.Title).Msg("Still missing")
		}

		snap, ok = m.update(id, func(j *Job) {
			j.Processed++
			if out.Found {
				j.NewlyFound++
			} else {
				j.StillMissing++
			}
		})
		if !ok {
			return
		}
		m.publish(snap)
	}

	if !m.exists(id) {
		return
	}

	remaining, err := m.rewritePending(p.ErrorsFilename, notFound)
	if err != nil {
		m.fail(id, err)
		return
	}

	snap, _ := m.Get(id)
	newTotal := "Unknown"
	if m.history != nil {
		entry, err := m.history.ApplyRefresh(ctx, store.RefreshUpdate{
			ResultsFilename: p.ResultsFilename,
			ErrorsFilename:  p.ErrorsFilename,
			Quality:         string(p.Quality),
			Found:           snap.NewlyFound,
			Remaining:       remaining,
			AddedBytes:      addedBytes,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to update conversion history")
		} else {
			newTotal = entry.TotalSize
		}
	}

	m.finish(id, func(j *Job) {
		j.Status = StatusCompleted
		j.AdditionalSize = resolver.FormatBytes(addedBytes)
		j.NewTotalSize = newTotal
	})
	logger.Info().Int("newlyFound", snap.NewlyFound).Int("stillMissing", snap.StillMissing).Msg("Refresh job completed")
}

// persistFind appends the result row and drops the item from the pending
// list straight away, so a crash later in the batch loses nothing.
func (m *Manager) persistFind(p Params, row store.PendingRow, c resolver.Candidate) (int64, error) {
	ext := row.ExternalIDOrEmpty()
	if ext == "" {
		ext = "N/A"
	}
	size := c.DisplaySize()
	if size == "" {
		size = "Unknown"
	}

	err := m.lists.AppendResult(p.ResultsFilename, store.ResultRow{
		MovieName:  row.Title,
		Locator:    c.Locator,
		Title:      row.Title,
		ExternalID: ext,
		CatalogID:  row.CatalogID,
		Year:       row.Year,
		Quality:    string(c.Quality),
		Size:       size,
	})
	if err != nil {
		return 0, err
	}
	if _, err := m.lists.RemovePending(p.ErrorsFilename, row.CatalogID, row.Year); err != nil {
		return 0, err
	}

	if c.SizeBytes > 0 {
		return c.SizeBytes, nil
	}
	return resolver.SizeToBytes(size), nil
}

// rewritePending re-serializes whatever is left in the pending list under
// the canonical header, stamping the rows this run could not resolve. It
// returns the number of rows left.
func (m *Manager) rewritePending(name string, notFound map[string]bool) (int, error) {
	rows, err := m.lists.ReadPending(name)
	if err != nil {
		return 0, err
	}

	reason := fmt.Sprintf("Not found on any source (%s)", strings.Join(m.resolver.Tiers(), ", "))
	for i, r := range rows {
		if !r.Manual() && r.Valid() && notFound[itemKey(r.CatalogID, r.Year)] {
			rows[i] = r.WithError(reason)
		}
	}
	return len(rows), m.lists.WritePending(name, rows)
}

func sortJobs(js []Job) {
	sort.Slice(js, func(i, j int) bool {
		if js[i].StartTime.Equal(js[j].StartTime) {
			return js[i].ID < js[j].ID
		}
		return js[i].StartTime.Before(js[j].StartTime)
	})
}
