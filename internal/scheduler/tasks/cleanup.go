// Package tasks binds housekeeping work to the scheduler.
package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jwheet/MovieHound/internal/config"
	"github.com/jwheet/MovieHound/internal/scheduler"
	"github.com/jwheet/MovieHound/internal/store"
)

const CleanupTaskID = "cleanup-duplicates"

// RegisterCleanupTask registers the duplicate sweep over the lists
// directory.
func RegisterCleanupTask(sched *scheduler.Scheduler, lists *store.Store, cfg config.HousekeepingConfig, logger zerolog.Logger) error {
	log := logger.With().Str("task", CleanupTaskID).Logger()
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          CleanupTaskID,
		Name:        "Cleanup Duplicates",
		Description: "Removes duplicate result rows and pending rows that already have a result",
		Cron:        cfg.CleanupCron,
		RunOnStart:  cfg.RunOnStart,
		Func: func(ctx context.Context) error {
			report, err := lists.Cleanup(ctx)
			if err != nil {
				return err
			}
			log.Info().
				Int("files", report.FilesScanned).
				Int("duplicates", report.DuplicatesRemoved).
				Int("fixed", report.ErrorsFixed).
				Msg("Duplicate sweep finished")
			return nil
		},
	})
}
