package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwheet/MovieHound/internal/jobs"
	"github.com/jwheet/MovieHound/internal/resolver"
)

func newRefreshCmd() *cobra.Command {
	var p jobs.Params
	var quality string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh job in the foreground and print its final state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.ErrorsFilename == "" && p.ResultsFilename == "" {
				return errors.New("--errors or --results is required")
			}
			p.Quality = resolver.Quality(quality)

			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			job, err := runRefresh(cmd.Context(), a.jobs, p)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(job); err != nil {
				return err
			}
			if job.Status == jobs.StatusError {
				return fmt.Errorf("refresh failed: %s", job.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&p.ErrorsFilename, "errors", "", "pending list filename inside the lists directory")
	cmd.Flags().StringVar(&p.ResultsFilename, "results", "", "results list filename (derived from --errors when omitted)")
	cmd.Flags().StringVar(&quality, "quality", "", "requested quality, e.g. 1080p (config default when omitted)")
	cmd.Flags().BoolVar(&p.ForceQuality, "force", false, "accept only the requested quality")
	return cmd
}

// runRefresh starts a job and blocks until it ends. An interrupt cancels
// the job and reports it as cancelled.
func runRefresh(parent context.Context, m *jobs.Manager, p jobs.Params) (jobs.Job, error) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id, _, err := m.Start(p)
	if err != nil {
		return jobs.Job{}, err
	}
	done, _ := m.Done(id)

	select {
	case <-done:
		job, _ := m.Get(id)
		return job, nil
	case <-ctx.Done():
		last, _ := m.Get(id)
		if err := m.Cancel(id); err != nil {
			return jobs.Job{}, err
		}
		last.Status = jobs.StatusCancelled
		return last, nil
	}
}
