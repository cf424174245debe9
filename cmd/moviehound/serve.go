package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwheet/MovieHound/internal/api"
	"github.com/jwheet/MovieHound/internal/scheduler"
	"github.com/jwheet/MovieHound/internal/scheduler/tasks"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job orchestrator and housekeeping scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.hub.SetSnapshot(func() (string, interface{}) {
		return "jobs:snapshot", a.jobs.List()
	})
	go a.hub.Run(a.ctx)

	sched, err := scheduler.New(a.log.Logger)
	if err != nil {
		return err
	}
	if err := tasks.RegisterCleanupTask(sched, a.lists, a.cfg.Housekeeping, a.log.Logger); err != nil {
		return err
	}
	sched.Start()

	server := api.NewServer(api.Deps{
		Jobs:      a.jobs,
		Clients:   a.clients,
		Lists:     a.lists,
		History:   a.history,
		Scheduler: sched,
		Hub:       a.hub,
		Metrics:   a.metrics,
	}, a.log.Logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(a.cfg.Server.Address()) }()

	a.log.Info().
		Str("address", a.cfg.Server.Address()).
		Str("lists", a.cfg.Storage.ListsDir).
		Msg("MovieHound started")

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn().Err(serr).Msg("HTTP server did not shut down cleanly")
	}
	if serr := sched.Stop(); serr != nil {
		a.log.Warn().Err(serr).Msg("Scheduler did not stop cleanly")
	}
	a.log.Info().Msg("MovieHound stopped")
	return err
}
