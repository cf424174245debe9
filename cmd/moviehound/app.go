package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jwheet/MovieHound/internal/config"
	"github.com/jwheet/MovieHound/internal/crypto"
	"github.com/jwheet/MovieHound/internal/database"
	"github.com/jwheet/MovieHound/internal/downloader"
	"github.com/jwheet/MovieHound/internal/jobs"
	"github.com/jwheet/MovieHound/internal/logger"
	"github.com/jwheet/MovieHound/internal/metrics"
	"github.com/jwheet/MovieHound/internal/rename"
	"github.com/jwheet/MovieHound/internal/resolver"
	"github.com/jwheet/MovieHound/internal/source"
	"github.com/jwheet/MovieHound/internal/store"
	"github.com/jwheet/MovieHound/internal/websocket"
)

const keyFileName = "secret.key"

// app is the wired service graph shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	lists   *store.Store
	history *store.History
	metrics *metrics.Metrics
	hub     *websocket.Hub
	clients *downloader.Service
	jobs    *jobs.Manager

	// ctx outlives requests; detached rename workers and job runs hang
	// off it and stop when close is called.
	ctx    context.Context
	cancel context.CancelFunc
}

// newApp loads configuration and wires every service. With live set, job
// progress is broadcast through the websocket hub.
func newApp(live bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.Database.Path, log.Logger)
	if err != nil {
		log.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	if err := a.wire(live); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(live bool) error {
	if err := a.db.Migrate(a.ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	secrets, err := a.secretStore()
	if err != nil {
		return err
	}

	l := a.log.Logger
	a.metrics = metrics.New()
	a.lists = store.New(a.cfg.Storage.ListsDir, l)
	a.history = store.NewHistory(a.db.Conn(), a.lists, l)
	a.hub = websocket.NewHub(l)

	sc := sourceConfig(a.cfg.Resolver)
	res := resolver.New(source.Tiers(sc), l,
		resolver.WithCatalogLookup(source.Lookup(sc), sc.YTSInterval),
		resolver.WithMetrics(a.metrics),
	)

	renamer := rename.NewWorker(l,
		rename.WithInterval(a.cfg.Rename.PollInterval),
		rename.WithMetrics(a.metrics),
	)
	a.clients = downloader.NewService(a.db.Conn(), secrets, a.lists, l,
		downloader.WithRenamer(renamer),
		downloader.WithServiceMetrics(a.metrics),
		downloader.WithDispatchDelay(a.cfg.Dispatch.Delay),
		downloader.WithBackground(a.ctx),
	)

	opts := []jobs.Option{
		jobs.WithHistory(a.history),
		jobs.WithMetrics(a.metrics),
		jobs.WithRetention(a.cfg.Jobs.Retention),
		jobs.WithDefaultQuality(resolver.Quality(a.cfg.Resolver.DefaultQuality)),
		jobs.WithBackground(a.ctx),
	}
	if live {
		opts = append(opts, jobs.WithBroadcaster(a.hub))
	}
	a.jobs = jobs.NewManager(res, a.lists, l, opts...)
	return nil
}

// secretStore keys credential sealing from the config, or from a key file
// next to the database when no passphrase is configured.
func (a *app) secretStore() (*crypto.SecretStore, error) {
	pass, salt := a.cfg.Security.SecretPassphrase, a.cfg.Security.SecretSalt
	if pass == "" {
		path := filepath.Join(filepath.Dir(a.cfg.Database.Path), keyFileName)
		var err error
		if pass, salt, err = crypto.LoadOrCreateKeyFile(path); err != nil {
			return nil, err
		}
		a.log.Debug().Str("path", path).Msg("Using generated credential key")
	}
	return crypto.NewSecretStore(pass, crypto.ParseSalt(salt))
}

func (a *app) close() {
	a.cancel()
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close database")
	}
	a.log.Close()
}

func sourceConfig(rc config.ResolverConfig) source.Config {
	return source.Config{
		YTSAPIURL:                rc.YTSAPIURL,
		YTSSiteURL:               rc.YTSSiteURL,
		IMDbURL:                  rc.IMDbURL,
		TorrentDownloadsURL:      rc.TorrentDownloadsURL,
		TorrentDownloadURL:       rc.TorrentDownloadURL,
		TorrentAPIURL:            rc.TorrentAPIURL,
		TorrentAPISites:          rc.TorrentAPISites,
		YTSInterval:              rc.YTSDelay,
		TorrentDownloadsInterval: rc.TorrentDownloadsDelay,
		TorrentAPIInterval:       rc.TorrentAPIDelay,
		Timeout:                  rc.HTTPTimeout,
	}
}
