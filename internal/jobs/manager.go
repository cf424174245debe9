// Package jobs runs refresh batches in the background. Each job walks a
// pending list item by item, resolves each one and persists every find as
// it happens.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jwheet/MovieHound/internal/metrics"
	"github.com/jwheet/MovieHound/internal/resolver"
	"github.com/jwheet/MovieHound/internal/store"
)

// DefaultRetention is how long a finished job stays visible.
const DefaultRetention = 5 * time.Minute

const updateEvent = "job:update"

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrInvalidParams = errors.New("invalid job parameters")
)

// Resolver is the tiered lookup a job drives.
type Resolver interface {
	Resolve(ctx context.Context, item resolver.Item, want resolver.Quality, force bool) (resolver.Outcome, error)
	Tiers() []string
}

// HistoryUpdater receives the aggregate of a finished job.
type HistoryUpdater interface {
	ApplyRefresh(ctx context.Context, u store.RefreshUpdate) (*store.HistoryEntry, error)
}

// Broadcaster publishes job snapshots to live listeners.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

type entry struct {
	job  Job
	done chan struct{}
}

// Manager owns the process-wide job table.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*entry

	resolver    Resolver
	lists       *store.Store
	history     HistoryUpdater
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	clock       clockwork.Clock
	retention   time.Duration
	quality     resolver.Quality
	logger      zerolog.Logger

	// background bounds every run; cancelling it stops runs at their next
	// suspension point.
	background context.Context
}

type Option func(*Manager)

func WithHistory(h HistoryUpdater) Option       { return func(m *Manager) { m.history = h } }
func WithBroadcaster(b Broadcaster) Option      { return func(m *Manager) { m.broadcaster = b } }
func WithMetrics(mt *metrics.Metrics) Option    { return func(m *Manager) { m.metrics = mt } }
func WithClock(c clockwork.Clock) Option        { return func(m *Manager) { m.clock = c } }
func WithBackground(ctx context.Context) Option { return func(m *Manager) { m.background = ctx } }

func WithDefaultQuality(q resolver.Quality) Option {
	return func(m *Manager) {
		if q != "" {
			m.quality = q
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

func NewManager(r Resolver, lists *store.Store, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		jobs:       make(map[string]*entry),
		resolver:   r,
		lists:      lists,
		clock:      clockwork.NewRealClock(),
		retention:  DefaultRetention,
		quality:    resolver.Quality1080p,
		logger:     logger.With().Str("component", "jobs").Logger(),
		background: context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start spawns a run for p. If a running job already targets the same
// results list, its id is returned with existing set and nothing new starts.
func (m *Manager) Start(p Params) (id string, existing bool, err error) {
	if p.ResultsFilename == "" && store.IsPendingName(p.ErrorsFilename) {
		p.ResultsFilename = store.ResultsName(p.ErrorsFilename)
	}
	if p.ErrorsFilename == "" && p.ResultsFilename != "" {
		p.ErrorsFilename = store.PendingName(p.ResultsFilename)
	}
	for _, name := range []string{p.ErrorsFilename, p.ResultsFilename} {
		if _, err := m.lists.Path(name); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	if p.Quality == "" {
		p.Quality = m.quality
	}

	m.mu.Lock()
	for _, e := range m.jobs {
		if e.job.ResultsFilename == p.ResultsFilename && e.job.Status == StatusRunning {
			m.mu.Unlock()
			return e.job.ID, true, nil
		}
	}

	now := m.clock.Now()
	id = fmt.Sprintf("refresh_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	e := &entry{
		job: Job{
			ID:              id,
			Status:          StatusRunning,
			ErrorsFilename:  p.ErrorsFilename,
			ResultsFilename: p.ResultsFilename,
			Quality:         p.Quality,
			ForceQuality:    p.ForceQuality,
			StartTime:       now,
		},
		done: make(chan struct{}),
	}
	m.jobs[id] = e
	m.mu.Unlock()

	m.metrics.JobStarted()
	m.logger.Info().Str("job", id).Str("file", p.ErrorsFilename).Str("quality", string(p.Quality)).Msg("Started refresh job")
	m.publish(e.job)

	go m.run(id, p, e.done)
	return id, false, nil
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// List returns snapshots of every job in the table, oldest first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job)
	}
	sortJobs(out)
	return out
}

// Done returns a channel closed when the job's run returns.
func (m *Manager) Done(id string) (<-chan struct{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return e.done, true
}

// Cancel removes the job from the table. The run notices at the top of its
// next item and exits without touching the lists again; an adapter call in
// flight is not interrupted.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if ok {
		delete(m.jobs, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}

	snap := e.job
	if snap.Status == StatusRunning {
		snap.Status = StatusCancelled
		m.metrics.JobFinished(string(StatusCancelled))
	}
	m.logger.Info().Str("job", id).Msg("Cancelled refresh job")
	m.publish(snap)
	return nil
}

// update applies fn to the job if it is still in the table and returns the
// new snapshot.
func (m *Manager) update(id string, fn func(*Job)) (Job, bool) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return Job{}, false
	}
	fn(&e.job)
	snap := e.job
	m.mu.Unlock()
	return snap, true
}

func (m *Manager) exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.jobs[id]
	return ok
}

func (m *Manager) publish(j Job) {
	if m.broadcaster == nil {
		return
	}
	if err := m.broadcaster.Broadcast(updateEvent, j); err != nil {
		m.logger.Debug().Err(err).Str("job", j.ID).Msg("Failed to broadcast job update")
	}
}

// retire drops the job after the retention window.
func (m *Manager) retire(id string) {
	m.clock.AfterFunc(m.retention, func() {
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
		m.logger.Debug().Str("job", id).Msg("Retired refresh job")
	})
}

func (m *Manager) finish(id string, fn func(*Job)) {
	now := m.clock.Now()
	snap, ok := m.update(id, func(j *Job) {
		fn(j)
		j.EndTime = &now
		j.Current = ""
	})
	if !ok {
		return
	}
	m.metrics.JobFinished(string(snap.Status))
	m.publish(snap)
	m.retire(id)
}

func (m *Manager) fail(id string, err error) {
	m.logger.Error().Err(err).Str("job", id).Msg("Refresh job failed")
	m.finish(id, func(j *Job) {
		j.Status = StatusError
		j.Error = err.Error()
	})
}
