// Package rename waits for a dispatched torrent's metadata and renames its
// main video file (and root folder) to the canonical movie name.
package rename

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/metrics"
)

// DefaultInterval is the metadata poll period.
const DefaultInterval = 5 * time.Second

type State string

const (
	StateWaiting       State = "waiting"
	StateMetadataReady State = "metadata_ready"
	StateRenamed       State = "renamed"
	StateAbandoned     State = "abandoned"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
}

// Task describes one dispatched torrent.
type Task struct {
	Client         types.Client
	SupportsRename bool
	Locator        string
	Name           string

	// OnState, when set, observes every state the task enters.
	OnState func(State)
}

func (t Task) enter(s State) {
	if t.OnState != nil {
		t.OnState(s)
	}
}

// Outcome is the terminal state of a task. Reason explains an abandonment
// or a failed rename.
type Outcome struct {
	State   State  `json:"state"`
	Reason  string `json:"reason,omitempty"`
	OldPath string `json:"oldPath,omitempty"`
	NewPath string `json:"newPath,omitempty"`
}

type Worker struct {
	clock    clockwork.Clock
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Worker)

func WithClock(clock clockwork.Clock) Option {
	return func(w *Worker) { w.clock = clock }
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(logger zerolog.Logger, opts ...Option) *Worker {
	w := &Worker{
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		logger:   logger.With().Str("component", "rename").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Spawn runs the task in its own goroutine. The returned channel receives
// the outcome once and is then closed; callers are free to ignore it.
func (w *Worker) Spawn(ctx context.Context, task Task) <-chan Outcome {
	done := make(chan Outcome, 1)
	go func() {
		defer close(done)
		done <- w.Run(ctx, task)
	}()
	return done
}

// Run polls until the torrent's metadata is ready and then renames it. There
// is no deadline; only ctx ends the wait early.
func (w *Worker) Run(ctx context.Context, task Task) Outcome {
	logger := w.logger.With().Str("name", task.Name).Logger()

	if !task.SupportsRename || task.Client == nil {
		logger.Debug().Msg("client does not support renaming, skipping")
		return w.finish(task, Outcome{State: StateAbandoned, Reason: "client does not support renaming"})
	}

	task.enter(StateWaiting)
	logger.Info().Msg("waiting for torrent metadata")

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return w.finish(task, Outcome{State: StateAbandoned, Reason: ctx.Err().Error()})
		case <-w.clock.After(w.interval):
		}

		handle, err := task.Client.GetTorrent(ctx, task.Locator)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("failed to look up torrent")
			continue
		}
		if handle == nil {
			logger.Debug().Int("attempt", attempt).Msg("torrent not listed yet")
			continue
		}
		if !handle.MetadataReady {
			logger.Debug().Int("attempt", attempt).Str("state", handle.State).Msg("metadata not ready yet")
			continue
		}

		files, err := task.Client.GetFiles(ctx, handle.ID)
		if err != nil || len(files) == 0 {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("no files listed yet")
			continue
		}

		task.enter(StateMetadataReady)
		logger.Info().Int("files", len(files)).Msg("metadata ready")
		return w.finish(task, w.rename(ctx, logger, task, handle.ID, files))
	}
}

func (w *Worker) rename(ctx context.Context, logger zerolog.Logger, task Task, id string, files []types.FileEntry) Outcome {
	file, ok := LargestVideo(files)
	if !ok {
		logger.Info().Msg("no video file found, leaving torrent as is")
		return Outcome{State: StateAbandoned, Reason: "no video file found"}
	}

	oldPath := file.Path
	parts := strings.Split(file.Path, "/")

	if len(parts) > 1 && parts[0] != task.Name {
		res := task.Client.RenameFolder(ctx, id, parts[0], task.Name)
		if res.Success {
			parts[0] = task.Name
			file.Path = strings.Join(parts, "/")
			logger.Info().Str("folder", task.Name).Msg("renamed root folder")
		} else {
			logger.Warn().Str("error", res.Error).Msg("failed to rename root folder")
		}
	}

	parts[len(parts)-1] = task.Name + path.Ext(parts[len(parts)-1])
	newPath := strings.Join(parts, "/")

	res := task.Client.RenameFile(ctx, id, file, newPath)
	if !res.Success {
		logger.Error().Str("error", res.Error).Str("path", file.Path).Msg("failed to rename file")
		return Outcome{State: StateAbandoned, Reason: res.Error, OldPath: oldPath}
	}

	logger.Info().Str("from", oldPath).Str("to", newPath).Msg("renamed video file")
	return Outcome{State: StateRenamed, OldPath: oldPath, NewPath: newPath}
}

func (w *Worker) finish(task Task, out Outcome) Outcome {
	task.enter(out.State)
	w.metrics.RenameFinished(string(out.State))
	return out
}

// LargestVideo picks the biggest file with a known video extension.
func LargestVideo(files []types.FileEntry) (types.FileEntry, bool) {
	var best types.FileEntry
	found := false
	for _, f := range files {
		if !videoExtensions[strings.ToLower(path.Ext(f.Path))] {
			continue
		}
		if !found || f.Size > best.Size {
			best, found = f, true
		}
	}
	return best, found
}
