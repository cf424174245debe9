package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwheet/MovieHound/internal/resolver"
	"github.com/jwheet/MovieHound/internal/store"
)

const (
	heatMagnet  = "magnet:?xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01&dn=Heat"
	roninMagnet = "magnet:?xt=urn:btih:1111111111111111111111111111111111111111&dn=Ronin"
)

type fakeResolver struct {
	found map[string]resolver.Outcome
	block chan struct{}
	calls atomic.Int32
}

func (f *fakeResolver) Tiers() []string { return []string{"yts", "tpb", "torrentio"} }

func (f *fakeResolver) Resolve(ctx context.Context, item resolver.Item, _ resolver.Quality, _ bool) (resolver.Outcome, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return resolver.Outcome{}, ctx.Err()
		}
	}
	out, ok := f.found[item.Title]
	if !ok {
		return resolver.Outcome{ItemID: item.ID}, nil
	}
	out.ItemID = item.ID
	return out, nil
}

type recordingHistory struct {
	mu      sync.Mutex
	updates []store.RefreshUpdate
}

func (h *recordingHistory) ApplyRefresh(_ context.Context, u store.RefreshUpdate) (*store.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
	return &store.HistoryEntry{ResultsFilename: u.ResultsFilename, TotalSize: "12.50 GB"}, nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Job
}

func (b *recordingBroadcaster) Broadcast(msgType string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msgType == updateEvent {
		b.events = append(b.events, payload.(Job))
	}
	return nil
}

func (b *recordingBroadcaster) last() Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

func writeList(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func readList(t *testing.T, dir, name string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func waitDone(t *testing.T, m *Manager, id string) {
	t.Helper()
	done, ok := m.Done(id)
	require.True(t, ok)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
}

func TestManager_RefreshScenario(t *testing.T) {
	dir := t.TempDir()
	writeList(t, dir, "movies_errors.txt",
		store.PendingHeader,
		"MISSING\tHeat\ttt0113277\t949\t1995\tNo torrent found",
		"MISSING\tRonin\tN/A\t8195\t1998\tNo torrent found",
		"MISSING\tBrazil\ttt0088846\t68\t1985\tNo torrent found",
		"MANUAL\tOdd One\ttt0000001\t1\t2000\tneeds a person",
		"broken\trow",
	)

	res := &fakeResolver{found: map[string]resolver.Outcome{
		"Heat": {Found: true, Tier: "yts", Candidate: &resolver.Candidate{
			Quality: resolver.Quality1080p, SizeBytes: 2 << 30, Locator: heatMagnet,
		}},
		"Ronin": {Found: true, Tier: "torrentio", Candidate: &resolver.Candidate{
			Quality: resolver.Quality720p, SizeDisplay: "1.5 GB", Locator: roninMagnet,
		}},
	}}
	history := &recordingHistory{}
	bc := &recordingBroadcaster{}
	m := NewManager(res, store.New(dir, zerolog.Nop()), zerolog.Nop(), WithHistory(history), WithBroadcaster(bc))

	id, existing, err := m.Start(Params{ErrorsFilename: "movies_errors.txt"})
	require.NoError(t, err)
	assert.False(t, existing)
	assert.True(t, strings.HasPrefix(id, "refresh_"))
	waitDone(t, m, id)

	job, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "movies.txt", job.ResultsFilename)
	assert.Equal(t, resolver.Quality1080p, job.Quality)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 3, job.Processed)
	assert.Equal(t, 2, job.NewlyFound)
	assert.Equal(t, 1, job.StillMissing)
	assert.Equal(t, "3.50 GB", job.AdditionalSize)
	assert.Equal(t, "12.50 GB", job.NewTotalSize)
	assert.NotNil(t, job.EndTime)
	assert.Equal(t, int32(3), res.calls.Load())

	assert.Equal(t, []string{
		store.ResultsHeader,
		"Heat\t" + heatMagnet + "\tHeat\ttt0113277\t949\t1995\t1080p\t2.00 GB",
		"Ronin\t" + roninMagnet + "\tRonin\tN/A\t8195\t1998\t720p\t1.5 GB",
	}, readList(t, dir, "movies.txt"))

	assert.Equal(t, []string{
		store.PendingHeader,
		"MISSING\tBrazil\ttt0088846\t68\t1985\tNot found on any source (yts, tpb, torrentio)",
		"MANUAL\tOdd One\ttt0000001\t1\t2000\tneeds a person",
		"broken\trow",
	}, readList(t, dir, "movies_errors.txt"))

	require.Len(t, history.updates, 1)
	assert.Equal(t, store.RefreshUpdate{
		ResultsFilename: "movies.txt",
		ErrorsFilename:  "movies_errors.txt",
		Quality:         "1080p",
		Found:           2,
		Remaining:       3,
		AddedBytes:      2<<30 + 3<<29,
	}, history.updates[0])

	assert.Equal(t, StatusCompleted, bc.last().Status)
}

func TestManager_DuplicateStartReturnsExisting(t *testing.T) {
	dir := t.TempDir()
	writeList(t, dir, "movies_errors.txt", store.PendingHeader, "MISSING\tHeat\ttt0113277\t949\t1995\t")

	res := &fakeResolver{block: make(chan struct{})}
	m := NewManager(res, store.New(dir, zerolog.Nop()), zerolog.Nop())

	id, existing, err := m.Start(Params{ErrorsFilename: "movies_errors.txt", ResultsFilename: "movies.txt"})
	require.NoError(t, err)
	require.False(t, existing)

	again, existing, err := m.Start(Params{ErrorsFilename: "movies_errors.txt"})
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, id, again)
	assert.Len(t, m.List(), 1)

	close(res.block)
	waitDone(t, m, id)
}

func TestManager_StartRejectsBadNames(t *testing.T) {
	m := NewManager(&fakeResolver{}, store.New(t.TempDir(), zerolog.Nop()), zerolog.Nop())

	_, _, err := m.Start(Params{ErrorsFilename: "../etc/passwd"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, _, err = m.Start(Params{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestManager_CancelStopsBeforeNextItem(t *testing.T) {
	dir := t.TempDir()
	pending := []string{
		store.PendingHeader,
		"MISSING\tHeat\ttt0113277\t949\t1995\tNo torrent found",
		"MISSING\tRonin\tN/A\t8195\t1998\tNo torrent found",
	}
	writeList(t, dir, "movies_errors.txt", pending...)

	res := &fakeResolver{block: make(chan struct{})}
	bc := &recordingBroadcaster{}
	m := NewManager(res, store.New(dir, zerolog.Nop()), zerolog.Nop(), WithBroadcaster(bc))

	id, _, err := m.Start(Params{ErrorsFilename: "movies_errors.txt"})
	require.NoError(t, err)
	done, _ := m.Done(id)

	require.Eventually(t, func() bool { return res.calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, m.Cancel(id))
	assert.Equal(t, StatusCancelled, bc.last().Status)

	close(res.block)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop")
	}

	_, ok := m.Get(id)
	assert.False(t, ok)
	assert.Equal(t, int32(1), res.calls.Load())
	assert.Equal(t, pending, readList(t, dir, "movies_errors.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "movies.txt"))

	assert.ErrorIs(t, m.Cancel(id), ErrJobNotFound)
}

func TestManager_RetiresFinishedJobs(t *testing.T) {
	dir := t.TempDir()
	writeList(t, dir, "movies_errors.txt", store.PendingHeader)

	clock := clockwork.NewFakeClock()
	m := NewManager(&fakeResolver{}, store.New(dir, zerolog.Nop()), zerolog.Nop(), WithClock(clock))

	id, _, err := m.Start(Params{ErrorsFilename: "movies_errors.txt"})
	require.NoError(t, err)
	waitDone(t, m, id)

	job, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 0, job.Total)
	assert.Equal(t, "0 B", job.AdditionalSize)
	assert.Equal(t, "Unknown", job.NewTotalSize)

	clock.Advance(DefaultRetention - time.Second)
	_, ok = m.Get(id)
	assert.True(t, ok)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		_, ok := m.Get(id)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManager_FatalErrorMarksJob(t *testing.T) {
	dir := t.TempDir()
	writeList(t, dir, "movies_errors.txt", store.PendingHeader, "MISSING\tHeat\ttt0113277\t949\t1995\t")
	// A directory where the results list should be makes the append fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "movies.txt"), 0o755))

	res := &fakeResolver{found: map[string]resolver.Outcome{
		"Heat": {Found: true, Tier: "yts", Candidate: &resolver.Candidate{Quality: resolver.Quality1080p, Locator: heatMagnet}},
	}}
	m := NewManager(res, store.New(dir, zerolog.Nop()), zerolog.Nop())

	id, _, err := m.Start(Params{ErrorsFilename: "movies_errors.txt"})
	require.NoError(t, err)
	waitDone(t, m, id)

	job, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusError, job.Status)
	assert.NotEmpty(t, job.Error)
	assert.NotNil(t, job.EndTime)
}

func TestManager_MissingPendingListFails(t *testing.T) {
	dir := t.TempDir()
	history := &recordingHistory{}
	res := &fakeResolver{}
	m := NewManager(res, store.New(dir, zerolog.Nop()), zerolog.Nop(), WithHistory(history))

	id, _, err := m.Start(Params{ErrorsFilename: "ghost_errors.txt"})
	require.NoError(t, err)
	waitDone(t, m, id)

	job, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusError, job.Status)
	assert.Contains(t, job.Error, "list not found")
	assert.Zero(t, job.Total)
	assert.Zero(t, res.calls.Load())

	assert.NoFileExists(t, filepath.Join(dir, "ghost_errors.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "ghost.txt"))
	history.mu.Lock()
	defer history.mu.Unlock()
	assert.Empty(t, history.updates)
}
