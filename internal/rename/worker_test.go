package rename

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwheet/MovieHound/internal/downloader/types"
)

const testMagnet = "magnet:?xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01"

type renameCall struct {
	kind    string
	oldPath string
	newPath string
	index   int
}

// fakeClient reports metadata as ready after readyAfter lookups.
type fakeClient struct {
	mu         sync.Mutex
	lookups    int
	readyAfter int
	lookupErr  error
	files      []types.FileEntry
	folderFail bool
	fileResult types.Result
	calls      []renameCall
}

func (f *fakeClient) Type() types.ClientType               { return types.ClientTypeQBittorrent }
func (f *fakeClient) Test(context.Context) types.TestResult { return types.TestResult{Success: true} }
func (f *fakeClient) AddTorrent(context.Context, string, types.AddOptions) types.Result {
	return types.OK()
}

func (f *fakeClient) GetTorrent(context.Context, string) (*types.TorrentHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil && f.lookups == 1 {
		return nil, f.lookupErr
	}
	return &types.TorrentHandle{ID: "abc", MetadataReady: f.lookups > f.readyAfter}, nil
}

func (f *fakeClient) GetFiles(context.Context, string) ([]types.FileEntry, error) {
	return f.files, nil
}

func (f *fakeClient) RenameFile(_ context.Context, _ string, file types.FileEntry, newPath string) types.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, renameCall{kind: "file", oldPath: file.Path, newPath: newPath, index: file.Index})
	if f.fileResult.Error != "" {
		return f.fileResult
	}
	return types.OK()
}

func (f *fakeClient) RenameFolder(_ context.Context, _ string, oldPath, newPath string) types.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, renameCall{kind: "folder", oldPath: oldPath, newPath: newPath})
	if f.folderFail {
		return types.Result{Error: "folder busy"}
	}
	return types.OK()
}

func (f *fakeClient) DeleteTorrent(context.Context, string, bool) types.Result { return types.OK() }

// drive advances the fake clock each time the worker blocks on it until the
// outcome arrives.
func drive(t *testing.T, clock *clockwork.FakeClock, done <-chan Outcome) Outcome {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case out := <-done:
			return out
		case <-deadline:
			t.Fatal("worker did not finish")
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if clock.BlockUntilContext(ctx, 1) == nil {
			clock.Advance(DefaultInterval)
		}
		cancel()
	}
}

func newTestWorker() (*Worker, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewWorker(zerolog.Nop(), WithClock(clock)), clock
}

func TestWorker_SkipsUnsupportedClient(t *testing.T) {
	w, _ := newTestWorker()
	var states []State

	out := w.Run(context.Background(), Task{
		Client:  &fakeClient{},
		Locator: testMagnet,
		Name:    "Heat (1995) [1080p]",
		OnState: func(s State) { states = append(states, s) },
	})

	assert.Equal(t, StateAbandoned, out.State)
	assert.Equal(t, []State{StateAbandoned}, states)
}

func TestWorker_RenamesFolderThenFile(t *testing.T) {
	w, clock := newTestWorker()
	client := &fakeClient{
		readyAfter: 2,
		lookupErr:  errors.New("connection refused"),
		files: []types.FileEntry{
			{Index: 0, Path: "Heat.1995.1080p/Sample/sample.mkv", Size: 10},
			{Index: 1, Path: "Heat.1995.1080p/Heat.1995.1080p.BluRay.mkv", Size: 9000},
			{Index: 2, Path: "Heat.1995.1080p/Heat.nfo", Size: 99999},
		},
	}
	var states []State

	out := drive(t, clock, w.Spawn(context.Background(), Task{
		Client:         client,
		SupportsRename: true,
		Locator:        testMagnet,
		Name:           "Heat (1995) [1080p]",
		OnState:        func(s State) { states = append(states, s) },
	}))

	require.Equal(t, StateRenamed, out.State, out.Reason)
	assert.Equal(t, []State{StateWaiting, StateMetadataReady, StateRenamed}, states)
	assert.Equal(t, 3, client.lookups)

	require.Len(t, client.calls, 2)
	assert.Equal(t, renameCall{kind: "folder", oldPath: "Heat.1995.1080p", newPath: "Heat (1995) [1080p]"}, client.calls[0])
	// The file is addressed by its path after the folder rename.
	assert.Equal(t, renameCall{
		kind:    "file",
		oldPath: "Heat (1995) [1080p]/Heat.1995.1080p.BluRay.mkv",
		newPath: "Heat (1995) [1080p]/Heat (1995) [1080p].mkv",
		index:   1,
	}, client.calls[1])
}

func TestWorker_FolderFailureDoesNotBlockFileRename(t *testing.T) {
	w, clock := newTestWorker()
	client := &fakeClient{
		folderFail: true,
		files:      []types.FileEntry{{Path: "Heat.1995/Heat.1995.mp4", Size: 1}},
	}

	out := drive(t, clock, w.Spawn(context.Background(), Task{
		Client: client, SupportsRename: true, Locator: testMagnet, Name: "Heat (1995)",
	}))

	require.Equal(t, StateRenamed, out.State)
	assert.Equal(t, "Heat.1995/Heat (1995).mp4", out.NewPath)
	assert.Equal(t, "Heat.1995/Heat.1995.mp4", client.calls[1].oldPath)
}

func TestWorker_SingleFileTorrent(t *testing.T) {
	w, clock := newTestWorker()
	client := &fakeClient{files: []types.FileEntry{{Path: "Heat.1995.avi", Size: 5}}}

	out := drive(t, clock, w.Spawn(context.Background(), Task{
		Client: client, SupportsRename: true, Locator: testMagnet, Name: "Heat (1995)",
	}))

	require.Equal(t, StateRenamed, out.State)
	require.Len(t, client.calls, 1)
	assert.Equal(t, "Heat (1995).avi", client.calls[0].newPath)
}

func TestWorker_NoVideoAbandons(t *testing.T) {
	w, clock := newTestWorker()
	client := &fakeClient{files: []types.FileEntry{{Path: "Album/track01.flac", Size: 5}}}

	out := drive(t, clock, w.Spawn(context.Background(), Task{
		Client: client, SupportsRename: true, Locator: testMagnet, Name: "Heat (1995)",
	}))

	assert.Equal(t, StateAbandoned, out.State)
	assert.Empty(t, client.calls)
}

func TestWorker_FileRenameErrorIsTerminal(t *testing.T) {
	w, clock := newTestWorker()
	client := &fakeClient{
		files:      []types.FileEntry{{Path: "Heat.mkv", Size: 5}},
		fileResult: types.Result{Error: "rename rejected"},
	}

	out := drive(t, clock, w.Spawn(context.Background(), Task{
		Client: client, SupportsRename: true, Locator: testMagnet, Name: "Heat (1995)",
	}))

	assert.Equal(t, StateAbandoned, out.State)
	assert.Equal(t, "rename rejected", out.Reason)
	assert.Equal(t, 1, client.lookups)
}

func TestWorker_ContextCancelStopsWaiting(t *testing.T) {
	w, _ := newTestWorker()
	ctx, cancel := context.WithCancel(context.Background())
	done := w.Spawn(ctx, Task{Client: &fakeClient{}, SupportsRename: true, Locator: testMagnet, Name: "x"})

	cancel()
	select {
	case out := <-done:
		assert.Equal(t, StateAbandoned, out.State)
	case <-time.After(2 * time.Second):
		t.Fatal("worker ignored cancellation")
	}
}

func TestLargestVideo(t *testing.T) {
	file, ok := LargestVideo([]types.FileEntry{
		{Path: "a/movie.MKV", Size: 100},
		{Path: "a/movie.sub", Size: 1000},
		{Path: "a/extra.mp4", Size: 50},
	})
	require.True(t, ok)
	assert.Equal(t, "a/movie.MKV", file.Path)

	_, ok = LargestVideo(nil)
	assert.False(t, ok)
}
