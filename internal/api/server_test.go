package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwheet/MovieHound/internal/metrics"
	"github.com/jwheet/MovieHound/internal/store"
	"github.com/jwheet/MovieHound/internal/testutil"
)

const heatMagnet = "magnet:?xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01&dn=Heat"

type testServer struct {
	*Server
	dir string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	dir := t.TempDir()
	lists := store.New(dir, zerolog.Nop())

	s := NewServer(Deps{
		Lists:   lists,
		History: store.NewHistory(tdb.Conn, lists, zerolog.Nop()),
		Metrics: metrics.New(),
	}, zerolog.Nop())
	return &testServer{Server: s, dir: dir}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func (s *testServer) write(t *testing.T, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestServer_HealthAndHeaders(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = s.do(http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, Version, status["version"])
}

func TestServer_UnwiredRoutesAreAbsent(t *testing.T) {
	s := setupTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/jobs", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/clients", "").Code)
}

func TestServer_ManualMagnet(t *testing.T) {
	s := setupTestServer(t)
	s.write(t, "movies_errors.txt",
		store.PendingHeader,
		"MISSING\tHeat\tN/A\t949\t1995\tNot found on any source",
	)

	rec := s.do(http.MethodPost, "/api/v1/manual-magnet",
		`{"errorsFilename":"movies_errors.txt","tmdbId":"949","magnetLink":"`+heatMagnet+`","quality":"2160p"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool            `json:"success"`
		Movie   store.ResultRow `json:"movie"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Heat (1995) [2160p]", resp.Movie.MovieName)
	assert.Equal(t, "tt949", resp.Movie.ExternalID)

	rec = s.do(http.MethodPost, "/api/v1/manual-magnet",
		`{"errorsFilename":"movies_errors.txt","tmdbId":"949","magnetLink":"`+heatMagnet+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/manual-magnet",
		`{"errorsFilename":"movies_errors.txt","tmdbId":"949","magnetLink":"http://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/manual-magnet", `{"errorsFilename":"movies_errors.txt"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Cleanup(t *testing.T) {
	s := setupTestServer(t)
	row := "Heat\t" + heatMagnet + "\tHeat\ttt0113277\t949\t1995\t1080p\t2.00 GB"
	s.write(t, "movies.txt", store.ResultsHeader, row, row)

	rec := s.do(http.MethodPost, "/api/v1/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report store.CleanupReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.FilesScanned)
	assert.Equal(t, 1, report.DuplicatesRemoved)
}

func TestServer_History(t *testing.T) {
	s := setupTestServer(t)
	s.write(t, "movies.txt", store.ResultsHeader)
	s.write(t, "movies_errors.txt", store.PendingHeader)

	_, err := s.deps.History.ApplyRefresh(context.Background(), store.RefreshUpdate{
		ResultsFilename: "movies.txt",
		ErrorsFilename:  "movies_errors.txt",
		Quality:         "1080p",
		Found:           1,
		AddedBytes:      1 << 30,
	})
	require.NoError(t, err)

	rec := s.do(http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []store.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "1.00 GB", entries[0].TotalSize)

	rec = s.do(http.MethodDelete, "/api/v1/history/movies.txt", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoFileExists(t, filepath.Join(s.dir, "movies.txt"))
	assert.NoFileExists(t, filepath.Join(s.dir, "movies_errors.txt"))

	rec = s.do(http.MethodDelete, "/api/v1/history/movies.txt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s := setupTestServer(t)
	s.deps.Metrics.JobStarted()

	rec := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "moviehound_")
}

func TestServer_ThrottlesWrites(t *testing.T) {
	s := setupTestServer(t)

	var codes []int
	for i := 0; i < 30; i++ {
		codes = append(codes, s.do(http.MethodPost, "/api/v1/cleanup", "").Code)
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, codes[i], "request %d", i)
	}
	assert.Contains(t, codes[20:], http.StatusTooManyRequests)

	// Reads stay available to a throttled client.
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/status", "").Code)
}
