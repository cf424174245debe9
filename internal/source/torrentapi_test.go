package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwheet/MovieHound/internal/resolver"
)

func TestTorrentAPI_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "piratebay", r.URL.Query().Get("site"))
		assert.Equal(t, "Heat 1995", r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[
			{"name":"Heat 1995 720p","magnet":"magnet:?xt=urn:btih:AAAABBBBCCCCDDDDEEEEFFFF0000111122223333","seeders":"15","size":"1.1 GB"},
			{"name":"Heat 1995 1080p","magnet":"magnet:?xt=urn:btih:1111222233334444555566667777888899990000","seeders":"90","size":""},
			{"name":"Heat 1995 2160p","magnet":"","seeders":"500"},
			{"name":"Heat 1995 dead","magnet":"magnet:?xt=urn:btih:1111222233334444555566667777888899990001","seeders":0}
		]}`))
	}))
	defer server.Close()

	a := NewTorrentAPI(server.URL, "piratebay", server.Client())
	assert.Equal(t, "API_PIRATEBAY", a.TierName())

	cands, err := a.Search(context.Background(), resolver.Query{Item: resolver.Item{Title: "Heat", Year: "1995"}})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, 90, cands[0].Seeders)
	assert.Equal(t, "Unknown", cands[0].SizeDisplay)
	assert.Equal(t, resolver.Quality720p, cands[1].Quality)
}

func TestTiers_Order(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TorrentAPISites = []string{"kickass", "torlock"}

	var names []string
	for _, tier := range Tiers(cfg) {
		names = append(names, tier.Name)
	}
	assert.Equal(t, []string{
		TierYTSAPI, TierYTSScrape, TierTorrentDownloads, TierTorrentDownload, "API_KICKASS", "API_TORLOCK",
	}, names)
}
