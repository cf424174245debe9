package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jwheet/MovieHound/internal/resolver"
)

// DefaultTorrentAPISites is the order in which Torrent-Api-py backends are
// tried.
var DefaultTorrentAPISites = []string{"torrentproject", "kickass", "piratebay", "glodls", "bitsearch", "torlock"}

// TorrentAPITimeout is longer than the scrapers' because the service proxies
// another site.
const TorrentAPITimeout = 15 * time.Second

var nameQuality = regexp.MustCompile(`(?i)(\d+p)`)

// TorrentAPI queries one site through a local Torrent-Api-py instance.
type TorrentAPI struct {
	baseURL string // e.g. http://localhost:8009
	site    string
	limit   int
	client  *http.Client
}

func NewTorrentAPI(baseURL, site string, client *http.Client) *TorrentAPI {
	if client == nil {
		client = newHTTPClient(TorrentAPITimeout)
	}
	return &TorrentAPI{baseURL: strings.TrimRight(baseURL, "/"), site: site, limit: 10, client: client}
}

// TierName is the resolver tier id for this site, e.g. API_PIRATEBAY.
func (a *TorrentAPI) TierName() string {
	return "API_" + strings.ToUpper(a.site)
}

type torrentAPIResponse struct {
	Data []struct {
		Name    string  `json:"name"`
		Magnet  string  `json:"magnet"`
		Seeders flexInt `json:"seeders"`
		Size    string  `json:"size"`
	} `json:"data"`
}

// Search returns the site's usable results ordered by seeders, highest first.
func (a *TorrentAPI) Search(ctx context.Context, q resolver.Query) ([]resolver.Candidate, error) {
	query := strings.TrimSpace(q.Title + " " + q.Year)
	v := url.Values{}
	v.Set("site", a.site)
	v.Set("query", query)
	v.Set("limit", fmt.Sprint(a.limit))

	var resp torrentAPIResponse
	if err := fetchJSON(ctx, a.client, "torrent-api/"+a.site, a.baseURL+"/api/v1/search?"+v.Encode(), &resp); err != nil {
		return nil, err
	}

	var cands []resolver.Candidate
	for _, r := range resp.Data {
		if r.Magnet == "" || r.Seeders <= 0 {
			continue
		}
		quality := resolver.QualityUnknown
		if m := nameQuality.FindString(r.Name); m != "" {
			quality = resolver.ParseQuality(m)
		}
		size := r.Size
		if size == "" {
			size = "Unknown"
		}
		cands = append(cands, resolver.Candidate{
			Quality:     quality,
			SizeBytes:   resolver.SizeToBytes(size),
			SizeDisplay: size,
			Locator:     r.Magnet,
			SourceID:    a.site,
			Seeders:     int(r.Seeders),
			Title:       r.Name,
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Seeders > cands[j].Seeders
	})
	return cands, nil
}
