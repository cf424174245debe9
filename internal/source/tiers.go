package source

import (
	"time"

	"github.com/jwheet/MovieHound/internal/resolver"
)

// Tier names as recorded in logs and metrics.
const (
	TierYTSAPI           = "YTS_API"
	TierYTSScrape        = "YTS_SCRAPE"
	TierTorrentDownloads = "TORRENTDOWNLOADS.PRO"
	TierTorrentDownload  = "TORRENTDOWNLOAD.INFO"
)

// Config locates every upstream and sets its pacing.
type Config struct {
	YTSAPIURL           string
	YTSSiteURL          string
	IMDbURL             string
	TorrentDownloadsURL string
	TorrentDownloadURL  string
	TorrentAPIURL       string
	TorrentAPISites     []string

	YTSInterval              time.Duration
	TorrentDownloadsInterval time.Duration
	TorrentAPIInterval       time.Duration

	Timeout time.Duration
}

// DefaultConfig returns the public endpoints and the pacing each one tolerates.
func DefaultConfig() Config {
	return Config{
		YTSAPIURL:                "https://yts.lt/api/v2",
		YTSSiteURL:               "https://yts.lt",
		IMDbURL:                  "https://www.imdb.com",
		TorrentDownloadsURL:      "https://www.torrentdownloads.pro",
		TorrentDownloadURL:       "https://www.torrentdownload.info",
		TorrentAPIURL:            "http://localhost:8009",
		TorrentAPISites:          DefaultTorrentAPISites,
		YTSInterval:              300 * time.Millisecond,
		TorrentDownloadsInterval: 400 * time.Millisecond,
		TorrentAPIInterval:       500 * time.Millisecond,
		Timeout:                  DefaultTimeout,
	}
}

// Tiers builds the fallback chain in priority order: YTS API, YTS page,
// the two torrentdownloads sites, then each Torrent-Api-py site.
func Tiers(cfg Config) []resolver.Tier {
	client := newHTTPClient(cfg.Timeout)
	apiClient := newHTTPClient(TorrentAPITimeout)

	tiers := []resolver.Tier{
		{
			Name:               TierYTSAPI,
			Adapter:            NewYTS(cfg.YTSAPIURL, client),
			PaceKey:            "yts-api",
			Interval:           cfg.YTSInterval,
			RequiresExternalID: true,
			Select:             resolver.SelectBestCandidate,
		},
		{
			Name:               TierYTSScrape,
			Adapter:            NewYTSPage(cfg.YTSSiteURL, client),
			PaceKey:            "yts-scrape",
			Interval:           cfg.YTSInterval,
			RequiresExternalID: true,
			UseCatalogTitle:    true,
			Select:             resolver.SelectExactOrFirst,
		},
		{
			Name:            TierTorrentDownloads,
			Adapter:         NewTorrentDownloadsPro(cfg.TorrentDownloadsURL, client),
			Interval:        cfg.TorrentDownloadsInterval,
			UseCatalogTitle: true,
			Select:          resolver.SelectFirst,
		},
		{
			Name:            TierTorrentDownload,
			Adapter:         NewTorrentDownloadInfo(cfg.TorrentDownloadURL, client),
			Interval:        cfg.TorrentDownloadsInterval,
			UseCatalogTitle: true,
			Select:          resolver.SelectFirst,
		},
	}

	sites := cfg.TorrentAPISites
	if len(sites) == 0 {
		sites = DefaultTorrentAPISites
	}
	for _, site := range sites {
		a := NewTorrentAPI(cfg.TorrentAPIURL, site, apiClient)
		tiers = append(tiers, resolver.Tier{
			Name:            a.TierName(),
			Adapter:         a,
			PaceKey:         "torrent-api",
			Interval:        cfg.TorrentAPIInterval,
			UseCatalogTitle: true,
			Select:          resolver.PreferQualityInTop(5),
		})
	}
	return tiers
}

// Lookup returns the catalog title lookup for cfg.
func Lookup(cfg Config) *IMDb {
	return NewIMDb(cfg.IMDbURL, newHTTPClient(cfg.Timeout))
}
