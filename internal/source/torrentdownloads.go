package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jwheet/MovieHound/internal/resolver"
)

const minMovieBytes = 500 * 1024 * 1024

var (
	releaseQuality = regexp.MustCompile(`(?i)(\d{3,4}p)`)
	movieMarkers   = regexp.MustCompile(`(?i)BluRay|BRRip|WEB|HDRip`)
	videoExtension = regexp.MustCompile(`(?i)\.(mkv|mp4|avi|mov)`)
)

var qualityRank = map[resolver.Quality]int{
	resolver.Quality2160p: 4,
	resolver.Quality1080p: 3,
	resolver.Quality720p:  2,
	resolver.Quality480p:  1,
}

type listing struct {
	name    string
	quality resolver.Quality
	size    string
	seeders int
	link    string
}

func (l listing) score(want resolver.Quality) int {
	s := qualityRank[l.quality]*10 + l.seeders
	if l.quality == want {
		s += 1000
	}
	return s
}

func qualityFromName(name string) resolver.Quality {
	m := releaseQuality.FindString(name)
	if m == "" {
		return resolver.QualityUnknown
	}
	return resolver.ParseQuality(m)
}

// TorrentDownloads scrapes a search listing and follows the best row to its
// detail page for the magnet link. Two site layouts are supported.
type TorrentDownloads struct {
	name    string
	siteURL string
	layout  layout
	client  *http.Client
}

type layout int

const (
	layoutPro layout = iota
	layoutInfo
)

// NewTorrentDownloadsPro scrapes torrentdownloads.pro.
func NewTorrentDownloadsPro(siteURL string, client *http.Client) *TorrentDownloads {
	return newTorrentDownloads("torrentdownloads.pro", siteURL, layoutPro, client)
}

// NewTorrentDownloadInfo scrapes torrentdownload.info.
func NewTorrentDownloadInfo(siteURL string, client *http.Client) *TorrentDownloads {
	return newTorrentDownloads("torrentdownload.info", siteURL, layoutInfo, client)
}

func newTorrentDownloads(name, siteURL string, l layout, client *http.Client) *TorrentDownloads {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &TorrentDownloads{name: name, siteURL: strings.TrimRight(siteURL, "/"), layout: l, client: client}
}

func (t *TorrentDownloads) searchURL(query string) string {
	if t.layout == layoutPro {
		return fmt.Sprintf("%s/search/?search=%s", t.siteURL, url.QueryEscape(query))
	}
	return fmt.Sprintf("%s/search?q=%s", t.siteURL, url.QueryEscape(query))
}

func (t *TorrentDownloads) Search(ctx context.Context, q resolver.Query) ([]resolver.Candidate, error) {
	doc, err := fetchDocument(ctx, t.client, t.name, t.searchURL(strings.TrimSpace(q.Title+" "+q.Year)))
	if err != nil {
		return nil, err
	}

	var rows []listing
	if t.layout == layoutPro {
		rows = t.parsePro(doc)
	} else {
		rows = t.parseInfo(doc)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].score(q.Quality) > rows[j].score(q.Quality)
	})
	best := rows[0]

	page, err := fetchDocument(ctx, t.client, t.name, best.link)
	if err != nil {
		return nil, err
	}
	href, ok := page.Find(`a[href^="magnet:?"]`).First().Attr("href")
	if !ok {
		return nil, nil
	}

	return []resolver.Candidate{{
		Quality:     best.quality,
		SizeBytes:   resolver.SizeToBytes(best.size),
		SizeDisplay: best.size,
		Locator:     href,
		SourceID:    t.name,
		Seeders:     best.seeders,
		Title:       best.name,
	}}, nil
}

func (t *TorrentDownloads) parsePro(doc *goquery.Document) []listing {
	var rows []listing
	doc.Find("div.grey_bar3").Each(func(_ int, div *goquery.Selection) {
		a := div.Find("p a").First()
		name := strings.TrimSpace(a.Text())
		href, ok := a.Attr("href")
		if name == "" || !ok {
			return
		}

		spans := div.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return !s.HasClass("health") && !s.HasClass("check_box") && !s.HasClass("cloud")
		})
		// leechers, seeders, size
		seeders := atoiLoose(spans.Eq(1).Text())
		size := strings.TrimSpace(spans.Eq(2).Text())

		if seeders < 1 || !movieMarkers.MatchString(name) || resolver.SizeToBytes(size) < minMovieBytes {
			return
		}
		rows = append(rows, listing{
			name:    name,
			quality: qualityFromName(name),
			size:    size,
			seeders: seeders,
			link:    t.absolute(href),
		})
	})
	return rows
}

func (t *TorrentDownloads) parseInfo(doc *goquery.Document) []listing {
	var rows []listing
	doc.Find("table.table2 tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 5 {
			return
		}
		a := cells.Eq(0).Find(".tt-name a").First()
		name := strings.TrimSpace(a.Text())
		href, ok := a.Attr("href")
		if name == "" || !ok {
			return
		}

		size := strings.TrimSpace(cells.Eq(2).Text())
		seeders := atoiLoose(cells.Eq(3).Text())
		isMovie := videoExtension.MatchString(name) || movieMarkers.MatchString(name)

		if seeders < 1 || !isMovie || resolver.SizeToBytes(size) < minMovieBytes {
			return
		}
		rows = append(rows, listing{
			name:    name,
			quality: qualityFromName(name),
			size:    size,
			seeders: seeders,
			link:    t.absolute(href),
		})
	})
	return rows
}

func (t *TorrentDownloads) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return t.siteURL + href
}
