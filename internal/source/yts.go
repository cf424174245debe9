package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jwheet/MovieHound/internal/magnet"
	"github.com/jwheet/MovieHound/internal/resolver"
)

// YTS queries the YTS JSON API by IMDb id.
type YTS struct {
	baseURL string // e.g. https://yts.lt/api/v2
	client  *http.Client
}

func NewYTS(baseURL string, client *http.Client) *YTS {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &YTS{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type ytsListResponse struct {
	Status string `json:"status"`
	Data   struct {
		MovieCount int `json:"movie_count"`
		Movies     []struct {
			Title    string `json:"title"`
			Year     int    `json:"year"`
			Torrents []struct {
				Hash      string  `json:"hash"`
				Quality   string  `json:"quality"`
				Size      string  `json:"size"`
				SizeBytes int64   `json:"size_bytes"`
				Seeds     flexInt `json:"seeds"`
			} `json:"torrents"`
		} `json:"movies"`
	} `json:"data"`
}

func (y *YTS) Search(ctx context.Context, q resolver.Query) ([]resolver.Candidate, error) {
	u := fmt.Sprintf("%s/list_movies.json?query_term=%s", y.baseURL, url.QueryEscape(q.ExternalID))

	var resp ytsListResponse
	if err := fetchJSON(ctx, y.client, "yts-api", u, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" || resp.Data.MovieCount == 0 || len(resp.Data.Movies) == 0 {
		return nil, nil
	}

	movie := resp.Data.Movies[0]
	cands := make([]resolver.Candidate, 0, len(movie.Torrents))
	for _, t := range movie.Torrents {
		quality := resolver.ParseQuality(t.Quality)
		locator, err := magnet.Build(t.Hash, fmt.Sprintf("%s %s %s", q.Title, q.Year, t.Quality), magnet.YTSTrackers)
		if err != nil {
			continue
		}
		size := t.SizeBytes
		if size == 0 {
			size = resolver.SizeToBytes(t.Size)
		}
		cands = append(cands, resolver.Candidate{
			Quality:     quality,
			SizeBytes:   size,
			SizeDisplay: t.Size,
			Locator:     locator,
			SourceID:    "yts-api",
			Seeders:     int(t.Seeds),
		})
	}
	return cands, nil
}

// YTSPage scrapes a YTS movie page located by title slug and year.
type YTSPage struct {
	siteURL string // e.g. https://yts.lt
	client  *http.Client
}

func NewYTSPage(siteURL string, client *http.Client) *YTSPage {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &YTSPage{siteURL: strings.TrimRight(siteURL, "/"), client: client}
}

var (
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s]`)
	slugSpaces     = regexp.MustCompile(`\s+`)
	slugHyphens    = regexp.MustCompile(`-+`)
	ytsLinkQuality = regexp.MustCompile(`(?i)(\d+p|3D)`)
	techSpecSize   = regexp.MustCompile(`(?i)([\d.]+\s*(?:GB|MB))`)
)

// Slug turns "The Lorax" into "the-lorax".
func Slug(title string) string {
	s := strings.ToLower(title)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func (y *YTSPage) Search(ctx context.Context, q resolver.Query) ([]resolver.Candidate, error) {
	if q.Title == "" || q.Year == "" {
		return nil, nil
	}
	u := fmt.Sprintf("%s/movies/%s-%s", y.siteURL, Slug(q.Title), q.Year)

	doc, err := fetchDocument(ctx, y.client, "yts-scrape", u)
	if err != nil {
		return nil, err
	}

	var sizes []string
	doc.Find(".tech-spec-element").Each(func(_ int, s *goquery.Selection) {
		if m := techSpecSize.FindStringSubmatch(s.Text()); m != nil {
			sizes = append(sizes, strings.TrimSpace(m[1]))
		}
	})

	var cands []resolver.Candidate
	doc.Find("a.magnet-download").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if _, ok := magnet.InfoHash(href); !ok {
			return
		}
		title, _ := s.Attr("title")
		quality := resolver.QualityUnknown
		if m := ytsLinkQuality.FindString(title); m != "" {
			quality = resolver.ParseQuality(m)
		}

		c := resolver.Candidate{
			Quality:  quality,
			Locator:  href,
			SourceID: "yts-scrape",
		}
		if i := len(cands); i < len(sizes) {
			c.SizeDisplay = sizes[i]
			c.SizeBytes = resolver.SizeToBytes(sizes[i])
		}
		cands = append(cands, c)
	})
	return cands, nil
}
