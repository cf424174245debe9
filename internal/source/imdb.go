package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// IMDb looks up canonical titles and release years from IMDb title pages.
// It satisfies resolver.CatalogLookup.
type IMDb struct {
	baseURL string // e.g. https://www.imdb.com
	client  *http.Client
}

func NewIMDb(baseURL string, client *http.Client) *IMDb {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &IMDb{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

var pageTitlePattern = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)`)

type ldMovie struct {
	Name          string `json:"name"`
	DatePublished string `json:"datePublished"`
}

func (i *IMDb) Lookup(ctx context.Context, externalID string) (title, year string, err error) {
	doc, err := fetchDocument(ctx, i.client, "imdb", fmt.Sprintf("%s/title/%s/", i.baseURL, externalID))
	if err != nil {
		return "", "", err
	}

	if raw := doc.Find(`script[type="application/ld+json"]`).First().Text(); raw != "" {
		var ld ldMovie
		if json.Unmarshal([]byte(raw), &ld) == nil && ld.Name != "" && ld.DatePublished != "" {
			return ld.Name, strings.SplitN(ld.DatePublished, "-", 2)[0], nil
		}
	}

	if m := pageTitlePattern.FindStringSubmatch(doc.Find("title").Text()); m != nil {
		return strings.TrimSpace(m[1]), m[2], nil
	}
	return "", "", parseError("imdb", "no title found for "+externalID, nil)
}
