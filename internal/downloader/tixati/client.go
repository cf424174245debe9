// Package tixati drives the Tixati web interface. Tixati has no API, so
// state is scraped from the transfers page.
package tixati

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/magnet"
)

const (
	daemonName      = "Tixati"
	defaultUsername = "admin"
)

var _ types.Client = (*Client)(nil)

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	baseURL    string
}

func NewFromConfig(cfg *types.ClientConfig) *Client {
	base := fmt.Sprintf("%s://%s:%d", cfg.Scheme(), cfg.Host, cfg.Port)
	if cfg.URLBase != "" {
		base += "/" + strings.Trim(cfg.URLBase, "/")
	}
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: base,
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeTixati
}

// Test only proves the transfers page is reachable; Tixati does not report
// its version over HTTP.
func (c *Client) Test(ctx context.Context) types.TestResult {
	resp, err := c.get(ctx, "/transfers")
	if err != nil {
		return types.TestResult{Error: err.Error()}
	}
	resp.Body.Close()
	return types.TestResult{Success: true, Version: "Unknown"}
}

func (c *Client) AddTorrent(ctx context.Context, locator string, _ types.AddOptions) types.Result {
	resp, err := c.get(ctx, "/transfers/action/add/url/"+url.PathEscape(locator))
	if err != nil {
		return types.Fail(err)
	}
	resp.Body.Close()
	return types.OK()
}

// GetTorrent looks for a transfers table row mentioning the info-hash.
func (c *Client) GetTorrent(ctx context.Context, locator string) (*types.TorrentHandle, error) {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return nil, nil
	}

	resp, err := c.get(ctx, "/transfers")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transfers page: %w", err)
	}

	var handle *types.TorrentHandle
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(row.Text()), hash) {
			return true
		}
		name := strings.TrimSpace(row.Find("a").First().Text())
		if name == "" {
			name = "Torrent"
		}
		handle = &types.TorrentHandle{
			ID:            hash,
			Hash:          hash,
			Name:          name,
			State:         "active",
			MetadataReady: true,
		}
		return false
	})
	return handle, nil
}

// GetFiles always returns an empty list; the web interface does not expose
// file listings in a parseable form.
func (c *Client) GetFiles(context.Context, string) ([]types.FileEntry, error) {
	return []types.FileEntry{}, nil
}

func (c *Client) RenameFile(context.Context, string, types.FileEntry, string) types.Result {
	return types.Unsupported(daemonName, "file renaming")
}

func (c *Client) RenameFolder(context.Context, string, string, string) types.Result {
	return types.Unsupported(daemonName, "folder renaming")
}

func (c *Client) DeleteTorrent(ctx context.Context, id string, purgeFiles bool) types.Result {
	action := "remove"
	if purgeFiles {
		action = "remove-delete"
	}
	resp, err := c.get(ctx, "/transfers/action/"+action+"/hash/"+url.PathEscape(id))
	if err != nil {
		return types.Fail(err)
	}
	resp.Body.Close()
	return types.OK()
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, err
	}
	username := c.config.Username
	if username == "" {
		username = defaultUsername
	}
	req.SetBasicAuth(username, c.config.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
