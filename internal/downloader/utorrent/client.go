// Package utorrent implements the uTorrent WebUI. Every call carries a CSRF
// token scraped from token.html plus the matching GUID cookie.
package utorrent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/singleflight"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/magnet"
)

const daemonName = "uTorrent"

var errTokenExpired = errors.New("utorrent token rejected")

var _ types.Client = (*Client)(nil)

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	baseURL    string

	tokenFetch singleflight.Group
	tokenMu    sync.RWMutex
	token      string
}

func NewFromConfig(cfg *types.ClientConfig) *Client {
	jar, _ := cookiejar.New(nil)

	urlBase := cfg.URLBase
	if urlBase == "" {
		urlBase = "/gui/"
	}
	urlBase = "/" + strings.Trim(urlBase, "/") + "/"

	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		baseURL: fmt.Sprintf("%s://%s:%d%s", cfg.Scheme(), cfg.Host, cfg.Port, urlBase),
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeUTorrent
}

func (c *Client) Test(ctx context.Context) types.TestResult {
	if err := c.fetchToken(ctx); err != nil {
		return types.TestResult{Error: err.Error()}
	}

	body, err := c.doRequest(ctx, url.Values{"action": {"getversion"}})
	if err != nil {
		// Older builds lack getversion; the token round trip already proved access.
		return types.TestResult{Success: true}
	}
	var versionResp struct {
		Version struct {
			UIVersion string `json:"ui_version"`
			Build     int    `json:"build"`
		} `json:"version"`
	}
	if json.Unmarshal(body, &versionResp) == nil && versionResp.Version.Build > 0 {
		return types.TestResult{Success: true, Version: fmt.Sprintf("build %d", versionResp.Version.Build)}
	}
	return types.TestResult{Success: true}
}

func (c *Client) AddTorrent(ctx context.Context, locator string, opts types.AddOptions) types.Result {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return types.Fail(magnet.ErrInvalidHash)
	}

	if _, err := c.doRequest(ctx, url.Values{"action": {"add-url"}, "s": {locator}}); err != nil {
		return types.Fail(err)
	}

	if opts.Category != "" {
		params := url.Values{
			"action": {"setprops"},
			"hash":   {strings.ToUpper(hash)},
			"s":      {"label"},
			"v":      {opts.Category},
		}
		if _, err := c.doRequest(ctx, params); err != nil {
			return types.Fail(fmt.Errorf("torrent added but labelling failed: %w", err))
		}
	}
	return types.OK()
}

// GetTorrent lists torrents and matches on hash. uTorrent only lists a magnet
// once it has resolved metadata, so a listed torrent is always ready.
func (c *Client) GetTorrent(ctx context.Context, locator string) (*types.TorrentHandle, error) {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return nil, nil
	}

	body, err := c.doRequest(ctx, url.Values{"list": {"1"}})
	if err != nil {
		return nil, err
	}

	var listResp struct {
		Torrents [][]any `json:"torrents"`
	}
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, fmt.Errorf("failed to parse torrent list: %w", err)
	}

	for _, t := range listResp.Torrents {
		if len(t) < 3 {
			continue
		}
		id, _ := t[0].(string)
		if !strings.EqualFold(id, hash) {
			continue
		}
		name, _ := t[2].(string)
		status, _ := t[1].(float64)
		return &types.TorrentHandle{
			ID:            id,
			Hash:          hash,
			Name:          name,
			State:         fmt.Sprintf("%d", int(status)),
			MetadataReady: true,
		}, nil
	}
	return nil, nil
}

func (c *Client) GetFiles(ctx context.Context, id string) ([]types.FileEntry, error) {
	body, err := c.doRequest(ctx, url.Values{"action": {"getfiles"}, "hash": {id}})
	if err != nil {
		return nil, err
	}

	// files is [hash, [[name, size, downloaded, priority, ...], ...]]
	var filesResp struct {
		Files []any `json:"files"`
	}
	if err := json.Unmarshal(body, &filesResp); err != nil {
		return nil, fmt.Errorf("failed to parse file list: %w", err)
	}
	if len(filesResp.Files) < 2 {
		return nil, types.ErrNotFound
	}

	rows, _ := filesResp.Files[1].([]any)
	entries := make([]types.FileEntry, 0, len(rows))
	for i, r := range rows {
		row, ok := r.([]any)
		if !ok || len(row) < 2 {
			continue
		}
		name, _ := row[0].(string)
		size, _ := row[1].(float64)
		entries = append(entries, types.FileEntry{Index: i, Path: name, Size: int64(size)})
	}
	return entries, nil
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
		action = "removedata"
	}
	if _, err := c.doRequest(ctx, url.Values{"action": {action}, "hash": {id}}); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

// fetchToken refreshes the CSRF token. Concurrent callers share one fetch.
func (c *Client) fetchToken(ctx context.Context) error {
	_, err, _ := c.tokenFetch.Do("token", func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"token.html", http.NoBody)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.config.Username, c.config.Password)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, types.ErrAuthFailed
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("token fetch failed: %d", resp.StatusCode)
		}

		token, err := parseToken(resp.Body)
		if err != nil {
			return nil, err
		}

		c.tokenMu.Lock()
		c.token = token
		c.tokenMu.Unlock()
		return nil, nil
	})
	return err
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.tokenMu.RLock()
	token := c.token
	c.tokenMu.RUnlock()
	if token != "" {
		return token, nil
	}

	if err := c.fetchToken(ctx); err != nil {
		return "", err
	}
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token, nil
}

// doRequest issues a WebUI call, refreshing the token once if it was
// rejected.
func (c *Client) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	body, err := c.send(ctx, params)
	if errors.Is(err, errTokenExpired) {
		c.tokenMu.Lock()
		c.token = ""
		c.tokenMu.Unlock()
		body, err = c.send(ctx, params)
	}
	if errors.Is(err, errTokenExpired) {
		return nil, types.ErrAuthFailed
	}
	return body, err
}

func (c *Client) send(ctx context.Context, params url.Values) ([]byte, error) {
	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return nil, errTokenExpired
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}

func parseToken(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse token page: %w", err)
	}
	token := strings.TrimSpace(doc.Find("div#token").First().Text())
	if token == "" {
		return "", fmt.Errorf("token not found in response")
	}
	return token, nil
}
