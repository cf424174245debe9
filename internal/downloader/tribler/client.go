// Package tribler implements the Tribler REST API.
package tribler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/magnet"
)

const (
	daemonName     = "Tribler"
	statusMetadata = "METADATA"
)

var _ types.Client = (*Client)(nil)

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	baseURL    string
}

func NewFromConfig(cfg *types.ClientConfig) *Client {
	base := fmt.Sprintf("%s://%s:%d/", cfg.Scheme(), cfg.Host, cfg.Port)
	if cfg.URLBase != "" {
		base += strings.Trim(cfg.URLBase, "/") + "/"
	}
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: base,
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeTribler
}

func (c *Client) apiKey() string {
	if c.config.APIKey != "" {
		return c.config.APIKey
	}
	return c.config.Password
}

type settingsResponse struct {
	Settings struct {
		Version string `json:"version"`
	} `json:"settings"`
	Version string `json:"version"`
}

func (c *Client) Test(ctx context.Context) types.TestResult {
	var settings settingsResponse
	if err := c.do(ctx, http.MethodGet, "api/settings", nil, &settings); err != nil {
		return types.TestResult{Error: err.Error()}
	}

	version := settings.Version
	if version == "" {
		version = settings.Settings.Version
	}
	if version == "" {
		var state struct {
			Version string `json:"version"`
		}
		if err := c.do(ctx, http.MethodGet, "api/state", nil, &state); err == nil {
			version = state.Version
		}
	}
	return types.TestResult{Success: true, Version: version}
}

type addRequest struct {
	URI         string `json:"uri"`
	AnonHops    int    `json:"anon_hops"`
	SafeSeeding bool   `json:"safe_seeding"`
	Destination string `json:"destination,omitempty"`
}

func (c *Client) AddTorrent(ctx context.Context, locator string, opts types.AddOptions) types.Result {
	reqBody := addRequest{
		URI:         locator,
		SafeSeeding: true,
		Destination: opts.DownloadDir,
	}
	var resp struct {
		Infohash string `json:"infohash"`
		Started  bool   `json:"started"`
	}
	if err := c.do(ctx, http.MethodPut, "api/downloads", reqBody, &resp); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

type downloadEntry struct {
	Name     string  `json:"name"`
	Infohash string  `json:"infohash"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

func (c *Client) GetTorrent(ctx context.Context, locator string) (*types.TorrentHandle, error) {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return nil, nil
	}

	var downloads struct {
		Downloads []downloadEntry `json:"downloads"`
	}
	if err := c.do(ctx, http.MethodGet, "api/downloads?get_peers=0&get_pieces=0", nil, &downloads); err != nil {
		return nil, err
	}

	for _, d := range downloads.Downloads {
		if !strings.EqualFold(d.Infohash, hash) {
			continue
		}
		return &types.TorrentHandle{
			ID:            strings.ToLower(d.Infohash),
			Hash:          hash,
			Name:          d.Name,
			State:         d.Status,
			MetadataReady: d.Status != statusMetadata,
		}, nil
	}
	return nil, nil
}

func (c *Client) GetFiles(ctx context.Context, id string) ([]types.FileEntry, error) {
	var resp struct {
		Files []struct {
			Index int    `json:"index"`
			Name  string `json:"name"`
			Size  int64  `json:"size"`
		} `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, "api/downloads/"+url.PathEscape(strings.ToLower(id))+"/files", nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]types.FileEntry, 0, len(resp.Files))
	for _, f := range resp.Files {
		entries = append(entries, types.FileEntry{Index: f.Index, Path: f.Name, Size: f.Size})
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
	body := struct {
		RemoveData bool `json:"remove_data"`
	}{purgeFiles}
	if err := c.do(ctx, http.MethodDelete, "api/downloads/"+url.PathEscape(strings.ToLower(id)), body, nil); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

// do sends an authenticated request and decodes a JSON reply into out when
// out is non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.ErrAuthFailed
	case resp.StatusCode == http.StatusNotFound:
		return types.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
