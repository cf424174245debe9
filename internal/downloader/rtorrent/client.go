// Package rtorrent implements the rTorrent XML-RPC interface, usually exposed
// through a web server's SCGI bridge at /RPC2.
package rtorrent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/magnet"
)

const daemonName = "rTorrent"

var minVersion = semver.MustParse("0.9.0")

var _ types.Client = (*Client)(nil)

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	baseURL    string
}

func NewFromConfig(cfg *types.ClientConfig) *Client {
	urlBase := strings.Trim(cfg.URLBase, "/")
	if urlBase == "" {
		urlBase = "RPC2"
	}

	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: fmt.Sprintf("%s://%s:%d/%s", cfg.Scheme(), cfg.Host, cfg.Port, urlBase),
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeRTorrent
}

func (c *Client) Test(ctx context.Context) types.TestResult {
	result, err := c.call(ctx, "system.client_version")
	if err != nil {
		return types.TestResult{Error: err.Error()}
	}

	version := asString(result)
	if version == "" {
		return types.TestResult{Error: "invalid version response from rTorrent"}
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return types.TestResult{Version: version, Error: fmt.Sprintf("failed to parse rTorrent version %q: %v", version, err)}
	}
	if v.LessThan(minVersion) {
		return types.TestResult{Version: version, Error: fmt.Sprintf("rTorrent version %s is below minimum required version %s", version, minVersion)}
	}
	return types.TestResult{Success: true, Version: version}
}

func (c *Client) AddTorrent(ctx context.Context, locator string, opts types.AddOptions) types.Result {
	params := []any{"", locator}
	if opts.DownloadDir != "" {
		params = append(params, "d.directory.set="+opts.DownloadDir)
	}
	if _, err := c.call(ctx, "load.start", params...); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

// GetTorrent scans the main view. The state column is 0 while rTorrent is
// still fetching metadata for a magnet.
func (c *Client) GetTorrent(ctx context.Context, locator string) (*types.TorrentHandle, error) {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return nil, nil
	}

	result, err := c.call(ctx, "d.multicall2", "", "main", "d.hash=", "d.name=", "d.state=")
	if err != nil {
		return nil, err
	}

	rows, _ := result.([]any)
	for _, r := range rows {
		fields, ok := r.([]any)
		if !ok || len(fields) < 3 {
			continue
		}
		id := asString(fields[0])
		if !strings.EqualFold(id, hash) {
			continue
		}
		state := asInt64(fields[2])
		return &types.TorrentHandle{
			ID:            strings.ToUpper(id),
			Hash:          hash,
			Name:          asString(fields[1]),
			State:         fmt.Sprintf("%d", state),
			MetadataReady: state >= 1,
		}, nil
	}
	return nil, nil
}

func (c *Client) GetFiles(ctx context.Context, id string) ([]types.FileEntry, error) {
	result, err := c.call(ctx, "f.multicall", id, "", "f.path=", "f.size_bytes=")
	if err != nil {
		return nil, err
	}

	rows, _ := result.([]any)
	entries := make([]types.FileEntry, 0, len(rows))
	for i, r := range rows {
		fields, ok := r.([]any)
		if !ok || len(fields) < 2 {
			continue
		}
		entries = append(entries, types.FileEntry{
			Index: i,
			Path:  asString(fields[0]),
			Size:  asInt64(fields[1]),
		})
	}
	return entries, nil
}

// RenameFile targets the file by its multicall index.
func (c *Client) RenameFile(ctx context.Context, id string, file types.FileEntry, newPath string) types.Result {
	target := fmt.Sprintf("%s:f%d", id, file.Index)
	if _, err := c.call(ctx, "f.set_path", target, newPath); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

func (c *Client) RenameFolder(context.Context, string, string, string) types.Result {
	return types.Unsupported(daemonName, "folder renaming")
}

// DeleteTorrent closes and erases the item. rTorrent has no RPC for removing
// data, so purgeFiles is ignored.
func (c *Client) DeleteTorrent(ctx context.Context, id string, _ bool) types.Result {
	if _, err := c.call(ctx, "d.close", id); err != nil {
		return types.Fail(err)
	}
	if _, err := c.call(ctx, "d.erase", id); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

func (c *Client) call(ctx context.Context, method string, params ...any) (any, error) {
	reqBody, err := encodeCall(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to build XML-RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return decodeResponse(body)
}
