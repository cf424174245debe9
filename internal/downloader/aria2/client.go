// Package aria2 implements the aria2 JSON-RPC interface. Authentication is a
// shared secret passed as the first parameter of every call.
package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/magnet"
)

const daemonName = "Aria2"

// minVersion is the first release whose RPC reports infoHash for magnets.
var minVersion = semver.MustParse("1.34.0")

type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	requestID  atomic.Int64
}

var _ types.Client = (*Client)(nil)

func NewFromConfig(cfg *types.ClientConfig) *Client {
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeAria2
}

func (c *Client) secret() string {
	if c.config.APIKey != "" {
		return c.config.APIKey
	}
	return c.config.Password
}

func (c *Client) Test(ctx context.Context) types.TestResult {
	result, err := c.call(ctx, "aria2.getVersion", nil)
	if err != nil {
		return types.TestResult{Error: err.Error()}
	}

	versionMap, ok := result.(map[string]any)
	if !ok {
		return types.TestResult{Error: "invalid version response from aria2"}
	}
	version, _ := versionMap["version"].(string)
	if version == "" {
		return types.TestResult{Error: "empty version response from aria2"}
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return types.TestResult{Version: version, Error: fmt.Sprintf("failed to parse aria2 version %q: %v", version, err)}
	}
	if v.LessThan(minVersion) {
		return types.TestResult{Version: version, Error: fmt.Sprintf("aria2 version %s is below minimum required version %s", version, minVersion)}
	}
	return types.TestResult{Success: true, Version: version}
}

func (c *Client) AddTorrent(ctx context.Context, locator string, opts types.AddOptions) types.Result {
	options := map[string]any{}
	if opts.DownloadDir != "" {
		options["dir"] = opts.DownloadDir
	}

	resp, err := c.call(ctx, "aria2.addUri", []any{[]string{locator}, options})
	if err != nil {
		return types.Fail(err)
	}
	if _, ok := resp.(string); !ok {
		return types.Fail(fmt.Errorf("unexpected response type for addUri"))
	}
	return types.OK()
}

// GetTorrent scans active, waiting and stopped downloads. A magnet first
// appears as a metadata download; the real download that follows it shares
// the info-hash and is preferred.
func (c *Client) GetTorrent(ctx context.Context, locator string) (*types.TorrentHandle, error) {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return nil, nil
	}

	var found *types.TorrentHandle
	for _, call := range []struct {
		method string
		params []any
	}{
		{"aria2.tellActive", nil},
		{"aria2.tellWaiting", []any{0, 1000}},
		{"aria2.tellStopped", []any{0, 1000}},
	} {
		resp, err := c.call(ctx, call.method, call.params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.TrimPrefix(call.method, "aria2."), err)
		}
		entries, _ := resp.([]any)
		for _, e := range entries {
			status, ok := e.(map[string]any)
			if !ok || !strings.EqualFold(getString(status, "infoHash"), hash) {
				continue
			}
			h := mapToHandle(status, hash)
			if h.MetadataReady {
				return h, nil
			}
			if found == nil {
				found = h
			}
		}
	}
	return found, nil
}

func mapToHandle(status map[string]any, hash string) *types.TorrentHandle {
	files, _ := status["files"].([]any)
	ready := len(files) > 0
	for _, f := range files {
		file, _ := f.(map[string]any)
		if strings.HasPrefix(getString(file, "path"), "[METADATA]") {
			ready = false
		}
	}
	return &types.TorrentHandle{
		ID:            getString(status, "gid"),
		Hash:          hash,
		Name:          extractName(status),
		State:         getString(status, "status"),
		MetadataReady: ready,
	}
}

func (c *Client) GetFiles(ctx context.Context, id string) ([]types.FileEntry, error) {
	resp, err := c.call(ctx, "aria2.getFiles", []any{id})
	if err != nil {
		return nil, err
	}
	files, ok := resp.([]any)
	if !ok {
		return nil, types.ErrNotFound
	}

	entries := make([]types.FileEntry, 0, len(files))
	for i, f := range files {
		file, ok := f.(map[string]any)
		if !ok {
			continue
		}
		index := i
		if n, err := strconv.Atoi(getString(file, "index")); err == nil {
			index = n - 1 // aria2 indexes from 1
		}
		entries = append(entries, types.FileEntry{
			Index: index,
			Path:  getString(file, "path"),
			Size:  parseIntString(getString(file, "length")),
		})
	}
	return entries, nil
}

func (c *Client) RenameFile(context.Context, string, types.FileEntry, string) types.Result {
	return types.Unsupported(daemonName, "file renaming")
}

func (c *Client) RenameFolder(context.Context, string, string, string) types.Result {
	return types.Unsupported(daemonName, "folder renaming")
}

// DeleteTorrent removes the download. aria2 never deletes data on disk, so
// purgeFiles only affects whether the stopped result is also cleared.
func (c *Client) DeleteTorrent(ctx context.Context, id string, purgeFiles bool) types.Result {
	_, err := c.call(ctx, "aria2.forceRemove", []any{id})
	if err != nil || purgeFiles {
		// forceRemove only works for active/waiting downloads.
		if _, rerr := c.call(ctx, "aria2.removeDownloadResult", []any{id}); rerr != nil && err != nil {
			return types.Fail(err)
		}
	}
	return types.OK()
}

func (c *Client) call(ctx context.Context, method string, extraParams []any) (any, error) {
	var params []any
	if s := c.secret(); s != "" {
		params = append(params, "token:"+s)
	}
	params = append(params, extraParams...)

	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"id":      strconv.FormatInt(c.requestID.Add(1), 10),
		"method":  method,
		"params":  params,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp struct {
		Result any              `json:"result"`
		Error  *json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, parseRPCError(*rpcResp.Error)
	}
	return rpcResp.Result, nil
}

func parseRPCError(raw json.RawMessage) error {
	var errObj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &errObj); err == nil {
		if errObj.Code == 1 && strings.Contains(strings.ToLower(errObj.Message), "unauthorized") {
			return types.ErrAuthFailed
		}
		return fmt.Errorf("RPC error: %s (code %d)", errObj.Message, errObj.Code)
	}
	return fmt.Errorf("RPC error: %s", string(raw))
}

func (c *Client) buildURL() string {
	urlPath := "/jsonrpc"
	if c.config.URLBase != "" {
		urlPath = "/" + strings.Trim(c.config.URLBase, "/") + "/jsonrpc"
	}
	return fmt.Sprintf("%s://%s:%d%s", c.config.Scheme(), c.config.Host, c.config.Port, urlPath)
}

func extractName(status map[string]any) string {
	if bt, ok := status["bittorrent"].(map[string]any); ok {
		if info, ok := bt["info"].(map[string]any); ok {
			if name, ok := info["name"].(string); ok && name != "" {
				return name
			}
		}
	}
	return getString(status, "gid")
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func parseIntString(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
