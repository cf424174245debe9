// Package deluge implements the Deluge WebUI JSON-RPC protocol.
package deluge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/magnet"
)

const stateDownloadingMetadata = "Downloading Metadata"

// Client talks to the Deluge web server. The session cookie lives in the
// client's jar and is re-established when the daemon reports an auth error.
type Client struct {
	config     types.ClientConfig
	httpClient *http.Client
	requestID  atomic.Int64

	login  singleflight.Group
	mu     sync.RWMutex
	authed bool
}

var _ types.Client = (*Client)(nil)

func NewFromConfig(cfg *types.ClientConfig) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		config: *cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeDeluge
}

func (c *Client) Test(ctx context.Context) types.TestResult {
	if err := c.authenticate(ctx); err != nil {
		return types.TestResult{Error: err.Error()}
	}
	resp, err := c.call(ctx, "daemon.info", []any{})
	if err != nil {
		return types.TestResult{Error: err.Error()}
	}
	version, _ := resp.(string)
	return types.TestResult{Success: true, Version: version}
}

func (c *Client) AddTorrent(ctx context.Context, locator string, opts types.AddOptions) types.Result {
	options := map[string]any{}
	if opts.Name != "" {
		options["name"] = opts.Name
	}
	if opts.DownloadDir != "" {
		options["download_location"] = opts.DownloadDir
	}

	resp, err := c.call(ctx, "core.add_torrent_magnet", []any{locator, options})
	if err != nil {
		return types.Fail(err)
	}

	hash, _ := resp.(string)
	if hash == "" {
		hash, _ = magnet.InfoHash(locator)
	}
	if opts.Category != "" && hash != "" {
		// The label plugin may be disabled; the torrent is added either way.
		_, _ = c.call(ctx, "label.set_torrent", []any{hash, opts.Category})
	}
	return types.OK()
}

func (c *Client) GetTorrent(ctx context.Context, locator string) (*types.TorrentHandle, error) {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return nil, nil
	}

	resp, err := c.call(ctx, "core.get_torrents_status", []any{map[string]any{}, []string{"name", "state", "progress", "save_path"}})
	if err != nil {
		return nil, err
	}

	torrents, _ := resp.(map[string]any)
	for id, v := range torrents {
		if strings.ToLower(id) != hash {
			continue
		}
		torrent, _ := v.(map[string]any)
		state := getString(torrent, "state")
		return &types.TorrentHandle{
			ID:            id,
			Hash:          hash,
			Name:          getString(torrent, "name"),
			State:         state,
			MetadataReady: state != stateDownloadingMetadata,
		}, nil
	}
	return nil, nil
}

func (c *Client) GetFiles(ctx context.Context, id string) ([]types.FileEntry, error) {
	resp, err := c.call(ctx, "core.get_torrent_status", []any{id, []string{"files"}})
	if err != nil {
		return nil, err
	}

	status, _ := resp.(map[string]any)
	if len(status) == 0 {
		return nil, types.ErrNotFound
	}
	files, _ := status["files"].([]any)

	entries := make([]types.FileEntry, 0, len(files))
	for i, f := range files {
		file, ok := f.(map[string]any)
		if !ok {
			continue
		}
		index := i
		if v, ok := file["index"].(float64); ok {
			index = int(v)
		}
		entries = append(entries, types.FileEntry{
			Index: index,
			Path:  getString(file, "path"),
			Size:  int64(getFloat(file, "size")),
		})
	}
	return entries, nil
}

// RenameFile renames by file index, the only addressing core.rename_files
// accepts.
func (c *Client) RenameFile(ctx context.Context, id string, file types.FileEntry, newPath string) types.Result {
	if _, err := c.call(ctx, "core.rename_files", []any{id, [][]any{{file.Index, newPath}}}); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

func (c *Client) RenameFolder(ctx context.Context, id, oldPath, newPath string) types.Result {
	if _, err := c.call(ctx, "core.rename_folder", []any{id, oldPath, newPath}); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

func (c *Client) DeleteTorrent(ctx context.Context, id string, purgeFiles bool) types.Result {
	if _, err := c.call(ctx, "core.remove_torrent", []any{id, purgeFiles}); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

// authenticate logs in and makes sure the web UI is attached to a daemon.
// Concurrent callers share one login.
func (c *Client) authenticate(ctx context.Context) error {
	_, err, _ := c.login.Do("login", func() (any, error) {
		c.mu.Lock()
		c.authed = false
		c.mu.Unlock()

		resp, err := c.doCall(ctx, "auth.login", []any{c.config.Password})
		if err != nil {
			return nil, err
		}
		success, ok := resp.(bool)
		if !ok || !success {
			return nil, types.ErrAuthFailed
		}

		connected, err := c.doCall(ctx, "web.connected", []any{})
		if err != nil {
			return nil, err
		}
		isConnected, ok := connected.(bool)
		if !ok {
			return nil, fmt.Errorf("unexpected response from web.connected")
		}
		if !isConnected {
			if err := c.connectToDaemon(ctx); err != nil {
				return nil, err
			}
		}

		c.mu.Lock()
		c.authed = true
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

func (c *Client) connectToDaemon(ctx context.Context) error {
	hostsResp, err := c.doCall(ctx, "web.get_hosts", []any{})
	if err != nil {
		return err
	}

	hosts, ok := hostsResp.([]any)
	if !ok {
		return fmt.Errorf("unexpected response from web.get_hosts")
	}

	hostID := findLocalHostID(hosts)
	if hostID == "" {
		return fmt.Errorf("no local daemon found")
	}

	_, err = c.doCall(ctx, "web.connect", []any{hostID})
	return err
}

func findLocalHostID(hosts []any) string {
	for _, h := range hosts {
		host, ok := h.([]any)
		if !ok || len(host) < 2 {
			continue
		}
		id, _ := host[0].(string)
		ip, _ := host[1].(string)
		if id != "" && (ip == "127.0.0.1" || ip == "localhost") {
			return id
		}
	}
	return ""
}

func (c *Client) isAuthed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authed
}

func (c *Client) call(ctx context.Context, method string, params []any) (any, error) {
	if !c.isAuthed() {
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
	}

	result, err := c.doCall(ctx, method, params)
	if err != nil {
		if isAuthError(err) {
			if authErr := c.authenticate(ctx); authErr != nil {
				return nil, authErr
			}
			return c.doCall(ctx, method, params)
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) doCall(ctx context.Context, method string, params []any) (any, error) {
	reqBody := map[string]any{
		"method": method,
		"params": params,
		"id":     c.requestID.Add(1),
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

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &authError{msg: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp struct {
		Result any              `json:"result"`
		Error  *json.RawMessage `json:"error"`
		ID     int              `json:"id"`
	}

	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil && string(*rpcResp.Error) != "null" {
		return nil, c.parseRPCError(*rpcResp.Error)
	}

	return rpcResp.Result, nil
}

func (c *Client) buildURL() string {
	urlPath := "/json"
	if c.config.URLBase != "" {
		urlPath = "/" + strings.Trim(c.config.URLBase, "/") + "/json"
	}

	return fmt.Sprintf("%s://%s:%d%s", c.config.Scheme(), c.config.Host, c.config.Port, urlPath)
}

func (c *Client) parseRPCError(raw json.RawMessage) error {
	var errObj struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	if err := json.Unmarshal(raw, &errObj); err == nil {
		if errObj.Code == 1 || errObj.Code == 2 {
			return &authError{msg: errObj.Message}
		}
		return fmt.Errorf("RPC error: %s (code %d)", errObj.Message, errObj.Code)
	}
	return fmt.Errorf("RPC error: %s", string(raw))
}

type authError struct {
	msg string
}

func (e *authError) Error() string {
	return e.msg
}

func (e *authError) Unwrap() error {
	return types.ErrAuthFailed
}

func isAuthError(err error) bool {
	var authErr *authError
	return errors.As(err, &authErr)
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
