// Package transmission implements the Transmission RPC protocol. BiglyBT and
// Vuze expose the same RPC through their Transmission-compatible plugin and
// share this client.
package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/magnet"
)

const (
	sessionIDHeader = "X-Transmission-Session-Id"
)

var errSessionConflict = errors.New("session id rejected")

// Config holds the configuration for a Transmission client.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	URLBase  string
}

// Client speaks Transmission RPC. The session id is captured from the 409
// handshake and refreshed whenever the daemon rejects it.
type Client struct {
	config     Config
	clientType types.ClientType
	httpClient *http.Client

	mu        sync.RWMutex
	sessionID string
}

var _ types.Client = (*Client)(nil)

// New creates a new Transmission client.
func New(cfg *Config) *Client {
	return &Client{
		config:     *cfg,
		clientType: types.ClientTypeTransmission,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewFromConfig creates a client from a ClientConfig. The declared type is
// kept so BiglyBT and Vuze report themselves correctly.
func NewFromConfig(cfg *types.ClientConfig) *Client {
	c := New(&Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseSSL:   cfg.UseSSL,
		URLBase:  cfg.URLBase,
	})
	if cfg.Type != "" {
		c.clientType = cfg.Type
	}
	return c
}

// Type returns the client type.
func (c *Client) Type() types.ClientType {
	return c.clientType
}

func (c *Client) daemonName() string {
	switch c.clientType {
	case types.ClientTypeBiglyBT:
		return "BiglyBT"
	case types.ClientTypeVuze:
		return "Vuze"
	default:
		return "Transmission"
	}
}

// Test performs session-get and reports the daemon version.
func (c *Client) Test(ctx context.Context) types.TestResult {
	resp, err := c.call(ctx, "session-get", nil)
	if err != nil {
		return types.TestResult{Error: err.Error()}
	}
	return types.TestResult{Success: true, Version: getString(resp.Arguments, "version")}
}

// AddTorrent adds a magnet link. Labels are only sent for daemons that
// support categories.
func (c *Client) AddTorrent(ctx context.Context, locator string, opts types.AddOptions) types.Result {
	args := map[string]interface{}{
		"filename": locator,
	}
	if opts.DownloadDir != "" {
		args["download-dir"] = opts.DownloadDir
	}
	if opts.Category != "" && c.clientType != types.ClientTypeTransmission {
		args["labels"] = []string{opts.Category}
	}

	if _, err := c.call(ctx, "torrent-add", args); err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

// GetTorrent scans the torrent list for the locator's info-hash.
func (c *Client) GetTorrent(ctx context.Context, locator string) (*types.TorrentHandle, error) {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return nil, nil
	}

	resp, err := c.call(ctx, "torrent-get", map[string]interface{}{
		"fields": []string{"id", "name", "hashString", "metadataPercentComplete", "status"},
	})
	if err != nil {
		return nil, err
	}

	torrents, _ := resp.Arguments["torrents"].([]interface{})
	for _, t := range torrents {
		torrent, ok := t.(map[string]interface{})
		if !ok || !strings.EqualFold(getString(torrent, "hashString"), hash) {
			continue
		}
		return &types.TorrentHandle{
			ID:            fmt.Sprintf("%d", getInt(torrent, "id")),
			Hash:          hash,
			Name:          getString(torrent, "name"),
			State:         fmt.Sprintf("%d", getInt(torrent, "status")),
			MetadataReady: getFloat(torrent, "metadataPercentComplete") >= 1,
		}, nil
	}
	return nil, nil
}

// GetFiles lists the files of the torrent with numeric id.
func (c *Client) GetFiles(ctx context.Context, id string) ([]types.FileEntry, error) {
	ids, err := torrentIDs(id)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, "torrent-get", map[string]interface{}{
		"ids":    ids,
		"fields": []string{"files"},
	})
	if err != nil {
		return nil, err
	}

	torrents, _ := resp.Arguments["torrents"].([]interface{})
	if len(torrents) == 0 {
		return nil, types.ErrNotFound
	}
	torrent, _ := torrents[0].(map[string]interface{})
	files, _ := torrent["files"].([]interface{})

	entries := make([]types.FileEntry, 0, len(files))
	for i, f := range files {
		file, ok := f.(map[string]interface{})
		if !ok {
			continue
		}
		entries = append(entries, types.FileEntry{
			Index: i,
			Path:  getString(file, "name"),
			Size:  int64(getFloat(file, "length")),
		})
	}
	return entries, nil
}

// RenameFile uses torrent-rename-path, which takes the current path and the
// new base name of the last path component.
func (c *Client) RenameFile(ctx context.Context, id string, file types.FileEntry, newPath string) types.Result {
	return c.renamePath(ctx, id, file.Path, newPath)
}

// RenameFolder is the same RPC as RenameFile.
func (c *Client) RenameFolder(ctx context.Context, id, oldPath, newPath string) types.Result {
	return c.renamePath(ctx, id, oldPath, newPath)
}

func (c *Client) renamePath(ctx context.Context, id, oldPath, newPath string) types.Result {
	ids, err := torrentIDs(id)
	if err != nil {
		return types.Fail(err)
	}
	_, err = c.call(ctx, "torrent-rename-path", map[string]interface{}{
		"ids":  ids,
		"path": oldPath,
		"name": path.Base(newPath),
	})
	if err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

// DeleteTorrent removes the torrent and optionally its data.
func (c *Client) DeleteTorrent(ctx context.Context, id string, purgeFiles bool) types.Result {
	ids, err := torrentIDs(id)
	if err != nil {
		return types.Fail(err)
	}
	_, err = c.call(ctx, "torrent-remove", map[string]interface{}{
		"ids":               ids,
		"delete-local-data": purgeFiles,
	})
	if err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

// torrentIDs accepts a numeric id or an info-hash; Transmission takes both.
func torrentIDs(id string) ([]interface{}, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty torrent id", types.ErrNotFound)
	}
	var n int
	if _, err := fmt.Sscanf(id, "%d", &n); err == nil && fmt.Sprintf("%d", n) == id {
		return []interface{}{n}, nil
	}
	return []interface{}{id}, nil
}

// rpcRequest represents a Transmission RPC request.
type rpcRequest struct {
	Method    string                 `json:"method"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// rpcResponse represents a Transmission RPC response.
type rpcResponse struct {
	Result    string                 `json:"result"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, args map[string]interface{}) (*rpcResponse, error) {
	resp, err := c.do(ctx, method, args)
	if errors.Is(err, errSessionConflict) {
		// The first request of a session always lands here.
		resp, err = c.do(ctx, method, args)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, method string, args map[string]interface{}) (*rpcResponse, error) {
	req, err := c.buildRPCRequest(ctx, method, args)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, c.handleSessionConflict(resp)
	}

	return c.parseRPCResponse(resp)
}

func (c *Client) rpcURL() string {
	base := strings.Trim(c.config.URLBase, "/")
	if base != "" {
		base = "/" + base
	}
	scheme := "http"
	if c.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s/transmission/rpc", scheme, c.config.Host, c.config.Port, base)
}

func (c *Client) buildRPCRequest(ctx context.Context, method string, args map[string]interface{}) (*http.Request, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	if c.sessionID != "" {
		req.Header.Set(sessionIDHeader, c.sessionID)
	}
	c.mu.RUnlock()
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	return req, nil
}

func (c *Client) handleSessionConflict(resp *http.Response) error {
	id := resp.Header.Get(sessionIDHeader)
	if id == "" {
		return fmt.Errorf("received 409 but no session ID in response")
	}
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
	return errSessionConflict
}

func (c *Client) parseRPCResponse(resp *http.Response) (*rpcResponse, error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, types.ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Result != "success" {
		return nil, fmt.Errorf("%s RPC error: %s", c.daemonName(), rpcResp.Result)
	}

	return &rpcResp, nil
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func getFloat(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
