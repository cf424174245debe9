// Package qbittorrent adapts the autobrr go-qbittorrent Web API client.
package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"
	"golang.org/x/sync/singleflight"

	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/magnet"
)

const requestTimeoutSeconds = 30

var _ types.Client = (*Client)(nil)

// Client logs in lazily and shares one login between concurrent callers.
type Client struct {
	config types.ClientConfig
	api    *qbt.Client

	login    singleflight.Group
	mu       sync.RWMutex
	loggedIn bool
}

func NewFromConfig(cfg *types.ClientConfig) *Client {
	host := fmt.Sprintf("%s://%s:%d", cfg.Scheme(), cfg.Host, cfg.Port)
	if cfg.URLBase != "" {
		host += "/" + strings.Trim(cfg.URLBase, "/")
	}

	return &Client{
		config: *cfg,
		api: qbt.NewClient(qbt.Config{
			Host:     host,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  requestTimeoutSeconds,
		}),
	}
}

func (c *Client) Type() types.ClientType {
	return types.ClientTypeQBittorrent
}

func (c *Client) Test(ctx context.Context) types.TestResult {
	if err := c.ensureLogin(ctx, true); err != nil {
		return types.TestResult{Error: err.Error()}
	}
	version, err := c.api.GetAppVersionCtx(ctx)
	if err != nil {
		return types.TestResult{Error: err.Error()}
	}
	return types.TestResult{Success: true, Version: version}
}

// AddTorrent passes the display name as qBittorrent's rename option so the
// torrent is listed under the canonical name before metadata arrives.
func (c *Client) AddTorrent(ctx context.Context, locator string, opts types.AddOptions) types.Result {
	options := map[string]string{}
	if opts.Name != "" {
		options["rename"] = opts.Name
	}
	category := opts.Category
	if category == "" {
		category = c.config.Category
	}
	if category != "" {
		options["category"] = category
	}
	if opts.DownloadDir != "" {
		options["savepath"] = opts.DownloadDir
	}

	err := c.withLogin(ctx, func() error {
		return c.api.AddTorrentFromUrlCtx(ctx, locator, options)
	})
	if err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

func (c *Client) GetTorrent(ctx context.Context, locator string) (*types.TorrentHandle, error) {
	hash, ok := magnet.InfoHash(locator)
	if !ok {
		return nil, nil
	}

	var torrents []qbt.Torrent
	err := c.withLogin(ctx, func() error {
		var err error
		torrents, err = c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{hash}})
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, t := range torrents {
		if !strings.EqualFold(t.Hash, hash) {
			continue
		}
		return &types.TorrentHandle{
			ID:            strings.ToLower(t.Hash),
			Hash:          hash,
			Name:          t.Name,
			State:         string(t.State),
			MetadataReady: t.State != qbt.TorrentStateMetaDl,
		}, nil
	}
	return nil, nil
}

func (c *Client) GetFiles(ctx context.Context, id string) ([]types.FileEntry, error) {
	var files *qbt.TorrentFiles
	err := c.withLogin(ctx, func() error {
		var err error
		files, err = c.api.GetFilesInformationCtx(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if files == nil {
		return nil, types.ErrNotFound
	}

	entries := make([]types.FileEntry, 0, len(*files))
	for i, f := range *files {
		entries = append(entries, types.FileEntry{Index: i, Path: f.Name, Size: f.Size})
	}
	return entries, nil
}

func (c *Client) RenameFile(ctx context.Context, id string, file types.FileEntry, newPath string) types.Result {
	err := c.withLogin(ctx, func() error {
		return c.api.RenameFileCtx(ctx, id, file.Path, newPath)
	})
	if err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

func (c *Client) RenameFolder(ctx context.Context, id, oldPath, newPath string) types.Result {
	err := c.withLogin(ctx, func() error {
		return c.api.RenameFolderCtx(ctx, id, oldPath, newPath)
	})
	if err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

func (c *Client) DeleteTorrent(ctx context.Context, id string, purgeFiles bool) types.Result {
	err := c.withLogin(ctx, func() error {
		return c.api.DeleteTorrentsCtx(ctx, []string{id}, purgeFiles)
	})
	if err != nil {
		return types.Fail(err)
	}
	return types.OK()
}

// withLogin runs fn after making sure a session exists, logging in again and
// retrying once if the call fails with a stale session.
func (c *Client) withLogin(ctx context.Context, fn func() error) error {
	if err := c.ensureLogin(ctx, false); err != nil {
		return err
	}
	err := fn()
	if err == nil || !isSessionError(err) {
		return err
	}
	if err := c.ensureLogin(ctx, true); err != nil {
		return err
	}
	return fn()
}

func (c *Client) ensureLogin(ctx context.Context, force bool) error {
	c.mu.RLock()
	done := c.loggedIn
	c.mu.RUnlock()
	if done && !force {
		return nil
	}

	_, err, _ := c.login.Do("login", func() (any, error) {
		if err := c.api.LoginCtx(ctx); err != nil {
			c.mu.Lock()
			c.loggedIn = false
			c.mu.Unlock()
			if errors.Is(err, qbt.ErrBadCredentials) {
				return nil, types.ErrAuthFailed
			}
			return nil, err
		}
		c.mu.Lock()
		c.loggedIn = true
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

func isSessionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "403") || strings.Contains(msg, "forbidden")
}
