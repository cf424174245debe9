// Package types defines shared types for download clients.
package types

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for download clients.
var (
	ErrAuthFailed  = errors.New("authentication failed")
	ErrNotFound    = errors.New("torrent not found")
	ErrUnsupported = errors.New("operation not supported")
)

// ClientType is the declared daemon type stored on a client configuration.
type ClientType string

const (
	ClientTypeQBittorrent  ClientType = "qbittorrent"
	ClientTypeTransmission ClientType = "transmission"
	ClientTypeBiglyBT      ClientType = "biglybt"
	ClientTypeVuze         ClientType = "vuze"
	ClientTypeDeluge       ClientType = "deluge"
	ClientTypeTribler      ClientType = "tribler"
	ClientTypeUTorrent     ClientType = "utorrent"
	ClientTypeRTorrent     ClientType = "rtorrent"
	ClientTypeTixati       ClientType = "tixati"
	ClientTypeAria2        ClientType = "aria2"
)

// ClientConfig holds connection settings common to all download clients.
type ClientConfig struct {
	Type     ClientType
	Host     string
	Port     int
	Username string
	Password string
	APIKey   string // aria2 secret token, Tribler API key
	UseSSL   bool
	URLBase  string // path prefix when the WebUI sits behind a reverse proxy
	Category string // default category/label
}

// Scheme returns http or https depending on UseSSL.
func (c *ClientConfig) Scheme() string {
	if c.UseSSL {
		return "https"
	}
	return "http"
}

// AddOptions are the optional parameters for adding a torrent.
type AddOptions struct {
	Name        string
	Category    string
	DownloadDir string
}

// TorrentHandle is a torrent as seen by the daemon after lookup by info-hash.
type TorrentHandle struct {
	// ID is what the daemon wants back on follow-up calls: a hash for most
	// daemons, a numeric id for Transmission, a gid for aria2.
	ID            string `json:"id"`
	Hash          string `json:"hash"`
	Name          string `json:"name"`
	State         string `json:"state"`
	MetadataReady bool   `json:"metadataReady"`
}

// FileEntry is one file inside a torrent.
type FileEntry struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
}

// TestResult is the outcome of a connectivity test.
type TestResult struct {
	Success bool   `json:"success"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the structured outcome of a mutating daemon call. Failures are
// reported here rather than returned as errors so batch loops can continue.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK is the successful Result.
func OK() Result { return Result{Success: true} }

// Fail converts err into a failed Result.
func Fail(err error) Result {
	if err == nil {
		return Result{Success: false, Error: "unknown error"}
	}
	return Result{Success: false, Error: err.Error()}
}

// Unsupported reports a capability gap for daemon.
func Unsupported(daemon, operation string) Result {
	return Result{Success: false, Error: fmt.Sprintf("%s does not support %s", daemon, operation)}
}

// Client is the capability interface every daemon family implements.
//
// GetTorrent matches by the lowercase info-hash of the magnet locator and
// returns (nil, nil) when the daemon has no such torrent. RenameFile receives
// the full FileEntry because one family renames by index.
type Client interface {
	Type() ClientType

	Test(ctx context.Context) TestResult
	AddTorrent(ctx context.Context, locator string, opts AddOptions) Result
	GetTorrent(ctx context.Context, locator string) (*TorrentHandle, error)
	GetFiles(ctx context.Context, id string) ([]FileEntry, error)
	RenameFile(ctx context.Context, id string, file FileEntry, newPath string) Result
	RenameFolder(ctx context.Context, id, oldPath, newPath string) Result
	DeleteTorrent(ctx context.Context, id string, purgeFiles bool) Result
}
