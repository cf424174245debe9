// Package downloader owns the daemon registry, persisted client
// configurations and batch dispatch of resolved torrents.
package downloader

import (
	"github.com/jwheet/MovieHound/internal/downloader/types"
)

// Re-export types so callers can use downloader.Client instead of types.Client.

type (
	ClientType    = types.ClientType
	ClientConfig  = types.ClientConfig
	Client        = types.Client
	AddOptions    = types.AddOptions
	TorrentHandle = types.TorrentHandle
	FileEntry     = types.FileEntry
	TestResult    = types.TestResult
	Result        = types.Result
)

var (
	ErrAuthFailed  = types.ErrAuthFailed
	ErrNotFound    = types.ErrNotFound
	ErrUnsupported = types.ErrUnsupported
)
