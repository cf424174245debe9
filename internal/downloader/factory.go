package downloader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jwheet/MovieHound/internal/downloader/aria2"
	"github.com/jwheet/MovieHound/internal/downloader/deluge"
	"github.com/jwheet/MovieHound/internal/downloader/qbittorrent"
	"github.com/jwheet/MovieHound/internal/downloader/rtorrent"
	"github.com/jwheet/MovieHound/internal/downloader/tixati"
	"github.com/jwheet/MovieHound/internal/downloader/transmission"
	"github.com/jwheet/MovieHound/internal/downloader/tribler"
	"github.com/jwheet/MovieHound/internal/downloader/types"
	"github.com/jwheet/MovieHound/internal/downloader/utorrent"
)

var (
	ErrUnknownClientType = errors.New("unknown client type")
	ErrNotImplemented    = errors.New("client type not implemented")
)

// ClientInfo is the static metadata published for a declared client type.
type ClientInfo struct {
	Type               ClientType `json:"type"`
	Name               string     `json:"name"`
	DefaultPort        int        `json:"defaultPort"`
	AuthMethod         string     `json:"authMethod"`
	API                string     `json:"api"`
	SupportsCategories bool       `json:"supportsCategories"`
	SupportsRename     bool       `json:"supportsRename"`
	RenameByIndex      bool       `json:"renameByIndex,omitempty"`
	Implemented        bool       `json:"implemented"`

	build func(*types.ClientConfig) types.Client
}

func transmissionFamily(cfg *types.ClientConfig) types.Client { return transmission.NewFromConfig(cfg) }

// registry maps every declared type to its implementation. biglybt and vuze
// speak the Transmission RPC and share its client.
var registry = map[ClientType]ClientInfo{
	types.ClientTypeQBittorrent: {
		Name: "qBittorrent", DefaultPort: 8080, AuthMethod: "cookie", API: "rest",
		SupportsCategories: true, SupportsRename: true, Implemented: true,
		build: func(cfg *types.ClientConfig) types.Client { return qbittorrent.NewFromConfig(cfg) },
	},
	types.ClientTypeTransmission: {
		Name: "Transmission", DefaultPort: 9091, AuthMethod: "basic+session", API: "json-rpc",
		SupportsRename: true, Implemented: true,
		build: transmissionFamily,
	},
	types.ClientTypeBiglyBT: {
		Name: "BiglyBT", DefaultPort: 9091, AuthMethod: "basic+session", API: "json-rpc",
		SupportsCategories: true, SupportsRename: true, Implemented: true,
		build: transmissionFamily,
	},
	types.ClientTypeVuze: {
		Name: "Vuze", DefaultPort: 9091, AuthMethod: "basic+session", API: "json-rpc",
		SupportsCategories: true, SupportsRename: true, Implemented: true,
		build: transmissionFamily,
	},
	types.ClientTypeDeluge: {
		Name: "Deluge", DefaultPort: 8112, AuthMethod: "password", API: "json-rpc",
		SupportsCategories: true, SupportsRename: true, RenameByIndex: true, Implemented: true,
		build: func(cfg *types.ClientConfig) types.Client { return deluge.NewFromConfig(cfg) },
	},
	types.ClientTypeAria2: {
		Name: "Aria2", DefaultPort: 6800, AuthMethod: "token", API: "json-rpc",
		Implemented: true,
		build: func(cfg *types.ClientConfig) types.Client { return aria2.NewFromConfig(cfg) },
	},
	types.ClientTypeTribler: {
		Name: "Tribler", DefaultPort: 8085, AuthMethod: "apikey", API: "rest",
		Implemented: true,
		build: func(cfg *types.ClientConfig) types.Client { return tribler.NewFromConfig(cfg) },
	},
	types.ClientTypeUTorrent: {
		Name: "uTorrent", DefaultPort: 8080, AuthMethod: "basic", API: "webui",
		SupportsCategories: true, Implemented: true,
		build: func(cfg *types.ClientConfig) types.Client { return utorrent.NewFromConfig(cfg) },
	},
	types.ClientTypeRTorrent: {
		Name: "rTorrent", DefaultPort: 80, AuthMethod: "basic", API: "xml-rpc",
		SupportsRename: true, Implemented: true,
		build: func(cfg *types.ClientConfig) types.Client { return rtorrent.NewFromConfig(cfg) },
	},
	types.ClientTypeTixati: {
		Name: "Tixati", DefaultPort: 8888, AuthMethod: "basic", API: "web",
		SupportsCategories: true, Implemented: true,
		build: func(cfg *types.ClientConfig) types.Client { return tixati.NewFromConfig(cfg) },
	},
}

// NewClient builds the implementation registered for cfg.Type. An
// unregistered or unimplemented type is a configuration error.
func NewClient(cfg *ClientConfig) (Client, error) {
	info, ok := registry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w %q; supported types: %s", ErrUnknownClientType, cfg.Type, supportedList())
	}
	if !info.Implemented || info.build == nil {
		return nil, fmt.Errorf("%w: %s; supported types: %s", ErrNotImplemented, info.Name, supportedList())
	}
	return info.build(cfg), nil
}

// Lookup returns the registry entry for a declared type.
func Lookup(clientType ClientType) (ClientInfo, bool) {
	info, ok := registry[clientType]
	if ok {
		info.Type = clientType
	}
	return info, ok
}

// SupportsRename reports whether the rename worker should run for the type.
func SupportsRename(clientType ClientType) bool {
	info, ok := registry[clientType]
	return ok && info.SupportsRename
}

// SupportedClientTypes returns the registry sorted by type.
func SupportedClientTypes() []ClientInfo {
	infos := make([]ClientInfo, 0, len(registry))
	for t, info := range registry {
		info.Type = t
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}

// IsClientTypeSupported returns true if the client type is registered.
func IsClientTypeSupported(clientType string) bool {
	_, ok := registry[ClientType(clientType)]
	return ok
}

func supportedList() string {
	infos := SupportedClientTypes()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Implemented {
			names = append(names, string(info.Type))
		}
	}
	return strings.Join(names, ", ")
}
