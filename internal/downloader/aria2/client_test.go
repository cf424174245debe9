package aria2

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jwheet/MovieHound/internal/downloader/types"
)

const testMagnet = "magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01&dn=Heat"

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     string `json:"id"`
}

func newServer(t *testing.T, handle func(req rpcRequest) (any, map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jsonrpc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if len(req.Params) == 0 || req.Params[0] != "token:s3cret" {
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": 1, "message": "Unauthorized"}})
			return
		}
		req.Params = req.Params[1:]
		result, rpcErr := handle(req)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		if rpcErr != nil {
			resp = map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": rpcErr}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func setupTestClient(server *httptest.Server, apiKey string) *Client {
	addr := server.Listener.Addr().(*net.TCPAddr)
	return NewFromConfig(&types.ClientConfig{
		Host:   addr.IP.String(),
		Port:   addr.Port,
		APIKey: apiKey,
	})
}

func TestClient_Type(t *testing.T) {
	client := NewFromConfig(&types.ClientConfig{})
	if client.Type() != types.ClientTypeAria2 {
		t.Errorf("expected type %s, got %s", types.ClientTypeAria2, client.Type())
	}
}

func TestClient_Test(t *testing.T) {
	tests := []struct {
		name    string
		version string
		apiKey  string
		success bool
		errPart string
	}{
		{"current version", "1.37.0", "s3cret", true, ""},
		{"too old", "1.33.1", "s3cret", false, "below minimum"},
		{"bad secret", "1.37.0", "nope", false, types.ErrAuthFailed.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, func(req rpcRequest) (any, map[string]any) {
				return map[string]any{"version": tt.version, "enabledFeatures": []string{"BitTorrent"}}, nil
			})
			defer server.Close()

			res := setupTestClient(server, tt.apiKey).Test(context.Background())
			if res.Success != tt.success {
				t.Fatalf("expected success=%v, got %+v", tt.success, res)
			}
			if tt.errPart != "" && !strings.Contains(res.Error, tt.errPart) {
				t.Errorf("expected error containing %q, got %q", tt.errPart, res.Error)
			}
		})
	}
}

func TestClient_AddTorrent(t *testing.T) {
	server := newServer(t, func(req rpcRequest) (any, map[string]any) {
		if req.Method != "aria2.addUri" {
			t.Errorf("unexpected method %s", req.Method)
		}
		uris, _ := req.Params[0].([]any)
		if len(uris) != 1 || uris[0] != testMagnet {
			t.Errorf("unexpected uris %v", req.Params[0])
		}
		return "2089b05ecca3d829", nil
	})
	defer server.Close()

	res := setupTestClient(server, "s3cret").AddTorrent(context.Background(), testMagnet, types.AddOptions{})
	if !res.Success {
		t.Fatalf("AddTorrent() failed: %s", res.Error)
	}
}

func TestClient_GetTorrent_PrefersFollowUpDownload(t *testing.T) {
	server := newServer(t, func(req rpcRequest) (any, map[string]any) {
		switch req.Method {
		case "aria2.tellActive":
			return []any{
				map[string]any{"gid": "meta", "status": "active", "infoHash": "abcdef0123456789abcdef0123456789abcdef01",
					"files": []any{map[string]any{"path": "[METADATA]Heat"}}},
			}, nil
		case "aria2.tellWaiting":
			return []any{
				map[string]any{"gid": "real", "status": "waiting", "infoHash": "abcdef0123456789abcdef0123456789abcdef01",
					"files":      []any{map[string]any{"path": "/dl/Heat/Heat.mkv"}},
					"bittorrent": map[string]any{"info": map[string]any{"name": "Heat"}}},
			}, nil
		}
		return []any{}, nil
	})
	defer server.Close()

	h, err := setupTestClient(server, "s3cret").GetTorrent(context.Background(), testMagnet)
	if err != nil {
		t.Fatalf("GetTorrent() failed: %v", err)
	}
	if h == nil || h.ID != "real" || !h.MetadataReady || h.Name != "Heat" {
		t.Errorf("unexpected handle %+v", h)
	}
}

func TestClient_GetFiles(t *testing.T) {
	server := newServer(t, func(req rpcRequest) (any, map[string]any) {
		return []any{
			map[string]any{"index": "1", "path": "/dl/Heat/Heat.mkv", "length": "5000"},
			map[string]any{"index": "2", "path": "/dl/Heat/info.nfo", "length": "12"},
		}, nil
	})
	defer server.Close()

	files, err := setupTestClient(server, "s3cret").GetFiles(context.Background(), "real")
	if err != nil {
		t.Fatalf("GetFiles() failed: %v", err)
	}
	if len(files) != 2 || files[0].Index != 0 || files[0].Size != 5000 {
		t.Errorf("unexpected files %+v", files)
	}
}

func TestClient_RenameUnsupported(t *testing.T) {
	client := NewFromConfig(&types.ClientConfig{})
	res := client.RenameFile(context.Background(), "gid", types.FileEntry{}, "x")
	if res.Success || res.Error != "Aria2 does not support file renaming" {
		t.Errorf("unexpected result %+v", res)
	}
	res = client.RenameFolder(context.Background(), "gid", "a", "b")
	if res.Success || res.Error != "Aria2 does not support folder renaming" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestClient_DeleteTorrent_FallsBackToRemoveResult(t *testing.T) {
	var calls []string
	server := newServer(t, func(req rpcRequest) (any, map[string]any) {
		calls = append(calls, req.Method)
		if req.Method == "aria2.forceRemove" {
			return nil, map[string]any{"code": 1, "message": "Active Download not found for GID#real"}
		}
		return "OK", nil
	})
	defer server.Close()

	res := setupTestClient(server, "s3cret").DeleteTorrent(context.Background(), "real", false)
	if !res.Success {
		t.Fatalf("DeleteTorrent() failed: %s", res.Error)
	}
	if len(calls) != 2 || calls[1] != "aria2.removeDownloadResult" {
		t.Errorf("unexpected calls %v", calls)
	}
}
