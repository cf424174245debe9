package transmission

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jwheet/MovieHound/internal/downloader/types"
)

const testMagnet = "magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01&dn=Heat"

type rpcEnvelope struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments"`
}

// sessionServer enforces the 409 handshake before dispatching to handle.
func sessionServer(t *testing.T, handle func(req rpcEnvelope) map[string]any) (*httptest.Server, *int32) {
	t.Helper()
	var conflicts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transmission/rpc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get(sessionIDHeader) != "sess-1" {
			atomic.AddInt32(&conflicts, 1)
			w.Header().Set(sessionIDHeader, "sess-1")
			w.WriteHeader(http.StatusConflict)
			return
		}
		var req rpcEnvelope
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(handle(req))
	}))
	return srv, &conflicts
}

func setupTestClient(server *httptest.Server, clientType types.ClientType, password string) *Client {
	addr := server.Listener.Addr().(*net.TCPAddr)
	return NewFromConfig(&types.ClientConfig{
		Type:     clientType,
		Host:     addr.IP.String(),
		Port:     addr.Port,
		Username: "admin",
		Password: password,
	})
}

func TestClient_Type(t *testing.T) {
	if got := NewFromConfig(&types.ClientConfig{}).Type(); got != types.ClientTypeTransmission {
		t.Errorf("expected type %s, got %s", types.ClientTypeTransmission, got)
	}
	if got := NewFromConfig(&types.ClientConfig{Type: types.ClientTypeBiglyBT}).Type(); got != types.ClientTypeBiglyBT {
		t.Errorf("expected type %s, got %s", types.ClientTypeBiglyBT, got)
	}
}

func TestClient_Test_SessionHandshake(t *testing.T) {
	server, conflicts := sessionServer(t, func(req rpcEnvelope) map[string]any {
		if req.Method != "session-get" {
			t.Errorf("unexpected method %s", req.Method)
		}
		return map[string]any{"result": "success", "arguments": map[string]any{"version": "4.0.5"}}
	})
	defer server.Close()

	client := setupTestClient(server, "", "secret")

	res := client.Test(context.Background())
	if !res.Success {
		t.Fatalf("Test() failed: %s", res.Error)
	}
	if res.Version != "4.0.5" {
		t.Errorf("expected version 4.0.5, got %s", res.Version)
	}

	// Session is reused on the next call.
	client.Test(context.Background())
	if got := atomic.LoadInt32(conflicts); got != 1 {
		t.Errorf("expected 1 session handshake, got %d", got)
	}
}

func TestClient_Test_AuthFailure(t *testing.T) {
	server, _ := sessionServer(t, func(rpcEnvelope) map[string]any { return nil })
	defer server.Close()

	res := setupTestClient(server, "", "wrong").Test(context.Background())
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != types.ErrAuthFailed.Error() {
		t.Errorf("expected auth error, got %q", res.Error)
	}
}

func TestClient_AddTorrent(t *testing.T) {
	var got map[string]any
	server, _ := sessionServer(t, func(req rpcEnvelope) map[string]any {
		got = req.Arguments
		return map[string]any{"result": "success", "arguments": map[string]any{
			"torrent-added": map[string]any{"id": 7, "hashString": "abcdef"},
		}}
	})
	defer server.Close()

	res := setupTestClient(server, types.ClientTypeVuze, "secret").AddTorrent(context.Background(), testMagnet, types.AddOptions{
		Category:    "movies",
		DownloadDir: "/data",
	})
	if !res.Success {
		t.Fatalf("AddTorrent() failed: %s", res.Error)
	}
	if got["filename"] != testMagnet || got["download-dir"] != "/data" {
		t.Errorf("unexpected arguments: %v", got)
	}
	if labels, _ := got["labels"].([]any); len(labels) != 1 || labels[0] != "movies" {
		t.Errorf("expected labels [movies], got %v", got["labels"])
	}
}

func TestClient_AddTorrent_RPCError(t *testing.T) {
	server, _ := sessionServer(t, func(rpcEnvelope) map[string]any {
		return map[string]any{"result": "invalid or corrupt torrent file"}
	})
	defer server.Close()

	res := setupTestClient(server, "", "secret").AddTorrent(context.Background(), testMagnet, types.AddOptions{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Transmission RPC error: invalid or corrupt torrent file" {
		t.Errorf("unexpected error %q", res.Error)
	}
}

func TestClient_GetTorrent(t *testing.T) {
	server, _ := sessionServer(t, func(req rpcEnvelope) map[string]any {
		return map[string]any{"result": "success", "arguments": map[string]any{"torrents": []any{
			map[string]any{"id": 3, "name": "other", "hashString": "1111111111111111111111111111111111111111", "metadataPercentComplete": 1},
			map[string]any{"id": 9, "name": "Heat", "hashString": "abcdef0123456789abcdef0123456789abcdef01", "metadataPercentComplete": 0.5, "status": 4},
		}}}
	})
	defer server.Close()

	h, err := setupTestClient(server, "", "secret").GetTorrent(context.Background(), testMagnet)
	if err != nil {
		t.Fatalf("GetTorrent() failed: %v", err)
	}
	if h == nil {
		t.Fatal("expected a torrent")
	}
	if h.ID != "9" || h.MetadataReady {
		t.Errorf("unexpected handle %+v", h)
	}
}

func TestClient_GetTorrent_Missing(t *testing.T) {
	server, _ := sessionServer(t, func(rpcEnvelope) map[string]any {
		return map[string]any{"result": "success", "arguments": map[string]any{"torrents": []any{}}}
	})
	defer server.Close()

	h, err := setupTestClient(server, "", "secret").GetTorrent(context.Background(), testMagnet)
	if err != nil || h != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", h, err)
	}
}

func TestClient_GetFiles(t *testing.T) {
	server, _ := sessionServer(t, func(req rpcEnvelope) map[string]any {
		ids, _ := req.Arguments["ids"].([]any)
		if len(ids) != 1 || ids[0] != float64(9) {
			t.Errorf("expected ids [9], got %v", req.Arguments["ids"])
		}
		return map[string]any{"result": "success", "arguments": map[string]any{"torrents": []any{
			map[string]any{"files": []any{
				map[string]any{"name": "Heat/Heat.mkv", "length": 2000},
				map[string]any{"name": "Heat/sample.mkv", "length": 20},
			}},
		}}}
	})
	defer server.Close()

	files, err := setupTestClient(server, "", "secret").GetFiles(context.Background(), "9")
	if err != nil {
		t.Fatalf("GetFiles() failed: %v", err)
	}
	if len(files) != 2 || files[0].Path != "Heat/Heat.mkv" || files[0].Size != 2000 || files[1].Index != 1 {
		t.Errorf("unexpected files %+v", files)
	}
}

func TestClient_RenameFile_SendsBaseName(t *testing.T) {
	var got map[string]any
	server, _ := sessionServer(t, func(req rpcEnvelope) map[string]any {
		if req.Method != "torrent-rename-path" {
			t.Errorf("unexpected method %s", req.Method)
		}
		got = req.Arguments
		return map[string]any{"result": "success"}
	})
	defer server.Close()

	res := setupTestClient(server, "", "secret").RenameFile(context.Background(), "9",
		types.FileEntry{Path: "Heat (1995) [1080p]/Heat.mkv"}, "Heat (1995) [1080p]/Heat (1995) [1080p].mkv")
	if !res.Success {
		t.Fatalf("RenameFile() failed: %s", res.Error)
	}
	if got["path"] != "Heat (1995) [1080p]/Heat.mkv" || got["name"] != "Heat (1995) [1080p].mkv" {
		t.Errorf("unexpected arguments %v", got)
	}
}

func TestClient_DeleteTorrent(t *testing.T) {
	var got map[string]any
	server, _ := sessionServer(t, func(req rpcEnvelope) map[string]any {
		got = req.Arguments
		return map[string]any{"result": "success"}
	})
	defer server.Close()

	res := setupTestClient(server, "", "secret").DeleteTorrent(context.Background(), "9", true)
	if !res.Success {
		t.Fatalf("DeleteTorrent() failed: %s", res.Error)
	}
	if got["delete-local-data"] != true {
		t.Errorf("expected delete-local-data true, got %v", got["delete-local-data"])
	}
}
