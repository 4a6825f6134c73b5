package relay

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/openeq/pixelstream/pkg/config"
	"github.com/openeq/pixelstream/pkg/logger"
	"github.com/openeq/pixelstream/pkg/supervisor"
)

func testWeb(t *testing.T) (*web, *Hub, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>player</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app.js"), []byte("let x = 1;"), 0o644); err != nil {
		t.Fatal(err)
	}

	conf := config.Relay{Session: config.Session{Max: 10, Timeout: time.Minute}}
	sup := supervisor.New(config.Game{StopTimeout: 10 * time.Millisecond, MockInterval: time.Hour}, "localhost:0", logger.Default())
	hub := NewHub(conf, sup, logger.Default())
	h := newWeb(config.Web{
		Roots: []string{root},
		Index: filepath.Join(root, "index.html"),
	}, hub, sup, logger.Default())
	return h, hub, root
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	h, hub, _ := testWeb(t)

	rec := get(t, h.handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		StreamerConnected bool   `json:"streamerConnected"`
		ViewerCount       int    `json:"viewerCount"`
		GameStatus        string `json:"gameStatus"`
		Timestamp         string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.StreamerConnected || body.ViewerCount != 0 || body.GameStatus != "waiting" {
		t.Fatalf("unexpected idle status: %+v", body)
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Fatalf("bad timestamp %q", body.Timestamp)
	}

	st := hub.Register(&fakeConn{}, "1.1.1.1:1")
	hub.AssignRole(st, RoleStreamer)
	v := hub.Register(&fakeConn{}, "1.1.1.1:2")
	hub.AssignRole(v, RoleViewer)

	rec = get(t, h.handler(), "/status")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.StreamerConnected || body.ViewerCount != 1 {
		t.Fatalf("unexpected live status: %+v", body)
	}
}

func TestPlayersEndpoint(t *testing.T) {
	h, hub, _ := testWeb(t)
	for i := 0; i < 2; i++ {
		v := hub.Register(&fakeConn{}, "1.1.1.1:1")
		hub.AssignRole(v, RoleViewer)
	}

	rec := get(t, h.handler(), "/api/players")
	var body struct {
		Count     int  `json:"count"`
		Connected bool `json:"connected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || !body.Connected {
		t.Fatalf("unexpected players: %+v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _, _ := testWeb(t)
	rec := httptest.NewRecorder()
	h.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestAssetServing(t *testing.T) {
	h, _, _ := testWeb(t)
	handler := h.handler()

	rec := get(t, handler, "/")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/html" {
		t.Fatalf("index: code=%d ct=%q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = get(t, handler, "/app.js")
	if rec.Code != http.StatusOK || rec.Body.String() != "let x = 1;" {
		t.Fatalf("app.js: code=%d body=%q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Fatalf("app.js content type %q", ct)
	}

	rec = get(t, handler, "/nope.css")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing file: code=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/app.js", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST asset: code=%d", rec.Code)
	}
}

func TestAssetTraversalForbidden(t *testing.T) {
	h, _, root := testWeb(t)

	secret := filepath.Join(filepath.Dir(root), "secret.txt")
	if err := os.WriteFile(secret, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	// the mux normalizes dotted paths, so hit the handler directly
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.URL.Path = "/../secret.txt"
	rec := httptest.NewRecorder()
	h.assets(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("traversal: code=%d", rec.Code)
	}
}

func TestAssetSymlinkEscapeForbidden(t *testing.T) {
	h, _, root := testWeb(t)

	outside := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(outside, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	rec := get(t, h.handler(), "/link.txt")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("symlink escape: code=%d body=%q", rec.Code, rec.Body.String())
	}
}
