package relay

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/openeq/pixelstream/pkg/config"
	"github.com/openeq/pixelstream/pkg/logger"
	"github.com/openeq/pixelstream/pkg/network/httpx"
	"github.com/openeq/pixelstream/pkg/supervisor"
)

var contentTypes = map[string]string{
	".html": "text/html",
	".js":   "application/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".gif":  "image/gif",
	".ico":  "image/x-icon",
}

// web serves the player page assets and the JSON status endpoints.
// File reads are confined to the configured root directories.
type web struct {
	hub   *Hub
	sup   *supervisor.Supervisor
	index string
	// roots are absolute, symlink-resolved directories
	roots []string
	log   *logger.Logger
}

func NewWebServer(conf config.Config, hub *Hub, sup *supervisor.Supervisor, log *logger.Logger) (*httpx.Server, error) {
	h := newWeb(conf.Relay.Web, hub, sup, log)
	return httpx.NewServer(
		conf.Relay.Web.Server.GetAddr(),
		func(*httpx.Server) http.Handler { return h.handler() },
		httpx.WithServerConfig(conf.Relay.Web.Server),
		httpx.WithLogger(log),
	)
}

func newWeb(conf config.Web, hub *Hub, sup *supervisor.Supervisor, log *logger.Logger) *web {
	h := &web{hub: hub, sup: sup, index: conf.Index, log: log}
	for _, root := range conf.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		h.roots = append(h.roots, abs)
	}
	return h
}

func (h *web) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", h.status)
	mux.HandleFunc("/api/players", h.players)
	mux.HandleFunc("/", h.assets)
	return cors(mux)
}

// cors allows the player page to be hosted on another origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *web) status(w http.ResponseWriter, r *http.Request) {
	gameStatus := "waiting"
	if h.sup.RunningCount() > 0 {
		gameStatus = "running"
	}
	writeJSON(w, map[string]any{
		"streamerConnected": h.hub.StreamerConnected(),
		"viewerCount":       h.hub.ViewerCount(),
		"timestamp":         time.Now().Format(time.RFC3339),
		"gameStatus":        gameStatus,
		"message":           "signaling relay is running",
		"processes":         h.sup.ProcessStats(),
	})
}

func (h *web) players(w http.ResponseWriter, r *http.Request) {
	count := h.hub.ViewerCount()
	writeJSON(w, map[string]any{
		"count":     count,
		"connected": count > 0,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *web) assets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Path
	if name == "/" {
		name = "/" + filepath.Base(h.index)
	}

	violation := false
	for _, root := range h.roots {
		fp := filepath.Join(root, filepath.FromSlash(name))
		if !within(root, fp) {
			violation = true
			continue
		}
		resolved, err := filepath.EvalSymlinks(fp)
		if err != nil {
			continue
		}
		if !within(root, resolved) {
			violation = true
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil || info.IsDir() {
			continue
		}
		h.serveFile(w, resolved)
		return
	}
	if violation {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	http.NotFound(w, r)
}

func (h *web) serveFile(w http.ResponseWriter, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// within reports whether path stays inside root after lexical resolution.
func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
