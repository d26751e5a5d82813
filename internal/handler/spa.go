package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// SPAHandler serves the single-page frontend from a static directory.
//
// SPA ROUTING:
// The frontend owns its routes client-side, so any path that doesn't match
// a real file falls back to index.html and lets the frontend router take
// over. This is also what makes the auth redirects work: the callback
// handler sends the browser to "/" or "/?error=...", and both must render
// the app shell.
type SPAHandler struct {
	staticDir string
}

// NewSPAHandler creates a handler rooted at staticDir.
func NewSPAHandler(staticDir string) *SPAHandler {
	return &SPAHandler{staticDir: staticDir}
}

// ServeHTTP serves the requested file if it exists, index.html otherwise.
func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Reject path traversal before touching the filesystem.
	if strings.Contains(r.URL.Path, "..") {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.staticDir, filepath.Clean("/"+r.URL.Path))

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
		return
	}

	http.ServeFile(w, r, path)
}
