package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// MediaHandler serves the spectrogram and audio files a document's paths
// block refers to. Read-only: documents reference media, they never carry
// it, and this service never writes it.
type MediaHandler struct {
	libraryRoot string
}

// NewMediaHandler creates a handler rooted at the library directory.
func NewMediaHandler(libraryRoot string) *MediaHandler {
	return &MediaHandler{libraryRoot: libraryRoot}
}

// safeMediaPath resolves a relative media path against the library root and
// rejects traversal, lock sidecars, and dotfiles.
func (h *MediaHandler) safeMediaPath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: %s", rel)
	}
	base := filepath.Base(cleaned)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".lock") {
		return "", fmt.Errorf("invalid path: %s", rel)
	}
	abs := filepath.Join(h.libraryRoot, cleaned)
	if !strings.HasPrefix(abs, h.libraryRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes library root")
	}
	return abs, nil
}

// ServeFile handles GET /api/media/*.
func (h *MediaHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(rel); err == nil {
		rel = decoded
	}
	abs, err := h.safeMediaPath(rel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if info, statErr := os.Stat(abs); statErr != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}
