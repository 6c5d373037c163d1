package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/layout-annotator/internal/images"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

// HandleImage serves a page image. Upload keys are served from the upload
// directory, everything else from the data root.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/image/")

	root := h.dataDir
	if upload, ok := models.SplitUploadKey(name); ok {
		root, name = h.uploadDir, upload
	}
	if root == "" {
		h.writeError(w, "Image not found", http.StatusNotFound)
		return
	}

	full, err := utils.SafeJoin(root, name)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Unable to stat image", "path", full, "err", err)
		}
		h.writeError(w, "Image not found", http.StatusNotFound)
		return
	}
	if !images.IsImageFile(full) {
		h.writeError(w, "Not an image", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, full)
}

// HandleStatic serves the editor front end from the static directory.
func (h *Handler) HandleStatic(w http.ResponseWriter, r *http.Request) {
	if h.staticDir == "" {
		http.NotFound(w, r)
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, "/")
	if rel == "" {
		rel = "index.html"
	}

	full, err := utils.SafeJoin(h.staticDir, rel)
	if err != nil {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	// Set appropriate content type based on file extension
	switch {
	case strings.HasSuffix(full, ".css"):
		w.Header().Set("Content-Type", "text/css")
	case strings.HasSuffix(full, ".js"):
		w.Header().Set("Content-Type", "application/javascript")
	case strings.HasSuffix(full, ".html"):
		w.Header().Set("Content-Type", "text/html")
	}
	http.ServeFile(w, r, full)
}

func (h *Handler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	h.writeJSON(w, map[string]any{"categories": models.LayoutCategories})
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.writeError(w, "record store unavailable", http.StatusServiceUnavailable)
		return
	}
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Unable to write healthcheck", "err", err)
	}
}
