package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/layout-annotator/internal/catalog"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

func (h *Handler) HandleFolders(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	cat, err := catalog.Scan(h.dataDir)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, cat)
}

func (h *Handler) HandleLoadFile(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		h.writeError(w, "No file path provided", http.StatusBadRequest)
		return
	}

	res, err := h.resolver.Resolve(r.Context(), path)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"data":      res.Items,
		"file_path": res.Path,
		"validated": res.Validated,
		"source":    res.Source,
	})
}

type saveRequest struct {
	FilePath         string        `json:"file_path"`
	Data             []models.Item `json:"data"`
	SaveToFilesystem bool          `json:"save_to_filesystem"`
}

func (h *Handler) HandleSaveFile(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	var req saveRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeErr(w, err)
		return
	}
	if strings.TrimSpace(req.FilePath) == "" || req.Data == nil {
		h.writeError(w, "Missing file path or data", http.StatusBadRequest)
		return
	}

	result, err := h.resolver.Save(r.Context(), req.FilePath, req.Data, req.SaveToFilesystem)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if result.FilesystemError != nil {
		h.writeJSONStatus(w, http.StatusInternalServerError, map[string]any{
			"success":             false,
			"error":               fmt.Sprintf("saved to store but failed to write file: %v", result.FilesystemError),
			"saved_to_store":      result.SavedToStore,
			"saved_to_filesystem": result.SavedToFilesystem,
		})
		return
	}
	slog.Info("Saved page", "path", req.FilePath, "items", len(req.Data), "mirrored", result.SavedToFilesystem)
	h.writeJSON(w, map[string]any{
		"success":             true,
		"saved_to_store":      result.SavedToStore,
		"saved_to_filesystem": result.SavedToFilesystem,
	})
}

func (h *Handler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	current, direction := q.Get("current_path"), q.Get("direction")
	if current == "" || direction == "" {
		h.writeError(w, "Missing parameters", http.StatusBadRequest)
		return
	}
	dir, err := catalog.ParseDirection(direction)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	cat, err := catalog.Scan(h.dataDir)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	res, err := catalog.Navigate(cat, current, dir)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, res)
}

type validateRequest struct {
	FilePath  string `json:"file_path"`
	Validated *bool  `json:"validated"`
}

func (h *Handler) HandleValidatePage(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	var req validateRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeErr(w, err)
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		h.writeErr(w, fmt.Errorf("%w: file_path is required", utils.ErrInvalidInput))
		return
	}
	validated := true
	if req.Validated != nil {
		validated = *req.Validated
	}

	rec, err := h.resolver.SetValidated(r.Context(), req.FilePath, validated)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"success":   true,
		"validated": rec.Validated,
	})
}
