package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/layout-annotator/internal/config"
	"github.com/lehigh-university-libraries/layout-annotator/internal/export"
	"github.com/lehigh-university-libraries/layout-annotator/internal/resolver"
	"github.com/lehigh-university-libraries/layout-annotator/internal/storage"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

type Handler struct {
	dataDir   string
	uploadDir string
	staticDir string
	maxBody   int64

	store    *storage.Store
	resolver *resolver.Resolver
	exporter *export.Exporter
}

func New(cfg config.Config, store *storage.Store) *Handler {
	return &Handler{
		dataDir:   cfg.DataDir,
		uploadDir: cfg.UploadDir,
		staticDir: cfg.StaticDir,
		maxBody:   cfg.MaxUploadBytes(),
		store:     store,
		resolver:  resolver.New(cfg.DataDir, cfg.UploadDir, store),
		exporter:  export.New(store),
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders", h.HandleFolders)
	mux.HandleFunc("/api/load_file", h.HandleLoadFile)
	mux.HandleFunc("/api/save_file", h.HandleSaveFile)
	mux.HandleFunc("/api/upload", h.HandleUpload)
	mux.HandleFunc("/api/navigate", h.HandleNavigate)
	mux.HandleFunc("/api/image/", h.HandleImage)
	mux.HandleFunc("/api/validate_page", h.HandleValidatePage)
	mux.HandleFunc("/api/export", h.HandleExport)
	mux.HandleFunc("/api/stats", h.HandleStats)
	mux.HandleFunc("/api/categories", h.HandleCategories)
	mux.HandleFunc("/healthcheck", h.HandleHealthcheck)
	mux.HandleFunc("/", h.HandleStatic)
	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message, "status", code)
	} else {
		slog.Warn(message, "status", code)
	}
	h.writeJSONStatus(w, code, map[string]string{"error": message})
}

// writeErr maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	h.writeError(w, err.Error(), errorStatus(err))
}

func errorStatus(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, utils.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrNotFound), errors.Is(err, utils.ErrNoData):
		return http.StatusNotFound
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decodeBody reads a size-limited JSON request body into v.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", utils.ErrInvalidInput, err)
	}
	return nil
}
