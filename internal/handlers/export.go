package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/layout-annotator/internal/export"
)

type exportRequest struct {
	ExportType  string `json:"export_type"`
	ExportScope string `json:"export_scope"`
	Format      string `json:"format"`
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	var req exportRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeErr(w, err)
		return
	}
	typ, err := export.ParseType(req.ExportType)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	res, err := h.exporter.Export(r.Context(), export.Request{Type: typ, Scope: req.ExportScope, Format: format})
	if err != nil {
		h.writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Export-Count", strconv.Itoa(res.Count))
	_, _ = w.Write(res.Data)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, stats)
}
