package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/lehigh-university-libraries/layout-annotator/internal/annotation"
	"github.com/lehigh-university-libraries/layout-annotator/internal/images"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

// HandleUpload accepts a page JSON file and its image as one multipart request,
// stores both in the upload directory and seeds the record store.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(h.maxBody); err != nil {
		if errorStatus(err) == http.StatusRequestEntityTooLarge {
			h.writeErr(w, err)
			return
		}
		h.writeError(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	jsonFile, jsonHeader, err := r.FormFile("json_file")
	if err != nil {
		h.writeError(w, "Both JSON and image files are required", http.StatusBadRequest)
		return
	}
	defer jsonFile.Close()
	imageFile, imageHeader, err := r.FormFile("image_file")
	if err != nil {
		h.writeError(w, "Both JSON and image files are required", http.StatusBadRequest)
		return
	}
	defer imageFile.Close()

	jsonName := utils.SanitizeFilename(jsonHeader.Filename)
	imageName := utils.SanitizeFilename(imageHeader.Filename)
	if jsonName == "" || imageName == "" {
		h.writeError(w, "No files selected", http.StatusBadRequest)
		return
	}

	jsonData, err := readPart(jsonFile)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	items, err := annotation.Decode(jsonData)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	imageData, err := readPart(imageFile)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	jsonPath := filepath.Join(h.uploadDir, jsonName)
	imagePath := filepath.Join(h.uploadDir, imageName)
	if err := utils.WriteFileAtomic(jsonPath, jsonData); err != nil {
		h.writeError(w, "Error saving upload: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := utils.WriteFileAtomic(imagePath, imageData); err != nil {
		h.writeError(w, "Error saving upload: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items = annotation.AssignIdentifiers(items)
	rec, err := h.resolver.SeedUpload(r.Context(), jsonName, items)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	width, height, err := images.Dimensions(imagePath)
	if err != nil {
		slog.Warn("Unable to read uploaded image dimensions", "image", imageName, "err", err)
	}

	slog.Info("Uploaded page", "json", jsonName, "image", imageName, "items", len(items), "width", width, "height", height)
	h.writeJSON(w, map[string]any{
		"data":         items,
		"json_path":    rec.Path,
		"image_path":   models.UploadKey(imageName),
		"image_width":  width,
		"image_height": height,
		"uploaded":     true,
	})
}

func readPart(f multipart.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}
