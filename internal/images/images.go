package images

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// CompanionExtensions are tried in order when looking for a page image.
var CompanionExtensions = []string{".png", ".jpg", ".jpeg"}

// companionPatterns build candidate image names from a page base name and extension.
var companionPatterns = []func(base, ext string) string{
	func(base, ext string) string { return base + "_original" + ext },
	func(base, ext string) string { return base + ext },
	func(base, ext string) string { return base + "_annotated" + ext },
}

// FindCompanion looks in dir for the image belonging to the page named base.
// Extensions are scanned first, then naming patterns, and the first existing
// file wins. It returns the file name (not the full path) and whether one was found.
func FindCompanion(dir, base string) (string, bool) {
	for _, ext := range CompanionExtensions {
		for _, pattern := range companionPatterns {
			name := pattern(base, ext)
			info, err := os.Stat(filepath.Join(dir, name))
			if err == nil && info.Mode().IsRegular() {
				return name, true
			}
		}
	}
	return "", false
}

// IsImageFile reports whether name has an extension the server will serve as an image.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// Dimensions decodes only the image header at path and returns width and height.
func Dimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}

	return cfg.Width, cfg.Height, nil
}
