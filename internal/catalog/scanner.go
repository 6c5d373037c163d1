// Package catalog builds the folder index of JSON/image page pairs under the
// data root and moves between neighbouring pages of a folder.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/layout-annotator/internal/images"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
)

// Scan walks root and returns every JSON page that has a companion image,
// grouped by containing folder and ordered by page number.
//
// A missing root yields an empty catalog so callers can scan speculatively.
// Unreadable subdirectories are skipped.
func Scan(root string) (models.Catalog, error) {
	cat := models.Catalog{}

	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Data root does not exist", "root", root)
		return cat, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat data root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data root %s is not a directory", root)
	}

	rootBase := filepath.Base(filepath.Clean(root))

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				slog.Warn("Skipping unreadable directory", "path", path, "err", err)
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() && path != root && d.Name() == models.UploadKeyDir && filepath.Dir(path) == filepath.Clean(root) {
			slog.Warn("Skipping directory that shadows upload keys", "path", path)
			return fs.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		dir := filepath.Dir(path)
		base := strings.TrimSuffix(d.Name(), ".json")
		imageName, ok := images.FindCompanion(dir, base)
		if !ok {
			return nil
		}

		relJSON, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		relImage, err := filepath.Rel(root, filepath.Join(dir, imageName))
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", imageName, err)
		}

		folder := filepath.Base(dir)
		if folder == rootBase {
			folder = models.RootFolder
		}

		cat[folder] = append(cat[folder], models.CatalogEntry{
			Folder:    folder,
			Name:      base,
			JSONPath:  filepath.ToSlash(relJSON),
			ImagePath: filepath.ToSlash(relImage),
			PageNum:   models.PageNumber(d.Name()),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan %s: %w", root, walkErr)
	}

	for folder, entries := range cat {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].PageNum < entries[j].PageNum
		})
		cat[folder] = entries
	}

	slog.Debug("Catalog scanned", "root", root, "folders", len(cat))
	return cat, nil
}
