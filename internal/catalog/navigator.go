package catalog

import (
	"fmt"

	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

// Direction is a navigation step within a folder.
type Direction string

const (
	Next Direction = "next"
	Prev Direction = "prev"
)

// ParseDirection accepts "next" or "prev".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Next, Prev:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: direction must be 'next' or 'prev', got %q", utils.ErrInvalidInput, s)
	}
}

// Locate finds the folder and index of the entry whose JSON path is jsonPath.
// Folders are searched in lexicographic order and the first match wins.
func Locate(cat models.Catalog, jsonPath string) (string, int, bool) {
	for _, folder := range cat.Folders() {
		for i, entry := range cat[folder] {
			if entry.JSONPath == jsonPath {
				return folder, i, true
			}
		}
	}
	return "", 0, false
}

// Navigate moves one page forward or back from currentPath within its folder,
// wrapping around at both ends.
func Navigate(cat models.Catalog, currentPath string, dir Direction) (models.NavigationResult, error) {
	cleaned, err := utils.CleanRelPath(currentPath)
	if err != nil {
		return models.NavigationResult{}, err
	}
	folder, idx, ok := Locate(cat, cleaned)
	if !ok {
		return models.NavigationResult{}, fmt.Errorf("%w: current file %q", utils.ErrNotFound, currentPath)
	}

	entries := cat[folder]
	n := len(entries)
	var target int
	switch dir {
	case Next:
		target = (idx + 1) % n
	case Prev:
		target = (idx - 1 + n) % n
	default:
		return models.NavigationResult{}, fmt.Errorf("%w: unknown direction %q", utils.ErrInvalidInput, dir)
	}

	return models.NavigationResult{
		CatalogEntry: entries[target],
		CurrentPage:  target + 1,
		TotalPages:   n,
	}, nil
}
