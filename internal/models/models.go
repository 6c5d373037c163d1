package models

import (
	"encoding/json"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RootFolder labels pages that sit directly under the data root.
const RootFolder = "Root"

// UploadsFolder labels pages that arrived through the upload endpoint.
const UploadsFolder = "Uploads"

// UploadKeyDir is the reserved first path segment of uploaded page keys. It
// keeps uploads apart from pages under the data root that share a file name.
const UploadKeyDir = "@uploads"

// UploadKey returns the page key of an uploaded file name.
func UploadKey(name string) string {
	return UploadKeyDir + "/" + name
}

// SplitUploadKey returns the file name inside the upload directory when key
// is an upload key.
func SplitUploadKey(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, UploadKeyDir+"/")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// LayoutCategories is the closed set of layout labels a bounding box may carry.
var LayoutCategories = []string{
	"Caption", "Footnote", "Formula", "List-item", "Page-footer",
	"Page-header", "Picture", "Section-header", "Table", "Text", "Title",
}

// IsLayoutCategory reports whether c is one of LayoutCategories.
func IsLayoutCategory(c string) bool {
	for _, known := range LayoutCategories {
		if c == known {
			return true
		}
	}
	return false
}

var pageNumPattern = regexp.MustCompile(`page_(\d+)`)

// PageNumber extracts the number from a "page_<digits>" filename, or 0.
func PageNumber(filename string) int {
	m := pageNumPattern.FindStringSubmatch(filename)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// PageKey identifies a page by its slash-separated path relative to the data root.
type PageKey struct {
	Path    string `json:"path"`
	Folder  string `json:"folder"`
	Name    string `json:"name"`
	PageNum int    `json:"page_num"`
}

// NewPageKey derives folder, name and page number from a relative path.
// rootBase is the base name of the data root; a containing directory with the
// same base name is grouped under RootFolder.
func NewPageKey(relPath, rootBase string) PageKey {
	dir, file := path.Split(relPath)
	folder := path.Base(strings.TrimSuffix(dir, "/"))
	switch {
	case folder == UploadKeyDir:
		folder = UploadsFolder
	case dir == "" || folder == "." || folder == "/" || folder == rootBase:
		folder = RootFolder
	}
	return PageKey{
		Path:    relPath,
		Folder:  folder,
		Name:    strings.TrimSuffix(file, ".json"),
		PageNum: PageNumber(file),
	}
}

// Item is one bounding box. Geometry and OCR fields are opaque and passed through.
type Item map[string]any

const (
	ItemIDKey           = "id"
	ItemCategoryKey     = "category"
	ItemReadingOrderKey = "reading_order"
)

// ID returns the item identifier, or "" when absent.
func (it Item) ID() string {
	s, _ := it[ItemIDKey].(string)
	return s
}

// Category returns the layout label, or "" when absent.
func (it Item) Category() string {
	s, _ := it[ItemCategoryKey].(string)
	return s
}

// ReadingOrder returns the reading order and whether it is present and numeric.
func (it Item) ReadingOrder() (int, bool) {
	switch v := it[ItemReadingOrderKey].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(n), true
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the item.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// PageRecord is the persisted annotation state of one page.
type PageRecord struct {
	Path       string    `json:"path"`
	Folder     string    `json:"folder"`
	Name       string    `json:"name"`
	Items      []Item    `json:"items"`
	Validated  bool      `json:"validated"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// CatalogEntry is a JSON/image pair found under the data root.
type CatalogEntry struct {
	Folder    string `json:"folder" yaml:"folder"`
	Name      string `json:"name" yaml:"name"`
	JSONPath  string `json:"json_path" yaml:"json_path"`
	ImagePath string `json:"image_path" yaml:"image_path"`
	PageNum   int    `json:"page_num" yaml:"page_num"`
}

// Catalog maps folder names to their pages ordered by page number.
type Catalog map[string][]CatalogEntry

// Folders returns the folder names in lexicographic order.
func (c Catalog) Folders() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NavigationResult is the page reached by a next/prev move.
type NavigationResult struct {
	CatalogEntry
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// FolderStats counts pages within one folder.
type FolderStats struct {
	Total     int `json:"total"`
	Validated int `json:"validated"`
}

// Stats summarizes validation progress across the record store.
type Stats struct {
	Total     int                    `json:"total"`
	Validated int                    `json:"validated_count"`
	PerFolder map[string]FolderStats `json:"per_folder"`
}

// ExportLogEntry records one export call.
type ExportLogEntry struct {
	ExportType string    `json:"export_type"`
	Scope      string    `json:"scope"`
	FileCount  int       `json:"file_count"`
	ExportedAt time.Time `json:"exported_at"`
}

// ValidationLogEntry records a page being marked validated.
type ValidationLogEntry struct {
	PagePath    string    `json:"page_path"`
	ValidatedAt time.Time `json:"validated_at"`
}
