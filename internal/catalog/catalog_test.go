package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		full := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", f, err)
		}
		if err := os.WriteFile(full, []byte(`[]`), 0644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
}

func paths(entries []models.CatalogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.JSONPath
	}
	return out
}

func TestScanDocsScenario(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	writeFiles(t, root,
		"docs/page_1.json", "docs/page_1_original.png",
		"docs/page_2.json", "docs/page_2.jpg",
	)

	cat, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	expected := models.Catalog{
		"docs": {
			{Folder: "docs", Name: "page_1", JSONPath: "docs/page_1.json", ImagePath: "docs/page_1_original.png", PageNum: 1},
			{Folder: "docs", Name: "page_2", JSONPath: "docs/page_2.json", ImagePath: "docs/page_2.jpg", PageNum: 2},
		},
	}
	if !reflect.DeepEqual(cat, expected) {
		t.Errorf("Expected %+v, got %+v", expected, cat)
	}

	nav, err := Navigate(cat, "docs/page_2.json", Next)
	if err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	if nav.JSONPath != "docs/page_1.json" || nav.CurrentPage != 1 || nav.TotalPages != 2 {
		t.Errorf("Expected wrap to page_1 (1/2), got %s (%d/%d)", nav.JSONPath, nav.CurrentPage, nav.TotalPages)
	}
}

func TestScanGroupsSortsAndExcludes(t *testing.T) {
	root := filepath.Join(t.TempDir(), "focus_output")
	writeFiles(t, root,
		// root level files are grouped under Root
		"cover.json", "cover.png",
		// sorted by page number, not by name
		"book/page_10.json", "book/page_10.png",
		"book/page_2.json", "book/page_2_annotated.jpeg",
		"book/page_1.json", "book/page_1.jpg",
		// no image: excluded
		"book/page_3.json",
		// nested folder uses its own base name
		"series/vol1/page_1.json", "series/vol1/page_1.png",
		// not json
		"book/notes.txt",
	)

	cat, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if got, want := cat.Folders(), []string{"Root", "book", "vol1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected folders %v, got %v", want, got)
	}
	if got, want := paths(cat["book"]), []string{"book/page_1.json", "book/page_2.json", "book/page_10.json"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected book order %v, got %v", want, got)
	}
	if cat["book"][1].ImagePath != "book/page_2_annotated.jpeg" {
		t.Errorf("Expected annotated jpeg image, got %s", cat["book"][1].ImagePath)
	}
	if got := paths(cat["Root"]); !reflect.DeepEqual(got, []string{"cover.json"}) {
		t.Errorf("Expected Root to hold cover.json, got %v", got)
	}
	if cat["Root"][0].PageNum != 0 {
		t.Errorf("Expected page number 0 for cover, got %d", cat["Root"][0].PageNum)
	}
	if got := paths(cat["vol1"]); !reflect.DeepEqual(got, []string{"series/vol1/page_1.json"}) {
		t.Errorf("Expected vol1 entry, got %v", got)
	}
}

func TestScanStableForEqualPageNumbers(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	writeFiles(t, root,
		"misc/alpha.json", "misc/alpha.png",
		"misc/beta.json", "misc/beta.png",
		"misc/gamma.json", "misc/gamma.png",
	)

	cat, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{"misc/alpha.json", "misc/beta.json", "misc/gamma.json"}
	if got := paths(cat["misc"]); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected discovery order %v, got %v", want, got)
	}

	again, err := Scan(root)
	if err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if !reflect.DeepEqual(cat, again) {
		t.Error("Repeated scans of an unchanged tree differ")
	}
}

func TestScanMissingRoot(t *testing.T) {
	cat, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Expected no error for missing root, got %v", err)
	}
	if len(cat) != 0 {
		t.Errorf("Expected empty catalog, got %v", cat)
	}
}

func TestNavigate(t *testing.T) {
	cat := models.Catalog{
		"a": {
			{Folder: "a", Name: "page_1", JSONPath: "a/page_1.json", PageNum: 1},
			{Folder: "a", Name: "page_2", JSONPath: "a/page_2.json", PageNum: 2},
			{Folder: "a", Name: "page_3", JSONPath: "a/page_3.json", PageNum: 3},
		},
		"solo": {
			{Folder: "solo", Name: "only", JSONPath: "solo/only.json"},
		},
	}

	tests := []struct {
		name     string
		current  string
		dir      Direction
		expected string
		page     int
		total    int
	}{
		{name: "next in middle", current: "a/page_1.json", dir: Next, expected: "a/page_2.json", page: 2, total: 3},
		{name: "next wraps", current: "a/page_3.json", dir: Next, expected: "a/page_1.json", page: 1, total: 3},
		{name: "prev wraps", current: "a/page_1.json", dir: Prev, expected: "a/page_3.json", page: 3, total: 3},
		{name: "prev in middle", current: "a/page_3.json", dir: Prev, expected: "a/page_2.json", page: 2, total: 3},
		{name: "single page next", current: "solo/only.json", dir: Next, expected: "solo/only.json", page: 1, total: 1},
		{name: "single page prev", current: "solo/only.json", dir: Prev, expected: "solo/only.json", page: 1, total: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Navigate(cat, tt.current, tt.dir)
			if err != nil {
				t.Fatalf("Navigate failed: %v", err)
			}
			if got.JSONPath != tt.expected || got.CurrentPage != tt.page || got.TotalPages != tt.total {
				t.Errorf("Expected %s (%d/%d), got %s (%d/%d)", tt.expected, tt.page, tt.total, got.JSONPath, got.CurrentPage, got.TotalPages)
			}
		})
	}
}

func TestNavigateRoundTrip(t *testing.T) {
	cat := models.Catalog{
		"a": {
			{JSONPath: "a/1.json"}, {JSONPath: "a/2.json"}, {JSONPath: "a/3.json"}, {JSONPath: "a/4.json"},
		},
	}
	for _, e := range cat["a"] {
		fwd, err := Navigate(cat, e.JSONPath, Next)
		if err != nil {
			t.Fatalf("next from %s: %v", e.JSONPath, err)
		}
		back, err := Navigate(cat, fwd.JSONPath, Prev)
		if err != nil {
			t.Fatalf("prev from %s: %v", fwd.JSONPath, err)
		}
		if back.JSONPath != e.JSONPath {
			t.Errorf("Round trip from %s ended at %s", e.JSONPath, back.JSONPath)
		}
	}
}

func TestNavigateErrors(t *testing.T) {
	cat := models.Catalog{"a": {{JSONPath: "a/1.json"}}}

	if _, err := Navigate(cat, "a/missing.json", Next); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := Navigate(cat, "a/1.json", Direction("sideways")); !errors.Is(err, utils.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := ParseDirection("up"); !errors.Is(err, utils.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput from ParseDirection, got %v", err)
	}
	if _, err := Navigate(cat, "../a/1.json", Next); !errors.Is(err, utils.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for escaping path, got %v", err)
	}
	if d, err := ParseDirection("prev"); err != nil || d != Prev {
		t.Errorf("Expected Prev, got %v (%v)", d, err)
	}
}

func TestLocateFirstMatchInFolderOrder(t *testing.T) {
	cat := models.Catalog{
		"b": {{JSONPath: "dup.json"}},
		"a": {{JSONPath: "x.json"}, {JSONPath: "dup.json"}},
	}
	folder, idx, ok := Locate(cat, "dup.json")
	if !ok || folder != "a" || idx != 1 {
		t.Errorf("Expected (a, 1), got (%s, %d, %v)", folder, idx, ok)
	}
}

func TestNavigateNormalizesCurrentPath(t *testing.T) {
	cat := models.Catalog{"docs": {
		{Folder: "docs", JSONPath: "docs/page_1.json", PageNum: 1},
		{Folder: "docs", JSONPath: "docs/page_2.json", PageNum: 2},
	}}

	for _, current := range []string{"docs/./page_2.json", "docs//page_2.json", "docs/sub/../page_2.json"} {
		nav, err := Navigate(cat, current, Next)
		if err != nil {
			t.Fatalf("Navigate(%q) failed: %v", current, err)
		}
		if nav.JSONPath != "docs/page_1.json" {
			t.Errorf("Navigate(%q): expected docs/page_1.json, got %s", current, nav.JSONPath)
		}
	}
}

func TestScanSkipsUploadKeyDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	writeFiles(t, root,
		"docs/page_1.json", "docs/page_1.png",
		models.UploadKeyDir+"/page_1.json", models.UploadKeyDir+"/page_1.png",
	)

	cat, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if _, ok := cat[models.UploadKeyDir]; ok {
		t.Errorf("Expected %s to be skipped, got %+v", models.UploadKeyDir, cat)
	}
	if len(cat["docs"]) != 1 {
		t.Errorf("Expected 1 docs entry, got %+v", cat["docs"])
	}
}
