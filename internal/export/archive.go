// Package export packages stored page records for download, either as a ZIP
// archive of canonical page files or as a Parquet dataset of boxes.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/layout-annotator/internal/annotation"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

type Type string

const (
	TypePage    Type = "page"
	TypeFolder  Type = "folder"
	TypeProject Type = "project"
)

type Format string

const (
	FormatZIP     Format = "zip"
	FormatParquet Format = "parquet"
)

// ParseType validates an export type string.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypePage, TypeFolder, TypeProject:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown export type %q", utils.ErrInvalidInput, s)
	}
}

// ParseFormat validates an export format string. Empty means zip.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatZIP, nil
	case FormatZIP, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", utils.ErrInvalidInput, s)
	}
}

// Source is the part of the record store an export reads from and logs to.
type Source interface {
	Get(ctx context.Context, path string) (models.PageRecord, error)
	ListByFolder(ctx context.Context, folder string) ([]models.PageRecord, error)
	ListAll(ctx context.Context) ([]models.PageRecord, error)
	LogExport(ctx context.Context, e models.ExportLogEntry) error
}

type Request struct {
	Type   Type
	Scope  string
	Format Format
}

type Result struct {
	Data        []byte
	Filename    string
	ContentType string
	Count       int
}

type Exporter struct {
	store Source
}

func New(store Source) *Exporter {
	return &Exporter{store: store}
}

// Export selects records for the request and packages them. An empty selection
// fails with utils.ErrNoData and is not logged.
func (e *Exporter) Export(ctx context.Context, req Request) (Result, error) {
	if req.Format == "" {
		req.Format = FormatZIP
	}
	records, err := e.selectRecords(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if len(records) == 0 {
		return Result{}, fmt.Errorf("%w: nothing to export for %s %q", utils.ErrNoData, req.Type, req.Scope)
	}

	var res Result
	switch req.Format {
	case FormatZIP:
		res.Data, err = buildArchive(records, req.Type == TypeProject)
		res.ContentType = "application/zip"
	case FormatParquet:
		var buf bytes.Buffer
		err = WriteDataset(&buf, records)
		res.Data = buf.Bytes()
		res.ContentType = "application/vnd.apache.parquet"
	default:
		return Result{}, fmt.Errorf("%w: unknown export format %q", utils.ErrInvalidInput, req.Format)
	}
	if err != nil {
		return Result{}, err
	}
	res.Count = len(records)
	res.Filename = archiveName(req, records) + "." + string(req.Format)

	entry := models.ExportLogEntry{
		ExportType: string(req.Type),
		Scope:      req.Scope,
		FileCount:  res.Count,
		ExportedAt: time.Now(),
	}
	if err := e.store.LogExport(ctx, entry); err != nil {
		return Result{}, err
	}
	slog.Info("Exported pages", "type", req.Type, "scope", req.Scope, "format", req.Format, "count", res.Count, "bytes", len(res.Data))
	return res, nil
}

func (e *Exporter) selectRecords(ctx context.Context, req Request) ([]models.PageRecord, error) {
	scope := strings.TrimSpace(req.Scope)
	switch req.Type {
	case TypePage:
		if scope == "" {
			return nil, fmt.Errorf("%w: page export requires a scope", utils.ErrInvalidInput)
		}
		cleaned, err := utils.CleanRelPath(scope)
		if err != nil {
			return nil, err
		}
		rec, err := e.store.Get(ctx, cleaned)
		if errors.Is(err, utils.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []models.PageRecord{rec}, nil
	case TypeFolder:
		if scope == "" {
			return nil, fmt.Errorf("%w: folder export requires a scope", utils.ErrInvalidInput)
		}
		return e.store.ListByFolder(ctx, scope)
	case TypeProject:
		return e.store.ListAll(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown export type %q", utils.ErrInvalidInput, req.Type)
	}
}

func archiveName(req Request, records []models.PageRecord) string {
	switch req.Type {
	case TypePage:
		return utils.SanitizeFilename(records[0].Name) + "_export"
	case TypeFolder:
		if name := utils.SanitizeFilename(req.Scope); name != "" {
			return name + "_export"
		}
	}
	return "project_export"
}

// pageMetadata is the sidecar written next to each exported page.
type pageMetadata struct {
	Path       string    `json:"path"`
	Folder     string    `json:"folder"`
	Name       string    `json:"name"`
	Validated  bool      `json:"validated"`
	ItemCount  int       `json:"item_count"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// buildArchive writes {name}.json and {name}_metadata.json per record. With
// nested set, entries live under {folder}/.
func buildArchive(records []models.PageRecord, nested bool) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int)

	for _, rec := range records {
		base := rec.Name
		if base == "" {
			base = strings.TrimSuffix(path.Base(rec.Path), ".json")
		}
		if nested {
			base = path.Join(rec.Folder, base)
		}
		base = uniqueName(used, base)

		pageJSON, err := annotation.EncodeCanonical(rec.Items)
		if err != nil {
			return nil, err
		}
		meta, err := json.MarshalIndent(pageMetadata{
			Path:       rec.Path,
			Folder:     rec.Folder,
			Name:       rec.Name,
			Validated:  rec.Validated,
			ItemCount:  len(rec.Items),
			CreatedAt:  rec.CreatedAt,
			ModifiedAt: rec.ModifiedAt,
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}

		if err := writeEntry(zw, base+".json", pageJSON); err != nil {
			return nil, err
		}
		if err := writeEntry(zw, base+"_metadata.json", meta); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueName(used map[string]int, base string) string {
	n := used[base]
	used[base] = n + 1
	if n == 0 {
		return base
	}
	for {
		candidate := base + "_" + strconv.Itoa(n+1)
		if used[candidate] == 0 {
			used[candidate] = 1
			return candidate
		}
		n++
	}
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}
