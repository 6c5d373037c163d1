// Package resolver reconciles the two sources of page state: the canonical
// JSON files on disk and the record store.
//
// Store precedence: once a page has a record, the record is authoritative and
// the file is never read again for that page. The file only seeds the store on
// first access. Saves go to the store and are optionally mirrored to the file.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/layout-annotator/internal/annotation"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

// Source names where a resolved page came from.
type Source string

const (
	SourceStore      Source = "store"
	SourceFilesystem Source = "filesystem"
)

// RecordStore is the subset of the record store the resolver needs.
type RecordStore interface {
	Get(ctx context.Context, path string) (models.PageRecord, error)
	Upsert(ctx context.Context, path, folder, name string, items []models.Item) (models.PageRecord, error)
	SetValidated(ctx context.Context, path string, validated bool) (models.PageRecord, error)
}

// Resolution is the editor view of a page.
type Resolution struct {
	Path      string
	Items     []models.Item
	Validated bool
	Source    Source
}

// SaveResult reports the outcome of each write a save performs.
type SaveResult struct {
	SavedToStore      bool
	SavedToFilesystem bool
	FilesystemError   error
}

// Resolver serves page reads and writes for one data root.
type Resolver struct {
	dataDir   string
	uploadDir string
	rootBase  string
	store     RecordStore
}

// New creates a resolver. uploadDir may be empty when uploads are disabled.
func New(dataDir, uploadDir string, store RecordStore) *Resolver {
	return &Resolver{
		dataDir:   dataDir,
		uploadDir: uploadDir,
		rootBase:  filepath.Base(filepath.Clean(dataDir)),
		store:     store,
	}
}

// Key derives the page key for a relative path under the data root.
func (r *Resolver) Key(path string) (models.PageKey, error) {
	cleaned, err := utils.CleanRelPath(path)
	if err != nil {
		return models.PageKey{}, err
	}
	return models.NewPageKey(cleaned, r.rootBase), nil
}

// Resolve returns the current items of a page, preferring the record store and
// seeding it from the page file on first access.
func (r *Resolver) Resolve(ctx context.Context, path string) (Resolution, error) {
	key, err := r.Key(path)
	if err != nil {
		return Resolution{}, err
	}

	res, err := r.resolveFromStore(ctx, key)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return Resolution{}, err
	}
	return r.resolveFromFilesystem(ctx, key)
}

func (r *Resolver) resolveFromStore(ctx context.Context, key models.PageKey) (Resolution, error) {
	rec, err := r.store.Get(ctx, key.Path)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		Path:      key.Path,
		Items:     annotation.AssignIdentifiers(rec.Items),
		Validated: rec.Validated,
		Source:    SourceStore,
	}, nil
}

func (r *Resolver) resolveFromFilesystem(ctx context.Context, key models.PageKey) (Resolution, error) {
	full, err := r.locate(key.Path)
	if err != nil {
		return Resolution{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return Resolution{}, fmt.Errorf("read page file: %w", err)
	}
	items, err := annotation.Decode(data)
	if err != nil {
		// A broken file on disk is not the caller's fault.
		return Resolution{}, fmt.Errorf("load page file %s: %v", key.Path, err)
	}
	items = annotation.AssignIdentifiers(items)

	// Seed without identifiers; they are only persisted by an explicit save.
	if _, err := r.store.Upsert(ctx, key.Path, key.Folder, key.Name, annotation.StripIdentifiers(items)); err != nil {
		return Resolution{}, fmt.Errorf("seed record store: %w", err)
	}
	slog.Info("Seeded page from filesystem", "path", key.Path, "folder", key.Folder, "items", len(items))

	return Resolution{
		Path:   key.Path,
		Items:  items,
		Source: SourceFilesystem,
	}, nil
}

// filePath maps a page key to its file: upload keys live in the upload
// directory, everything else under the data root.
func (r *Resolver) filePath(path string) (string, error) {
	if name, ok := models.SplitUploadKey(path); ok {
		if r.uploadDir == "" {
			return "", fmt.Errorf("%w: uploads are disabled", utils.ErrNotFound)
		}
		return utils.SafeJoin(r.uploadDir, name)
	}
	return utils.SafeJoin(r.dataDir, path)
}

// locate returns the page file of path when it exists as a regular file.
func (r *Resolver) locate(path string) (string, error) {
	full, err := r.filePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err == nil && info.Mode().IsRegular() {
		return full, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat page file: %w", err)
	}
	return "", fmt.Errorf("%w: file %q", utils.ErrNotFound, path)
}

// Save writes items to the record store and, when mirror is set, to the page
// file in canonical form. A store failure is returned as an error; a mirror
// failure is reported in the result so callers can tell which write succeeded.
func (r *Resolver) Save(ctx context.Context, path string, items []models.Item, mirror bool) (SaveResult, error) {
	var result SaveResult

	key, err := r.Key(path)
	if err != nil {
		return result, err
	}
	if err := annotation.Validate(items); err != nil {
		return result, err
	}

	folder := key.Folder
	if existing, err := r.store.Get(ctx, key.Path); err == nil {
		folder = existing.Folder
	} else if !errors.Is(err, utils.ErrNotFound) {
		return result, err
	}

	if _, err := r.store.Upsert(ctx, key.Path, folder, key.Name, items); err != nil {
		return result, fmt.Errorf("save to record store: %w", err)
	}
	result.SavedToStore = true

	if !mirror {
		return result, nil
	}
	if err := r.mirror(key.Path, items); err != nil {
		slog.Error("Failed to mirror page to filesystem", "path", key.Path, "err", err)
		result.FilesystemError = err
		return result, nil
	}
	result.SavedToFilesystem = true
	return result, nil
}

func (r *Resolver) mirror(path string, items []models.Item) error {
	data, err := annotation.EncodeCanonical(items)
	if err != nil {
		return err
	}
	full, err := r.filePath(path)
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(full, data)
}

// SetValidated toggles the validation flag of a stored page.
func (r *Resolver) SetValidated(ctx context.Context, path string, validated bool) (models.PageRecord, error) {
	key, err := r.Key(path)
	if err != nil {
		return models.PageRecord{}, err
	}
	return r.store.SetValidated(ctx, key.Path, validated)
}

// SeedUpload records a page stored in the upload directory as fileName. The
// record is keyed by models.UploadKey so it never collides with a page under
// the data root, and lives in the Uploads folder.
func (r *Resolver) SeedUpload(ctx context.Context, fileName string, items []models.Item) (models.PageRecord, error) {
	if strings.Contains(fileName, "/") {
		return models.PageRecord{}, fmt.Errorf("%w: upload name %q must be a bare file name", utils.ErrInvalidInput, fileName)
	}
	key, err := r.Key(models.UploadKey(fileName))
	if err != nil {
		return models.PageRecord{}, err
	}
	return r.store.Upsert(ctx, key.Path, models.UploadsFolder, key.Name, annotation.StripIdentifiers(items))
}
