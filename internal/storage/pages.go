package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/layout-annotator/internal/annotation"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

const pageColumns = `path, folder, name, items_json, validated, created_at, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (models.PageRecord, error) {
	var (
		rec                 models.PageRecord
		itemsJSON           string
		validated           int64
		createdAt, modified string
	)
	if err := row.Scan(&rec.Path, &rec.Folder, &rec.Name, &itemsJSON, &validated, &createdAt, &modified); err != nil {
		return models.PageRecord{}, err
	}
	items, err := annotation.UnmarshalItems([]byte(itemsJSON))
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("page %s: %w", rec.Path, err)
	}
	rec.Items = items
	rec.Validated = validated != 0
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.PageRecord{}, err
	}
	if rec.ModifiedAt, err = parseTime(modified); err != nil {
		return models.PageRecord{}, err
	}
	return rec, nil
}

// Upsert inserts a page record or replaces the items of an existing one.
// modified_at is refreshed on every call; validated is false for new records
// and left untouched for existing ones.
func (s *Store) Upsert(ctx context.Context, path, folder, name string, items []models.Item) (models.PageRecord, error) {
	if items == nil {
		items = []models.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("encode items: %w", err)
	}
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.rebind(`
INSERT INTO pages (path, folder, name, items_json, validated, created_at, modified_at)
VALUES (?, ?, ?, ?, 0, ?, ?)
ON CONFLICT (path)
DO UPDATE SET
  folder = excluded.folder,
  name = excluded.name,
  items_json = excluded.items_json,
  modified_at = excluded.modified_at`),
		path, folder, name, string(itemsJSON), now, now,
	)
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("upsert page: %w", err)
	}

	rec, err := scanPage(tx.QueryRowContext(ctx, s.rebind(`SELECT `+pageColumns+` FROM pages WHERE path=?`), path))
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("read upserted page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.PageRecord{}, fmt.Errorf("commit upsert: %w", err)
	}
	return rec, nil
}

// Get returns the record for path or an error wrapping utils.ErrNotFound.
func (s *Store) Get(ctx context.Context, path string) (models.PageRecord, error) {
	rec, err := scanPage(s.db.QueryRowContext(ctx, s.rebind(`SELECT `+pageColumns+` FROM pages WHERE path=?`), path))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PageRecord{}, fmt.Errorf("%w: page %q", utils.ErrNotFound, path)
	}
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("get page: %w", err)
	}
	return rec, nil
}

// SetValidated updates the validation flag of an existing record. A transition
// to true appends an entry to the validation log. Unknown paths fail with
// utils.ErrNotFound and nothing is created.
func (s *Store) SetValidated(ctx context.Context, path string, validated bool) (models.PageRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("begin set validated: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev int64
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT validated FROM pages WHERE path=?`), path).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PageRecord{}, fmt.Errorf("%w: page %q", utils.ErrNotFound, path)
	}
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("read validated: %w", err)
	}

	now := formatTime(time.Now())
	flag := 0
	if validated {
		flag = 1
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE pages SET validated=?, modified_at=? WHERE path=?`), flag, now, path); err != nil {
		return models.PageRecord{}, fmt.Errorf("update validated: %w", err)
	}
	if validated && prev == 0 {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO validation_log (page_path, validated_at) VALUES (?, ?)`), path, now); err != nil {
			return models.PageRecord{}, fmt.Errorf("append validation log: %w", err)
		}
	}

	rec, err := scanPage(tx.QueryRowContext(ctx, s.rebind(`SELECT `+pageColumns+` FROM pages WHERE path=?`), path))
	if err != nil {
		return models.PageRecord{}, fmt.Errorf("read validated page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.PageRecord{}, fmt.Errorf("commit set validated: %w", err)
	}
	return rec, nil
}

// ListByFolder returns the records of one folder ordered by path.
func (s *Store) ListByFolder(ctx context.Context, folder string) ([]models.PageRecord, error) {
	return s.listPages(ctx, `SELECT `+pageColumns+` FROM pages WHERE folder=? ORDER BY path`, folder)
}

// ListAll returns every record ordered by folder, then path.
func (s *Store) ListAll(ctx context.Context) ([]models.PageRecord, error) {
	return s.listPages(ctx, `SELECT `+pageColumns+` FROM pages ORDER BY folder, path`)
}

func (s *Store) listPages(ctx context.Context, q string, args ...any) ([]models.PageRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	out := make([]models.PageRecord, 0)
	for rows.Next() {
		rec, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return out, nil
}

// Stats counts records and validated records, overall and per folder.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT folder, COUNT(*), COALESCE(SUM(validated), 0)
FROM pages
GROUP BY folder
ORDER BY folder`)
	if err != nil {
		return models.Stats{}, fmt.Errorf("page stats: %w", err)
	}
	defer rows.Close()

	stats := models.Stats{PerFolder: map[string]models.FolderStats{}}
	for rows.Next() {
		var (
			folder          string
			total, validate int64
		)
		if err := rows.Scan(&folder, &total, &validate); err != nil {
			return models.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.PerFolder[folder] = models.FolderStats{Total: int(total), Validated: int(validate)}
		stats.Total += int(total)
		stats.Validated += int(validate)
	}
	if err := rows.Err(); err != nil {
		return models.Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
