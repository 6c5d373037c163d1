package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
)

// LogExport appends a row to the export log. A zero ExportedAt is set to now.
func (s *Store) LogExport(ctx context.Context, e models.ExportLogEntry) error {
	if e.ExportedAt.IsZero() {
		e.ExportedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO exports_log (export_type, scope, file_count, exported_at) VALUES (?, ?, ?, ?)`),
		e.ExportType, e.Scope, e.FileCount, formatTime(e.ExportedAt))
	if err != nil {
		return fmt.Errorf("log export: %w", err)
	}
	return nil
}

// ExportLog returns all export log rows, oldest first.
func (s *Store) ExportLog(ctx context.Context) ([]models.ExportLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT export_type, scope, file_count, exported_at FROM exports_log ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list export log: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExportLogEntry, 0)
	for rows.Next() {
		var (
			e  models.ExportLogEntry
			ts string
		)
		if err := rows.Scan(&e.ExportType, &e.Scope, &e.FileCount, &ts); err != nil {
			return nil, fmt.Errorf("scan export log: %w", err)
		}
		if e.ExportedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export log: %w", err)
	}
	return out, nil
}

// ValidationLog returns the validation audit entries for path, oldest first.
func (s *Store) ValidationLog(ctx context.Context, path string) ([]models.ValidationLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT page_path, validated_at FROM validation_log WHERE page_path=? ORDER BY id`), path)
	if err != nil {
		return nil, fmt.Errorf("list validation log: %w", err)
	}
	defer rows.Close()

	out := make([]models.ValidationLogEntry, 0)
	for rows.Next() {
		var (
			e  models.ValidationLogEntry
			ts string
		)
		if err := rows.Scan(&e.PagePath, &ts); err != nil {
			return nil, fmt.Errorf("scan validation log: %w", err)
		}
		if e.ValidatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation log: %w", err)
	}
	return out, nil
}
