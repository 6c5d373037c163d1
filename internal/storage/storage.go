// Package storage persists page records, the validation audit trail and the
// export log in a SQL database. SQLite (pure Go, modernc.org/sqlite) is the
// default; PostgreSQL is reached through the pgx database/sql driver.
//
// Open performs the schema initialization and migrations explicitly. Nothing
// touches the database at package load.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	applog "github.com/lehigh-university-libraries/layout-annotator/internal/log"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// schemaVersion tracks the record store schema. Bump it and add a step to
	// runMigrations for every schema change.
	schemaVersion = 2
)

// Options selects the database backend.
type Options struct {
	Driver string
	DSN    string
}

// Store is the record store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database, applies pragmas and brings the
// schema up to date. Calling it against an already initialized database is a no-op
// apart from the connection itself.
func Open(ctx context.Context, opts Options) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With("driver", opts.Driver)

	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("database dsn is required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		db, err = openSQLite(ctx, opts.DSN)
	case DriverPostgres:
		db, err = openPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		l.Error("open database failed", "err", err)
		return nil, err
	}

	s := &Store{db: db, driver: opts.Driver}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", "err", err)
		return nil, err
	}
	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", "err", err)
		return nil, err
	}

	l.Info("record store ready")
	return s, nil
}

func openSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	source := dsn
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		source = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(dsn))
	}
	db, err := sql.Open("sqlite", source)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if dsn != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	idType := "INTEGER PRIMARY KEY"
	if s.driver == DriverPostgres {
		idType = "BIGSERIAL PRIMARY KEY"
	}
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			id         INTEGER PRIMARY KEY CHECK(id=1),
			version    INTEGER NOT NULL,
			updated_at TEXT    NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pages (
			path        TEXT    PRIMARY KEY,
			folder      TEXT    NOT NULL,
			name        TEXT    NOT NULL,
			items_json  TEXT    NOT NULL,
			validated   INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT    NOT NULL,
			modified_at TEXT    NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS validation_log (
			id           ` + idType + `,
			page_path    TEXT NOT NULL,
			validated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS exports_log (
			id          ` + idType + `,
			export_type TEXT    NOT NULL,
			scope       TEXT    NOT NULL,
			file_count  INTEGER NOT NULL,
			exported_at TEXT    NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// Fresh database: the tables above are version 1. Concurrent openers may
	// race here, so the seed row is only written when absent.
	if _, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO schema_version (id, version, updated_at) VALUES (1, ?, ?) ON CONFLICT (id) DO NOTHING`), 1, formatTime(time.Now())); err != nil {
		return fmt.Errorf("insert schema version: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema steps up to schemaVersion.
func (s *Store) runMigrations(ctx context.Context) error {
	var cur int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_pages_folder ON pages(folder);`,
				`CREATE INDEX IF NOT EXISTS idx_pages_validated ON pages(validated);`,
				`CREATE INDEX IF NOT EXISTS idx_validation_log_page ON validation_log(page_path);`,
			}
		}
		if err := s.applyMigration(ctx, next, stmts); err != nil {
			return err
		}
		cur = next
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, version int, stmts []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE schema_version SET version=?, updated_at=? WHERE id=1`), version, formatTime(time.Now())); err != nil {
		return fmt.Errorf("migration %d update version: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d commit: %w", version, err)
	}
	return nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id=1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
