package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "records.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleItems() []models.Item {
	return []models.Item{
		{"category": "Title", "reading_order": json.Number("0"), "bbox": []any{json.Number("1"), json.Number("2"), json.Number("3"), json.Number("4")}},
		{"category": "Text", "reading_order": json.Number("1"), "text": "body"},
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "nested", "records.sqlite")

	s1, err := Open(ctx, Options{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	_, err = s1.Upsert(ctx, "docs/page_1.json", "docs", "page_1", sampleItems())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, Options{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	rec, err := s2.Get(ctx, "docs/page_1.json")
	require.NoError(t, err)
	assert.Len(t, rec.Items, 2)
}

func TestEnsureSchemaToleratesExistingVersionRow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// Openers racing on a fresh database all reach the seed insert.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.ensureSchema(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v, "seeding must not reset a migrated version")

	var rows int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestOpenRejectsBadOptions(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: DriverSQLite})
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestUpsertInsertAndReplace(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created, err := s.Upsert(ctx, "docs/page_1.json", "docs", "page_1", sampleItems())
	require.NoError(t, err)
	assert.False(t, created.Validated)
	assert.Equal(t, "docs", created.Folder)
	assert.Equal(t, "page_1", created.Name)
	assert.Equal(t, created.CreatedAt, created.ModifiedAt)

	_, err = s.SetValidated(ctx, "docs/page_1.json", true)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	replacement := []models.Item{{"category": "Table", "reading_order": json.Number("0")}}
	updated, err := s.Upsert(ctx, "docs/page_1.json", "docs", "page_1", replacement)
	require.NoError(t, err)

	assert.True(t, updated.Validated, "validated must survive an upsert")
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.ModifiedAt.After(created.ModifiedAt))
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "Table", updated.Items[0].Category())
}

func TestUpsertPreservesItemsExactly(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	items := []models.Item{{"id": "abc", "category": "Formula", "reading_order": json.Number("7"), "score": json.Number("0.123456789012")}}
	_, err := s.Upsert(ctx, "p.json", models.RootFolder, "p", items)
	require.NoError(t, err)

	rec, err := s.Get(ctx, "p.json")
	require.NoError(t, err)
	assert.Equal(t, items, rec.Items)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope.json")
	assert.True(t, errors.Is(err, utils.ErrNotFound), "got %v", err)
}

func TestSetValidated(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	t.Run("unknown path creates nothing", func(t *testing.T) {
		_, err := s.SetValidated(ctx, "ghost.json", true)
		require.ErrorIs(t, err, utils.ErrNotFound)

		_, err = s.Get(ctx, "ghost.json")
		require.ErrorIs(t, err, utils.ErrNotFound)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("transitions to true are audited", func(t *testing.T) {
		_, err := s.Upsert(ctx, "docs/page_1.json", "docs", "page_1", sampleItems())
		require.NoError(t, err)

		rec, err := s.SetValidated(ctx, "docs/page_1.json", true)
		require.NoError(t, err)
		assert.True(t, rec.Validated)

		// already true: no new audit entry
		_, err = s.SetValidated(ctx, "docs/page_1.json", true)
		require.NoError(t, err)

		rec, err = s.SetValidated(ctx, "docs/page_1.json", false)
		require.NoError(t, err)
		assert.False(t, rec.Validated)

		_, err = s.SetValidated(ctx, "docs/page_1.json", true)
		require.NoError(t, err)

		entries, err := s.ValidationLog(ctx, "docs/page_1.json")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
		for _, e := range entries {
			assert.Equal(t, "docs/page_1.json", e.PagePath)
			assert.False(t, e.ValidatedAt.IsZero())
		}
	})
}

func TestListingAndStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, p := range []struct{ path, folder, name string }{
		{"docs/page_2.json", "docs", "page_2"},
		{"docs/page_1.json", "docs", "page_1"},
		{"book/page_1.json", "book", "page_1"},
		{"cover.json", models.RootFolder, "cover"},
	} {
		_, err := s.Upsert(ctx, p.path, p.folder, p.name, sampleItems())
		require.NoError(t, err)
	}
	_, err := s.SetValidated(ctx, "docs/page_1.json", true)
	require.NoError(t, err)
	_, err = s.SetValidated(ctx, "book/page_1.json", true)
	require.NoError(t, err)

	docs, err := s.ListByFolder(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "docs/page_1.json", docs[0].Path)
	assert.Equal(t, "docs/page_2.json", docs[1].Path)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	var order []string
	for _, r := range all {
		order = append(order, r.Path)
	}
	assert.Equal(t, []string{"cover.json", "book/page_1.json", "docs/page_1.json", "docs/page_2.json"}, order)

	empty, err := s.ListByFolder(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Validated)
	assert.Equal(t, models.FolderStats{Total: 2, Validated: 1}, stats.PerFolder["docs"])
	assert.Equal(t, models.FolderStats{Total: 1, Validated: 1}, stats.PerFolder["book"])
	assert.Equal(t, models.FolderStats{Total: 1, Validated: 0}, stats.PerFolder[models.RootFolder])
}

func TestStatsEmpty(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.NotNil(t, stats.PerFolder)
}

func TestExportLog(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.LogExport(ctx, models.ExportLogEntry{ExportType: "folder", Scope: "docs", FileCount: 2}))
	require.NoError(t, s.LogExport(ctx, models.ExportLogEntry{ExportType: "project", FileCount: 5}))

	entries, err := s.ExportLog(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "folder", entries[0].ExportType)
	assert.Equal(t, "docs", entries[0].Scope)
	assert.Equal(t, 2, entries[0].FileCount)
	assert.False(t, entries[0].ExportedAt.IsZero())
	assert.Equal(t, "project", entries[1].ExportType)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a=$1 AND b=$2", pg.rebind("SELECT * FROM t WHERE a=? AND b=?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "a=?", lite.rebind("a=?"))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("ANNOTATOR_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ANNOTATOR_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Options{Driver: DriverPostgres, DSN: dsn})
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer s.Close()

	path := "pgtest/" + time.Now().Format("20060102150405.000000000") + ".json"
	_, err = s.Upsert(ctx, path, "pgtest", "page", sampleItems())
	require.NoError(t, err)

	rec, err := s.SetValidated(ctx, path, true)
	require.NoError(t, err)
	assert.True(t, rec.Validated)

	entries, err := s.ValidationLog(ctx, path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
