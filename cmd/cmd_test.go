package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/layout-annotator/internal/export"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
	"github.com/lehigh-university-libraries/layout-annotator/internal/storage"
)

func writeConfig(t *testing.T) (string, string, string) {
	t.Helper()
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	dsn := filepath.Join(base, "records.sqlite")

	for name, body := range map[string]string{
		"docs/page_1.json":         `[{"category":"Title"}]`,
		"docs/page_1_original.png": "png",
		"docs/page_2.json":         `[{"category":"Text"}]`,
		"docs/page_2.jpg":          "jpg",
	} {
		full := filepath.Join(dataDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0644))
	}

	cfgPath := filepath.Join(base, "config.yaml")
	cfg := fmt.Sprintf("data_dir: %s\ndatabase:\n  driver: sqlite\n  dsn: %s\nlogging:\n  level: error\n", dataDir, dsn)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))
	return cfgPath, dsn, base
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScanYAML(t *testing.T) {
	cfgPath, _, _ := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "scan", "--format", "yaml")
	require.NoError(t, err)

	var cat models.Catalog
	require.NoError(t, yaml.Unmarshal([]byte(out), &cat))
	require.Len(t, cat["docs"], 2)
	assert.Equal(t, "docs/page_2.json", cat["docs"][1].JSONPath)
	assert.Equal(t, "docs/page_2.jpg", cat["docs"][1].ImagePath)
}

func TestScanRejectsUnknownFormat(t *testing.T) {
	cfgPath, _, _ := writeConfig(t)
	_, err := run(t, "--config", cfgPath, "scan", "--format", "xml")
	assert.Error(t, err)
}

func TestExportAndStatsCommands(t *testing.T) {
	cfgPath, dsn, base := writeConfig(t)

	ctx := context.Background()
	s, err := storage.Open(ctx, storage.Options{Driver: storage.DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "docs/page_1.json", "docs", "page_1", []models.Item{{"category": "Title", "reading_order": 0}})
	require.NoError(t, err)
	_, err = s.SetValidated(ctx, "docs/page_1.json", true)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	output := filepath.Join(base, "out", "docs.parquet")
	out, err := run(t, "--config", cfgPath, "export", "--type", "folder", "--scope", "docs", "--format", "parquet", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 page(s)")

	rows, err := export.ReadDatasetFile(output)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Title", rows[0].Category)

	out, err = run(t, "--config", cfgPath, "stats")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "docs"))
	assert.Contains(t, out, "ALL")

	_, err = run(t, "--config", cfgPath, "export", "--type", "folder", "--scope", "empty")
	assert.Error(t, err)
}
