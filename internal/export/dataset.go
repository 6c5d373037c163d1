package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/layout-annotator/internal/annotation"
	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
)

// DatasetRow is one bounding box in a Parquet export.
type DatasetRow struct {
	Path         string `parquet:"path"`
	Folder       string `parquet:"folder"`
	Name         string `parquet:"name"`
	Validated    bool   `parquet:"validated"`
	ItemIndex    int32  `parquet:"item_index"`
	Category     string `parquet:"category"`
	ReadingOrder int32  `parquet:"reading_order"`
	ItemJSON     string `parquet:"item_json"`
}

// DatasetRows flattens records into one row per box, ids removed.
func DatasetRows(records []models.PageRecord) ([]DatasetRow, error) {
	var rows []DatasetRow
	for _, rec := range records {
		for i, item := range annotation.StripIdentifiers(rec.Items) {
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, fmt.Errorf("encode item %d of %s: %w", i, rec.Path, err)
			}
			order, ok := item.ReadingOrder()
			if !ok {
				order = i
			}
			rows = append(rows, DatasetRow{
				Path:         rec.Path,
				Folder:       rec.Folder,
				Name:         rec.Name,
				Validated:    rec.Validated,
				ItemIndex:    int32(i),
				Category:     item.Category(),
				ReadingOrder: int32(order),
				ItemJSON:     string(raw),
			})
		}
	}
	return rows, nil
}

// WriteDataset writes records to w as a Parquet file.
func WriteDataset(w io.Writer, records []models.PageRecord) error {
	rows, err := DatasetRows(records)
	if err != nil {
		return err
	}

	pw := parquet.NewGenericWriter[DatasetRow](w)
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			_ = pw.Close()
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	slog.Debug("Wrote parquet dataset", "pages", len(records), "rows", len(rows))
	return nil
}

// ReadDataset reads every row of a Parquet export.
func ReadDataset(r io.ReaderAt, size int64) ([]DatasetRow, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet file opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[DatasetRow](pf)
	defer reader.Close()

	var out []DatasetRow
	batch := make([]DatasetRow, 128)
	for {
		n, err := reader.Read(batch)
		out = append(out, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
	return out, nil
}

// ReadDatasetFile reads a Parquet export from disk.
func ReadDatasetFile(path string) ([]DatasetRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return ReadDataset(file, info.Size())
}
