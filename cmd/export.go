package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/layout-annotator/internal/export"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		exportType string
		scope      string
		format     string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored pages as a ZIP archive or Parquet dataset",
		Example: `  # Export one folder
  annotator export --type folder --scope docs

  # Export everything as a Parquet dataset
  annotator export --type project --format parquet --output pages.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := export.ParseType(exportType)
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := export.New(store).Export(cmd.Context(), export.Request{Type: typ, Scope: scope, Format: f})
			if err != nil {
				return err
			}

			if output == "" {
				output = res.Filename
			}
			if err := utils.WriteFileAtomic(output, res.Data); err != nil {
				return err
			}
			slog.Info("Export written", "output", output, "pages", res.Count)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d page(s) to %s\n", res.Count, output)
			return err
		},
	}

	cmd.Flags().StringVarP(&exportType, "type", "t", "project", "Export type: page, folder or project")
	cmd.Flags().StringVarP(&scope, "scope", "s", "", "Page path or folder name (required for page and folder)")
	cmd.Flags().StringVarP(&format, "format", "f", "zip", "Archive format: zip or parquet")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to the archive name)")

	return cmd
}
