package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/layout-annotator/internal/catalog"
)

func newScanCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the page catalog found under the data directory",
		Example: `  annotator scan
  annotator scan --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Scan(a.cfg.DataDir)
			if err != nil {
				return err
			}

			var out []byte
			switch format {
			case "json":
				out, err = json.MarshalIndent(cat, "", "  ")
			case "yaml":
				out, err = yaml.Marshal(cat)
			default:
				return fmt.Errorf("unsupported format %q (supported: json, yaml)", format)
			}
			if err != nil {
				return fmt.Errorf("encode catalog: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")

	return cmd
}
