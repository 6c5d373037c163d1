package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/layout-annotator/internal/config"
	applog "github.com/lehigh-university-libraries/layout-annotator/internal/log"
	"github.com/lehigh-university-libraries/layout-annotator/internal/storage"
)

// app carries the configuration resolved by the root command to its subcommands.
type app struct {
	configPath string
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "annotator",
		Short: "Review and correct document layout annotations",
		Long: `Annotator serves a browser editor for layout-detection output: page images
with labelled bounding boxes stored as one JSON file per page.

Edits are kept in a record store (SQLite by default, PostgreSQL optional) that
shadows the JSON files, and can be exported as ZIP archives or Parquet datasets.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			applog.Init(applog.FromConfig(cfg.Logging))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "Path to the YAML config file")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newScanCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newStatsCmd(a))

	return cmd
}

// openStore initializes the record store named by the config.
func (a *app) openStore(ctx context.Context) (*storage.Store, error) {
	store, err := storage.Open(ctx, storage.Options{Driver: a.cfg.Database.Driver, DSN: a.cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return store, nil
}
