package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print validation progress per folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FOLDER\tVALIDATED\tTOTAL")
			folders := make([]string, 0, len(stats.PerFolder))
			for folder := range stats.PerFolder {
				folders = append(folders, folder)
			}
			sort.Strings(folders)
			for _, folder := range folders {
				fs := stats.PerFolder[folder]
				fmt.Fprintf(tw, "%s\t%d\t%d\n", folder, fs.Validated, fs.Total)
			}
			fmt.Fprintf(tw, "ALL\t%d\t%d\n", stats.Validated, stats.Total)
			return tw.Flush()
		},
	}
}
