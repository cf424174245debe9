package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove duplicate results and pending rows that already have a result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.lists.Cleanup(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tDUPLICATES\tMALFORMED\tPENDING FIXED")
			for _, d := range report.Details {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", d.File, d.DuplicatesRemoved, d.MalformedRemoved, d.ErrorsFixed)
			}
			fmt.Fprintf(w, "%d files\t%d\t\t%d\n", report.FilesScanned, report.DuplicatesRemoved, report.ErrorsFixed)
			return w.Flush()
		},
	}
}
