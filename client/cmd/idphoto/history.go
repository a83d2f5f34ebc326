package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sessions (requires DATABASE_URL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := a.remote(ctx); err != nil {
				return err
			}
			if a.history == nil {
				fmt.Fprintln(out, formatWarning("History is disabled; set DATABASE_URL"))
				return nil
			}

			records, err := a.history.ListRecent(ctx, limit)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, r := range records {
				rows = append(rows, []string{
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					r.OriginalFilename,
					string(r.State),
					r.TaskID,
					r.OutputPath,
					r.ErrorMessage,
				})
			}
			fmt.Fprint(out, renderTable([]string{"STARTED", "FILE", "STATE", "TASK", "OUTPUT", "ERROR"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show")
	return cmd
}
