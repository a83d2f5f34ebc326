package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"idPhoto/client/database"
)

func newStatusCmd(a *app) *cobra.Command {
	var forget bool

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the last status any idphoto process observed for a task (requires REDIS_ADDR)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			taskID := args[0]

			if err := a.remote(ctx); err != nil {
				return err
			}
			if a.statuses == nil {
				fmt.Fprintln(out, formatWarning("Status sharing is disabled; set REDIS_ADDR"))
				return nil
			}

			if forget {
				if err := a.statuses.Delete(ctx, taskID); err != nil {
					return err
				}
				fmt.Fprintln(out, formatSuccess("Forgot "+taskID))
				return nil
			}

			obs, err := a.statuses.Get(ctx, taskID)
			if errors.Is(err, database.ErrCacheMiss) {
				fmt.Fprintln(out, formatWarning("No status observed for "+taskID))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", formatInfo(taskID+": "+string(obs.Status)),
				formatMuted("at "+obs.ObservedAt.Local().Format("15:04:05")))
			return nil
		},
	}

	cmd.Flags().BoolVar(&forget, "forget", false, "Remove the cached status")
	return cmd
}
