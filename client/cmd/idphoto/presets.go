package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPresetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List server-side removal presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := a.remote(ctx); err != nil {
				return err
			}
			cred, err := a.creds.EnsureValid(ctx)
			if err != nil {
				return err
			}
			presets, err := a.client.ListPresets(ctx, cred.Token)
			if err != nil {
				return err
			}
			if len(presets) == 0 {
				fmt.Fprintln(out, formatWarning("No presets configured"))
				return nil
			}

			rows := make([][]string, 0, len(presets))
			for _, p := range presets {
				name := p.Name
				if p.IsDefault {
					name += " *"
				}
				rows = append(rows, []string{
					strconv.Itoa(p.ID),
					name,
					p.Model,
					strconv.Itoa(p.MaxSize),
					strconv.FormatBool(p.UseAlphaMatting),
					p.Description,
				})
			}
			fmt.Fprint(out, renderTable([]string{"ID", "NAME", "MODEL", "MAX SIZE", "MATTING", "DESCRIPTION"}, rows))
			fmt.Fprintln(out, formatMuted("* default preset"))
			return nil
		},
	}
}
