package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSizesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sizes",
		Short: "List photo size presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, s := range a.sizes.All() {
				w, h := s.Pixels()
				rows = append(rows, []string{
					s.Name,
					s.Label,
					fmt.Sprintf("%gx%g mm", s.WidthMM, s.HeightMM),
					fmt.Sprintf("%dx%d px", w, h),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"NAME", "LABEL", "MILLIMETRES", "PIXELS"}, rows))
			return nil
		},
	}
}
