package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"idPhoto/client/service"
)

func newRecomposeCmd(a *app) *cobra.Command {
	var (
		opts   renderOptions
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "recompose <cutout.png>",
		Short: "Compose a saved cutout with a new colour or size, offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cutout, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			bg, w, h, err := opts.resolve(a.sizes)
			if err != nil {
				return err
			}

			data, err := a.compositor.Render(cutout, w, h, bg)
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = a.cfg.OutputDir
			}
			path, err := service.WriteOutput(outDir, a.clock.Now(), data)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, formatSuccess(fmt.Sprintf("Saved %s (%dx%d)", path, w, h)))
			return nil
		},
	}

	addRenderFlags(cmd, &opts)
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default IDPHOTO_OUTPUT_DIR)")
	return cmd
}
