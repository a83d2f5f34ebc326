package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"idPhoto/client/apperrors"
	"idPhoto/client/service"
)

func newProcessCmd(a *app) *cobra.Command {
	var (
		opts       renderOptions
		outDir     string
		cutoutPath string
	)

	cmd := &cobra.Command{
		Use:   "process <image>",
		Short: "Process one photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if _, _, _, err := opts.resolve(a.sizes); err != nil {
				return err
			}
			if err := a.remote(ctx); err != nil {
				return err
			}
			orch, err := a.newOrchestrator(out, "", opts)
			if err != nil {
				return err
			}

			file, closer, err := service.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer closer.Close()

			if outDir == "" {
				outDir = a.cfg.OutputDir
			}
			path, err := orch.SubmitAndSave(ctx, file, outDir)
			if err != nil {
				fmt.Fprintln(out, formatError(apperrors.UserMessage(err)))
				return err
			}
			fmt.Fprintln(out, formatSuccess("Saved "+path))

			if cutoutPath != "" {
				if err := os.WriteFile(cutoutPath, orch.Cutout(), 0o644); err != nil {
					return fmt.Errorf("write cutout: %w", err)
				}
				fmt.Fprintln(out, formatMuted("Cutout kept at "+cutoutPath))
			}
			return nil
		},
	}

	addRenderFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.preset, "preset", 0, "Server removal preset ID")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default IDPHOTO_OUTPUT_DIR)")
	cmd.Flags().StringVar(&cutoutPath, "keep-cutout", "", "Also write the raw cutout to this path")
	return cmd
}
