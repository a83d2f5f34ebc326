package main

import (
	"github.com/spf13/cobra"

	"idPhoto/client/compositor"
	"idPhoto/client/sizes"
)

func newRootCmd(a *app) *cobra.Command {
	var apiURL string

	root := &cobra.Command{
		Use:   "idphoto",
		Short: "Remove photo backgrounds and compose ID photos",
		Long: styleHeader.Render("idphoto") + " - ID photo maker\n\n" +
			"Uploads a portrait to the background-removal service, waits for the\n" +
			"cutout and composes it onto a solid background at a standard photo size.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			if apiURL != "" {
				a.cfg.APIURL = apiURL
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Development logging")
	root.PersistentFlags().StringVar(&apiURL, "api-url", "", "Service base URL (overrides IDPHOTO_API_URL)")

	root.AddCommand(
		newProcessCmd(a),
		newRecomposeCmd(a),
		newBatchCmd(a),
		newWatchCmd(a),
		newPresetsCmd(a),
		newSizesCmd(a),
		newHistoryCmd(a),
		newEventsCmd(a),
		newStatusCmd(a),
	)
	return root
}

func addRenderFlags(cmd *cobra.Command, opts *renderOptions) {
	cmd.Flags().StringVarP(&opts.color, "color", "c", compositor.DefaultBackground, "Background colour: #RRGGBB or blue, red, white, gray")
	cmd.Flags().StringVarP(&opts.size, "size", "s", sizes.DefaultPreset, "Size preset name, WxH in mm, or custom")
	cmd.Flags().Float64Var(&opts.widthMM, "width-mm", 0, "Width in mm for --size custom")
	cmd.Flags().Float64Var(&opts.heightMM, "height-mm", 0, "Height in mm for --size custom")
}
