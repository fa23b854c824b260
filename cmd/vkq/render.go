package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/internal/demo"
	"github.com/celer/vkq/sink"
)

func (a *app) renderCmd() *cobra.Command {
	var (
		output        string
		width, height int
		format        string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw the triangle offscreen and write it to an image file",
		Long: "Draw the triangle offscreen and write it to an image file.\n" +
			"The output extension picks the encoder: .png, .bmp or .tiff.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			r := &a.cfg.Render
			if f.Changed("output") {
				r.Output = output
			}
			if f.Changed("width") {
				r.Width = width
			}
			if f.Changed("height") {
				r.Height = height
			}
			if f.Changed("format") {
				r.Format = format
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if _, err := sink.EncoderFor(r.Output); err != nil {
				return err
			}
			pf, err := r.PixelFormat()
			if err != nil {
				return err
			}
			return a.withDevice(hal.CapGraphics, func(d *vkq.Device) error {
				err := demo.RenderToSink(d, r.Extent(), pf, hal.ClearValue(r.Clear), sink.File{Path: r.Output})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: wrote %s (%dx%d %s)\n", d.Adapter().Name(), r.Output, r.Width, r.Height, pf)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&output, "output", "o", "", "output image file (default from config)")
	fl.IntVar(&width, "width", 0, "image width")
	fl.IntVar(&height, "height", 0, "image height")
	fl.StringVar(&format, "format", "", "color format, e.g. rgba8unorm or bgra8unorm")
	return cmd
}
