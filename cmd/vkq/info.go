package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal/vulkan"
)

func (a *app) infoCmd() *cobra.Command {
	var layers bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "List adapters and their queue families",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if layers {
				if err := describeLoader(out); err != nil {
					return err
				}
			}
			b, err := a.openBackend()
			if err != nil {
				return err
			}
			defer b.Destroy()
			fmt.Fprintf(out, "backend %s\n", b.Name())
			return vkq.DescribeAdapters(out, b)
		},
	}
	cmd.Flags().BoolVar(&layers, "layers", false, "also list the instance layers and extensions of the vulkan loader")
	return cmd
}

func describeLoader(w io.Writer) error {
	layers, err := vulkan.SupportedLayers()
	if err != nil {
		return err
	}
	exts, err := vulkan.SupportedExtensions()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "vulkan layers (%d):\n", len(layers))
	for _, l := range layers {
		fmt.Fprintf(w, "\t%s\n", l)
	}
	fmt.Fprintf(w, "vulkan instance extensions (%d):\n", len(exts))
	for _, e := range exts {
		fmt.Fprintf(w, "\t%s\n", e)
	}
	return nil
}
