package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/internal/demo"
)

func (a *app) computeCmd() *cobra.Command {
	var (
		k        uint32
		elements int
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Multiply a sequence of integers by k on the device and verify it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("k") {
				a.cfg.Compute.K = k
			}
			if cmd.Flags().Changed("elements") {
				a.cfg.Compute.Elements = elements
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			timeout, err := a.cfg.Timeout()
			if err != nil {
				return err
			}
			c := a.cfg.Compute
			return a.withDevice(hal.CapCompute, func(d *vkq.Device) error {
				in := demo.Sequence(c.Elements)
				res, err := demo.Multiply(d, in, c.K, timeout)
				if err != nil {
					return err
				}
				if err := demo.VerifyMultiply(in, res.Values, c.K); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d elements x %d ok (%d workgroups, %s)\n",
					d.Adapter().Name(), c.Elements, c.K, res.Groups, res.Elapsed)
				return nil
			})
		},
	}
	cmd.Flags().Uint32VarP(&k, "k", "k", 0, "multiplier (default from config)")
	cmd.Flags().IntVarP(&elements, "elements", "n", 0, "element count (default from config)")
	return cmd
}
