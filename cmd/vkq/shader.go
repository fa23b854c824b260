package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/celer/vkq/internal/shaders"
)

func (a *app) shaderCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "shader [program...]",
		Short: "Compile the bundled WGSL programs to SPIR-V files",
		RunE: func(cmd *cobra.Command, args []string) error {
			progs := shaders.Programs()
			if len(args) > 0 {
				progs = progs[:0]
				for _, name := range args {
					p, ok := shaders.Lookup(name)
					if !ok {
						return errors.Newf("unknown program %q", name)
					}
					progs = append(progs, p)
				}
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, "shader output")
			}
			for _, p := range progs {
				code, err := p.SPIRV()
				if err != nil {
					return err
				}
				path := filepath.Join(dir, p.Name+".spv")
				if err := os.WriteFile(path, code, 0o644); err != nil {
					return errors.Wrap(err, "shader output")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", path, len(code))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "out", "o", ".", "output directory")
	return cmd
}
