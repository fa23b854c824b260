// Command vkq runs the vkq scenarios on the best available backend:
// adapter listing, the compute multiply, the offscreen triangle, the
// windowed triangle and SPIR-V generation for the bundled shaders.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/celer/vkq"
	"github.com/celer/vkq/config"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
	"github.com/celer/vkq/hal/vulkan"
)

func init() {
	// GLFW and some drivers want every call from the main thread.
	runtime.LockOSThread()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vkq: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type app struct {
	configPath string
	backend    string
	verbose    bool
	validation bool

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}
	root := &cobra.Command{
		Use:           "vkq",
		Short:         "Drive GPU command submission scenarios",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "TOML configuration file")
	f.StringVarP(&a.backend, "backend", "b", "", "backend name (vulkan, soft); empty picks vulkan, then soft")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level and list adapters")
	f.BoolVar(&a.validation, "validation", false, "enable the vulkan validation layer")

	root.AddCommand(
		a.infoCmd(),
		a.computeCmd(),
		a.renderCmd(),
		a.windowCmd(),
		a.shaderCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads the configuration, applies the global flags over it and
// installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath != "" {
		c, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = c
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		a.cfg.Backend = a.backend
	}
	if flags.Changed("verbose") {
		a.cfg.Verbose = a.verbose
	}
	h := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: a.cfg.LogLevel()})
	vkq.SetLogger(slog.New(h))
	return nil
}

func (a *app) softBackend() (hal.Backend, error) {
	heap, err := a.cfg.Soft.HeapBytes()
	if err != nil {
		return nil, err
	}
	ac := soft.DefaultAdapter()
	if heap > 0 {
		ac.HeapSize = heap
	}
	return soft.New(soft.WithAdapters(ac), soft.WithWorkers(a.cfg.Soft.Workers)), nil
}

func (a *app) vulkanOptions() []vulkan.Option {
	opts := []vulkan.Option{vulkan.WithAppName("vkq")}
	if a.validation {
		opts = append(opts, vulkan.WithValidation())
	}
	return opts
}

// openBackend opens the configured backend. Without one it tries vulkan
// and falls back to the software rasterizer.
func (a *app) openBackend() (hal.Backend, error) {
	switch a.cfg.Backend {
	case "soft":
		return a.softBackend()
	case "vulkan":
		return vulkan.New(a.vulkanOptions()...)
	case "":
		b, err := vulkan.New(a.vulkanOptions()...)
		if err == nil {
			return b, nil
		}
		vkq.Logger().Info("vkq: vulkan unavailable, using soft backend", "err", err)
		return a.softBackend()
	}
	b, err := hal.Open(a.cfg.Backend)
	if err != nil {
		return nil, errors.Wrapf(err, "available backends: %v", hal.Available())
	}
	return b, nil
}

// withDevice resolves a device for required on the configured backend,
// runs fn and tears everything down.
func (a *app) withDevice(required hal.Capability, fn func(d *vkq.Device) error) error {
	b, err := a.openBackend()
	if err != nil {
		return err
	}
	defer b.Destroy()
	d, _, err := vkq.ResolveDevice(b, vkq.SelectionPolicy{
		Required: required,
		Priority: a.cfg.Priority,
		Verbose:  a.cfg.Verbose,
	})
	if err != nil {
		return err
	}
	err = fn(d)
	return errors.CombineErrors(err, d.Destroy())
}
