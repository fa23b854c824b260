package main

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/celer/vkq"
	"github.com/celer/vkq/config"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
	"github.com/celer/vkq/hal/vulkan"
	"github.com/celer/vkq/internal/demo"
	"github.com/celer/vkq/window"
)

func (a *app) windowCmd() *cobra.Command {
	var (
		headless  bool
		maxFrames int
		mode      string
	)
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Present the triangle to a window until it is closed",
		Long: "Present the triangle to a GLFW window through vulkan until the window is closed.\n" +
			"With --headless the software backend presents to an offscreen surface instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("max-frames") {
				a.cfg.Window.MaxFrames = maxFrames
			}
			if f.Changed("present-mode") {
				a.cfg.Window.PresentMode = mode
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			var (
				res demo.PresentResult
				err error
			)
			if headless {
				res, err = a.presentHeadless(cmd.Context())
			} else {
				res, err = a.presentWindow(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped after %d frames: %s\n", res.Frames, res.Reason)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&headless, "headless", false, "present to an offscreen surface with the software backend")
	fl.IntVar(&maxFrames, "max-frames", 0, "stop after this many frames")
	fl.StringVar(&mode, "present-mode", "", "fifo, mailbox, immediate or fifo-relaxed")
	return cmd
}

func presentOptions(w config.Window) (demo.PresentOptions, error) {
	mode, err := w.Mode()
	if err != nil {
		return demo.PresentOptions{}, err
	}
	return demo.PresentOptions{
		Mode:           mode,
		Clear:          demo.DefaultClear,
		FallbackExtent: hal.Extent2D(w.Width, w.Height),
		MaxFrames:      w.MaxFrames,
	}, nil
}

// presentWindow opens a GLFW window and presents through vulkan.
func (a *app) presentWindow(ctx context.Context) (demo.PresentResult, error) {
	w := a.cfg.Window
	opts, err := presentOptions(w)
	if err != nil {
		return demo.PresentResult{}, err
	}
	if err := window.Init(); err != nil {
		return demo.PresentResult{}, err
	}
	defer window.Terminate()
	win, err := window.Open(window.Options{Title: w.Title, Width: w.Width, Height: w.Height})
	if err != nil {
		return demo.PresentResult{}, err
	}
	defer win.Destroy()
	if fw, fh := win.FramebufferSize(); fw > 0 && fh > 0 {
		opts.FallbackExtent = hal.Extent2D(fw, fh)
	}

	vopts := append(a.vulkanOptions(),
		vulkan.WithProcAddr(window.ProcAddr()),
		vulkan.WithInstanceExtensions(win.RequiredExtensions()...))
	b, err := vulkan.New(vopts...)
	if err != nil {
		return demo.PresentResult{}, err
	}
	defer b.Destroy()
	surface, err := b.NewSurface(win.CreateSurface)
	if err != nil {
		return demo.PresentResult{}, errors.Wrap(err, "window surface")
	}
	defer surface.Destroy()
	return a.present(ctx, b, surface, win, opts)
}

// presentHeadless presents to a soft surface that logs each frame and
// closes after max_frames, or 60 frames when unset.
func (a *app) presentHeadless(ctx context.Context) (demo.PresentResult, error) {
	w := a.cfg.Window
	opts, err := presentOptions(w)
	if err != nil {
		return demo.PresentResult{}, err
	}
	frames := w.MaxFrames
	if frames <= 0 {
		frames = 60
	}
	b, err := a.softBackend()
	if err != nil {
		return demo.PresentResult{}, err
	}
	defer b.Destroy()
	surface := soft.NewSurface(soft.SurfaceConfig{
		Extent: hal.Extent2D(w.Width, w.Height),
		OnPresent: func(f soft.Frame) {
			vkq.Logger().Debug("vkq: frame presented", "seq", f.Seq, "image", f.Index)
		},
	})
	defer surface.Destroy()
	return a.present(ctx, b, surface, &window.Headless{Frames: frames}, opts)
}

func (a *app) present(ctx context.Context, b hal.Backend, surface hal.Surface, win vkq.Window, opts demo.PresentOptions) (res demo.PresentResult, err error) {
	d, _, err := vkq.ResolveDevice(b, vkq.SelectionPolicy{
		Required: hal.CapGraphics,
		Surface:  surface,
		Priority: a.cfg.Priority,
		Verbose:  a.cfg.Verbose,
	})
	if err != nil {
		return res, err
	}
	defer func() { err = errors.CombineErrors(err, d.Destroy()) }()
	return demo.PresentTriangle(ctx, d, surface, win, opts)
}
