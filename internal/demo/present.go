package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
)

type PresentOptions struct {
	Mode           hal.PresentMode
	Clear          hal.ClearValue
	FallbackExtent hal.Extent
	// MaxFrames stops after that many frames when positive.
	MaxFrames      int
	AcquireTimeout time.Duration
}

// PresentResult reports how a presented run ended.
type PresentResult struct {
	Reason vkq.StopReason
	Frames int
}

// PresentTriangle draws the triangle into every swapchain image of
// surface until win asks to close or the surface is lost. Command lists
// are recorded once per image and resubmitted every frame.
func PresentTriangle(ctx context.Context, d *vkq.Device, surface hal.Surface, win vkq.Window, opts PresentOptions) (PresentResult, error) {
	var res releaser
	defer res.release()

	sc, err := vkq.CreateSwapchain(d, surface, vkq.SwapchainOptions{
		PresentMode:    opts.Mode,
		FallbackExtent: opts.FallbackExtent,
	})
	if err != nil {
		return PresentResult{}, err
	}
	res.add(sc)

	t, err := NewTriangle(d, sc.Format(), hal.LayoutPresent, opts.Clear)
	if err != nil {
		return PresentResult{}, err
	}
	res.add(t)

	var lists []*vkq.CommandList
	loop := &vkq.PresentLoop{
		Queue:          d.Queue(),
		Swapchain:      sc,
		Window:         win,
		AcquireTimeout: opts.AcquireTimeout,
		MaxFrames:      opts.MaxFrames,
		Setup: func(images []*vkq.Image, extent hal.Extent) ([]*vkq.Framebuffer, error) {
			fbs := make([]*vkq.Framebuffer, len(images))
			for i, img := range images {
				fb, err := t.Framebuffer(fmt.Sprintf("swapchain %d", i), img)
				if err != nil {
					return nil, err
				}
				res.add(fb)
				fbs[i] = fb
			}
			lists = make([]*vkq.CommandList, len(images))
			vkq.Logger().Debug("demo: framebuffers ready", "images", len(images), "extent", extent.String())
			return fbs, nil
		},
		Frame: func(index int, fb *vkq.Framebuffer) (*vkq.CommandList, error) {
			if cl := lists[index]; cl != nil {
				return cl, nil
			}
			cl, err := t.Record(fb)
			if err != nil {
				return nil, err
			}
			res.add(cl)
			lists[index] = cl
			return cl, nil
		},
	}
	reason, err := loop.Run(ctx)
	return PresentResult{Reason: reason, Frames: loop.Frames()}, err
}
