package vkq

import (
	"fmt"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// DefaultFallbackExtent sizes a swapchain whose surface leaves the size
// to the application.
var DefaultFallbackExtent = hal.Extent2D(1280, 1024)

type SwapchainOptions struct {
	// PresentMode falls back to hal.PresentFifo, which every surface
	// supports, when the surface does not offer it.
	PresentMode hal.PresentMode
	// Format is the first format the surface offers when undefined.
	Format hal.Format
	// FallbackExtent is used when the surface has no current extent.
	FallbackExtent hal.Extent
	// ImageCount defaults to one more than the surface minimum.
	ImageCount int
}

// Swapchain is a ring of presentable images for a surface. It owns its
// images.
type Swapchain struct {
	resource
	hal         hal.Swapchain
	surface     hal.Surface
	images      []*Image
	presentMode hal.PresentMode
	// acquired is guarded by the queue's mutex.
	acquired []bool
}

func CreateSwapchain(d *Device, surface hal.Surface, opts SwapchainOptions) (*Swapchain, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if !d.family.SupportsPresent(surface) {
		return nil, errors.Wrapf(ErrNoSuitableQueueFamily, "create swapchain: %s cannot present to the surface", d.family)
	}
	caps, err := d.adapter.hal.SurfaceCapabilities(surface)
	if err != nil {
		return nil, errors.Wrap(classify(err, ErrSurfaceLost), "create swapchain")
	}
	if len(caps.Formats) == 0 || len(caps.CompositeAlpha) == 0 {
		return nil, errors.Wrap(ErrSurfaceLost, "create swapchain: surface offers no formats")
	}

	format := caps.Formats[0]
	if opts.Format != hal.FormatUndefined {
		if !slices.Contains(caps.Formats, opts.Format) {
			return nil, errors.Wrapf(ErrResourceAllocationFailed, "create swapchain: surface does not offer %s", opts.Format)
		}
		format = opts.Format
	}
	mode := opts.PresentMode
	if !slices.Contains(caps.PresentModes, mode) {
		Logger().Info("vkq: present mode unsupported, using fifo", "requested", mode.String())
		mode = hal.PresentFifo
	}
	extent := caps.CurrentExtent
	if extent.Width == 0 || extent.Height == 0 {
		extent = opts.FallbackExtent
		if extent.Width == 0 || extent.Height == 0 {
			extent = DefaultFallbackExtent
		}
	}
	extent = hal.Extent2D(extent.Width, extent.Height)
	count := opts.ImageCount
	if count == 0 {
		count = caps.MinImageCount + 1
	}
	count = max(count, caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		count = min(count, caps.MaxImageCount)
	}

	hs, err := d.hal.NewSwapchain(hal.SwapchainDesc{
		Surface:        surface,
		Family:         d.family.Index,
		Format:         format,
		Extent:         extent,
		ImageCount:     count,
		PresentMode:    mode,
		CompositeAlpha: caps.CompositeAlpha[0],
	})
	if err != nil {
		return nil, errors.Wrap(classify(err, ErrResourceAllocationFailed), "create swapchain")
	}

	sc := &Swapchain{hal: hs, surface: surface, presentMode: mode}
	for i, hi := range hs.Images() {
		img := &Image{
			hal: hi,
			desc: ImageDesc{
				Label:  fmt.Sprintf("swapchain image %d", i),
				Extent: hs.Extent(),
				Format: hs.Format(),
				Usage:  hal.ImageColorAttachment | hal.ImageTransferSrc,
			},
			family:    d.family,
			swapchain: sc,
		}
		img.init(d, kindImage, img.desc.Label, nil)
		sc.images = append(sc.images, img)
	}
	sc.acquired = make([]bool, len(sc.images))
	sc.init(d, kindSwapchain, "", func() {
		for _, img := range sc.images {
			img.teardown()
		}
		hs.Destroy()
	})
	Logger().Info("vkq: swapchain created",
		"images", len(sc.images), "extent", hs.Extent().String(), "format", hs.Format().String(), "mode", mode.String())
	return sc, nil
}

func (sc *Swapchain) Images() []*Image             { return slices.Clone(sc.images) }
func (sc *Swapchain) Extent() hal.Extent           { return sc.hal.Extent() }
func (sc *Swapchain) Format() hal.Format           { return sc.hal.Format() }
func (sc *Swapchain) PresentMode() hal.PresentMode { return sc.presentMode }
func (sc *Swapchain) Surface() hal.Surface         { return sc.surface }

// AcquireNextImage blocks until an image is free, up to timeout, and
// returns its index with a future that signals when the image may be
// rendered to.
func (sc *Swapchain) AcquireNextImage(timeout time.Duration) (int, *Future, error) {
	if err := sc.alive(); err != nil {
		return 0, nil, errors.Wrap(err, "acquire")
	}
	q := sc.dev.queue
	sem, err := q.newSemaphore()
	if err != nil {
		return 0, nil, err
	}
	idx, err := sc.hal.Acquire(timeout, sem)
	if err != nil {
		sem.Destroy()
		return 0, nil, errors.Wrap(classify(err, ErrSurfaceLost), "acquire")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	sc.acquired[idx] = true
	f := &Future{
		queue: q,
		kind:  "acquire",
		sem:   sem,
		refs:  []*resource{&sc.resource, &sc.images[idx].resource},
	}
	retain(f.refs)
	q.outstanding = append(q.outstanding, f)
	return idx, f, nil
}

func (sc *Swapchain) takeAcquired(i int) bool {
	ok := sc.acquired[i]
	sc.acquired[i] = false
	return ok
}

func (sc *Swapchain) setAcquired(i int) { sc.acquired[i] = true }

func (sc *Swapchain) Destroy() error { return sc.destroy() }
