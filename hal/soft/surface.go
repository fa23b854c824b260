package soft

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// Frame is one presented swapchain image.
type Frame struct {
	Seq    int
	Index  int
	Extent hal.Extent
	Format hal.Format
	// Pixels is a copy of the image, row-major and tightly packed.
	Pixels []byte
}

// SurfaceConfig describes an offscreen presentation target.
type SurfaceConfig struct {
	// Extent is reported as the surface's current extent. Leave it zero
	// to let the swapchain pick its own size.
	Extent         hal.Extent
	Formats        []hal.Format
	PresentModes   []hal.PresentMode
	CompositeAlpha []hal.CompositeAlpha
	MinImageCount  int
	MaxImageCount  int
	// OnPresent is called on the queue goroutine for every presented
	// image.
	OnPresent func(Frame)
}

// Surface is an offscreen stand-in for a window surface.
type Surface struct {
	cfg SurfaceConfig

	loseOnce sync.Once
	lost     chan struct{}
	acquires atomic.Int64
	presents atomic.Int64
}

func NewSurface(cfg SurfaceConfig) *Surface {
	if len(cfg.Formats) == 0 {
		cfg.Formats = []hal.Format{hal.FormatBGRA8Unorm, hal.FormatRGBA8Unorm}
	}
	if len(cfg.PresentModes) == 0 {
		cfg.PresentModes = []hal.PresentMode{hal.PresentFifo, hal.PresentMailbox}
	}
	if len(cfg.CompositeAlpha) == 0 {
		cfg.CompositeAlpha = []hal.CompositeAlpha{hal.CompositeOpaque}
	}
	if cfg.MinImageCount == 0 {
		cfg.MinImageCount = 2
	}
	if cfg.MaxImageCount == 0 {
		cfg.MaxImageCount = max(3, cfg.MinImageCount)
	}
	return &Surface{cfg: cfg, lost: make(chan struct{})}
}

func (s *Surface) capabilities() hal.SurfaceCapabilities {
	return hal.SurfaceCapabilities{
		CurrentExtent:  s.cfg.Extent,
		MinImageCount:  s.cfg.MinImageCount,
		MaxImageCount:  s.cfg.MaxImageCount,
		Formats:        slices.Clone(s.cfg.Formats),
		PresentModes:   slices.Clone(s.cfg.PresentModes),
		CompositeAlpha: slices.Clone(s.cfg.CompositeAlpha),
	}
}

// Lose invalidates the surface, as if its window had been destroyed.
// Blocked and future acquires fail with hal.ErrSurfaceLost.
func (s *Surface) Lose() {
	s.loseOnce.Do(func() { close(s.lost) })
}

func (s *Surface) Lost() bool {
	select {
	case <-s.lost:
		return true
	default:
		return false
	}
}

// Acquires counts Acquire calls on swapchains of this surface.
func (s *Surface) Acquires() int { return int(s.acquires.Load()) }

// Presents counts images actually delivered to OnPresent.
func (s *Surface) Presents() int { return int(s.presents.Load()) }

func (s *Surface) Destroy() { s.Lose() }

type Swapchain struct {
	surface *Surface
	desc    hal.SwapchainDesc
	images  []*Image
	free    chan int
}

func (d *Device) NewSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	s, ok := desc.Surface.(*Surface)
	if !ok {
		return nil, errors.Wrapf(hal.ErrUnsupported, "surface %T does not belong to the soft backend", desc.Surface)
	}
	if s.Lost() {
		return nil, errors.WithStack(hal.ErrSurfaceLost)
	}
	if !slices.Contains(s.cfg.Formats, desc.Format) {
		return nil, errors.Wrapf(hal.ErrUnsupported, "surface format %s", desc.Format)
	}
	if !slices.Contains(s.cfg.PresentModes, desc.PresentMode) {
		return nil, errors.Wrapf(hal.ErrUnsupported, "present mode %s", desc.PresentMode)
	}
	if desc.ImageCount <= 0 || desc.Extent.Width <= 0 || desc.Extent.Height <= 0 {
		return nil, errors.Newf("soft: swapchain of %d images at %s", desc.ImageCount, desc.Extent)
	}
	sc := &Swapchain{surface: s, desc: desc, free: make(chan int, desc.ImageCount)}
	size := desc.Extent.Texels() * desc.Format.BytesPerPixel()
	for i := 0; i < desc.ImageCount; i++ {
		sc.images = append(sc.images, &Image{
			dev:   d,
			desc:  hal.ImageDesc{Extent: desc.Extent, Format: desc.Format, Usage: hal.ImageColorAttachment | hal.ImageTransferSrc, Family: desc.Family},
			data:  make([]byte, size),
			owned: true,
		})
		sc.free <- i
	}
	return sc, nil
}

func (sc *Swapchain) Images() []hal.Image {
	ret := make([]hal.Image, len(sc.images))
	for i, img := range sc.images {
		ret[i] = img
	}
	return ret
}

func (sc *Swapchain) Format() hal.Format { return sc.desc.Format }
func (sc *Swapchain) Extent() hal.Extent { return sc.desc.Extent }

func (sc *Swapchain) Acquire(timeout time.Duration, signal hal.Semaphore) (int, error) {
	sc.surface.acquires.Add(1)
	if sc.surface.Lost() {
		return 0, errors.WithStack(hal.ErrSurfaceLost)
	}
	var expire <-chan time.Time
	switch {
	case timeout == 0:
		select {
		case i := <-sc.free:
			return sc.acquired(i, signal)
		default:
			return 0, errors.WithStack(hal.ErrTimeout)
		}
	case timeout > 0:
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case i := <-sc.free:
		return sc.acquired(i, signal)
	case <-sc.surface.lost:
		return 0, errors.WithStack(hal.ErrSurfaceLost)
	case <-expire:
		return 0, errors.WithStack(hal.ErrTimeout)
	}
}

func (sc *Swapchain) acquired(i int, signal hal.Semaphore) (int, error) {
	if signal != nil {
		signal.(*semaphore).signal(nil)
	}
	return i, nil
}

// present hands image i to the surface and returns it to the free ring.
// Images rendered by a faulted submission are recycled without being
// shown.
func (sc *Swapchain) present(i int, upstream error) {
	defer func() { sc.free <- i }()
	if upstream != nil || sc.surface.Lost() {
		return
	}
	seq := int(sc.surface.presents.Add(1))
	if sc.surface.cfg.OnPresent != nil {
		sc.surface.cfg.OnPresent(Frame{
			Seq:    seq,
			Index:  i,
			Extent: sc.desc.Extent,
			Format: sc.desc.Format,
			Pixels: slices.Clone(sc.images[i].data),
		})
	}
}

func (*Swapchain) Destroy() {}
