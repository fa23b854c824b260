package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// Surface is a VkSurfaceKHR created by a window system.
type Surface struct {
	backend *Backend
	vk      vk.Surface
}

func (s *Surface) Destroy() {
	if s.vk == vk.NullSurface {
		return
	}
	vk.DestroySurface(s.backend.instance, s.vk, nil)
	s.vk = vk.NullSurface
}

type Swapchain struct {
	dev    *Device
	vk     vk.Swapchain
	format hal.Format
	extent hal.Extent
	images []*Image
}

func (d *Device) NewSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	s, ok := desc.Surface.(*Surface)
	if !ok {
		return nil, errors.Wrapf(hal.ErrUnsupported, "surface %T does not belong to the vulkan backend", desc.Surface)
	}
	caps, err := d.adapter.surfaceCapabilities(s.vk)
	if err != nil {
		return nil, err
	}
	formats, err := d.adapter.surfaceFormats(s.vk)
	if err != nil {
		return nil, err
	}
	format := vkFormat(desc.Format)
	colorSpace := vk.ColorSpaceSrgbNonlinear
	for _, f := range formats {
		if f.Format == format {
			colorSpace = f.ColorSpace
			break
		}
	}

	usage := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	halUsage := hal.ImageColorAttachment
	if caps.SupportedUsageFlags&vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
		halUsage |= hal.ImageTransferSrc
	}

	info := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         s.vk,
		MinImageCount:   uint32(desc.ImageCount),
		ImageFormat:     format,
		ImageColorSpace: colorSpace,
		ImageExtent: vk.Extent2D{
			Width:  uint32(desc.Extent.Width),
			Height: uint32(desc.Extent.Height),
		},
		ImageArrayLayers: 1,
		ImageUsage:       usage,
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vkCompositeAlpha(desc.CompositeAlpha),
		PresentMode:      vkPresentMode(desc.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	sc := &Swapchain{dev: d, format: desc.Format, extent: desc.Extent}
	if err := check(vk.CreateSwapchain(d.vk, &info, nil, &sc.vk), "create swapchain"); err != nil {
		return nil, err
	}

	var n uint32
	if err := check(vk.GetSwapchainImages(d.vk, sc.vk, &n, nil), "get swapchain images"); err != nil {
		sc.Destroy()
		return nil, err
	}
	images := make([]vk.Image, n)
	if err := check(vk.GetSwapchainImages(d.vk, sc.vk, &n, images), "get swapchain images"); err != nil {
		sc.Destroy()
		return nil, err
	}
	for _, vi := range images[:n] {
		img, err := d.wrapImage(vi, hal.ImageDesc{
			Extent: desc.Extent,
			Format: desc.Format,
			Usage:  halUsage,
			Family: desc.Family,
		})
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.images = append(sc.images, img)
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

func (sc *Swapchain) Format() hal.Format { return sc.format }
func (sc *Swapchain) Extent() hal.Extent { return sc.extent }

// Acquire waits for the next presentable image. An out of date
// swapchain is reported as hal.ErrSurfaceLost.
func (sc *Swapchain) Acquire(timeout time.Duration, signal hal.Semaphore) (int, error) {
	sem := vk.NullSemaphore
	fence := vk.NullFence
	if signal != nil {
		sem = signal.(*Semaphore).vk
	} else {
		// vkAcquireNextImageKHR needs something to signal.
		f, err := sc.dev.NewFence()
		if err != nil {
			return 0, err
		}
		defer f.Destroy()
		fence = f.(*Fence).vk
	}
	var idx uint32
	err := check(vk.AcquireNextImage(sc.dev.vk, sc.vk, timeoutNanos(timeout), sem, fence, &idx), "acquire next image")
	if err != nil {
		return 0, err
	}
	if fence != vk.NullFence {
		if err := check(vk.WaitForFences(sc.dev.vk, 1, []vk.Fence{fence}, vk.True, vk.MaxUint64), "wait for acquire"); err != nil {
			return 0, err
		}
	}
	return int(idx), nil
}

func (sc *Swapchain) Destroy() {
	for _, img := range sc.images {
		img.Destroy()
	}
	sc.images = nil
	if sc.vk != vk.NullSwapchain {
		vk.DestroySwapchain(sc.dev.vk, sc.vk, nil)
		sc.vk = vk.NullSwapchain
	}
}
