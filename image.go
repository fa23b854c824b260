package vkq

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

type ImageDesc struct {
	Label  string
	Extent hal.Extent
	Format hal.Format
	Usage  hal.ImageUsage
}

// Image is a 2D or 3D pixel store owned by a queue family.
type Image struct {
	resource
	hal    hal.Image
	desc   ImageDesc
	family *QueueFamily
	// swapchain is set for presentable images, which the swapchain owns.
	swapchain *Swapchain
}

// CreateImage reserves extent texels of format on the device. A nil
// family means the device's own queue family.
func CreateImage(d *Device, desc ImageDesc, family *QueueFamily) (*Image, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if family == nil {
		family = d.family
	}
	if family.Adapter != d.adapter || family.Index != d.family.Index {
		return nil, errors.Wrapf(ErrResourceAllocationFailed,
			"create image %q: family %d has no queue on this device", desc.Label, family.Index)
	}
	if desc.Format.BytesPerPixel() == 0 {
		return nil, errors.Wrapf(ErrResourceAllocationFailed, "create image %q: format %s", desc.Label, desc.Format)
	}
	if desc.Extent.Depth == 0 {
		desc.Extent.Depth = 1
	}
	if desc.Extent.Width <= 0 || desc.Extent.Height <= 0 || desc.Extent.Depth < 0 {
		return nil, errors.Wrapf(ErrResourceAllocationFailed, "create image %q: extent %s", desc.Label, desc.Extent)
	}
	hi, err := d.hal.NewImage(hal.ImageDesc{
		Extent: desc.Extent,
		Format: desc.Format,
		Usage:  desc.Usage,
		Family: family.Index,
	})
	if err != nil {
		return nil, errors.Wrapf(classify(err, ErrResourceAllocationFailed), "create image %q (%s %s)", desc.Label, desc.Extent, desc.Format)
	}
	img := &Image{hal: hi, desc: desc, family: family}
	img.init(d, kindImage, desc.Label, hi.Destroy)
	Logger().Debug("vkq: image created", "label", desc.Label, "extent", desc.Extent.String(), "format", desc.Format.String())
	return img, nil
}

func (i *Image) Extent() hal.Extent    { return i.desc.Extent }
func (i *Image) Format() hal.Format    { return i.desc.Format }
func (i *Image) Usage() hal.ImageUsage { return i.desc.Usage }
func (i *Image) Family() *QueueFamily  { return i.family }
func (i *Image) HAL() hal.Image        { return i.hal }

// Undefined reports whether a faulted submission wrote the image since
// a render pass last cleared it.
func (i *Image) Undefined() bool { return i.undefined.Load() }

// ByteSize is the size of the tightly packed image contents.
func (i *Image) ByteSize() int64 {
	return int64(i.desc.Extent.Texels() * i.desc.Format.BytesPerPixel())
}

// Destroy frees the image. Swapchain images are released with their
// swapchain.
func (i *Image) Destroy() error {
	if i.swapchain != nil {
		return errors.Newf("destroy %s: owned by a swapchain", &i.resource)
	}
	return i.destroy()
}
