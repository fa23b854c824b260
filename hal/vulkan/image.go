package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// Image is a 2D color image with a single view covering it.
type Image struct {
	dev  *Device
	vk   vk.Image
	view vk.ImageView
	mem  *deviceMemory
	desc hal.ImageDesc
	// owned images belong to a swapchain and are not destroyed here.
	owned bool
	// rest is the layout the image is in between submissions.
	rest vk.ImageLayout
}

func imageUsage(u hal.ImageUsage) vk.ImageUsageFlags {
	var f vk.ImageUsageFlagBits
	if u.Has(hal.ImageColorAttachment) {
		f |= vk.ImageUsageColorAttachmentBit
	}
	if u.Has(hal.ImageStorage) {
		f |= vk.ImageUsageStorageBit
	}
	if u.Has(hal.ImageTransferSrc) {
		f |= vk.ImageUsageTransferSrcBit
	}
	if u.Has(hal.ImageSampled) {
		f |= vk.ImageUsageSampledBit
	}
	return vk.ImageUsageFlags(f)
}

func (d *Device) NewImage(desc hal.ImageDesc) (hal.Image, error) {
	format := vkFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, errors.Wrapf(hal.ErrUnsupported, "image format %s", desc.Format)
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  uint32(desc.Extent.Width),
			Height: uint32(desc.Extent.Height),
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	img := &Image{dev: d, desc: desc, rest: vk.ImageLayoutGeneral}
	if err := check(vk.CreateImage(d.vk, &info, nil, &img.vk), "create image"); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.vk, img.vk, &reqs)
	mem, err := d.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.vk, img.vk, nil)
		return nil, err
	}
	img.mem = mem
	if err := check(vk.BindImageMemory(d.vk, img.vk, mem.vk, 0), "bind image memory"); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := img.createView(format); err != nil {
		img.Destroy()
		return nil, err
	}
	err = d.immediate(func(cb vk.CommandBuffer) {
		layoutBarrier(cb, img, vk.ImageLayoutUndefined, img.rest)
	})
	if err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// wrapImage adopts a swapchain image. Its contents are only kept
// between a present and the next acquire, so it rests ready to present.
func (d *Device) wrapImage(vi vk.Image, desc hal.ImageDesc) (*Image, error) {
	img := &Image{dev: d, vk: vi, desc: desc, owned: true, rest: vk.ImageLayoutPresentSrc}
	if err := img.createView(vkFormat(desc.Format)); err != nil {
		return nil, err
	}
	return img, nil
}

func (i *Image) createView(format vk.Format) error {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    i.vk,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: colorRange,
	}
	return check(vk.CreateImageView(i.dev.vk, &info, nil, &i.view), "create image view")
}

var colorRange = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

func (i *Image) Extent() hal.Extent { return i.desc.Extent }
func (i *Image) Format() hal.Format { return i.desc.Format }

func (i *Image) Destroy() {
	if i.view != vk.NullImageView {
		vk.DestroyImageView(i.dev.vk, i.view, nil)
		i.view = vk.NullImageView
	}
	if i.owned {
		return
	}
	vk.DestroyImage(i.dev.vk, i.vk, nil)
	if i.mem != nil {
		i.mem.free()
	}
}
