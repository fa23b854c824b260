package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

type RenderPass struct {
	dev  *Device
	vk   vk.RenderPass
	desc hal.RenderPassDesc
}

func loadOp(op hal.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case hal.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case hal.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpClear
}

func storeOp(op hal.StoreOp) vk.AttachmentStoreOp {
	if op == hal.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func (d *Device) NewRenderPass(desc hal.RenderPassDesc) (hal.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		initial := vk.ImageLayoutUndefined
		// Loaded contents are expected where the previous pass left them.
		if a.Load == hal.LoadOpLoad {
			initial = vkLayout(a.FinalLayout)
		}
		attachments[i] = vk.AttachmentDescription{
			Format:         vkFormat(a.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(a.Load),
			StoreOp:        storeOp(a.Store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initial,
			FinalLayout:    vkLayout(a.FinalLayout),
		}
	}
	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	for i, s := range desc.Subpasses {
		refs := make([]vk.AttachmentReference, len(s.Color))
		for j, c := range s.Color {
			refs[j] = vk.AttachmentReference{
				Attachment: uint32(c),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			}
		}
		subpasses[i] = vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(refs)),
			PColorAttachments:    refs,
		}
	}
	deps := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageTransferBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}}
	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}
	rp := &RenderPass{dev: d, desc: desc}
	if err := check(vk.CreateRenderPass(d.vk, &info, nil, &rp.vk), "create render pass"); err != nil {
		return nil, err
	}
	return rp, nil
}

func (rp *RenderPass) Destroy() {
	vk.DestroyRenderPass(rp.dev.vk, rp.vk, nil)
}

type Framebuffer struct {
	dev         *Device
	vk          vk.Framebuffer
	rp          *RenderPass
	attachments []*Image
	extent      hal.Extent
}

func (d *Device) NewFramebuffer(rp hal.RenderPass, attachments []hal.Image, extent hal.Extent) (hal.Framebuffer, error) {
	vrp := rp.(*RenderPass)
	if len(attachments) != len(vrp.desc.Attachments) {
		return nil, errors.Newf("vulkan: framebuffer has %d attachments, render pass %d", len(attachments), len(vrp.desc.Attachments))
	}
	fb := &Framebuffer{dev: d, rp: vrp, extent: extent}
	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		img := a.(*Image)
		fb.attachments = append(fb.attachments, img)
		views[i] = img.view
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      vrp.vk,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(extent.Width),
		Height:          uint32(extent.Height),
		Layers:          1,
	}
	if err := check(vk.CreateFramebuffer(d.vk, &info, nil, &fb.vk), "create framebuffer"); err != nil {
		return nil, err
	}
	return fb, nil
}

func (fb *Framebuffer) Extent() hal.Extent { return fb.extent }

func (fb *Framebuffer) Destroy() {
	vk.DestroyFramebuffer(fb.dev.vk, fb.vk, nil)
}
