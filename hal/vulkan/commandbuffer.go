package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// CommandBuffer is a primary vk.CommandBuffer recorded for simultaneous
// use, so a submission may overlap an earlier one of the same buffer.
//
// Commands outside a render pass are separated by full memory barriers
// and the buffer ends with one making every write visible to the host.
// Every image it touches is returned to its resting layout at the end.
type CommandBuffer struct {
	dev     *Device
	vk      vk.CommandBuffer
	fb      *Framebuffer
	layouts layoutTracker
}

// layoutTracker follows image layouts through one recording. Images
// enter and leave a recording in their resting layout, so barriers do
// not depend on the order lists are recorded or submitted in.
type layoutTracker map[*Image]vk.ImageLayout

// move records a transition of img to layout and returns the layout it
// leaves, or false when img is already there.
func (t layoutTracker) move(img *Image, layout vk.ImageLayout) (vk.ImageLayout, bool) {
	from, ok := t[img]
	if !ok {
		from = img.rest
	}
	if from == layout {
		return from, false
	}
	t[img] = layout
	return from, true
}

// unsettled lists the images not in their resting layout.
func (t layoutTracker) unsettled() []*Image {
	var out []*Image
	for img, l := range t {
		if l != img.rest {
			out = append(out, img)
		}
	}
	return out
}

func (d *Device) NewCommandBuffer() (hal.CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmds := make([]vk.CommandBuffer, 1)
	d.poolMu.Lock()
	err := check(vk.AllocateCommandBuffers(d.vk, &info, cmds), "allocate command buffer")
	d.poolMu.Unlock()
	if err != nil {
		return nil, err
	}
	return &CommandBuffer{dev: d, vk: cmds[0], layouts: make(layoutTracker)}, nil
}

func (c *CommandBuffer) Begin() error {
	clear(c.layouts)
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit),
	}
	return check(vk.BeginCommandBuffer(c.vk, &info), "begin command buffer")
}

func (c *CommandBuffer) BeginRenderPass(rp hal.RenderPass, fb hal.Framebuffer, clear []hal.ClearValue) {
	vfb := fb.(*Framebuffer)
	c.fb = vfb
	// Loaded attachments are expected in the pass's own final layout.
	for i, img := range vfb.attachments {
		if a := vfb.rp.desc.Attachments[i]; a.Load == hal.LoadOpLoad {
			c.transition(img, vkLayout(a.FinalLayout))
		}
	}
	clears := make([]vk.ClearValue, len(vfb.attachments))
	for i := range clears {
		if i < len(clear) {
			clears[i] = vk.NewClearValue(clear[i][:])
		}
	}
	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.(*RenderPass).vk,
		Framebuffer: vfb.vk,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: uint32(vfb.extent.Width), Height: uint32(vfb.extent.Height)},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(c.vk, &info, vk.SubpassContentsInline)
}

func (c *CommandBuffer) SetViewport(vp hal.Viewport) {
	v := vkViewport(vp)
	vk.CmdSetViewport(c.vk, 0, 1, []vk.Viewport{v})
	vk.CmdSetScissor(c.vk, 0, 1, []vk.Rect2D{scissorFor(v)})
}

func (c *CommandBuffer) BindGraphicsPipeline(p hal.Pipeline) {
	vk.CmdBindPipeline(c.vk, vk.PipelineBindPointGraphics, p.(*Pipeline).vk)
}

func (c *CommandBuffer) BindVertexBuffer(b hal.Buffer, offset int64) {
	vk.CmdBindVertexBuffers(c.vk, 0, 1, []vk.Buffer{b.(*Buffer).vk}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex int) {
	vk.CmdDraw(c.vk, uint32(vertexCount), uint32(instanceCount), uint32(firstVertex), 0)
}

func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.vk)
	if c.fb == nil {
		return
	}
	for i, img := range c.fb.attachments {
		c.layouts[img] = vkLayout(c.fb.rp.desc.Attachments[i].FinalLayout)
	}
	c.fb = nil
}

func (c *CommandBuffer) BindComputePipeline(p hal.Pipeline) {
	vk.CmdBindPipeline(c.vk, vk.PipelineBindPointCompute, p.(*Pipeline).vk)
}

func (c *CommandBuffer) BindDescriptorSet(p hal.Pipeline, set int, ds hal.DescriptorSet) {
	vp := p.(*Pipeline)
	vds := ds.(*DescriptorSet)
	for _, img := range vds.images {
		c.transition(img, vk.ImageLayoutGeneral)
	}
	vk.CmdBindDescriptorSets(c.vk, vp.bindPoint, vp.layout.vk, uint32(set), 1, []vk.DescriptorSet{vds.vk}, 0, nil)
}

func (c *CommandBuffer) Dispatch(x, y, z int) {
	c.memoryBarrier(vk.PipelineStageComputeShaderBit)
	vk.CmdDispatch(c.vk, uint32(x), uint32(y), uint32(z))
}

func (c *CommandBuffer) CopyImageToBuffer(img hal.Image, buf hal.Buffer) {
	vi := img.(*Image)
	c.memoryBarrier(vk.PipelineStageTransferBit)
	c.transition(vi, vk.ImageLayoutTransferSrcOptimal)
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  uint32(vi.desc.Extent.Width),
			Height: uint32(vi.desc.Extent.Height),
			Depth:  1,
		},
	}
	vk.CmdCopyImageToBuffer(c.vk, vi.vk, vk.ImageLayoutTransferSrcOptimal, buf.(*Buffer).vk, 1, []vk.BufferImageCopy{region})
}

func (c *CommandBuffer) End() error {
	for _, img := range c.layouts.unsettled() {
		c.transition(img, img.rest)
	}
	vk.CmdPipelineBarrier(c.vk,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageHostBit),
		0, 1, []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessHostReadBit),
		}}, 0, nil, 0, nil)
	return check(vk.EndCommandBuffer(c.vk), "end command buffer")
}

// memoryBarrier makes every earlier write visible to dst.
func (c *CommandBuffer) memoryBarrier(dst vk.PipelineStageFlagBits) {
	vk.CmdPipelineBarrier(c.vk,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(dst),
		0, 1, []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		}}, 0, nil, 0, nil)
}

// transition moves img to layout from where this recording left it.
func (c *CommandBuffer) transition(img *Image, layout vk.ImageLayout) {
	from, ok := c.layouts.move(img, layout)
	if !ok {
		return
	}
	layoutBarrier(c.vk, img, from, layout)
}

func layoutBarrier(cb vk.CommandBuffer, img *Image, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.vk,
		SubresourceRange:    colorRange,
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (c *CommandBuffer) Destroy() {
	c.dev.poolMu.Lock()
	defer c.dev.poolMu.Unlock()
	vk.FreeCommandBuffers(c.dev.vk, c.dev.pool, 1, []vk.CommandBuffer{c.vk})
}
