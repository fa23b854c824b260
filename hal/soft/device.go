package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/internal/suballoc"
)

// Allocations are aligned like a typical discrete GPU's buffer offsets.
const allocAlign = 256

type Device struct {
	adapter *Adapter
	queue   *Queue
}

func newDevice(a *Adapter, desc hal.DeviceDesc) *Device {
	d := &Device{adapter: a}
	d.queue = newQueue(d, desc.Family)
	return d
}

func (d *Device) Queue() hal.Queue { return d.queue }

func (d *Device) workers() int { return d.adapter.backend.workers }

func (d *Device) allocate(size int64) (*suballoc.Allocation, error) {
	a, err := d.adapter.heap.Allocate(uint64(size), allocAlign)
	if err != nil {
		return nil, errors.Mark(err, hal.ErrOutOfMemory)
	}
	return a, nil
}

type Buffer struct {
	dev   *Device
	alloc *suballoc.Allocation
	desc  hal.BufferDesc
	data  []byte
}

func (d *Device) NewBuffer(desc hal.BufferDesc) (hal.Buffer, error) {
	if desc.Size <= 0 {
		return nil, errors.Newf("soft: buffer size %d", desc.Size)
	}
	a, err := d.allocate(desc.Size)
	if err != nil {
		return nil, err
	}
	return &Buffer{dev: d, alloc: a, desc: desc, data: make([]byte, desc.Size)}, nil
}

func (b *Buffer) Size() int64 { return b.desc.Size }

func (b *Buffer) Bytes() []byte {
	if !b.desc.HostVisible {
		return nil
	}
	return b.data
}

func (b *Buffer) Destroy() {
	if b.alloc != nil {
		b.dev.adapter.heap.Free(b.alloc)
		b.alloc = nil
	}
}

type Image struct {
	dev   *Device
	alloc *suballoc.Allocation
	desc  hal.ImageDesc
	data  []byte
	// owned images belong to a swapchain and have no heap allocation.
	owned bool
}

func (d *Device) NewImage(desc hal.ImageDesc) (hal.Image, error) {
	size := int64(desc.Extent.Texels() * desc.Format.BytesPerPixel())
	if size <= 0 {
		return nil, errors.Newf("soft: image %s of format %s has no storage", desc.Extent, desc.Format)
	}
	a, err := d.allocate(size)
	if err != nil {
		return nil, err
	}
	return &Image{dev: d, alloc: a, desc: desc, data: make([]byte, size)}, nil
}

func (i *Image) Extent() hal.Extent { return i.desc.Extent }
func (i *Image) Format() hal.Format { return i.desc.Format }

// Pixels exposes the texel storage, row-major and tightly packed.
func (i *Image) Pixels() []byte { return i.data }

func (i *Image) Destroy() {
	if i.alloc != nil {
		i.dev.adapter.heap.Free(i.alloc)
		i.alloc = nil
	}
}

type ShaderModule struct {
	module *Module
}

func (d *Device) NewShaderModule(code []byte) (hal.ShaderModule, error) {
	name, err := parseBlob(code)
	if err != nil {
		return nil, err
	}
	m, ok := d.adapter.backend.module(name)
	if !ok {
		return nil, errors.Wrapf(hal.ErrUnsupported, "soft: module %q is not registered", name)
	}
	return &ShaderModule{module: m}, nil
}

func (*ShaderModule) Destroy() {}

type RenderPass struct {
	desc hal.RenderPassDesc
}

func (d *Device) NewRenderPass(desc hal.RenderPassDesc) (hal.RenderPass, error) {
	for _, sp := range desc.Subpasses {
		for _, c := range sp.Color {
			if c < 0 || c >= len(desc.Attachments) {
				return nil, errors.Newf("soft: subpass references attachment %d of %d", c, len(desc.Attachments))
			}
		}
	}
	return &RenderPass{desc: desc}, nil
}

func (*RenderPass) Destroy() {}

type Framebuffer struct {
	rp          *RenderPass
	attachments []*Image
	extent      hal.Extent
}

func (d *Device) NewFramebuffer(rp hal.RenderPass, attachments []hal.Image, extent hal.Extent) (hal.Framebuffer, error) {
	r := rp.(*RenderPass)
	if len(attachments) != len(r.desc.Attachments) {
		return nil, errors.Newf("soft: framebuffer has %d attachments, render pass %d", len(attachments), len(r.desc.Attachments))
	}
	fb := &Framebuffer{rp: r, extent: extent}
	for _, a := range attachments {
		img := a.(*Image)
		if img.desc.Extent.Width < extent.Width || img.desc.Extent.Height < extent.Height {
			return nil, errors.Newf("soft: attachment %s smaller than framebuffer %s", img.desc.Extent, extent)
		}
		fb.attachments = append(fb.attachments, img)
	}
	return fb, nil
}

func (f *Framebuffer) Extent() hal.Extent { return f.extent }
func (*Framebuffer) Destroy()             {}

type graphicsPipeline struct {
	desc     hal.GraphicsPipelineDesc
	vertex   VertexFunc
	fragment FragmentFunc
}

func (*graphicsPipeline) Destroy() {}

type computePipeline struct {
	desc   hal.ComputePipelineDesc
	kernel ComputeFunc
}

func (*computePipeline) Destroy() {}

func (d *Device) NewGraphicsPipeline(desc *hal.GraphicsPipelineDesc) (hal.Pipeline, error) {
	if desc.PolygonMode != hal.PolygonFill {
		return nil, errors.Wrap(hal.ErrUnsupported, "soft: only filled polygons are rasterized")
	}
	vs, ok := desc.Vertex.Module.(*ShaderModule).module.Vertex[desc.Vertex.Entry]
	if !ok {
		return nil, errors.Wrapf(hal.ErrUnsupported, "soft: no vertex kernel %q", desc.Vertex.Entry)
	}
	fs, ok := desc.Fragment.Module.(*ShaderModule).module.Fragment[desc.Fragment.Entry]
	if !ok {
		return nil, errors.Wrapf(hal.ErrUnsupported, "soft: no fragment kernel %q", desc.Fragment.Entry)
	}
	rp := desc.RenderPass.(*RenderPass)
	if desc.Subpass < 0 || desc.Subpass >= len(rp.desc.Subpasses) {
		return nil, errors.Newf("soft: subpass %d out of range", desc.Subpass)
	}
	return &graphicsPipeline{desc: *desc, vertex: vs, fragment: fs}, nil
}

func (d *Device) NewComputePipeline(desc *hal.ComputePipelineDesc) (hal.Pipeline, error) {
	k, ok := desc.Compute.Module.(*ShaderModule).module.Compute[desc.Compute.Entry]
	if !ok {
		return nil, errors.Wrapf(hal.ErrUnsupported, "soft: no compute kernel %q", desc.Compute.Entry)
	}
	wg := desc.WorkgroupSize
	for i := range wg {
		if wg[i] <= 0 {
			wg[i] = 1
		}
	}
	p := &computePipeline{desc: *desc, kernel: k}
	p.desc.WorkgroupSize = wg
	return p, nil
}

type descriptorSet struct {
	set int
	res []hal.Resource
}

func (*descriptorSet) Destroy() {}

func (d *Device) NewDescriptorSet(p hal.Pipeline, set int, res []hal.Resource) (hal.DescriptorSet, error) {
	return &descriptorSet{set: set, res: append([]hal.Resource(nil), res...)}, nil
}

func (d *Device) NewSemaphore() (hal.Semaphore, error) {
	return newSemaphore(), nil
}

func (d *Device) NewFence() (hal.Fence, error) {
	return newFence(), nil
}

func (d *Device) WaitIdle() error {
	return d.queue.WaitIdle()
}

func (d *Device) Destroy() {
	d.queue.stop()
}
