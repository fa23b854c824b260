package vkq

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// Op is one recorded operation of a command list.
type Op interface {
	opName() string
}

type BeginRenderPass struct {
	Framebuffer *Framebuffer
	// ClearValues are indexed by attachment; every attachment loaded
	// with hal.LoadOpClear needs one.
	ClearValues []hal.ClearValue
}

// DynamicState is the per-draw state a pipeline left dynamic.
type DynamicState struct {
	Viewport *hal.Viewport
}

type Draw struct {
	Pipeline       *Pipeline
	Dynamic        DynamicState
	DescriptorSets []*DescriptorSet
	VertexBuffer   *Buffer
	// VertexCount zero draws every vertex the buffer holds.
	VertexCount int
	FirstVertex int
}

type Dispatch struct {
	Pipeline       *Pipeline
	DescriptorSets []*DescriptorSet
	GroupCounts    [3]int
}

// CopyImageToBuffer copies the whole image, tightly packed, to the
// start of the buffer.
type CopyImageToBuffer struct {
	Image  *Image
	Buffer *Buffer
}

type EndRenderPass struct{}

func (BeginRenderPass) opName() string   { return "begin render pass" }
func (Draw) opName() string              { return "draw" }
func (Dispatch) opName() string          { return "dispatch" }
func (CopyImageToBuffer) opName() string { return "copy image to buffer" }
func (EndRenderPass) opName() string     { return "end render pass" }

// CommandList is an immutable recorded sequence of operations for one
// queue family. It may be submitted any number of times.
type CommandList struct {
	resource
	hal    hal.CommandBuffer
	family *QueueFamily
	ops    int

	refs      []*resource
	writes    []*resource
	effects   []effect
	pipelines []*Pipeline
}

// effect is what one op leaves in a resource it writes, applied in
// record order when a submission of the list succeeds.
type effect struct {
	dst *resource
	// src is the resource copied from, or nil for a clear.
	src *resource
	// full is set when the op rewrites every byte of dst.
	full bool
}

// settle applies the effects of a successful submission. A copy of
// undefined contents is undefined; a full rewrite of defined contents
// is defined again.
func settle(effects []effect) {
	for _, e := range effects {
		switch {
		case e.src != nil && e.src.undefined.Load():
			e.dst.undefined.Store(true)
		case e.full:
			e.dst.undefined.Store(false)
		}
	}
}

func (c *CommandList) Family() *QueueFamily { return c.family }
func (c *CommandList) Len() int             { return c.ops }

// Destroy fails with ErrResourceBusy while a submission of the list is
// unretired.
func (c *CommandList) Destroy() error { return c.destroy() }

// Release destroys the list once its submissions have retired.
func (c *CommandList) Release() { c.destroyWhenIdle() }

// recorder validates ops and collects what they reference.
type recorder struct {
	dev    *Device
	family *QueueFamily
	index  int
	pass   *Framebuffer

	seen      map[*resource]bool
	refs      []*resource
	writes    []*resource
	effects   []effect
	pipelines []*Pipeline
}

func (r *recorder) invalid(op Op, format string, args ...any) error {
	return errors.Wrapf(ErrInvalidRecordingState, "op %d (%s): "+format,
		append([]any{r.index, op.opName()}, args...)...)
}

func (r *recorder) use(res *resource, write bool) error {
	if err := res.alive(); err != nil {
		return errors.Wrapf(err, "op %d", r.index)
	}
	if !r.seen[res] {
		r.seen[res] = true
		r.refs = append(r.refs, res)
	}
	if write {
		r.writes = append(r.writes, res)
	}
	return nil
}

func (r *recorder) usePipeline(op Op, p *Pipeline, kind PipelineKind, sets []*DescriptorSet) error {
	if p == nil {
		return r.invalid(op, "no pipeline")
	}
	if p.kind != kind {
		return r.invalid(op, "%s is a %s pipeline", &p.resource, p.kind)
	}
	if err := r.use(&p.resource, false); err != nil {
		return err
	}
	bound := make(map[int]bool)
	for _, ds := range sets {
		if err := ds.alive(); err != nil {
			return errors.Wrapf(err, "op %d", r.index)
		}
		if ds.pipeline != p {
			return errors.Wrapf(ErrDescriptorLayoutMismatch, "op %d: set %d was bound for %s", r.index, ds.slot, &ds.pipeline.resource)
		}
		if bound[ds.slot] {
			return errors.Wrapf(ErrDescriptorLayoutMismatch, "op %d: set %d given twice", r.index, ds.slot)
		}
		bound[ds.slot] = true
		if err := r.use(&ds.resource, false); err != nil {
			return err
		}
		for _, res := range ds.reads {
			if err := r.use(res, false); err != nil {
				return err
			}
		}
		r.writes = append(r.writes, ds.writes...)
	}
	for _, d := range p.descriptors {
		if !bound[d.Set] {
			return errors.Wrapf(ErrDescriptorLayoutMismatch, "op %d: set %d declared by %s is not bound", r.index, d.Set, &p.resource)
		}
	}
	for _, q := range r.pipelines {
		if q == p {
			return nil
		}
	}
	r.pipelines = append(r.pipelines, p)
	return nil
}

func (r *recorder) check(op Op) error {
	switch o := op.(type) {
	case BeginRenderPass:
		if r.pass != nil {
			return r.invalid(op, "render pass already open")
		}
		if !r.family.IsGraphics() {
			return r.invalid(op, "family %d has no graphics capability", r.family.Index)
		}
		fb := o.Framebuffer
		if fb == nil {
			return r.invalid(op, "no framebuffer")
		}
		if err := r.use(&fb.resource, false); err != nil {
			return err
		}
		if err := r.use(&fb.renderPass.resource, false); err != nil {
			return err
		}
		for i, a := range fb.renderPass.desc.Attachments {
			if a.Load == hal.LoadOpClear && i >= len(o.ClearValues) {
				return r.invalid(op, "attachment %d is cleared but has no clear value", i)
			}
		}
		for i, img := range fb.attachments {
			if err := r.use(&img.resource, true); err != nil {
				return err
			}
			e := img.desc.Extent
			if fb.renderPass.desc.Attachments[i].Load == hal.LoadOpClear &&
				e.Width == fb.extent.Width && e.Height == fb.extent.Height && e.Depth <= 1 {
				r.effects = append(r.effects, effect{dst: &img.resource, full: true})
			}
		}
		r.pass = fb

	case Draw:
		if r.pass == nil {
			return r.invalid(op, "draw outside a render pass")
		}
		if err := r.usePipeline(op, o.Pipeline, GraphicsPipeline, o.DescriptorSets); err != nil {
			return err
		}
		p := o.Pipeline
		if p.renderPass != r.pass.renderPass || p.subpass != 0 {
			return r.invalid(op, "%s was built for another render pass", &p.resource)
		}
		if p.dynamicViewport && o.Dynamic.Viewport == nil {
			return r.invalid(op, "%s needs a dynamic viewport", &p.resource)
		}
		if len(p.vertexLayout.Attributes) == 0 {
			if o.VertexBuffer != nil {
				return r.invalid(op, "%s reads no vertices but %s is bound", &p.resource, &o.VertexBuffer.resource)
			}
			if o.VertexCount <= 0 {
				return r.invalid(op, "no vertex count")
			}
			break
		}
		vb := o.VertexBuffer
		if vb == nil {
			return r.invalid(op, "%s reads vertices but no vertex buffer is bound", &p.resource)
		}
		if !vb.desc.Usage.Has(hal.BufferVertex) {
			return r.invalid(op, "%s lacks vertex usage", &vb.resource)
		}
		if err := r.use(&vb.resource, false); err != nil {
			return err
		}
		avail := int(vb.desc.Size / int64(p.vertexLayout.Stride))
		if o.FirstVertex < 0 || o.VertexCount < 0 || o.FirstVertex+o.VertexCount > avail {
			return r.invalid(op, "vertices [%d,%d) outside the %d in %s",
				o.FirstVertex, o.FirstVertex+o.VertexCount, avail, &vb.resource)
		}

	case Dispatch:
		if r.pass != nil {
			return r.invalid(op, "dispatch inside a render pass")
		}
		if !r.family.IsCompute() {
			return r.invalid(op, "family %d has no compute capability", r.family.Index)
		}
		for _, n := range o.GroupCounts {
			if n <= 0 {
				return r.invalid(op, "group counts %v", o.GroupCounts)
			}
		}
		if err := r.usePipeline(op, o.Pipeline, ComputePipeline, o.DescriptorSets); err != nil {
			return err
		}

	case CopyImageToBuffer:
		if r.pass != nil {
			return r.invalid(op, "copy inside a render pass")
		}
		if !r.family.Supports(hal.CapTransfer) && !r.family.IsGraphics() && !r.family.IsCompute() {
			return r.invalid(op, "family %d cannot copy", r.family.Index)
		}
		if o.Image == nil || o.Buffer == nil {
			return r.invalid(op, "needs an image and a buffer")
		}
		if !o.Image.desc.Usage.Has(hal.ImageTransferSrc) {
			return r.invalid(op, "%s lacks transfer source usage", &o.Image.resource)
		}
		if !o.Buffer.desc.Usage.Has(hal.BufferTransferDst) {
			return r.invalid(op, "%s lacks transfer destination usage", &o.Buffer.resource)
		}
		if o.Buffer.desc.Size < o.Image.ByteSize() {
			return r.invalid(op, "%d bytes do not fit %s of %d bytes", o.Image.ByteSize(), &o.Buffer.resource, o.Buffer.desc.Size)
		}
		if err := r.use(&o.Image.resource, false); err != nil {
			return err
		}
		if err := r.use(&o.Buffer.resource, true); err != nil {
			return err
		}
		r.effects = append(r.effects, effect{
			dst:  &o.Buffer.resource,
			src:  &o.Image.resource,
			full: o.Buffer.desc.Size == o.Image.ByteSize(),
		})

	case EndRenderPass:
		if r.pass == nil {
			return r.invalid(op, "no render pass open")
		}
		r.pass = nil

	default:
		return errors.Wrapf(ErrInvalidRecordingState, "op %d: unknown op %T", r.index, op)
	}
	return nil
}

func encode(cb hal.CommandBuffer, op Op) {
	switch o := op.(type) {
	case BeginRenderPass:
		cb.BeginRenderPass(o.Framebuffer.renderPass.hal, o.Framebuffer.hal, o.ClearValues)
	case Draw:
		p := o.Pipeline
		cb.BindGraphicsPipeline(p.hal)
		if o.Dynamic.Viewport != nil {
			cb.SetViewport(*o.Dynamic.Viewport)
		}
		for _, ds := range o.DescriptorSets {
			cb.BindDescriptorSet(p.hal, ds.slot, ds.hal)
		}
		count := o.VertexCount
		if o.VertexBuffer != nil {
			cb.BindVertexBuffer(o.VertexBuffer.hal, 0)
			if count == 0 {
				count = int(o.VertexBuffer.desc.Size/int64(p.vertexLayout.Stride)) - o.FirstVertex
			}
		}
		cb.Draw(count, 1, o.FirstVertex)
	case Dispatch:
		cb.BindComputePipeline(o.Pipeline.hal)
		for _, ds := range o.DescriptorSets {
			cb.BindDescriptorSet(o.Pipeline.hal, ds.slot, ds.hal)
		}
		cb.Dispatch(o.GroupCounts[0], o.GroupCounts[1], o.GroupCounts[2])
	case CopyImageToBuffer:
		cb.CopyImageToBuffer(o.Image.hal, o.Buffer.hal)
	case EndRenderPass:
		cb.EndRenderPass()
	}
}

// Record validates ops as a whole and records them for family. A nil
// family means the device's own. Nothing is recorded if any op is out
// of place.
func Record(d *Device, family *QueueFamily, ops ...Op) (*CommandList, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if family == nil {
		family = d.family
	}
	r := &recorder{dev: d, family: family, seen: make(map[*resource]bool)}
	for i, op := range ops {
		r.index = i
		if err := r.check(op); err != nil {
			return nil, err
		}
	}
	if r.pass != nil {
		return nil, errors.Wrapf(ErrInvalidRecordingState, "render pass on %s left open", &r.pass.resource)
	}

	cb, err := d.hal.NewCommandBuffer()
	if err != nil {
		return nil, errors.Wrap(classify(err, ErrResourceAllocationFailed), "record")
	}
	if err := cb.Begin(); err != nil {
		cb.Destroy()
		return nil, errors.Mark(errors.Wrap(err, "record"), ErrInvalidRecordingState)
	}
	for _, op := range ops {
		encode(cb, op)
	}
	if err := cb.End(); err != nil {
		cb.Destroy()
		return nil, errors.Mark(errors.Wrap(err, "record"), ErrInvalidRecordingState)
	}

	for _, p := range r.pipelines {
		p.Retain()
	}
	cl := &CommandList{
		hal:       cb,
		family:    family,
		ops:       len(ops),
		refs:      r.refs,
		writes:    r.writes,
		effects:   r.effects,
		pipelines: r.pipelines,
	}
	cl.init(d, kindCommandList, "", func() {
		cb.Destroy()
		for _, p := range cl.pipelines {
			p.Release()
		}
	})
	Logger().Debug("vkq: command list recorded", "ops", len(ops), "family", family.Index)
	return cl, nil
}

// CommandListBuilder collects ops one call at a time. Nothing is
// checked until Build.
type CommandListBuilder struct {
	dev    *Device
	family *QueueFamily
	ops    []Op
}

func NewCommandListBuilder(d *Device, family *QueueFamily) *CommandListBuilder {
	return &CommandListBuilder{dev: d, family: family}
}

func (b *CommandListBuilder) Add(ops ...Op) *CommandListBuilder {
	b.ops = append(b.ops, ops...)
	return b
}

func (b *CommandListBuilder) BeginRenderPass(fb *Framebuffer, clear ...hal.ClearValue) *CommandListBuilder {
	return b.Add(BeginRenderPass{Framebuffer: fb, ClearValues: clear})
}

func (b *CommandListBuilder) Draw(d Draw) *CommandListBuilder { return b.Add(d) }

func (b *CommandListBuilder) EndRenderPass() *CommandListBuilder { return b.Add(EndRenderPass{}) }

func (b *CommandListBuilder) Dispatch(p *Pipeline, groups [3]int, sets ...*DescriptorSet) *CommandListBuilder {
	return b.Add(Dispatch{Pipeline: p, DescriptorSets: sets, GroupCounts: groups})
}

func (b *CommandListBuilder) CopyImageToBuffer(img *Image, buf *Buffer) *CommandListBuilder {
	return b.Add(CopyImageToBuffer{Image: img, Buffer: buf})
}

func (b *CommandListBuilder) Build() (*CommandList, error) {
	return Record(b.dev, b.family, b.ops...)
}
