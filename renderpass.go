package vkq

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

type RenderPassDesc struct {
	Label       string
	Attachments []hal.AttachmentDesc
	Subpasses   []hal.SubpassDesc
}

// RenderPass describes attachment slots and the subpasses writing them.
type RenderPass struct {
	resource
	hal  hal.RenderPass
	desc RenderPassDesc
}

// SinglePass describes one color attachment of format that is cleared
// on load, stored, and left in final layout.
func SinglePass(format hal.Format, final hal.Layout) RenderPassDesc {
	return RenderPassDesc{
		Attachments: []hal.AttachmentDesc{{
			Format:      format,
			Load:        hal.LoadOpClear,
			Store:       hal.StoreOpStore,
			FinalLayout: final,
		}},
		Subpasses: []hal.SubpassDesc{{Color: []int{0}}},
	}
}

func CreateRenderPass(d *Device, desc RenderPassDesc) (*RenderPass, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if len(desc.Subpasses) == 0 {
		return nil, errors.Wrapf(ErrPipelineIncompatible, "render pass %q: no subpasses", desc.Label)
	}
	for i, sp := range desc.Subpasses {
		for _, c := range sp.Color {
			if c < 0 || c >= len(desc.Attachments) {
				return nil, errors.Wrapf(ErrPipelineIncompatible,
					"render pass %q: subpass %d writes attachment %d of %d", desc.Label, i, c, len(desc.Attachments))
			}
		}
	}
	for i, a := range desc.Attachments {
		if a.Format.BytesPerPixel() == 0 {
			return nil, errors.Wrapf(ErrPipelineIncompatible, "render pass %q: attachment %d has format %s", desc.Label, i, a.Format)
		}
	}
	hr, err := d.hal.NewRenderPass(hal.RenderPassDesc{Attachments: desc.Attachments, Subpasses: desc.Subpasses})
	if err != nil {
		return nil, errors.Wrapf(classify(err, ErrResourceAllocationFailed), "create render pass %q", desc.Label)
	}
	rp := &RenderPass{hal: hr, desc: desc}
	rp.init(d, kindRenderPass, desc.Label, hr.Destroy)
	return rp, nil
}

func (r *RenderPass) Attachments() []hal.AttachmentDesc { return r.desc.Attachments }
func (r *RenderPass) Subpasses() []hal.SubpassDesc      { return r.desc.Subpasses }
func (r *RenderPass) Destroy() error                    { return r.destroy() }

// Framebuffer binds concrete images to the attachment slots of a
// render pass.
type Framebuffer struct {
	resource
	hal         hal.Framebuffer
	renderPass  *RenderPass
	attachments []*Image
	extent      hal.Extent
}

// CreateFramebuffer binds images to rp's attachments in order. The
// framebuffer extent is the smallest attachment extent.
func CreateFramebuffer(d *Device, label string, rp *RenderPass, images ...*Image) (*Framebuffer, error) {
	if err := rp.alive(); err != nil {
		return nil, errors.Wrapf(err, "create framebuffer %q", label)
	}
	if len(images) != len(rp.desc.Attachments) {
		return nil, errors.Wrapf(ErrPipelineIncompatible,
			"create framebuffer %q: %d images for %d attachments", label, len(images), len(rp.desc.Attachments))
	}
	var extent hal.Extent
	himgs := make([]hal.Image, len(images))
	for i, img := range images {
		if err := img.alive(); err != nil {
			return nil, errors.Wrapf(err, "create framebuffer %q", label)
		}
		want := rp.desc.Attachments[i].Format
		if img.desc.Format != want {
			return nil, errors.Wrapf(ErrPipelineIncompatible,
				"create framebuffer %q: attachment %d is %s, render pass expects %s", label, i, img.desc.Format, want)
		}
		if !img.desc.Usage.Has(hal.ImageColorAttachment) {
			return nil, errors.Wrapf(ErrPipelineIncompatible,
				"create framebuffer %q: %s lacks color attachment usage", label, &img.resource)
		}
		e := img.desc.Extent
		if i == 0 {
			extent = hal.Extent2D(e.Width, e.Height)
		} else {
			extent.Width, extent.Height = min(extent.Width, e.Width), min(extent.Height, e.Height)
		}
		himgs[i] = img.hal
	}
	hf, err := d.hal.NewFramebuffer(rp.hal, himgs, extent)
	if err != nil {
		return nil, errors.Wrapf(classify(err, ErrResourceAllocationFailed), "create framebuffer %q", label)
	}
	fb := &Framebuffer{hal: hf, renderPass: rp, attachments: images, extent: extent}
	fb.init(d, kindFramebuffer, label, hf.Destroy)
	return fb, nil
}

func (f *Framebuffer) Extent() hal.Extent      { return f.extent }
func (f *Framebuffer) RenderPass() *RenderPass { return f.renderPass }
func (f *Framebuffer) Attachments() []*Image   { return append([]*Image(nil), f.attachments...) }
func (f *Framebuffer) Destroy() error          { return f.destroy() }
