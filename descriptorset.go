package vkq

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// Binding is one resource for a descriptor binding index. Exactly one
// of Buffer and Image is set.
type Binding struct {
	Index  int
	Buffer *Buffer
	Image  *Image
}

func BufferBinding(index int, b *Buffer) Binding { return Binding{Index: index, Buffer: b} }
func ImageBinding(index int, img *Image) Binding { return Binding{Index: index, Image: img} }

// DescriptorSet is a validated binding of resources to one descriptor
// set slot of a pipeline.
type DescriptorSet struct {
	resource
	hal      hal.DescriptorSet
	pipeline *Pipeline
	slot     int
	bindings []Binding
	reads    []*resource
	writes   []*resource
}

func mismatch(p *Pipeline, slot int, format string, args ...any) error {
	return errors.Wrapf(ErrDescriptorLayoutMismatch, "bind %s set %d: "+format,
		append([]any{&p.resource, slot}, args...)...)
}

// BindDescriptorSet checks bindings against what p's shaders declare for
// set slot, in number and type, and builds the set.
func BindDescriptorSet(p *Pipeline, slot int, bindings ...Binding) (*DescriptorSet, error) {
	if err := p.alive(); err != nil {
		return nil, errors.Wrap(err, "bind descriptor set")
	}
	decls := p.declsForSet(slot)
	if len(decls) == 0 {
		return nil, mismatch(p, slot, "pipeline declares no such set")
	}
	if len(bindings) != len(decls) {
		return nil, mismatch(p, slot, "%d resources for %d declared bindings", len(bindings), len(decls))
	}

	ds := &DescriptorSet{pipeline: p, slot: slot, bindings: append([]Binding(nil), bindings...)}
	res := make([]hal.Resource, 0, len(bindings))
	used := make(map[int]bool)
	for _, b := range bindings {
		if used[b.Index] {
			return nil, mismatch(p, slot, "binding %d bound twice", b.Index)
		}
		used[b.Index] = true
		var decl *hal.DescriptorDecl
		for i := range decls {
			if decls[i].Binding == b.Index {
				decl = &decls[i]
			}
		}
		if decl == nil {
			return nil, mismatch(p, slot, "binding %d is not declared", b.Index)
		}
		if (b.Buffer == nil) == (b.Image == nil) {
			return nil, mismatch(p, slot, "binding %d needs exactly one resource", b.Index)
		}

		switch decl.Type {
		case hal.DescStorageBuffer, hal.DescUniformBuffer:
			if b.Buffer == nil {
				return nil, mismatch(p, slot, "binding %d is a %s, got an image", b.Index, decl.Type)
			}
			if err := b.Buffer.alive(); err != nil {
				return nil, errors.Wrap(err, "bind descriptor set")
			}
			want := hal.BufferStorage
			if decl.Type == hal.DescUniformBuffer {
				want = hal.BufferUniform
			}
			if !b.Buffer.desc.Usage.Has(want) {
				return nil, mismatch(p, slot, "binding %d is a %s, %s lacks that usage", b.Index, decl.Type, &b.Buffer.resource)
			}
			res = append(res, hal.Resource{Binding: b.Index, Buffer: b.Buffer.hal})
			ds.reads = append(ds.reads, &b.Buffer.resource)
			if decl.Type == hal.DescStorageBuffer {
				ds.writes = append(ds.writes, &b.Buffer.resource)
			}
		case hal.DescStorageImage:
			if b.Image == nil {
				return nil, mismatch(p, slot, "binding %d is a %s, got a buffer", b.Index, decl.Type)
			}
			if err := b.Image.alive(); err != nil {
				return nil, errors.Wrap(err, "bind descriptor set")
			}
			if !b.Image.desc.Usage.Has(hal.ImageStorage) {
				return nil, mismatch(p, slot, "binding %d is a %s, %s lacks storage usage", b.Index, decl.Type, &b.Image.resource)
			}
			res = append(res, hal.Resource{Binding: b.Index, Image: b.Image.hal})
			ds.reads = append(ds.reads, &b.Image.resource)
			ds.writes = append(ds.writes, &b.Image.resource)
		}
	}

	hd, err := p.dev.hal.NewDescriptorSet(p.hal, slot, res)
	if err != nil {
		return nil, errors.Wrapf(classify(err, ErrResourceAllocationFailed), "bind %s set %d", &p.resource, slot)
	}
	ds.hal = hd
	p.Retain()
	ds.init(p.dev, kindDescriptorSet, p.label, func() {
		hd.Destroy()
		p.Release()
	})
	return ds, nil
}

func (s *DescriptorSet) Pipeline() *Pipeline { return s.pipeline }
func (s *DescriptorSet) Slot() int           { return s.slot }
func (s *DescriptorSet) Bindings() []Binding { return append([]Binding(nil), s.bindings...) }
func (s *DescriptorSet) Destroy() error      { return s.destroy() }
