package vkq

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

type PipelineKind int

const (
	GraphicsPipeline PipelineKind = iota
	ComputePipeline
)

func (k PipelineKind) String() string {
	if k == ComputePipeline {
		return "compute"
	}
	return "graphics"
}

// Pipeline is an immutable compiled pipeline. It is shared by reference:
// Retain adds an owner, Release drops one, and the last Release destroys
// it once no submission uses it.
type Pipeline struct {
	resource
	hal  hal.Pipeline
	kind PipelineKind
	refs atomic.Int32

	descriptors     []hal.DescriptorDecl
	renderPass      *RenderPass
	subpass         int
	dynamicViewport bool
	vertexLayout    hal.VertexLayout
	workgroupSize   [3]int
}

func newPipeline(d *Device, label string, kind PipelineKind, hp hal.Pipeline) *Pipeline {
	p := &Pipeline{hal: hp, kind: kind}
	p.refs.Store(1)
	p.init(d, kindPipeline, label, hp.Destroy)
	return p
}

func (p *Pipeline) Kind() PipelineKind             { return p.kind }
func (p *Pipeline) RenderPass() *RenderPass        { return p.renderPass }
func (p *Pipeline) Subpass() int                   { return p.subpass }
func (p *Pipeline) DynamicViewport() bool          { return p.dynamicViewport }
func (p *Pipeline) VertexLayout() hal.VertexLayout { return p.vertexLayout }
func (p *Pipeline) WorkgroupSize() [3]int          { return p.workgroupSize }

func (p *Pipeline) Descriptors() []hal.DescriptorDecl {
	return append([]hal.DescriptorDecl(nil), p.descriptors...)
}

func (p *Pipeline) declsForSet(set int) []hal.DescriptorDecl {
	var out []hal.DescriptorDecl
	for _, d := range p.descriptors {
		if d.Set == set {
			out = append(out, d)
		}
	}
	return out
}

// Retain adds an owner and returns p.
func (p *Pipeline) Retain() *Pipeline {
	p.refs.Add(1)
	return p
}

// Release drops an owner. The pipeline is destroyed after the last
// owner is gone and its submissions have retired.
func (p *Pipeline) Release() {
	if p.refs.Add(-1) == 0 {
		p.destroyWhenIdle()
	}
}

// Destroy destroys the pipeline regardless of owners. It fails with
// ErrResourceBusy while a submission uses it.
func (p *Pipeline) Destroy() error {
	return p.destroy()
}

// mergeDescriptors unions declarations and rejects a (set, binding)
// declared with two different types.
func mergeDescriptors(stages ...[]hal.DescriptorDecl) ([]hal.DescriptorDecl, error) {
	type key struct{ set, binding int }
	seen := make(map[key]hal.DescriptorType)
	var out []hal.DescriptorDecl
	for _, decls := range stages {
		for _, d := range decls {
			k := key{d.Set, d.Binding}
			if t, ok := seen[k]; ok {
				if t != d.Type {
					return nil, errors.Newf("set %d binding %d declared as %s and %s", d.Set, d.Binding, t, d.Type)
				}
				continue
			}
			seen[k] = d.Type
			out = append(out, d)
		}
	}
	return out, nil
}

// BuildComputePipeline builds a pipeline from a single compute entry
// point.
func BuildComputePipeline(d *Device, label string, entry EntryRef) (*Pipeline, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if entry.Module == nil {
		return nil, errors.Wrapf(ErrPipelineIncompatible, "compute pipeline %q: no shader", label)
	}
	if err := entry.Module.alive(); err != nil {
		return nil, errors.Wrapf(err, "compute pipeline %q", label)
	}
	if entry.Point.Stage != hal.StageCompute {
		return nil, errors.Wrapf(ErrPipelineIncompatible,
			"compute pipeline %q: entry %q is a %s stage", label, entry.Point.Name, entry.Point.Stage)
	}
	decls, err := mergeDescriptors(entry.Point.Descriptors)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "compute pipeline %q", label), ErrPipelineIncompatible)
	}
	wg := entry.Point.WorkgroupSize
	for i := range wg {
		if wg[i] <= 0 {
			wg[i] = 1
		}
	}
	hp, err := d.hal.NewComputePipeline(&hal.ComputePipelineDesc{
		Compute:       entry.stage(),
		Descriptors:   decls,
		WorkgroupSize: wg,
	})
	if err != nil {
		return nil, errors.Wrapf(classify(err, ErrPipelineIncompatible), "compute pipeline %q", label)
	}
	p := newPipeline(d, label, ComputePipeline, hp)
	p.descriptors = decls
	p.workgroupSize = wg
	Logger().Debug("vkq: compute pipeline built", "label", label, "entry", entry.Point.Name)
	return p, nil
}
