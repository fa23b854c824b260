package vkq

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// GraphicsPipelineConfig collects the state of a graphics pipeline.
// Setters return the config so calls can be chained; Build validates
// the composition and creates the pipeline.
type GraphicsPipelineConfig struct {
	Device *Device
	Label  string

	VertexLayout hal.VertexLayout
	Stages       []EntryRef

	// Topology defaults to hal.TopologyTriangleList.
	Topology hal.Topology
	// PolygonMode defaults to hal.PolygonFill.
	PolygonMode hal.PolygonMode
	// CullMode defaults to hal.CullNone.
	CullMode hal.CullMode
	// FrontFace defaults to hal.FrontFaceCounterClockwise.
	FrontFace hal.FrontFace

	// Viewport is nil for a single dynamic viewport, which every Draw
	// must then supply. The scissor test is always disabled.
	Viewport *hal.Viewport

	Blend bool
	// DepthTest needs a depth attachment in the subpass.
	DepthTest bool
}

// CreateGraphicsPipelineConfig returns a config with the default
// fixed-function state.
func (d *Device) CreateGraphicsPipelineConfig() *GraphicsPipelineConfig {
	return &GraphicsPipelineConfig{
		Device:      d,
		Topology:    hal.TopologyTriangleList,
		PolygonMode: hal.PolygonFill,
		CullMode:    hal.CullNone,
		FrontFace:   hal.FrontFaceCounterClockwise,
	}
}

func (g *GraphicsPipelineConfig) SetLabel(l string) *GraphicsPipelineConfig {
	g.Label = l
	return g
}

// SetVertexLayout describes one interleaved vertex buffer binding.
func (g *GraphicsPipelineConfig) SetVertexLayout(stride int, attrs ...hal.VertexAttribute) *GraphicsPipelineConfig {
	g.VertexLayout = hal.VertexLayout{Stride: stride, Attributes: attrs}
	return g
}

func (g *GraphicsPipelineConfig) AddShaderStage(e EntryRef) *GraphicsPipelineConfig {
	g.Stages = append(g.Stages, e)
	return g
}

func (g *GraphicsPipelineConfig) SetTopology(t hal.Topology) *GraphicsPipelineConfig {
	g.Topology = t
	return g
}

func (g *GraphicsPipelineConfig) SetPolygonMode(m hal.PolygonMode) *GraphicsPipelineConfig {
	g.PolygonMode = m
	return g
}

func (g *GraphicsPipelineConfig) SetCullMode(m hal.CullMode) *GraphicsPipelineConfig {
	g.CullMode = m
	return g
}

func (g *GraphicsPipelineConfig) SetFrontFace(f hal.FrontFace) *GraphicsPipelineConfig {
	g.FrontFace = f
	return g
}

// SetStaticViewport bakes vp into the pipeline instead of taking it
// from each Draw.
func (g *GraphicsPipelineConfig) SetStaticViewport(vp hal.Viewport) *GraphicsPipelineConfig {
	g.Viewport = &vp
	return g
}

func (g *GraphicsPipelineConfig) EnableBlending(on bool) *GraphicsPipelineConfig {
	g.Blend = on
	return g
}

func (g *GraphicsPipelineConfig) EnableDepthTest(on bool) *GraphicsPipelineConfig {
	g.DepthTest = on
	return g
}

func (g *GraphicsPipelineConfig) incompatible(format string, args ...any) error {
	return errors.Wrapf(ErrPipelineIncompatible, "graphics pipeline %q: "+format, append([]any{g.Label}, args...)...)
}

// stage returns the single entry of stage s.
func (g *GraphicsPipelineConfig) stage(s hal.ShaderStage) (EntryRef, error) {
	var found []EntryRef
	for _, e := range g.Stages {
		if e.Point.Stage == s {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return EntryRef{}, g.incompatible("no %s stage", s)
	case 1:
		return found[0], nil
	}
	return EntryRef{}, g.incompatible("%d %s stages", len(found), s)
}

func (g *GraphicsPipelineConfig) checkVertexInputs(vs EntryRef) error {
	l := g.VertexLayout
	byLoc := make(map[int]hal.VertexAttribute)
	for _, a := range l.Attributes {
		if _, dup := byLoc[a.Location]; dup {
			return g.incompatible("vertex attribute location %d declared twice", a.Location)
		}
		size := a.Format.BytesPerPixel()
		if size == 0 || a.Offset < 0 || a.Offset+size > l.Stride {
			return g.incompatible("vertex attribute %d (%s at %d) does not fit stride %d", a.Location, a.Format, a.Offset, l.Stride)
		}
		byLoc[a.Location] = a
	}
	for _, in := range vs.Point.Inputs {
		a, ok := byLoc[in.Location]
		if !ok {
			return g.incompatible("vertex input location %d has no attribute", in.Location)
		}
		if a.Format.Components() != in.Components {
			return g.incompatible("vertex input location %d wants %d components, attribute %s has %d",
				in.Location, in.Components, a.Format, a.Format.Components())
		}
	}
	return nil
}

func (g *GraphicsPipelineConfig) checkFragmentOutputs(fs EntryRef, rp *RenderPass, subpass int) error {
	sp := rp.desc.Subpasses[subpass]
	for _, out := range fs.Point.Outputs {
		if out.Location < 0 || out.Location >= len(sp.Color) {
			return g.incompatible("fragment output location %d has no color attachment in subpass %d", out.Location, subpass)
		}
		att := rp.desc.Attachments[sp.Color[out.Location]]
		if out.Components > att.Format.Components() {
			return g.incompatible("fragment output location %d has %d components, attachment %s has %d",
				out.Location, out.Components, att.Format, att.Format.Components())
		}
	}
	return nil
}

// Build composes the config with subpass of rp.
func (g *GraphicsPipelineConfig) Build(rp *RenderPass, subpass int) (*Pipeline, error) {
	d := g.Device
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if rp == nil {
		return nil, g.incompatible("no render pass")
	}
	if err := rp.alive(); err != nil {
		return nil, errors.Wrapf(err, "graphics pipeline %q", g.Label)
	}
	if subpass < 0 || subpass >= len(rp.desc.Subpasses) {
		return nil, g.incompatible("subpass %d of %d", subpass, len(rp.desc.Subpasses))
	}
	for _, e := range g.Stages {
		if e.Module == nil {
			return nil, g.incompatible("stage without a shader module")
		}
		if err := e.Module.alive(); err != nil {
			return nil, errors.Wrapf(err, "graphics pipeline %q", g.Label)
		}
		if e.Point.Stage == hal.StageCompute {
			return nil, g.incompatible("compute entry %q in a graphics pipeline", e.Point.Name)
		}
	}
	vs, err := g.stage(hal.StageVertex)
	if err != nil {
		return nil, err
	}
	fs, err := g.stage(hal.StageFragment)
	if err != nil {
		return nil, err
	}
	if err := g.checkVertexInputs(vs); err != nil {
		return nil, err
	}
	if err := g.checkFragmentOutputs(fs, rp, subpass); err != nil {
		return nil, err
	}
	if g.DepthTest {
		return nil, g.incompatible("depth test enabled but subpass %d has no depth attachment", subpass)
	}
	decls, err := mergeDescriptors(vs.Point.Descriptors, fs.Point.Descriptors)
	if err != nil {
		return nil, g.incompatible("%v", err)
	}

	desc := &hal.GraphicsPipelineDesc{
		Vertex:          vs.stage(),
		Fragment:        fs.stage(),
		VertexInput:     g.VertexLayout,
		Topology:        g.Topology,
		PolygonMode:     g.PolygonMode,
		CullMode:        g.CullMode,
		FrontFace:       g.FrontFace,
		DynamicViewport: g.Viewport == nil,
		Blend:           g.Blend,
		DepthTest:       g.DepthTest,
		Descriptors:     decls,
		RenderPass:      rp.hal,
		Subpass:         subpass,
	}
	if g.Viewport != nil {
		desc.Viewport = *g.Viewport
	}
	hp, err := d.hal.NewGraphicsPipeline(desc)
	if err != nil {
		return nil, errors.Wrapf(classify(err, ErrPipelineIncompatible), "graphics pipeline %q", g.Label)
	}
	p := newPipeline(d, g.Label, GraphicsPipeline, hp)
	p.descriptors = decls
	p.renderPass = rp
	p.subpass = subpass
	p.dynamicViewport = desc.DynamicViewport
	p.vertexLayout = g.VertexLayout
	Logger().Debug("vkq: graphics pipeline built", "label", g.Label, "subpass", subpass)
	return p, nil
}

// BuildGraphicsPipeline is the one-call form of CreateGraphicsPipelineConfig
// followed by Build, with default fixed-function state.
func BuildGraphicsPipeline(d *Device, label string, layout hal.VertexLayout, stages []EntryRef, rp *RenderPass, subpass int) (*Pipeline, error) {
	g := d.CreateGraphicsPipelineConfig().SetLabel(label)
	g.VertexLayout = layout
	g.Stages = stages
	return g.Build(rp, subpass)
}
