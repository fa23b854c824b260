package vkq_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
	"github.com/celer/vkq/internal/shaders"
)

func TestBindDescriptorSetChecksDeclarations(t *testing.T) {
	d, _ := open(t, nil)
	mod, err := shaders.Load(d, shaders.Multiply)
	require.NoError(t, err)
	p, err := vkq.BuildComputePipeline(d, "multiply", mod.MustEntry("main"))
	require.NoError(t, err)
	assert.Equal(t, [3]int{shaders.MultiplyWorkgroupSize, 1, 1}, p.WorkgroupSize())
	assert.Equal(t, vkq.ComputePipeline, p.Kind())

	storage, err := vkq.CreateBuffer(d, vkq.BufferDesc{Usage: hal.BufferStorage, Size: 64})
	require.NoError(t, err)
	uniform, err := vkq.CreateBuffer(d, vkq.BufferDesc{Usage: hal.BufferUniform, Size: 16})
	require.NoError(t, err)
	img, err := vkq.CreateImage(d, vkq.ImageDesc{Extent: hal.Extent2D(2, 2), Format: hal.FormatRGBA8Unorm, Usage: hal.ImageStorage}, nil)
	require.NoError(t, err)

	for _, tc := range []struct {
		name     string
		slot     int
		bindings []vkq.Binding
	}{
		{"undeclared set", 1, []vkq.Binding{vkq.BufferBinding(0, storage)}},
		{"too few", 0, []vkq.Binding{vkq.BufferBinding(0, storage)}},
		{"too many", 0, []vkq.Binding{vkq.BufferBinding(0, storage), vkq.BufferBinding(1, uniform), vkq.BufferBinding(2, uniform)}},
		{"wrong usage", 0, []vkq.Binding{vkq.BufferBinding(0, uniform), vkq.BufferBinding(1, uniform)}},
		{"image for buffer", 0, []vkq.Binding{vkq.BufferBinding(0, storage), vkq.ImageBinding(1, img)}},
		{"binding twice", 0, []vkq.Binding{vkq.BufferBinding(0, storage), vkq.BufferBinding(0, storage)}},
		{"undeclared binding", 0, []vkq.Binding{vkq.BufferBinding(0, storage), vkq.BufferBinding(5, uniform)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := vkq.BindDescriptorSet(p, tc.slot, tc.bindings...)
			assert.True(t, errors.Is(err, vkq.ErrDescriptorLayoutMismatch), "%v", err)
		})
	}

	set, err := vkq.BindDescriptorSet(p, 0, vkq.BufferBinding(1, uniform), vkq.BufferBinding(0, storage))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Slot())
	assert.Same(t, p, set.Pipeline())
}

func TestShaderModuleDeclarations(t *testing.T) {
	d, _ := open(t, nil)
	code := soft.ModuleBlob(shaders.Multiply.Name)

	_, err := vkq.LoadShaderModule(d, vkq.ShaderModuleDesc{Code: code})
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible), "%v", err)

	dup := shaders.Multiply.Entries[0]
	_, err = vkq.LoadShaderModule(d, vkq.ShaderModuleDesc{Code: code, Entries: []vkq.EntryPoint{dup, dup}})
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible), "%v", err)

	m, err := vkq.LoadShaderModule(d, vkq.ShaderModuleDesc{Code: code, Entries: []vkq.EntryPoint{dup}})
	require.NoError(t, err)
	_, err = m.Entry("nope")
	assert.Error(t, err)
	assert.Panics(t, func() { m.MustEntry("nope") })

	_, err = vkq.LoadShaderModule(d, vkq.ShaderModuleDesc{Code: soft.ModuleBlob("unregistered"), Entries: []vkq.EntryPoint{dup}})
	assert.Error(t, err)
}

func TestComputePipelineRejectsGraphicsEntry(t *testing.T) {
	d, _ := open(t, nil)
	mod, err := shaders.Load(d, shaders.Triangle)
	require.NoError(t, err)
	_, err = vkq.BuildComputePipeline(d, "", mod.MustEntry("vs_main"))
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible), "%v", err)
	_, err = vkq.BuildComputePipeline(d, "", vkq.EntryRef{})
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible), "%v", err)
}

func TestGraphicsPipelineComposition(t *testing.T) {
	d, _ := open(t, nil)
	tri, err := shaders.Load(d, shaders.Triangle)
	require.NoError(t, err)
	mul, err := shaders.Load(d, shaders.Multiply)
	require.NoError(t, err)
	rp, err := vkq.CreateRenderPass(d, vkq.SinglePass(hal.FormatRGBA8Unorm, hal.LayoutTransferSrc))
	require.NoError(t, err)
	vs, fs := tri.MustEntry("vs_main"), tri.MustEntry("fs_main")
	pos := hal.VertexAttribute{Location: 0, Format: hal.FormatRG32Float}

	valid := func() *vkq.GraphicsPipelineConfig {
		return d.CreateGraphicsPipelineConfig().SetVertexLayout(8, pos).AddShaderStage(vs).AddShaderStage(fs)
	}
	p, err := valid().Build(rp, 0)
	require.NoError(t, err)
	assert.True(t, p.DynamicViewport())
	assert.Same(t, rp, p.RenderPass())

	p, err = valid().SetStaticViewport(hal.Viewport{Width: 4, Height: 4, MaxDepth: 1}).Build(rp, 0)
	require.NoError(t, err)
	assert.False(t, p.DynamicViewport())

	for _, tc := range []struct {
		name string
		cfg  *vkq.GraphicsPipelineConfig
		sub  int
	}{
		{"no fragment stage", d.CreateGraphicsPipelineConfig().SetVertexLayout(8, pos).AddShaderStage(vs), 0},
		{"two vertex stages", valid().AddShaderStage(vs), 0},
		{"compute stage", valid().AddShaderStage(mul.MustEntry("main")), 0},
		{"missing attribute", d.CreateGraphicsPipelineConfig().AddShaderStage(vs).AddShaderStage(fs), 0},
		{"attribute width", valid().SetVertexLayout(8, hal.VertexAttribute{Location: 0, Format: hal.FormatR32Float}), 0},
		{"attribute past stride", valid().SetVertexLayout(4, pos), 0},
		{"subpass out of range", valid(), 1},
		{"depth without attachment", valid().EnableDepthTest(true), 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.Build(rp, tc.sub)
			assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible), "%v", err)
		})
	}

	narrow, err := vkq.CreateRenderPass(d, vkq.SinglePass(hal.FormatR32Float, hal.LayoutTransferSrc))
	require.NoError(t, err)
	_, err = valid().Build(narrow, 0)
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible), "fragment output wider than the attachment: %v", err)
}

func TestRenderPassAndFramebufferChecks(t *testing.T) {
	d, _ := open(t, nil)
	_, err := vkq.CreateRenderPass(d, vkq.RenderPassDesc{})
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible))
	_, err = vkq.CreateRenderPass(d, vkq.RenderPassDesc{Subpasses: []hal.SubpassDesc{{Color: []int{0}}}})
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible))

	rp, err := vkq.CreateRenderPass(d, vkq.SinglePass(hal.FormatRGBA8Unorm, hal.LayoutTransferSrc))
	require.NoError(t, err)
	bgra, err := vkq.CreateImage(d, vkq.ImageDesc{Extent: hal.Extent2D(4, 4), Format: hal.FormatBGRA8Unorm, Usage: hal.ImageColorAttachment}, nil)
	require.NoError(t, err)
	_, err = vkq.CreateFramebuffer(d, "", rp, bgra)
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible))

	noAttach, err := vkq.CreateImage(d, vkq.ImageDesc{Extent: hal.Extent2D(4, 4), Format: hal.FormatRGBA8Unorm, Usage: hal.ImageTransferSrc}, nil)
	require.NoError(t, err)
	_, err = vkq.CreateFramebuffer(d, "", rp, noAttach)
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible))
	_, err = vkq.CreateFramebuffer(d, "", rp)
	assert.True(t, errors.Is(err, vkq.ErrPipelineIncompatible))
}
