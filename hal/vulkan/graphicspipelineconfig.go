package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// graphicsPipelineConfig translates a hal description into the many
// create-info structures vkCreateGraphicsPipelines needs.
type graphicsPipelineConfig struct {
	stages []vk.PipelineShaderStageCreateInfo
	layout *pipelineLayout
	rp     *RenderPass

	// Defaults to VK_PRIMITIVE_TOPOLOGY_TRIANGLE_LIST.
	topology    vk.PrimitiveTopology
	polygonMode vk.PolygonMode
	cullMode    vk.CullModeFlagBits
	frontFace   vk.FrontFace

	// viewport is nil when it is set by the command buffer instead.
	viewport *vk.Viewport
	blend    bool
	depth    bool
	subpass  int

	bindings   []vk.VertexInputBindingDescription
	attributes []vk.VertexInputAttributeDescription
}

func newGraphicsPipelineConfig(desc *hal.GraphicsPipelineDesc, layout *pipelineLayout) *graphicsPipelineConfig {
	g := &graphicsPipelineConfig{
		stages: []vk.PipelineShaderStageCreateInfo{
			desc.Vertex.Module.(*ShaderModule).stage(vk.ShaderStageVertexBit, desc.Vertex.Entry),
			desc.Fragment.Module.(*ShaderModule).stage(vk.ShaderStageFragmentBit, desc.Fragment.Entry),
		},
		layout:      layout,
		rp:          desc.RenderPass.(*RenderPass),
		topology:    vk.PrimitiveTopologyTriangleList,
		polygonMode: vk.PolygonModeFill,
		cullMode:    vk.CullModeNone,
		frontFace:   vk.FrontFaceCounterClockwise,
		blend:       desc.Blend,
		depth:       desc.DepthTest,
		subpass:     desc.Subpass,
	}
	if desc.Topology == hal.TopologyTriangleStrip {
		g.topology = vk.PrimitiveTopologyTriangleStrip
	}
	if desc.PolygonMode == hal.PolygonLine {
		g.polygonMode = vk.PolygonModeLine
	}
	switch desc.CullMode {
	case hal.CullFront:
		g.cullMode = vk.CullModeFrontBit
	case hal.CullBack:
		g.cullMode = vk.CullModeBackBit
	}
	if desc.FrontFace == hal.FrontFaceClockwise {
		g.frontFace = vk.FrontFaceClockwise
	}
	if !desc.DynamicViewport {
		vp := vkViewport(desc.Viewport)
		g.viewport = &vp
	}
	if len(desc.VertexInput.Attributes) > 0 {
		g.bindings = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    uint32(desc.VertexInput.Stride),
			InputRate: vk.VertexInputRateVertex,
		}}
		for _, a := range desc.VertexInput.Attributes {
			g.attributes = append(g.attributes, vk.VertexInputAttributeDescription{
				Location: uint32(a.Location),
				Binding:  0,
				Format:   vkFormat(a.Format),
				Offset:   uint32(a.Offset),
			})
		}
	}
	return g
}

func vkViewport(v hal.Viewport) vk.Viewport {
	return vk.Viewport{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}
}

// scissorFor covers the viewport rectangle.
func scissorFor(v vk.Viewport) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: int32(v.X), Y: int32(v.Y)},
		Extent: vk.Extent2D{Width: uint32(v.Width), Height: uint32(v.Height)},
	}
}

func (g *graphicsPipelineConfig) createInfo() vk.GraphicsPipelineCreateInfo {
	vertexInputState := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(g.bindings)),
		PVertexBindingDescriptions:      g.bindings,
		VertexAttributeDescriptionCount: uint32(len(g.attributes)),
		PVertexAttributeDescriptions:    g.attributes,
	}

	inputAssemblyState := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               g.topology,
		PrimitiveRestartEnable: vk.False,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	var dynamic []vk.DynamicState
	if g.viewport != nil {
		viewportState.PViewports = []vk.Viewport{*g.viewport}
		viewportState.PScissors = []vk.Rect2D{scissorFor(*g.viewport)}
	} else {
		dynamic = []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	}

	rasterState := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             g.polygonMode,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(g.cullMode),
		FrontFace:               g.frontFace,
		DepthBiasEnable:         vk.False,
	}

	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	colors := 0
	if g.subpass < len(g.rp.desc.Subpasses) {
		colors = len(g.rp.desc.Subpasses[g.subpass].Color)
	}
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, colors)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			BlendEnable:    vkBool(g.blend),
		}
		if g.blend {
			blendAttachments[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blendAttachments[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blendAttachments[i].ColorBlendOp = vk.BlendOpAdd
			blendAttachments[i].SrcAlphaBlendFactor = vk.BlendFactorOne
			blendAttachments[i].DstAlphaBlendFactor = vk.BlendFactorZero
			blendAttachments[i].AlphaBlendOp = vk.BlendOpAdd
		}
	}
	colorBlendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamic)),
		PDynamicStates:    dynamic,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vkBool(g.depth),
		DepthWriteEnable:      vkBool(g.depth),
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		MinDepthBounds:        0.0,
		MaxDepthBounds:        1.0,
		StencilTestEnable:     vk.False,
	}

	return vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(g.stages)),
		PStages:             g.stages,
		PVertexInputState:   &vertexInputState,
		PInputAssemblyState: &inputAssemblyState,
		PDepthStencilState:  &depthStencil,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterState,
		PMultisampleState:   &multisampleState,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamicState,
		Layout:              g.layout.vk,
		RenderPass:          g.rp.vk,
		Subpass:             uint32(g.subpass),
	}
}
