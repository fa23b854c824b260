package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// Pipeline is a compute or graphics vk.Pipeline with its layout.
type Pipeline struct {
	dev       *Device
	vk        vk.Pipeline
	layout    *pipelineLayout
	bindPoint vk.PipelineBindPoint
}

func (d *Device) NewComputePipeline(desc *hal.ComputePipelineDesc) (hal.Pipeline, error) {
	layout, err := d.newPipelineLayout(desc.Descriptors, vk.ShaderStageFlags(vk.ShaderStageComputeBit))
	if err != nil {
		return nil, err
	}
	info := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  desc.Compute.Module.(*ShaderModule).stage(vk.ShaderStageComputeBit, desc.Compute.Entry),
		Layout: layout.vk,
	}
	pipelines := make([]vk.Pipeline, 1)
	err = check(vk.CreateComputePipelines(d.vk, d.cache, 1, []vk.ComputePipelineCreateInfo{info}, nil, pipelines), "create compute pipeline")
	if err != nil {
		layout.destroy()
		return nil, err
	}
	return &Pipeline{dev: d, vk: pipelines[0], layout: layout, bindPoint: vk.PipelineBindPointCompute}, nil
}

func (d *Device) NewGraphicsPipeline(desc *hal.GraphicsPipelineDesc) (hal.Pipeline, error) {
	layout, err := d.newPipelineLayout(desc.Descriptors,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit))
	if err != nil {
		return nil, err
	}
	cfg := newGraphicsPipelineConfig(desc, layout)
	pipelines := make([]vk.Pipeline, 1)
	err = check(vk.CreateGraphicsPipelines(d.vk, d.cache, 1, []vk.GraphicsPipelineCreateInfo{cfg.createInfo()}, nil, pipelines), "create graphics pipeline")
	if err != nil {
		layout.destroy()
		return nil, err
	}
	return &Pipeline{dev: d, vk: pipelines[0], layout: layout, bindPoint: vk.PipelineBindPointGraphics}, nil
}

func (p *Pipeline) Destroy() {
	vk.DestroyPipeline(p.dev.vk, p.vk, nil)
	p.layout.destroy()
}
