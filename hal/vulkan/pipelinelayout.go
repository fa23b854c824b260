package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// pipelineLayout holds one descriptor set layout per set index up to
// the highest declared set, plus the vk.PipelineLayout built from them.
type pipelineLayout struct {
	dev   *Device
	vk    vk.PipelineLayout
	sets  []vk.DescriptorSetLayout
	decls []hal.DescriptorDecl
}

func (d *Device) newPipelineLayout(decls []hal.DescriptorDecl, stages vk.ShaderStageFlags) (*pipelineLayout, error) {
	pl := &pipelineLayout{dev: d, decls: decls}
	nsets := 0
	for _, decl := range decls {
		nsets = max(nsets, decl.Set+1)
	}
	for set := 0; set < nsets; set++ {
		var bindings []vk.DescriptorSetLayoutBinding
		for _, decl := range decls {
			if decl.Set != set {
				continue
			}
			bindings = append(bindings, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(decl.Binding),
				DescriptorType:  vkDescriptorType(decl.Type),
				DescriptorCount: 1,
				StageFlags:      stages,
			})
		}
		info := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		var l vk.DescriptorSetLayout
		if err := check(vk.CreateDescriptorSetLayout(d.vk, &info, nil, &l), "create descriptor set layout"); err != nil {
			pl.destroy()
			return nil, err
		}
		pl.sets = append(pl.sets, l)
	}

	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(pl.sets)),
		PSetLayouts:    pl.sets,
	}
	if err := check(vk.CreatePipelineLayout(d.vk, &info, nil, &pl.vk), "create pipeline layout"); err != nil {
		pl.destroy()
		return nil, err
	}
	return pl, nil
}

// bindings returns the declarations of one set.
func (pl *pipelineLayout) bindings(set int) []hal.DescriptorDecl {
	var ret []hal.DescriptorDecl
	for _, d := range pl.decls {
		if d.Set == set {
			ret = append(ret, d)
		}
	}
	return ret
}

func (pl *pipelineLayout) destroy() {
	if pl.vk != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(pl.dev.vk, pl.vk, nil)
	}
	for _, l := range pl.sets {
		vk.DestroyDescriptorSetLayout(pl.dev.vk, l, nil)
	}
	pl.sets = nil
}
