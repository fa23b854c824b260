package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// DescriptorSet is a binding of resources to one set of a pipeline's
// layout. Each set is allocated from its own pool sized exactly for it.
type DescriptorSet struct {
	dev    *Device
	pool   vk.DescriptorPool
	vk     vk.DescriptorSet
	images []*Image
}

func (d *Device) NewDescriptorSet(p hal.Pipeline, set int, res []hal.Resource) (hal.DescriptorSet, error) {
	vp := p.(*Pipeline)
	if set < 0 || set >= len(vp.layout.sets) {
		return nil, errors.Newf("vulkan: pipeline declares no descriptor set %d", set)
	}
	decls := vp.layout.bindings(set)

	counts := make(map[vk.DescriptorType]uint32)
	for _, decl := range decls {
		counts[vkDescriptorType(decl.Type)]++
	}
	sizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for t, n := range counts {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	ds := &DescriptorSet{dev: d}
	if err := check(vk.CreateDescriptorPool(d.vk, &poolInfo, nil, &ds.pool), "create descriptor pool"); err != nil {
		return nil, err
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     ds.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{vp.layout.sets[set]},
	}
	if err := check(vk.AllocateDescriptorSets(d.vk, &allocInfo, &ds.vk), "allocate descriptor set"); err != nil {
		ds.Destroy()
		return nil, err
	}

	writes := make([]vk.WriteDescriptorSet, 0, len(res))
	for _, r := range res {
		var typ vk.DescriptorType
		for _, decl := range decls {
			if decl.Binding == r.Binding {
				typ = vkDescriptorType(decl.Type)
			}
		}
		w := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          ds.vk,
			DstBinding:      uint32(r.Binding),
			DescriptorCount: 1,
			DescriptorType:  typ,
		}
		switch {
		case r.Buffer != nil:
			w.PBufferInfo = []vk.DescriptorBufferInfo{r.Buffer.(*Buffer).descriptorInfo()}
		case r.Image != nil:
			img := r.Image.(*Image)
			ds.images = append(ds.images, img)
			w.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   img.view,
				ImageLayout: vk.ImageLayoutGeneral,
			}}
		}
		writes = append(writes, w)
	}
	vk.UpdateDescriptorSets(d.vk, uint32(len(writes)), writes, 0, nil)
	return ds, nil
}

func (ds *DescriptorSet) Destroy() {
	// Destroying the pool frees the set.
	vk.DestroyDescriptorPool(ds.dev.vk, ds.pool, nil)
}
