package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// deviceMemory is one vkAllocateMemory block backing one buffer or
// image.
type deviceMemory struct {
	dev  *Device
	vk   vk.DeviceMemory
	size uint64
	ptr  unsafe.Pointer
}

func (d *Device) allocate(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlags) (*deviceMemory, error) {
	reqs.Deref()
	typ, err := d.adapter.findMemoryType(reqs.MemoryTypeBits, props)
	if err != nil {
		return nil, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typ,
	}
	var mem vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.vk, &info, nil, &mem), "allocate memory"); err != nil {
		return nil, err
	}
	return &deviceMemory{dev: d, vk: mem, size: uint64(reqs.Size)}, nil
}

// mapAll maps the whole block and keeps it mapped until free.
func (m *deviceMemory) mapAll() (unsafe.Pointer, error) {
	if m.ptr != nil {
		return m.ptr, nil
	}
	var p unsafe.Pointer
	if err := check(vk.MapMemory(m.dev.vk, m.vk, 0, vk.DeviceSize(m.size), 0, &p), "map memory"); err != nil {
		return nil, err
	}
	m.ptr = p
	return p, nil
}

func (m *deviceMemory) free() {
	if m.ptr != nil {
		vk.UnmapMemory(m.dev.vk, m.vk)
		m.ptr = nil
	}
	vk.FreeMemory(m.dev.vk, m.vk, nil)
}
