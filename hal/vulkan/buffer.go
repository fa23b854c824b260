package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// Buffer is linear memory bound to a vk.Buffer. The memory is always
// host visible and coherent, so Bytes never needs a flush.
type Buffer struct {
	dev  *Device
	vk   vk.Buffer
	mem  *deviceMemory
	desc hal.BufferDesc
	data []byte
}

func bufferUsage(u hal.BufferUsage) vk.BufferUsageFlags {
	var f vk.BufferUsageFlagBits
	if u.Has(hal.BufferVertex) {
		f |= vk.BufferUsageVertexBufferBit
	}
	if u.Has(hal.BufferStorage) {
		f |= vk.BufferUsageStorageBufferBit
	}
	if u.Has(hal.BufferUniform) {
		f |= vk.BufferUsageUniformBufferBit
	}
	if u.Has(hal.BufferTransferSrc) {
		f |= vk.BufferUsageTransferSrcBit
	}
	if u.Has(hal.BufferTransferDst) {
		f |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(f)
}

func (d *Device) NewBuffer(desc hal.BufferDesc) (hal.Buffer, error) {
	if desc.Size <= 0 {
		return nil, errors.Newf("vulkan: buffer size %d", desc.Size)
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	b := &Buffer{dev: d, desc: desc}
	if err := check(vk.CreateBuffer(d.vk, &info, nil, &b.vk), "create buffer"); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.vk, b.vk, &reqs)
	mem, err := d.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(d.vk, b.vk, nil)
		return nil, err
	}
	b.mem = mem
	if err := check(vk.BindBufferMemory(d.vk, b.vk, mem.vk, 0), "bind buffer memory"); err != nil {
		b.Destroy()
		return nil, err
	}
	p, err := mem.mapAll()
	if err != nil {
		b.Destroy()
		return nil, err
	}
	b.data = toBytes(p, int(desc.Size))
	return b, nil
}

func (b *Buffer) Size() int64 { return b.desc.Size }

func (b *Buffer) Bytes() []byte {
	if !b.desc.HostVisible {
		return nil
	}
	return b.data
}

func (b *Buffer) descriptorInfo() vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: b.vk,
		Offset: 0,
		Range:  vk.DeviceSize(b.desc.Size),
	}
}

func (b *Buffer) Destroy() {
	b.data = nil
	vk.DestroyBuffer(b.dev.vk, b.vk, nil)
	if b.mem != nil {
		b.mem.free()
	}
}
