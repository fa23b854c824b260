package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

type Device struct {
	adapter *Adapter
	vk      vk.Device
	queue   *Queue

	// poolMu guards the command pool, which vk requires to be
	// externally synchronized.
	poolMu sync.Mutex
	pool   vk.CommandPool
	cache  vk.PipelineCache
}

func newDevice(a *Adapter, ld vk.Device, family int) (*Device, error) {
	d := &Device{adapter: a, vk: ld}

	var q vk.Queue
	vk.GetDeviceQueue(ld, uint32(family), 0, &q)
	d.queue = &Queue{dev: d, family: family, vk: q}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(family),
	}
	if err := check(vk.CreateCommandPool(ld, &poolInfo, nil, &d.pool), "create command pool"); err != nil {
		vk.DestroyDevice(ld, nil)
		return nil, err
	}

	cacheInfo := vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}
	if err := check(vk.CreatePipelineCache(ld, &cacheInfo, nil, &d.cache), "create pipeline cache"); err != nil {
		vk.DestroyCommandPool(ld, d.pool, nil)
		vk.DestroyDevice(ld, nil)
		return nil, err
	}
	a.backend.logger().Debug("vulkan: device created", "adapter", a.name, "family", family)
	return d, nil
}

func (d *Device) String() string {
	return fmt.Sprintf("{ Adapter: %s }", d.adapter)
}

func (d *Device) Queue() hal.Queue { return d.queue }

func (d *Device) WaitIdle() error {
	return check(vk.DeviceWaitIdle(d.vk), "device wait idle")
}

func (d *Device) NewSemaphore() (hal.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if err := check(vk.CreateSemaphore(d.vk, &info, nil, &s), "create semaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{dev: d, vk: s}, nil
}

// immediate records commands into a one-time buffer, submits it and
// waits for the queue to drain.
func (d *Device) immediate(record func(vk.CommandBuffer)) error {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmds := make([]vk.CommandBuffer, 1)
	d.poolMu.Lock()
	err := check(vk.AllocateCommandBuffers(d.vk, &info, cmds), "allocate command buffer")
	d.poolMu.Unlock()
	if err != nil {
		return err
	}
	defer func() {
		d.poolMu.Lock()
		vk.FreeCommandBuffers(d.vk, d.pool, 1, cmds)
		d.poolMu.Unlock()
	}()

	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(cmds[0], &begin), "begin command buffer"); err != nil {
		return err
	}
	record(cmds[0])
	if err := check(vk.EndCommandBuffer(cmds[0]), "end command buffer"); err != nil {
		return err
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmds,
	}
	q := d.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := check(vk.QueueSubmit(q.vk, 1, []vk.SubmitInfo{submit}, vk.NullFence), "queue submit"); err != nil {
		return err
	}
	return check(vk.QueueWaitIdle(q.vk), "queue wait idle")
}

// Destroy waits for the device to drain and destroys it. Every object
// created from the device must already be destroyed.
func (d *Device) Destroy() {
	vk.DeviceWaitIdle(d.vk)
	vk.DestroyPipelineCache(d.vk, d.cache, nil)
	vk.DestroyCommandPool(d.vk, d.pool, nil)
	vk.DestroyDevice(d.vk, nil)
	d.adapter.backend.logger().Debug("vulkan: device destroyed", "adapter", d.adapter.name)
}
