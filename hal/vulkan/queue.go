package vulkan

import (
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// Queue is the device's single vk.Queue. Access is serialized because
// vkQueueSubmit and vkQueuePresentKHR require external synchronization.
type Queue struct {
	dev    *Device
	family int
	vk     vk.Queue
	mu     sync.Mutex
}

func (q *Queue) Family() int { return q.family }

func (q *Queue) Submit(info hal.SubmitInfo) error {
	cmds := make([]vk.CommandBuffer, len(info.Commands))
	for i, c := range info.Commands {
		cmds[i] = c.(*CommandBuffer).vk
	}
	waits := vkSemaphores(info.Wait)
	stages := make([]vk.PipelineStageFlags, len(waits))
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	signals := vkSemaphores(info.Signal)

	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cmds)),
		PCommandBuffers:      cmds,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	fence := vk.NullFence
	if info.Fence != nil {
		fence = info.Fence.(*Fence).vk
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return check(vk.QueueSubmit(q.vk, 1, []vk.SubmitInfo{submit}, fence), "queue submit")
}

func (q *Queue) Present(info hal.PresentInfo) error {
	sc := info.Swapchain.(*Swapchain)
	waits := vkSemaphores(info.Wait)

	q.mu.Lock()
	defer q.mu.Unlock()
	return check(vk.QueuePresent(q.vk, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.vk},
		PImageIndices:      []uint32{uint32(info.Index)},
	}), "queue present")
}

func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return check(vk.QueueWaitIdle(q.vk), "queue wait idle")
}
