package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// Semaphore is a binary vk.Semaphore.
type Semaphore struct {
	dev *Device
	vk  vk.Semaphore
}

func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.dev.vk, s.vk, nil)
}

func vkSemaphores(in []hal.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(in))
	for i, s := range in {
		out[i] = s.(*Semaphore).vk
	}
	return out
}
