package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// capabilities maps vk queue flags to hal capabilities. Present support
// depends on the surface and is answered by Adapter.SupportsPresent, so
// hal.CapPresent is never set here.
func capabilities(flags vk.QueueFlags) hal.Capability {
	var c hal.Capability
	if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
		c |= hal.CapGraphics
	}
	if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
		c |= hal.CapCompute
	}
	// Graphics and compute families implicitly support transfers.
	if flags&vk.QueueFlags(vk.QueueTransferBit|vk.QueueGraphicsBit|vk.QueueComputeBit) != 0 {
		c |= hal.CapTransfer
	}
	return c
}
