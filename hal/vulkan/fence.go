package vulkan

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

type Fence struct {
	dev *Device
	vk  vk.Fence
}

func (d *Device) NewFence() (hal.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var f vk.Fence
	if err := check(vk.CreateFence(d.vk, &info, nil, &f), "create fence"); err != nil {
		return nil, err
	}
	return &Fence{dev: d, vk: f}, nil
}

// Wait returns an error marked hal.ErrTimeout when the fence is still
// unsignalled after timeout, and one marked hal.ErrDeviceLost when the
// device faulted.
func (f *Fence) Wait(timeout time.Duration) error {
	return check(vk.WaitForFences(f.dev.vk, 1, []vk.Fence{f.vk}, vk.True, timeoutNanos(timeout)), "wait for fence")
}

func (f *Fence) Status() (bool, error) {
	switch r := vk.GetFenceStatus(f.dev.vk, f.vk); r {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return true, check(r, "fence status")
	}
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.dev.vk, f.vk, nil)
}
