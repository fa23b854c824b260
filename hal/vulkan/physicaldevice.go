package vulkan

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// Adapter is a vk.PhysicalDevice.
type Adapter struct {
	backend    *Backend
	pd         vk.PhysicalDevice
	props      vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties
	name       string
	extensions []string
	families   []vk.QueueFamilyProperties
}

func newAdapter(b *Backend, pd vk.PhysicalDevice) (*Adapter, error) {
	a := &Adapter{backend: b, pd: pd}
	vk.GetPhysicalDeviceProperties(pd, &a.props)
	a.props.Deref()
	a.name = vk.ToString(a.props.DeviceName[:])

	vk.GetPhysicalDeviceMemoryProperties(pd, &a.memory)
	a.memory.Deref()

	var n uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &n, nil)
	a.families = make([]vk.QueueFamilyProperties, n)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &n, a.families)
	for i := range a.families {
		a.families[i].Deref()
	}

	exts, err := a.supportedExtensions()
	if err != nil {
		return nil, err
	}
	a.extensions = exts
	return a, nil
}

func (a *Adapter) String() string { return a.name }

func (a *Adapter) supportedExtensions() ([]string, error) {
	var n uint32
	if err := check(vk.EnumerateDeviceExtensionProperties(a.pd, "", &n, nil), "enumerate device extensions"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := check(vk.EnumerateDeviceExtensionProperties(a.pd, "", &n, props), "enumerate device extensions"); err != nil {
		return nil, err
	}
	ret := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		ret = append(ret, vk.ToString(p.ExtensionName[:]))
	}
	return ret, nil
}

func deviceKind(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "other"
}

func (a *Adapter) Info() hal.AdapterInfo {
	var heap int64
	for i := uint32(0); i < a.memory.MemoryHeapCount; i++ {
		h := a.memory.MemoryHeaps[i]
		h.Deref()
		if h.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			heap += int64(h.Size)
		}
	}
	return hal.AdapterInfo{
		Name:       a.name,
		Kind:       deviceKind(a.props.DeviceType),
		Extensions: slices.Clone(a.extensions),
		HeapSize:   heap,
	}
}

func (a *Adapter) QueueFamilies() []hal.QueueFamilyInfo {
	ret := make([]hal.QueueFamilyInfo, len(a.families))
	for i, f := range a.families {
		ret[i] = hal.QueueFamilyInfo{
			Index: i,
			Count: int(f.QueueCount),
			Caps:  capabilities(f.QueueFlags),
		}
	}
	return ret
}

func (a *Adapter) SupportsPresent(family int, s hal.Surface) bool {
	vs, ok := s.(*Surface)
	if !ok || family < 0 || family >= len(a.families) {
		return false
	}
	var supported vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(a.pd, uint32(family), vs.vk, &supported)
	return supported == vk.True
}

func (a *Adapter) surfacePresentModes(s vk.Surface) ([]vk.PresentMode, error) {
	var n uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(a.pd, s, &n, nil), "surface present modes"); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, n)
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(a.pd, s, &n, modes), "surface present modes"); err != nil {
		return nil, err
	}
	return modes[:n], nil
}

func (a *Adapter) surfaceFormats(s vk.Surface) ([]vk.SurfaceFormat, error) {
	var n uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(a.pd, s, &n, nil), "surface formats"); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, n)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(a.pd, s, &n, formats), "surface formats"); err != nil {
		return nil, err
	}
	for i := range formats {
		formats[i].Deref()
	}
	return formats[:n], nil
}

func (a *Adapter) surfaceCapabilities(s vk.Surface) (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(a.pd, s, &caps), "surface capabilities"); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

func (a *Adapter) SurfaceCapabilities(s hal.Surface) (hal.SurfaceCapabilities, error) {
	vs, ok := s.(*Surface)
	if !ok {
		return hal.SurfaceCapabilities{}, errors.Wrapf(hal.ErrUnsupported, "surface %T does not belong to the vulkan backend", s)
	}
	caps, err := a.surfaceCapabilities(vs.vk)
	if err != nil {
		return hal.SurfaceCapabilities{}, err
	}
	formats, err := a.surfaceFormats(vs.vk)
	if err != nil {
		return hal.SurfaceCapabilities{}, err
	}
	modes, err := a.surfacePresentModes(vs.vk)
	if err != nil {
		return hal.SurfaceCapabilities{}, err
	}

	ret := hal.SurfaceCapabilities{
		MinImageCount: int(caps.MinImageCount),
		MaxImageCount: int(caps.MaxImageCount),
	}
	// A current extent of 0xFFFFFFFF lets the swapchain decide.
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		ret.CurrentExtent = hal.Extent2D(int(caps.CurrentExtent.Width), int(caps.CurrentExtent.Height))
	}
	for _, f := range formats {
		// VK_FORMAT_UNDEFINED alone means any format is fine.
		if f.Format == vk.FormatUndefined && len(formats) == 1 {
			ret.Formats = append(ret.Formats, hal.FormatBGRA8Unorm, hal.FormatRGBA8Unorm)
			break
		}
		if hf := halFormat(f.Format); hf != hal.FormatUndefined && !slices.Contains(ret.Formats, hf) {
			ret.Formats = append(ret.Formats, hf)
		}
	}
	for _, m := range modes {
		if hm, ok := halPresentMode(m); ok {
			ret.PresentModes = append(ret.PresentModes, hm)
		}
	}
	for _, c := range compositeAlpha {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(c.vk) != 0 {
			ret.CompositeAlpha = append(ret.CompositeAlpha, c.hal)
		}
	}
	return ret, nil
}

// findMemoryType returns the first memory type allowed by typeBits that
// carries every flag in props.
func (a *Adapter) findMemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < a.memory.MemoryTypeCount; i++ {
		mt := a.memory.MemoryTypes[i]
		mt.Deref()
		if typeBits&(1<<i) != 0 && mt.PropertyFlags&props == props {
			return i, nil
		}
	}
	return 0, errors.Wrapf(hal.ErrOutOfMemory, "no memory type in %#x with properties %#x", typeBits, uint32(props))
}

func (a *Adapter) Open(desc hal.DeviceDesc) (hal.Device, error) {
	if desc.Family < 0 || desc.Family >= len(a.families) {
		return nil, errors.Newf("vulkan: adapter %q has no queue family %d", a.name, desc.Family)
	}
	for _, e := range desc.Extensions {
		if !slices.Contains(a.extensions, e) {
			return nil, errors.Wrapf(hal.ErrMissingExtension, "%s on %q", e, a.name)
		}
	}
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(a.pd, &features)

	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(desc.Family),
		QueueCount:       1,
		PQueuePriorities: []float32{desc.Priority},
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueInfo},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(desc.Extensions)),
		PpEnabledExtensionNames: safeStrings(desc.Extensions),
	}
	var ld vk.Device
	if err := check(vk.CreateDevice(a.pd, &createInfo, nil, &ld), fmt.Sprintf("create device on %q", a.name)); err != nil {
		return nil, err
	}
	return newDevice(a, ld, desc.Family)
}
