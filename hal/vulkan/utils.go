package vulkan

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

var end = "\x00"
var endChar byte = '\x00'

func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	ret := make([]string, len(list))
	for i := range list {
		ret[i] = safeString(list[i])
	}
	return ret
}

// toBytes views n bytes at ptr as a slice.
func toBytes(ptr unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(ptr), n)
}

// toWords reinterprets SPIR-V bytes as the words vk expects.
func toWords(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// check converts a vk.Result into an error marked with the hal error a
// caller can test for. Suboptimal counts as success.
func check(r vk.Result, op string) error {
	switch r {
	case vk.Success, vk.Incomplete, vk.Suboptimal:
		return nil
	}
	err := vk.Error(r)
	if err == nil {
		err = errors.Newf("result %d", int32(r))
	}
	err = errors.Wrapf(err, "vulkan: %s", op)
	switch r {
	case vk.Timeout, vk.NotReady:
		return errors.Mark(err, hal.ErrTimeout)
	case vk.ErrorDeviceLost:
		return errors.Mark(err, hal.ErrDeviceLost)
	case vk.ErrorSurfaceLost, vk.ErrorOutOfDate:
		return errors.Mark(err, hal.ErrSurfaceLost)
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorFragmentedPool:
		return errors.Mark(err, hal.ErrOutOfMemory)
	case vk.ErrorExtensionNotPresent, vk.ErrorLayerNotPresent:
		return errors.Mark(err, hal.ErrMissingExtension)
	case vk.ErrorFeatureNotPresent, vk.ErrorFormatNotSupported:
		return errors.Mark(err, hal.ErrUnsupported)
	case vk.ErrorIncompatibleDriver, vk.ErrorInitializationFailed:
		return errors.Mark(err, hal.ErrBackendNotAvailable)
	}
	return err
}

// timeoutNanos maps a hal timeout to the vk convention where the
// largest value means forever.
func timeoutNanos(d time.Duration) uint64 {
	if d < 0 {
		return vk.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

var formats = []struct {
	hal hal.Format
	vk  vk.Format
}{
	{hal.FormatRGBA8Unorm, vk.FormatR8g8b8a8Unorm},
	{hal.FormatRGBA8Srgb, vk.FormatR8g8b8a8Srgb},
	{hal.FormatBGRA8Unorm, vk.FormatB8g8r8a8Unorm},
	{hal.FormatBGRA8Srgb, vk.FormatB8g8r8a8Srgb},
	{hal.FormatR32Uint, vk.FormatR32Uint},
	{hal.FormatR32Float, vk.FormatR32Sfloat},
	{hal.FormatRG32Float, vk.FormatR32g32Sfloat},
	{hal.FormatRGB32Float, vk.FormatR32g32b32Sfloat},
	{hal.FormatRGBA32Float, vk.FormatR32g32b32a32Sfloat},
	{hal.FormatD32Float, vk.FormatD32Sfloat},
}

func vkFormat(f hal.Format) vk.Format {
	for _, m := range formats {
		if m.hal == f {
			return m.vk
		}
	}
	return vk.FormatUndefined
}

func halFormat(f vk.Format) hal.Format {
	for _, m := range formats {
		if m.vk == f {
			return m.hal
		}
	}
	return hal.FormatUndefined
}

var presentModes = []struct {
	hal hal.PresentMode
	vk  vk.PresentMode
}{
	{hal.PresentFifo, vk.PresentModeFifo},
	{hal.PresentMailbox, vk.PresentModeMailbox},
	{hal.PresentImmediate, vk.PresentModeImmediate},
	{hal.PresentFifoRelaxed, vk.PresentModeFifoRelaxed},
}

func vkPresentMode(p hal.PresentMode) vk.PresentMode {
	for _, m := range presentModes {
		if m.hal == p {
			return m.vk
		}
	}
	return vk.PresentModeFifo
}

func halPresentMode(p vk.PresentMode) (hal.PresentMode, bool) {
	for _, m := range presentModes {
		if m.vk == p {
			return m.hal, true
		}
	}
	return hal.PresentFifo, false
}

var compositeAlpha = []struct {
	hal hal.CompositeAlpha
	vk  vk.CompositeAlphaFlagBits
}{
	{hal.CompositeOpaque, vk.CompositeAlphaOpaqueBit},
	{hal.CompositePreMultiplied, vk.CompositeAlphaPreMultipliedBit},
	{hal.CompositePostMultiplied, vk.CompositeAlphaPostMultipliedBit},
	{hal.CompositeInherit, vk.CompositeAlphaInheritBit},
}

func vkCompositeAlpha(c hal.CompositeAlpha) vk.CompositeAlphaFlagBits {
	for _, m := range compositeAlpha {
		if m.hal == c {
			return m.vk
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

func vkDescriptorType(t hal.DescriptorType) vk.DescriptorType {
	switch t {
	case hal.DescUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case hal.DescStorageImage:
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeStorageBuffer
}

func vkLayout(l hal.Layout) vk.ImageLayout {
	switch l {
	case hal.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	case hal.LayoutShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	}
	return vk.ImageLayoutTransferSrcOptimal
}
