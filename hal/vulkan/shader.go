package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

type ShaderModule struct {
	dev *Device
	vk  vk.ShaderModule
}

// NewShaderModule creates a module from SPIR-V bytes.
func (d *Device) NewShaderModule(code []byte) (hal.ShaderModule, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, errors.Newf("vulkan: shader code of %d bytes is not SPIR-V", len(code))
	}
	words := toWords(code)
	if words[0] != spirvMagic {
		return nil, errors.Wrap(hal.ErrUnsupported, "vulkan: shader code is not SPIR-V")
	}
	var m vk.ShaderModule
	err := check(vk.CreateShaderModule(d.vk, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}, nil, &m), "create shader module")
	if err != nil {
		return nil, err
	}
	return &ShaderModule{dev: d, vk: m}, nil
}

func (s *ShaderModule) stage(stage vk.ShaderStageFlagBits, entry string) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.vk,
		PName:  safeString(entry),
	}
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.dev.vk, s.vk, nil)
}
