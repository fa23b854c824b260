// Package shaders bundles the WGSL programs used by the demos and the
// command line, together with the entry point declarations the core
// needs to validate pipelines built from them.
package shaders

import (
	_ "embed"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
)

//go:embed triangle.wgsl
var triangleWGSL string

//go:embed multiply.wgsl
var multiplyWGSL string

// MultiplyWorkgroupSize matches @workgroup_size in multiply.wgsl.
const MultiplyWorkgroupSize = 64

// Program is one WGSL source and what its entry points declare.
type Program struct {
	Name    string
	WGSL    string
	Entries []vkq.EntryPoint

	once  sync.Once
	spirv []byte
	err   error
}

// Triangle draws a flat red triangle from 2D clip space positions at
// location 0.
var Triangle = &Program{
	Name: "triangle",
	WGSL: triangleWGSL,
	Entries: []vkq.EntryPoint{
		{Name: "vs_main", Stage: hal.StageVertex, Inputs: []vkq.InterfaceVar{{Location: 0, Components: 2}}},
		{Name: "fs_main", Stage: hal.StageFragment, Outputs: []vkq.InterfaceVar{{Location: 0, Components: 4}}},
	},
}

// Multiply scales every u32 of the storage buffer at binding 0 by the
// u32 uniform at binding 1.
var Multiply = &Program{
	Name: "multiply",
	WGSL: multiplyWGSL,
	Entries: []vkq.EntryPoint{{
		Name:  "main",
		Stage: hal.StageCompute,
		Descriptors: []hal.DescriptorDecl{
			{Set: 0, Binding: 0, Type: hal.DescStorageBuffer},
			{Set: 0, Binding: 1, Type: hal.DescUniformBuffer},
		},
		WorkgroupSize: [3]int{MultiplyWorkgroupSize, 1, 1},
	}},
}

// Programs lists every bundled program.
func Programs() []*Program { return []*Program{Triangle, Multiply} }

// Lookup finds a bundled program by name.
func Lookup(name string) (*Program, bool) {
	for _, p := range Programs() {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// SPIRV compiles the program with naga. The result is cached.
func (p *Program) SPIRV() ([]byte, error) {
	p.once.Do(func() {
		p.spirv, p.err = naga.Compile(p.WGSL)
		if p.err != nil {
			p.err = errors.Wrapf(p.err, "compile %s.wgsl", p.Name)
		}
	})
	return p.spirv, p.err
}

// Code returns the blob the adapter expects: a soft kernel reference on
// CPU adapters, SPIR-V everywhere else.
func (p *Program) Code(a *vkq.Adapter) ([]byte, error) {
	if a.Info().Kind == soft.AdapterKind {
		return soft.ModuleBlob(p.Name), nil
	}
	return p.SPIRV()
}

// Load creates a shader module for p on d.
func Load(d *vkq.Device, p *Program) (*vkq.ShaderModule, error) {
	code, err := p.Code(d.Adapter())
	if err != nil {
		return nil, err
	}
	return vkq.LoadShaderModule(d, vkq.ShaderModuleDesc{Label: p.Name, Code: code, Entries: p.Entries})
}
