package vkq

import (
	"os"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// InterfaceVar is one shader input or output at a location.
type InterfaceVar struct {
	Location   int
	Components int
}

// EntryPoint declares what a shader entry point consumes and produces.
// The core trusts this declaration; it cannot inspect the blob.
type EntryPoint struct {
	Name  string
	Stage hal.ShaderStage
	// Inputs are vertex attributes for vertex entries.
	Inputs []InterfaceVar
	// Outputs are color outputs for fragment entries.
	Outputs       []InterfaceVar
	Descriptors   []hal.DescriptorDecl
	WorkgroupSize [3]int
}

type ShaderModuleDesc struct {
	Label   string
	Code    []byte
	Entries []EntryPoint
}

// ShaderModule is a compiled blob with its declared entry points.
type ShaderModule struct {
	resource
	hal     hal.ShaderModule
	entries []EntryPoint
}

// EntryRef selects one entry point of a module.
type EntryRef struct {
	Module *ShaderModule
	Point  EntryPoint
}

func LoadShaderModule(d *Device, desc ShaderModuleDesc) (*ShaderModule, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if len(desc.Entries) == 0 {
		return nil, errors.Wrapf(ErrPipelineIncompatible, "load shader %q: no entry points declared", desc.Label)
	}
	seen := make(map[string]bool)
	for _, e := range desc.Entries {
		if seen[e.Name] {
			return nil, errors.Wrapf(ErrPipelineIncompatible, "load shader %q: entry %q declared twice", desc.Label, e.Name)
		}
		seen[e.Name] = true
	}
	hm, err := d.hal.NewShaderModule(desc.Code)
	if err != nil {
		return nil, errors.Wrapf(classify(err, ErrPipelineIncompatible), "load shader %q", desc.Label)
	}
	m := &ShaderModule{hal: hm, entries: append([]EntryPoint(nil), desc.Entries...)}
	m.init(d, kindShaderModule, desc.Label, hm.Destroy)
	return m, nil
}

// LoadShaderModuleFromFile reads the blob from file.
func LoadShaderModuleFromFile(d *Device, file string, entries ...EntryPoint) (*ShaderModule, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load shader %s", file)
	}
	return LoadShaderModule(d, ShaderModuleDesc{Label: file, Code: data, Entries: entries})
}

// Entry returns the declared entry point name.
func (m *ShaderModule) Entry(name string) (EntryRef, error) {
	for _, e := range m.entries {
		if e.Name == name {
			return EntryRef{Module: m, Point: e}, nil
		}
	}
	return EntryRef{}, errors.Wrapf(ErrPipelineIncompatible, "%s has no entry point %q", &m.resource, name)
}

// MustEntry is Entry for entry points known to exist.
func (m *ShaderModule) MustEntry(name string) EntryRef {
	e, err := m.Entry(name)
	if err != nil {
		panic(err)
	}
	return e
}

func (m *ShaderModule) Entries() []EntryPoint {
	return append([]EntryPoint(nil), m.entries...)
}

func (m *ShaderModule) Destroy() error {
	return m.destroy()
}

func (e EntryRef) stage() hal.StageDesc {
	return hal.StageDesc{Module: e.Module.hal, Entry: e.Point.Name}
}
