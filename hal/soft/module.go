package soft

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
)

const blobMagic = "vkq-soft-module:"

// ModuleBlob returns the shader blob that selects the registered module
// name on this backend.
func ModuleBlob(name string) []byte {
	return []byte(blobMagic + name)
}

func parseBlob(code []byte) (string, error) {
	if !bytes.HasPrefix(code, []byte(blobMagic)) {
		return "", errors.New("soft: shader blob is not a soft module reference")
	}
	return string(code[len(blobMagic):]), nil
}

// VertexInput is one vertex fetched from the bound vertex buffer.
// Attributes is indexed by shader location; unused locations are zero.
type VertexInput struct {
	Index      int
	Attributes [][4]float32
}

type VertexOutput struct {
	// Position is in clip space.
	Position [4]float32
	Varyings [4]float32
}

type FragmentInput struct {
	// FragCoord is the pixel center in framebuffer coordinates.
	FragCoord [2]float32
	Varyings  [4]float32
}

// VertexFunc transforms one vertex.
type VertexFunc func(in VertexInput) VertexOutput

// FragmentFunc shades one covered pixel. out has one entry per color
// attachment of the subpass, indexed by output location.
type FragmentFunc func(in FragmentInput, out [][4]float32)

// ComputeFunc runs one invocation of a compute entry point.
type ComputeFunc func(inv *Invocation)

// Module is a named set of Go kernels standing in for compiled shader
// code.
type Module struct {
	Name     string
	Vertex   map[string]VertexFunc
	Fragment map[string]FragmentFunc
	Compute  map[string]ComputeFunc
}

var (
	modulesMu sync.RWMutex
	modules   = make(map[string]*Module)
)

// RegisterModule makes m loadable on every soft backend.
func RegisterModule(m *Module) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules[m.Name] = m
}

func lookupModule(name string) (*Module, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	m, ok := modules[name]
	return m, ok
}

// Invocation is the view a compute kernel has of one invocation.
type Invocation struct {
	GlobalID    [3]uint32
	LocalID     [3]uint32
	WorkgroupID [3]uint32

	sets map[int]*descriptorSet
}

// Buffer returns the storage of the buffer bound at (set, binding), or
// nil when nothing is bound there.
func (inv *Invocation) Buffer(set, binding int) []byte {
	ds, ok := inv.sets[set]
	if !ok {
		return nil
	}
	for _, r := range ds.res {
		if r.Binding == binding && r.Buffer != nil {
			return r.Buffer.(*Buffer).data
		}
	}
	return nil
}

// Image returns the texel storage of the image bound at (set, binding).
func (inv *Invocation) Image(set, binding int) []byte {
	ds, ok := inv.sets[set]
	if !ok {
		return nil
	}
	for _, r := range ds.res {
		if r.Binding == binding && r.Image != nil {
			return r.Image.(*Image).data
		}
	}
	return nil
}

// Uint32 loads element i of the buffer at (set, binding). Out of range
// loads return zero, matching robust buffer access.
func (inv *Invocation) Uint32(set, binding, i int) uint32 {
	b := inv.Buffer(set, binding)
	if i < 0 || i*4+4 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint32(b[i*4:])
}

// SetUint32 stores element i; out of range stores are discarded.
func (inv *Invocation) SetUint32(set, binding, i int, v uint32) {
	b := inv.Buffer(set, binding)
	if i < 0 || i*4+4 > len(b) {
		return
	}
	binary.LittleEndian.PutUint32(b[i*4:], v)
}
