package shaders

import (
	"github.com/celer/vkq/hal/soft"
)

// The soft backend runs these in place of the WGSL entry points of the
// same name.
func init() {
	soft.RegisterModule(&soft.Module{
		Name: Triangle.Name,
		Vertex: map[string]soft.VertexFunc{
			"vs_main": func(in soft.VertexInput) soft.VertexOutput {
				pos := in.Attributes[0]
				return soft.VertexOutput{Position: [4]float32{pos[0], pos[1], 0, 1}}
			},
		},
		Fragment: map[string]soft.FragmentFunc{
			"fs_main": func(_ soft.FragmentInput, out [][4]float32) {
				out[0] = [4]float32{1, 0, 0, 1}
			},
		},
	})
	soft.RegisterModule(&soft.Module{
		Name: Multiply.Name,
		Compute: map[string]soft.ComputeFunc{
			"main": func(inv *soft.Invocation) {
				i := int(inv.GlobalID[0])
				if i*4 >= len(inv.Buffer(0, 0)) {
					return
				}
				inv.SetUint32(0, 0, i, inv.Uint32(0, 0, i)*inv.Uint32(0, 1, 0))
			},
		},
	})
}
