package vkq_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
)

// kernels is a soft module of small compute entry points used across
// the tests. Each one reads and writes the storage buffer at binding 0.
type kernels struct {
	// gate blocks the "gated" kernel until closed.
	gate chan struct{}
}

func newKernels() *kernels { return &kernels{gate: make(chan struct{})} }

func (k *kernels) module() *soft.Module {
	return &soft.Module{
		Name: "test-kernels",
		Compute: map[string]soft.ComputeFunc{
			"increment": func(inv *soft.Invocation) {
				i := int(inv.GlobalID[0])
				inv.SetUint32(0, 0, i, inv.Uint32(0, 0, i)+1)
			},
			"gated": func(inv *soft.Invocation) {
				if inv.GlobalID[0] == 0 {
					<-k.gate
				}
			},
			"fault": func(inv *soft.Invocation) {
				i := int(inv.GlobalID[0])
				inv.SetUint32(0, 0, i, 0xdead)
				if i == 0 {
					panic("kernel fault")
				}
			},
		},
	}
}

func storageEntry(name string) vkq.EntryPoint {
	return vkq.EntryPoint{
		Name:          name,
		Stage:         hal.StageCompute,
		Descriptors:   []hal.DescriptorDecl{{Set: 0, Binding: 0, Type: hal.DescStorageBuffer}},
		WorkgroupSize: [3]int{1, 1, 1},
	}
}

func (k *kernels) load(t *testing.T, d *vkq.Device) *vkq.ShaderModule {
	t.Helper()
	m, err := vkq.LoadShaderModule(d, vkq.ShaderModuleDesc{
		Label:   "test-kernels",
		Code:    soft.ModuleBlob("test-kernels"),
		Entries: []vkq.EntryPoint{storageEntry("increment"), storageEntry("gated"), storageEntry("fault")},
	})
	require.NoError(t, err)
	return m
}

// open resolves the default soft adapter with k registered.
func open(t *testing.T, k *kernels, opts ...soft.Option) (*vkq.Device, *vkq.Queue) {
	t.Helper()
	if k != nil {
		opts = append(opts, soft.WithModules(k.module()))
	}
	d, q, err := vkq.ResolveDevice(soft.New(opts...), vkq.SelectionPolicy{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if k != nil {
			select {
			case <-k.gate:
			default:
				close(k.gate)
			}
		}
		_ = d.Destroy()
	})
	return d, q
}

// kernelJob is a pipeline running entry over a storage buffer of n
// uint32, one invocation per element.
type kernelJob struct {
	buf  *vkq.Buffer
	pipe *vkq.Pipeline
	set  *vkq.DescriptorSet
	list *vkq.CommandList
}

func newKernelJob(t *testing.T, d *vkq.Device, m *vkq.ShaderModule, entry string, in []uint32) *kernelJob {
	t.Helper()
	buf, err := vkq.CreateBufferFrom(d, entry, hal.BufferStorage, in)
	require.NoError(t, err)
	p, err := vkq.BuildComputePipeline(d, entry, m.MustEntry(entry))
	require.NoError(t, err)
	set, err := vkq.BindDescriptorSet(p, 0, vkq.BufferBinding(0, buf))
	require.NoError(t, err)
	cl, err := vkq.Record(d, nil, vkq.Dispatch{Pipeline: p, DescriptorSets: []*vkq.DescriptorSet{set}, GroupCounts: [3]int{len(in), 1, 1}})
	require.NoError(t, err)
	return &kernelJob{buf: buf, pipe: p, set: set, list: cl}
}

func le32(vs ...uint32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}
