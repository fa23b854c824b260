package shaders

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
)

func TestLookup(t *testing.T) {
	for _, p := range Programs() {
		got, ok := Lookup(p.Name)
		require.True(t, ok, p.Name)
		assert.Same(t, p, got)
		assert.NotEmpty(t, p.WGSL)
	}
	_, ok := Lookup("teapot")
	assert.False(t, ok)
}

func TestDeclarationsMatchSource(t *testing.T) {
	for _, p := range Programs() {
		for _, e := range p.Entries {
			assert.Contains(t, p.WGSL, "fn "+e.Name+"(", "%s declares %s", p.Name, e.Name)
		}
	}
	assert.Contains(t, Multiply.WGSL, "@workgroup_size(64)")
	assert.Equal(t, [3]int{MultiplyWorkgroupSize, 1, 1}, Multiply.Entries[0].WorkgroupSize)
}

func TestSPIRV(t *testing.T) {
	for _, p := range Programs() {
		t.Run(p.Name, func(t *testing.T) {
			spirv, err := p.SPIRV()
			if err != nil && (strings.Contains(err.Error(), "not yet implemented") || strings.Contains(err.Error(), "not supported")) {
				t.Skipf("naga limitation: %v", err)
			}
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(spirv), 20, "SPIR-V header is five words")
			assert.Equal(t, uint32(0x07230203), binary.LittleEndian.Uint32(spirv))

			again, err := p.SPIRV()
			require.NoError(t, err)
			assert.Same(t, &spirv[0], &again[0], "compiled once")
		})
	}
}

func TestLoadOnSoftAdapter(t *testing.T) {
	d, _, err := vkq.ResolveDevice(soft.New(), vkq.SelectionPolicy{Required: hal.CapGraphics | hal.CapCompute})
	require.NoError(t, err)
	defer d.Destroy()

	code, err := Triangle.Code(d.Adapter())
	require.NoError(t, err)
	assert.Equal(t, soft.ModuleBlob("triangle"), code)

	for _, p := range Programs() {
		m, err := Load(d, p)
		require.NoError(t, err, p.Name)
		assert.Len(t, m.Entries(), len(p.Entries))
	}
}
