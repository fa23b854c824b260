package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq/hal"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, uint32(12), c.Compute.K)
	assert.Equal(t, 65536, c.Compute.Elements)
	assert.Equal(t, hal.Extent2D(1024, 1024), c.Render.Extent())

	f, err := c.Render.PixelFormat()
	require.NoError(t, err)
	assert.Equal(t, hal.FormatRGBA8Unorm, f)

	m, err := c.Window.Mode()
	require.NoError(t, err)
	assert.Equal(t, hal.PresentFifo, m)

	n, err := c.Soft.HeapBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(512<<20), n)
}

func TestDecodeOverridesDefaults(t *testing.T) {
	src := `
backend = "soft"
wait_timeout = "250ms"

[compute]
k = 3

[render]
width = 64
height = 32
output = "out.bmp"

[soft]
heap_size = "1GiB"
workers = 2
`
	c, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "soft", c.Backend)
	assert.Equal(t, uint32(3), c.Compute.K)
	assert.Equal(t, 65536, c.Compute.Elements, "unset keys keep their default")
	assert.Equal(t, hal.Extent2D(64, 32), c.Render.Extent())
	assert.Equal(t, "out.bmp", c.Render.Output)

	d, err := c.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	n, err := c.Soft.HeapBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), n)
}

func TestDecodeRejects(t *testing.T) {
	for name, tc := range map[string]struct {
		src string
		key string
	}{
		"unknown key":    {`colour = "red"`, "colour"},
		"priority":       {`priority = 2.0`, "priority"},
		"elements":       {"[compute]\nelements = 0", "compute.elements"},
		"format":         {"[render]\nformat = \"r32float\"", "render.format"},
		"present mode":   {"[window]\npresent_mode = \"vsync\"", "window.present_mode"},
		"heap size":      {"[soft]\nheap_size = \"lots\"", "soft.heap_size"},
		"timeout":        {`wait_timeout = "soon"`, "wait_timeout"},
		"empty output":   {"[render]\noutput = \"\"", "render.output"},
		"negative width": {"[window]\nwidth = -1", "window.width"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestTimeoutForever(t *testing.T) {
	c := Default()
	c.WaitTimeout = "forever"
	d, err := c.Timeout()
	require.NoError(t, err)
	assert.Less(t, d, time.Duration(0))
}

func TestEncodeRoundTrip(t *testing.T) {
	c := Default()
	c.Backend = "soft"
	c.Window.MaxFrames = 7

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))

	path := filepath.Join(t.TempDir(), "vkq.toml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
