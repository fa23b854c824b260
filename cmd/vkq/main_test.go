package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompute(t *testing.T) {
	out, err := run(t, "--backend", "soft", "compute")
	require.NoError(t, err)
	assert.Contains(t, out, "65536 elements x 12 ok")
}

func TestComputeFlagsOverrideConfig(t *testing.T) {
	out, err := run(t, "-b", "soft", "compute", "-k", "3", "-n", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "1000 elements x 3 ok")
}

func TestRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.bmp")
	out, err := run(t, "-b", "soft", "render", "-o", path, "--width", "64", "--height", "32")
	require.NoError(t, err)
	assert.Contains(t, out, "64x32")
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, st.Size())
}

func TestRenderRejectsUnknownExtension(t *testing.T) {
	_, err := run(t, "-b", "soft", "render", "-o", filepath.Join(t.TempDir(), "tri.gif"))
	require.Error(t, err)
}

func TestWindowHeadless(t *testing.T) {
	out, err := run(t, "-b", "soft", "window", "--headless", "--max-frames", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped after 3 frames: close requested")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vkq.toml")
	require.NoError(t, os.WriteFile(path, []byte("backend = \"soft\"\n[compute]\nk = 5\nelements = 128\n"), 0o644))

	out, err := run(t, "-c", path, "compute")
	require.NoError(t, err)
	assert.Contains(t, out, "128 elements x 5 ok")

	out, err = run(t, "-c", path, "config")
	require.NoError(t, err)
	c, err := config.Decode(bytes.NewBufferString(out))
	require.NoError(t, err)
	assert.Equal(t, "soft", c.Backend)
	assert.Equal(t, uint32(5), c.Compute.K)
}

func TestUnknownBackend(t *testing.T) {
	_, err := run(t, "-b", "nope", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestInfoSoft(t *testing.T) {
	out, err := run(t, "-b", "soft", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "backend soft")
	assert.Contains(t, out, "vkq software rasterizer")
}

func TestShaderUnknownProgram(t *testing.T) {
	_, err := run(t, "shader", "-o", t.TempDir(), "nope")
	require.Error(t, err)
}
