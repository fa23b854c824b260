package vkq_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
	"github.com/celer/vkq/internal/shaders"
)

// scene is a triangle pipeline, a framebuffer and a compute job on one
// device.
type scene struct {
	d        *vkq.Device
	k        *kernels
	pass     *vkq.RenderPass
	fb       *vkq.Framebuffer
	img      *vkq.Image
	vertices *vkq.Buffer
	gfx      *vkq.Pipeline
	job      *kernelJob
	readback *vkq.Buffer
}

var triangle = [][2]float32{{-0.5, -0.5}, {0, 0.5}, {0.5, -0.25}}

func newScene(t *testing.T, size int, opts ...soft.Option) *scene {
	t.Helper()
	k := newKernels()
	d, _ := open(t, k, opts...)
	s := &scene{d: d, k: k}

	var err error
	s.img, err = vkq.CreateImage(d, vkq.ImageDesc{
		Label:  "target",
		Extent: hal.Extent2D(size, size),
		Format: hal.FormatRGBA8Unorm,
		Usage:  hal.ImageColorAttachment | hal.ImageTransferSrc,
	}, nil)
	require.NoError(t, err)
	s.pass, err = vkq.CreateRenderPass(d, vkq.SinglePass(hal.FormatRGBA8Unorm, hal.LayoutTransferSrc))
	require.NoError(t, err)
	s.fb, err = vkq.CreateFramebuffer(d, "target", s.pass, s.img)
	require.NoError(t, err)
	s.vertices, err = vkq.CreateBufferFrom(d, "vertices", hal.BufferVertex, triangle)
	require.NoError(t, err)

	mod, err := shaders.Load(d, shaders.Triangle)
	require.NoError(t, err)
	s.gfx, err = d.CreateGraphicsPipelineConfig().
		SetLabel("triangle").
		SetVertexLayout(8, hal.VertexAttribute{Location: 0, Format: hal.FormatRG32Float}).
		AddShaderStage(mod.MustEntry("vs_main")).
		AddShaderStage(mod.MustEntry("fs_main")).
		Build(s.pass, 0)
	require.NoError(t, err)

	s.job = newKernelJob(t, d, k.load(t, d), "increment", sequence(4))
	s.readback, err = vkq.CreateBuffer(d, vkq.BufferDesc{
		Label:       "readback",
		Usage:       hal.BufferTransferDst,
		HostVisible: true,
		Size:        s.img.ByteSize(),
	})
	require.NoError(t, err)
	return s
}

func (s *scene) viewport() *hal.Viewport {
	e := s.img.Extent()
	return &hal.Viewport{Width: float32(e.Width), Height: float32(e.Height), MaxDepth: 1}
}

func (s *scene) draw() vkq.Draw {
	return vkq.Draw{
		Pipeline:     s.gfx,
		Dynamic:      vkq.DynamicState{Viewport: s.viewport()},
		VertexBuffer: s.vertices,
		VertexCount:  3,
	}
}

func (s *scene) dispatch() vkq.Dispatch {
	return vkq.Dispatch{
		Pipeline:       s.job.pipe,
		DescriptorSets: []*vkq.DescriptorSet{s.job.set},
		GroupCounts:    [3]int{4, 1, 1},
	}
}

func TestRecordingLegality(t *testing.T) {
	s := newScene(t, 16)
	begin := vkq.BeginRenderPass{Framebuffer: s.fb, ClearValues: []hal.ClearValue{{0, 0, 1, 1}}}
	end := vkq.EndRenderPass{}
	copyOut := vkq.CopyImageToBuffer{Image: s.img, Buffer: s.readback}

	noViewport := s.draw()
	noViewport.Dynamic = vkq.DynamicState{}
	tooMany := s.draw()
	tooMany.VertexCount = 4
	noVertices := s.draw()
	noVertices.VertexBuffer = nil
	computeAsDraw := vkq.Draw{Pipeline: s.job.pipe, VertexCount: 3}
	badGroups := s.dispatch()
	badGroups.GroupCounts = [3]int{0, 1, 1}
	noSet := s.dispatch()
	noSet.DescriptorSets = nil

	invalid, mismatch := vkq.ErrInvalidRecordingState, vkq.ErrDescriptorLayoutMismatch
	for _, tc := range []struct {
		name string
		ops  []vkq.Op
		err  error
	}{
		{"empty", nil, nil},
		{"draw in pass", []vkq.Op{begin, s.draw(), end}, nil},
		{"draw then copy", []vkq.Op{begin, s.draw(), end, copyOut}, nil},
		{"dispatch", []vkq.Op{s.dispatch()}, nil},
		{"dispatch between passes", []vkq.Op{begin, end, s.dispatch(), begin, s.draw(), end}, nil},
		{"draw outside pass", []vkq.Op{s.draw()}, invalid},
		{"dispatch inside pass", []vkq.Op{begin, s.dispatch(), end}, invalid},
		{"copy inside pass", []vkq.Op{begin, copyOut, end}, invalid},
		{"nested pass", []vkq.Op{begin, begin, end, end}, invalid},
		{"end without begin", []vkq.Op{end}, invalid},
		{"pass left open", []vkq.Op{begin, s.draw()}, invalid},
		{"missing clear value", []vkq.Op{vkq.BeginRenderPass{Framebuffer: s.fb}, end}, invalid},
		{"dynamic viewport missing", []vkq.Op{begin, noViewport, end}, invalid},
		{"vertices out of range", []vkq.Op{begin, tooMany, end}, invalid},
		{"no vertex buffer", []vkq.Op{begin, noVertices, end}, invalid},
		{"compute pipeline in draw", []vkq.Op{begin, computeAsDraw, end}, invalid},
		{"zero group count", []vkq.Op{badGroups}, invalid},
		{"copy into a non transfer buffer", []vkq.Op{vkq.CopyImageToBuffer{Image: s.img, Buffer: s.job.buf}}, invalid},
		{"unbound descriptor set", []vkq.Op{noSet}, mismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			live := s.d.Live()
			cl, err := vkq.Record(s.d, nil, tc.ops...)
			if tc.err == nil {
				require.NoError(t, err)
				assert.Equal(t, len(tc.ops), cl.Len())
				require.NoError(t, cl.Destroy())
				return
			}
			assert.True(t, errors.Is(err, tc.err), "%v", err)
			assert.Nil(t, cl)
			assert.Equal(t, live, s.d.Live(), "a rejected recording must not leave a list behind")
		})
	}
}

func TestRecordRejectsIncapableFamily(t *testing.T) {
	k := newKernels()
	b := soft.New(soft.WithModules(k.module()), soft.WithAdapters(soft.AdapterConfig{
		Name:     "compute only",
		Families: []hal.QueueFamilyInfo{{Index: 0, Count: 1, Caps: hal.CapCompute | hal.CapTransfer}},
	}))
	d, _, err := vkq.ResolveDevice(b, vkq.SelectionPolicy{Required: hal.CapCompute})
	require.NoError(t, err)
	defer d.Destroy()

	pass, err := vkq.CreateRenderPass(d, vkq.SinglePass(hal.FormatRGBA8Unorm, hal.LayoutTransferSrc))
	require.NoError(t, err)
	img, err := vkq.CreateImage(d, vkq.ImageDesc{Extent: hal.Extent2D(4, 4), Format: hal.FormatRGBA8Unorm, Usage: hal.ImageColorAttachment}, nil)
	require.NoError(t, err)
	fb, err := vkq.CreateFramebuffer(d, "", pass, img)
	require.NoError(t, err)

	_, err = vkq.Record(d, nil, vkq.BeginRenderPass{Framebuffer: fb, ClearValues: []hal.ClearValue{{}}}, vkq.EndRenderPass{})
	assert.True(t, errors.Is(err, vkq.ErrInvalidRecordingState), "%v", err)
}

func TestSubmitRejectsForeignFamily(t *testing.T) {
	s := newScene(t, 4)
	other := newScene(t, 4)
	cl, err := vkq.Record(other.d, nil, other.dispatch())
	require.NoError(t, err)
	_, err = s.d.Queue().Submit(cl, nil)
	assert.True(t, errors.Is(err, vkq.ErrInvalidRecordingState), "%v", err)
}

func TestTriangleRender(t *testing.T) {
	const size = 1024
	s := newScene(t, size)
	cl, err := vkq.NewCommandListBuilder(s.d, nil).
		BeginRenderPass(s.fb, hal.ClearValue{0, 0, 1, 1}).
		Draw(s.draw()).
		EndRenderPass().
		Build()
	require.NoError(t, err)

	drawn, err := s.d.Queue().Submit(cl, nil)
	require.NoError(t, err)
	pixels, err := vkq.ReadbackImage(s.img, drawn)
	require.NoError(t, err)
	require.Len(t, pixels, size*size*4)

	red := []byte{255, 0, 0, 255}
	blue := []byte{0, 0, 255, 255}
	at := func(x, y int) []byte {
		o := (y*size + x) * 4
		return pixels[o : o+4]
	}
	toPixel := func(v [2]float32) (int, int) {
		return int((v[0] + 1) / 2 * size), int((v[1] + 1) / 2 * size)
	}
	cx, cy := float32(0), float32(0)
	for _, v := range triangle {
		cx += v[0] / 3
		cy += v[1] / 3
	}
	x, y := toPixel([2]float32{cx, cy})
	assert.Equal(t, red, at(x, y), "centroid")
	assert.Equal(t, red, at(size/2, size/2), "center")

	var reds int
	for i := 0; i < len(pixels); i += 4 {
		switch {
		case pixels[i] == 255 && pixels[i+2] == 0:
			reds++
		default:
			require.Equal(t, blue, pixels[i:i+4], "pixel %d is neither background nor triangle", i/4)
		}
	}
	// The triangle covers 0.4375 of the 4 square units of clip space.
	want := 0.4375 / 4 * size * size
	assert.InDelta(t, want, float64(reds), want*0.02)

	for _, c := range [][2]int{{0, 0}, {size - 1, 0}, {0, size - 1}, {size - 1, size - 1}} {
		assert.Equal(t, blue, at(c[0], c[1]))
	}

	// A pixel is red exactly when its centre is inside all three edges.
	// Centres within a pixel of an edge may go either way.
	var v [3][2]float64
	for i, p := range triangle {
		v[i] = [2]float64{float64(p[0]+1) / 2 * size, float64(p[1]+1) / 2 * size}
	}
	dist := func(a, b [2]float64, px, py float64) float64 {
		return ((b[0]-a[0])*(py-a[1]) - (b[1]-a[1])*(px-a[0])) / math.Hypot(b[0]-a[0], b[1]-a[1])
	}
	var checked, mismatched int
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			d := [3]float64{dist(v[0], v[1], px, py), dist(v[1], v[2], px, py), dist(v[2], v[0], px, py)}
			if math.Abs(d[0]) < 1 || math.Abs(d[1]) < 1 || math.Abs(d[2]) < 1 {
				continue
			}
			inside := (d[0] > 0 && d[1] > 0 && d[2] > 0) || (d[0] < 0 && d[1] < 0 && d[2] < 0)
			checked++
			if inside != (at(x, y)[0] == 255) {
				mismatched++
			}
		}
	}
	assert.Greater(t, checked, size*size*9/10)
	assert.Zero(t, mismatched, "pixels disagreeing with the triangle's edges")
}

func TestResubmissionIsIdempotent(t *testing.T) {
	s := newScene(t, 64)
	cl, err := vkq.NewCommandListBuilder(s.d, nil).
		BeginRenderPass(s.fb, hal.ClearValue{0, 0, 1, 1}).
		Draw(s.draw()).
		EndRenderPass().
		CopyImageToBuffer(s.img, s.readback).
		Build()
	require.NoError(t, err)

	var outputs [][]byte
	for i := 0; i < 2; i++ {
		// Scribble over the output so each result is produced afresh.
		require.NoError(t, s.readback.Write(0, bytes.Repeat([]byte{7}, int(s.readback.Size()))))
		require.NoError(t, submitAndWait(t, s.d.Queue(), cl, nil))
		out, err := s.readback.Read()
		require.NoError(t, err)
		outputs = append(outputs, out)
	}
	assert.True(t, bytes.Contains(outputs[0], []byte{255, 0, 0, 255}), "the triangle was drawn")
	assert.True(t, bytes.Equal(outputs[0], outputs[1]), "both submissions produce the same image")
}

func TestAttributelessDraw(t *testing.T) {
	s := newScene(t, 8, soft.WithModules(&soft.Module{
		Name: "cover",
		Vertex: map[string]soft.VertexFunc{
			"vs_cover": func(in soft.VertexInput) soft.VertexOutput {
				c := [3][2]float32{{-1, -1}, {3, -1}, {-1, 3}}[in.Index%3]
				return soft.VertexOutput{Position: [4]float32{c[0], c[1], 0, 1}}
			},
		},
		Fragment: map[string]soft.FragmentFunc{
			"fs_red": func(_ soft.FragmentInput, out [][4]float32) { out[0] = [4]float32{1, 0, 0, 1} },
		},
	}))
	m, err := vkq.LoadShaderModule(s.d, vkq.ShaderModuleDesc{
		Code: soft.ModuleBlob("cover"),
		Entries: []vkq.EntryPoint{
			{Name: "vs_cover", Stage: hal.StageVertex},
			{Name: "fs_red", Stage: hal.StageFragment, Outputs: []vkq.InterfaceVar{{Location: 0, Components: 4}}},
		},
	})
	require.NoError(t, err)
	p, err := s.d.CreateGraphicsPipelineConfig().
		AddShaderStage(m.MustEntry("vs_cover")).
		AddShaderStage(m.MustEntry("fs_red")).
		Build(s.pass, 0)
	require.NoError(t, err)

	begin := vkq.BeginRenderPass{Framebuffer: s.fb, ClearValues: []hal.ClearValue{{0, 0, 1, 1}}}
	draw := vkq.Draw{Pipeline: p, Dynamic: vkq.DynamicState{Viewport: s.viewport()}, VertexCount: 3}
	cl, err := vkq.Record(s.d, nil, begin, draw, vkq.EndRenderPass{})
	require.NoError(t, err)
	drawn, err := s.d.Queue().Submit(cl, nil)
	require.NoError(t, err)
	pixels, err := vkq.ReadbackImage(s.img, drawn)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{255, 0, 0, 255}, 64), pixels)

	// A vertex buffer the pipeline never reads is not bound.
	draw.VertexBuffer = s.vertices
	_, err = vkq.Record(s.d, nil, begin, draw, vkq.EndRenderPass{})
	assert.True(t, errors.Is(err, vkq.ErrInvalidRecordingState), "%v", err)
}

func TestPackRGBA(t *testing.T) {
	px := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := vkq.PackRGBA(hal.FormatBGRA8Unorm, px)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, out)

	out, err = vkq.PackRGBA(hal.FormatRGBA8Srgb, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)

	_, err = vkq.PackRGBA(hal.FormatRGBA32Float, make([]byte, 16))
	assert.Error(t, err)
	_, err = vkq.PackRGBA(hal.FormatRGBA8Unorm, make([]byte, 6))
	assert.Error(t, err)

	ragged := []byte{1, 2, 3, 4, 5, 6}
	_, err = vkq.PackRGBA(hal.FormatBGRA8Unorm, ragged)
	assert.Error(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, ragged, "rejected pixels are left untouched")
}
