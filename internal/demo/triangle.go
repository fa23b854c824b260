package demo

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/internal/shaders"
	"github.com/celer/vkq/sink"
)

// TriangleVertices are the clip space corners drawn by Triangle.
var TriangleVertices = [][2]float32{
	{-0.5, -0.5},
	{0, 0.5},
	{0.5, -0.25},
}

// DefaultClear is opaque blue.
var DefaultClear = hal.ClearValue{0, 0, 1, 1}

// Triangle owns what drawing the red triangle into a single color
// attachment needs. The viewport is dynamic and follows the framebuffer.
type Triangle struct {
	Clear hal.ClearValue

	dev      *vkq.Device
	res      releaser
	vertices *vkq.Buffer
	pass     *vkq.RenderPass
	pipeline *vkq.Pipeline
}

// NewTriangle builds the pass and pipeline for attachments of format,
// left in final after the pass.
func NewTriangle(d *vkq.Device, format hal.Format, final hal.Layout, clear hal.ClearValue) (t *Triangle, err error) {
	t = &Triangle{Clear: clear, dev: d}
	defer func() {
		if err != nil {
			t.res.release()
		}
	}()

	t.vertices, err = vkq.CreateBufferFrom(d, "triangle vertices", hal.BufferVertex, TriangleVertices)
	if err != nil {
		return nil, err
	}
	t.res.add(t.vertices)

	desc := vkq.SinglePass(format, final)
	desc.Label = "triangle"
	t.pass, err = vkq.CreateRenderPass(d, desc)
	if err != nil {
		return nil, err
	}
	t.res.add(t.pass)

	mod, err := shaders.Load(d, shaders.Triangle)
	if err != nil {
		return nil, err
	}
	t.res.add(mod)

	t.pipeline, err = d.CreateGraphicsPipelineConfig().
		SetLabel("triangle").
		SetVertexLayout(8, hal.VertexAttribute{Location: 0, Format: hal.FormatRG32Float}).
		AddShaderStage(mod.MustEntry("vs_main")).
		AddShaderStage(mod.MustEntry("fs_main")).
		Build(t.pass, 0)
	if err != nil {
		return nil, err
	}
	t.res.add(t.pipeline)
	return t, nil
}

func (t *Triangle) RenderPass() *vkq.RenderPass { return t.pass }

// Framebuffer wraps img for the triangle's render pass.
func (t *Triangle) Framebuffer(label string, img *vkq.Image) (*vkq.Framebuffer, error) {
	return vkq.CreateFramebuffer(t.dev, label, t.pass, img)
}

// Record returns a list drawing the triangle into fb, followed by
// extra ops.
func (t *Triangle) Record(fb *vkq.Framebuffer, extra ...vkq.Op) (*vkq.CommandList, error) {
	ext := fb.Extent()
	vp := hal.Viewport{Width: float32(ext.Width), Height: float32(ext.Height), MaxDepth: 1}
	return vkq.NewCommandListBuilder(t.dev, t.dev.Family()).
		BeginRenderPass(fb, t.Clear).
		Draw(vkq.Draw{
			Pipeline:     t.pipeline,
			Dynamic:      vkq.DynamicState{Viewport: &vp},
			VertexBuffer: t.vertices,
			VertexCount:  len(TriangleVertices),
		}).
		EndRenderPass().
		Add(extra...).
		Build()
}

// Destroy releases the pipeline and its resources. Lists recorded by
// Record must have retired.
func (t *Triangle) Destroy() error {
	t.res.release()
	return nil
}

// RenderTriangle draws the triangle offscreen into an image of extent
// and format and returns the pixels as packed RGBA8.
func RenderTriangle(d *vkq.Device, extent hal.Extent, format hal.Format, clear hal.ClearValue) ([]byte, error) {
	var res releaser
	defer res.release()

	t, err := NewTriangle(d, format, hal.LayoutTransferSrc, clear)
	if err != nil {
		return nil, err
	}
	res.add(t)
	img, err := vkq.CreateImage(d, vkq.ImageDesc{
		Label:  "triangle target",
		Extent: extent,
		Format: format,
		Usage:  hal.ImageColorAttachment | hal.ImageTransferSrc,
	}, nil)
	if err != nil {
		return nil, err
	}
	res.add(img)
	fb, err := t.Framebuffer("triangle target", img)
	if err != nil {
		return nil, err
	}
	res.add(fb)
	cl, err := t.Record(fb)
	if err != nil {
		return nil, err
	}
	res.add(cl)

	drawn, err := d.Queue().Submit(cl, nil)
	if err != nil {
		return nil, err
	}
	pixels, err := vkq.ReadbackImage(img, drawn)
	if err != nil {
		return nil, errors.Wrap(err, "triangle readback")
	}
	if err := drawn.Wait(vkq.Forever); err != nil {
		return nil, err
	}
	return pixels, nil
}

// RenderToSink renders the triangle and hands the pixels to s.
func RenderToSink(d *vkq.Device, extent hal.Extent, format hal.Format, clear hal.ClearValue, s sink.Sink) error {
	pixels, err := RenderTriangle(d, extent, format, clear)
	if err != nil {
		return err
	}
	if err := s.Write(extent.Width, extent.Height, pixels); err != nil {
		return errors.Wrap(err, "triangle sink")
	}
	vkq.Logger().Info("demo: triangle written", "extent", extent.String(), "format", format.String())
	return nil
}
