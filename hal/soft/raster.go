package soft

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}

func linearToSRGB(v float32) float32 {
	v = clamp01(v)
	if v <= 0.0031308 {
		return v * 12.92
	}
	return 1.055*math32.Pow(v, 1/2.4) - 0.055
}

func srgbToLinear(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math32.Pow((v+0.055)/1.055, 2.4)
}

func unorm8(v float32) byte {
	return byte(clamp01(v)*255 + 0.5)
}

// encodeTexel stores c into dst using format f.
func encodeTexel(f hal.Format, dst []byte, c [4]float32) {
	switch f {
	case hal.FormatRGBA8Unorm:
		dst[0], dst[1], dst[2], dst[3] = unorm8(c[0]), unorm8(c[1]), unorm8(c[2]), unorm8(c[3])
	case hal.FormatRGBA8Srgb:
		dst[0], dst[1], dst[2] = unorm8(linearToSRGB(c[0])), unorm8(linearToSRGB(c[1])), unorm8(linearToSRGB(c[2]))
		dst[3] = unorm8(c[3])
	case hal.FormatBGRA8Unorm:
		dst[0], dst[1], dst[2], dst[3] = unorm8(c[2]), unorm8(c[1]), unorm8(c[0]), unorm8(c[3])
	case hal.FormatBGRA8Srgb:
		dst[0], dst[1], dst[2] = unorm8(linearToSRGB(c[2])), unorm8(linearToSRGB(c[1])), unorm8(linearToSRGB(c[0]))
		dst[3] = unorm8(c[3])
	case hal.FormatR32Uint:
		binary.LittleEndian.PutUint32(dst, uint32(c[0]))
	default:
		for i := 0; i < f.Components(); i++ {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(c[i]))
		}
	}
}

// decodeTexel is the inverse of encodeTexel; used for blending.
func decodeTexel(f hal.Format, src []byte) [4]float32 {
	var c [4]float32
	switch f {
	case hal.FormatRGBA8Unorm, hal.FormatRGBA8Srgb:
		for i := range 4 {
			c[i] = float32(src[i]) / 255
		}
	case hal.FormatBGRA8Unorm, hal.FormatBGRA8Srgb:
		c = [4]float32{float32(src[2]) / 255, float32(src[1]) / 255, float32(src[0]) / 255, float32(src[3]) / 255}
	case hal.FormatR32Uint:
		c[0] = float32(binary.LittleEndian.Uint32(src))
	default:
		for i := 0; i < f.Components(); i++ {
			c[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	}
	if f == hal.FormatRGBA8Srgb || f == hal.FormatBGRA8Srgb {
		for i := range 3 {
			c[i] = srgbToLinear(c[i])
		}
	}
	return c
}

// fill clears the extent-sized region of img to c.
func fill(img *Image, extent hal.Extent, c hal.ClearValue) {
	bpp := img.desc.Format.BytesPerPixel()
	px := make([]byte, bpp)
	encodeTexel(img.desc.Format, px, c)
	stride := img.desc.Extent.Width * bpp
	w := min(extent.Width, img.desc.Extent.Width)
	h := min(extent.Height, img.desc.Extent.Height)
	if h == 0 || w == 0 {
		return
	}
	row := img.data[:w*bpp]
	for x := 0; x < w; x++ {
		copy(row[x*bpp:], px)
	}
	for y := 1; y < h; y++ {
		copy(img.data[y*stride:y*stride+w*bpp], row)
	}
}

// fetch decodes one vertex attribute as up to four floats.
func fetch(data []byte, off int64, f hal.Format) ([4]float32, error) {
	var v [4]float32
	size := int64(f.BytesPerPixel())
	if size == 0 || off < 0 || off+size > int64(len(data)) {
		return v, errors.Newf("soft: vertex fetch of %s at %d outside %d byte buffer", f, off, len(data))
	}
	src := data[off:]
	switch f {
	case hal.FormatRGBA8Unorm, hal.FormatRGBA8Srgb, hal.FormatBGRA8Unorm, hal.FormatBGRA8Srgb:
		return decodeTexel(f, src), nil
	case hal.FormatR32Uint:
		v[0] = float32(binary.LittleEndian.Uint32(src))
	default:
		for i := 0; i < f.Components(); i++ {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	}
	return v, nil
}

type screenVertex struct {
	x, y, z float32
	invW    float32
	vary    [4]float32
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func (s *execState) draw(count, first int) error {
	gp := s.gp
	layout := gp.desc.VertexInput
	maxLoc := -1
	for _, a := range layout.Attributes {
		maxLoc = max(maxLoc, a.Location)
	}
	if len(layout.Attributes) > 0 && s.vb == nil {
		return errors.New("soft: draw without a vertex buffer")
	}

	verts := make([]VertexOutput, count)
	for i := range verts {
		in := VertexInput{Index: first + i, Attributes: make([][4]float32, maxLoc+1)}
		base := s.vbOffset + int64((first+i)*layout.Stride)
		for _, a := range layout.Attributes {
			v, err := fetch(s.vb.data, base+int64(a.Offset), a.Format)
			if err != nil {
				return err
			}
			in.Attributes[a.Location] = v
		}
		verts[i] = gp.vertex(in)
	}

	sp := s.rp.desc.Subpasses[gp.desc.Subpass]
	targets := make([]*Image, len(sp.Color))
	for i, c := range sp.Color {
		targets[i] = s.fb.attachments[c]
	}

	var tris [][3]VertexOutput
	switch gp.desc.Topology {
	case hal.TopologyTriangleStrip:
		for i := 0; i+2 < len(verts); i++ {
			if i%2 == 0 {
				tris = append(tris, [3]VertexOutput{verts[i], verts[i+1], verts[i+2]})
			} else {
				tris = append(tris, [3]VertexOutput{verts[i+1], verts[i], verts[i+2]})
			}
		}
	default:
		for i := 0; i+2 < len(verts); i += 3 {
			tris = append(tris, [3]VertexOutput{verts[i], verts[i+1], verts[i+2]})
		}
	}
	for _, t := range tris {
		if err := s.rasterize(t, targets); err != nil {
			return err
		}
	}
	return nil
}

func (s *execState) project(v VertexOutput) (screenVertex, bool) {
	w := v.Position[3]
	if w <= 0 {
		return screenVertex{}, false
	}
	vp := s.viewport
	nx, ny, nz := v.Position[0]/w, v.Position[1]/w, v.Position[2]/w
	return screenVertex{
		x:    vp.X + (nx+1)*0.5*vp.Width,
		y:    vp.Y + (ny+1)*0.5*vp.Height,
		z:    vp.MinDepth + nz*(vp.MaxDepth-vp.MinDepth),
		invW: 1 / w,
		vary: v.Varyings,
	}, true
}

// rasterize covers every pixel whose center lies inside or on the edge
// of the triangle, clipped to the viewport and framebuffer. Triangles
// with a vertex behind the eye are dropped rather than clipped.
func (s *execState) rasterize(t [3]VertexOutput, targets []*Image) error {
	var v [3]screenVertex
	for i := range t {
		sv, ok := s.project(t[i])
		if !ok {
			return nil
		}
		v[i] = sv
	}
	area := edge(v[0].x, v[0].y, v[1].x, v[1].y, v[2].x, v[2].y)
	if area == 0 {
		return nil
	}
	// Framebuffer y points down, so a negative edge area is
	// counter-clockwise.
	front := (area < 0) == (s.gp.desc.FrontFace == hal.FrontFaceCounterClockwise)
	switch s.gp.desc.CullMode {
	case hal.CullBack:
		if !front {
			return nil
		}
	case hal.CullFront:
		if front {
			return nil
		}
	}

	vp := s.viewport
	x0 := math32.Max(math32.Min(v[0].x, math32.Min(v[1].x, v[2].x)), math32.Max(vp.X, 0))
	x1 := math32.Min(math32.Max(v[0].x, math32.Max(v[1].x, v[2].x)), math32.Min(vp.X+vp.Width, float32(s.fb.extent.Width)))
	y0 := math32.Max(math32.Min(v[0].y, math32.Min(v[1].y, v[2].y)), math32.Max(vp.Y, 0))
	y1 := math32.Min(math32.Max(v[0].y, math32.Max(v[1].y, v[2].y)), math32.Min(vp.Y+vp.Height, float32(s.fb.extent.Height)))
	minX, maxX := int(math32.Floor(x0)), int(math32.Ceil(x1))
	minY, maxY := int(math32.Floor(y0)), int(math32.Ceil(y1))
	if minX >= maxX || minY >= maxY {
		return nil
	}

	blend := s.gp.desc.Blend
	fragment := s.gp.fragment
	return parallel(maxY-minY, s.dev.workers(), func(lo, hi int) error {
		out := make([][4]float32, len(targets))
		for y := minY + lo; y < minY+hi; y++ {
			py := float32(y) + 0.5
			for x := minX; x < maxX; x++ {
				px := float32(x) + 0.5
				w0 := edge(v[1].x, v[1].y, v[2].x, v[2].y, px, py)
				w1 := edge(v[2].x, v[2].y, v[0].x, v[0].y, px, py)
				w2 := edge(v[0].x, v[0].y, v[1].x, v[1].y, px, py)
				if area > 0 && (w0 < 0 || w1 < 0 || w2 < 0) {
					continue
				}
				if area < 0 && (w0 > 0 || w1 > 0 || w2 > 0) {
					continue
				}
				l0, l1, l2 := w0/area*v[0].invW, w1/area*v[1].invW, w2/area*v[2].invW
				norm := l0 + l1 + l2
				in := FragmentInput{FragCoord: [2]float32{px, py}}
				for k := range in.Varyings {
					in.Varyings[k] = (l0*v[0].vary[k] + l1*v[1].vary[k] + l2*v[2].vary[k]) / norm
				}
				clear(out)
				fragment(in, out)
				for i, img := range targets {
					bpp := img.desc.Format.BytesPerPixel()
					off := (y*img.desc.Extent.Width + x) * bpp
					dst := img.data[off : off+bpp]
					c := out[i]
					if blend {
						d := decodeTexel(img.desc.Format, dst)
						a := c[3]
						for k := range 3 {
							c[k] = c[k]*a + d[k]*(1-a)
						}
						c[3] = a + d[3]*(1-a)
					}
					encodeTexel(img.desc.Format, dst, c)
				}
			}
		}
		return nil
	})
}
