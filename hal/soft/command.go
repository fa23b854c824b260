package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// execState is the per-execution binding state. A recorded command
// buffer is immutable, so concurrent or repeated executions each get
// their own state.
type execState struct {
	dev      *Device
	rp       *RenderPass
	fb       *Framebuffer
	subpass  int
	viewport hal.Viewport
	hasVP    bool
	gp       *graphicsPipeline
	vb       *Buffer
	vbOffset int64
	cp       *computePipeline
	sets     map[int]*descriptorSet
}

type command func(s *execState) error

type CommandBuffer struct {
	dev       *Device
	cmds      []command
	recording bool
}

func (d *Device) NewCommandBuffer() (hal.CommandBuffer, error) {
	return &CommandBuffer{dev: d}, nil
}

func (c *CommandBuffer) Begin() error {
	if c.recording {
		return errors.New("soft: command buffer already recording")
	}
	c.cmds = c.cmds[:0]
	c.recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return errors.New("soft: command buffer not recording")
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) push(cmd command) {
	c.cmds = append(c.cmds, cmd)
}

func (c *CommandBuffer) BeginRenderPass(rp hal.RenderPass, fb hal.Framebuffer, clear []hal.ClearValue) {
	r, f := rp.(*RenderPass), fb.(*Framebuffer)
	cv := append([]hal.ClearValue(nil), clear...)
	c.push(func(s *execState) error {
		s.rp, s.fb, s.subpass = r, f, 0
		for i, a := range r.desc.Attachments {
			if a.Load != hal.LoadOpClear {
				continue
			}
			if i >= len(cv) {
				return errors.Newf("soft: no clear value for attachment %d", i)
			}
			fill(f.attachments[i], f.extent, cv[i])
		}
		return nil
	})
}

func (c *CommandBuffer) SetViewport(vp hal.Viewport) {
	c.push(func(s *execState) error {
		s.viewport, s.hasVP = vp, true
		return nil
	})
}

func (c *CommandBuffer) BindGraphicsPipeline(p hal.Pipeline) {
	gp := p.(*graphicsPipeline)
	c.push(func(s *execState) error {
		s.gp = gp
		if !gp.desc.DynamicViewport {
			s.viewport, s.hasVP = gp.desc.Viewport, true
		}
		return nil
	})
}

func (c *CommandBuffer) BindVertexBuffer(b hal.Buffer, offset int64) {
	vb := b.(*Buffer)
	c.push(func(s *execState) error {
		s.vb, s.vbOffset = vb, offset
		return nil
	})
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex int) {
	c.push(func(s *execState) error {
		switch {
		case s.fb == nil:
			return errors.New("soft: draw outside a render pass")
		case s.gp == nil:
			return errors.New("soft: draw without a graphics pipeline")
		case !s.hasVP:
			return errors.New("soft: draw without a viewport")
		}
		for inst := 0; inst < max(instanceCount, 1); inst++ {
			if err := s.draw(vertexCount, firstVertex); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *CommandBuffer) EndRenderPass() {
	c.push(func(s *execState) error {
		s.rp, s.fb = nil, nil
		return nil
	})
}

func (c *CommandBuffer) BindComputePipeline(p hal.Pipeline) {
	cp := p.(*computePipeline)
	c.push(func(s *execState) error {
		s.cp = cp
		return nil
	})
}

func (c *CommandBuffer) BindDescriptorSet(_ hal.Pipeline, set int, ds hal.DescriptorSet) {
	d := ds.(*descriptorSet)
	c.push(func(s *execState) error {
		if s.sets == nil {
			s.sets = make(map[int]*descriptorSet)
		}
		s.sets[set] = d
		return nil
	})
}

func (c *CommandBuffer) Dispatch(x, y, z int) {
	c.push(func(s *execState) error {
		if s.cp == nil {
			return errors.New("soft: dispatch without a compute pipeline")
		}
		return s.dispatch([3]int{x, y, z})
	})
}

func (c *CommandBuffer) CopyImageToBuffer(img hal.Image, buf hal.Buffer) {
	src, dst := img.(*Image), buf.(*Buffer)
	c.push(func(s *execState) error {
		if len(dst.data) < len(src.data) {
			return errors.Newf("soft: copy of %d bytes into %d byte buffer", len(src.data), len(dst.data))
		}
		copy(dst.data, src.data)
		return nil
	})
}

func (c *CommandBuffer) Destroy() {
	c.cmds = nil
}

// execute runs the recorded commands in order. A panic in a kernel
// becomes a device fault.
func (c *CommandBuffer) execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faultf("soft: command buffer panicked: %v", r)
		}
	}()
	s := &execState{dev: c.dev}
	for i, cmd := range c.cmds {
		if err := cmd(s); err != nil {
			return errors.Wrapf(err, "command %d", i)
		}
	}
	return nil
}

func faultf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), hal.ErrDeviceLost)
}
