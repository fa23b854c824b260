package vkq

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

type resourceKind int

const (
	kindCommandList resourceKind = iota
	kindFramebuffer
	kindDescriptorSet
	kindPipeline
	kindRenderPass
	kindShaderModule
	kindSwapchain
	kindImage
	kindBuffer
)

func (k resourceKind) String() string {
	return [...]string{
		"command list", "framebuffer", "descriptor set", "pipeline",
		"render pass", "shader module", "swapchain", "image", "buffer",
	}[k]
}

// teardownOrder destroys dependents before what they reference.
var teardownOrder = []resourceKind{
	kindCommandList,
	kindFramebuffer,
	kindDescriptorSet,
	kindPipeline,
	kindRenderPass,
	kindShaderModule,
	kindSwapchain,
	kindImage,
	kindBuffer,
}

// resource is the tracking state shared by every device object.
type resource struct {
	dev   *Device
	kind  resourceKind
	label string

	// inflight counts unretired submissions referencing the resource.
	inflight  atomic.Int32
	destroyed atomic.Bool
	// undefined is set when a faulted submission wrote the resource.
	undefined atomic.Bool
	// orphaned resources are torn down as soon as they retire.
	orphaned atomic.Bool

	release func()
}

func (r *resource) init(d *Device, kind resourceKind, label string, release func()) {
	r.dev, r.kind, r.label, r.release = d, kind, label, release
	d.register(r)
}

func (r *resource) String() string {
	if r.label == "" {
		return fmt.Sprintf("%s %p", r.kind, r)
	}
	return fmt.Sprintf("%s %q", r.kind, r.label)
}

func (r *resource) alive() error {
	if r.destroyed.Load() {
		return errors.Wrapf(ErrResourceDestroyed, "%s", r)
	}
	return nil
}

// busy reports whether an unretired submission references r. Completed
// submissions are retired first so a finished but unobserved submission
// does not hold the resource.
func (r *resource) busy() bool {
	if r.inflight.Load() == 0 {
		return false
	}
	r.dev.queue.reap()
	return r.inflight.Load() > 0
}

func (r *resource) destroy() error {
	if r.destroyed.Load() {
		return nil
	}
	if r.busy() {
		return errors.Wrapf(ErrResourceBusy, "destroy %s", r)
	}
	r.teardown()
	return nil
}

// teardown releases the backend object without any checks.
func (r *resource) teardown() {
	if r.destroyed.Swap(true) {
		return
	}
	r.dev.unregister(r)
	if r.release != nil {
		r.release()
	}
	Logger().Debug("vkq: destroyed", "resource", r.String())
}

func retain(rs []*resource) {
	for _, r := range rs {
		r.inflight.Add(1)
	}
}

func unretain(rs []*resource) {
	for _, r := range rs {
		if r.inflight.Add(-1) == 0 && r.orphaned.Load() {
			r.teardown()
		}
	}
}

// destroyWhenIdle tears r down now, or when its last submission retires.
func (r *resource) destroyWhenIdle() {
	r.orphaned.Store(true)
	if r.inflight.Load() == 0 {
		r.teardown()
	}
}
