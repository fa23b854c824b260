// Package hal is the hardware abstraction the vkq core drives. A Backend
// enumerates adapters; an adapter opens a Device with a single Queue, and
// every other object is created from that Device.
//
// Implementations live in sub-packages (hal/soft, hal/vulkan) and register
// themselves with Register from an init function.
package hal

import (
	"time"
)

// Backend is the entry point of one driver implementation.
type Backend interface {
	// Name returns the registry name of the backend.
	Name() string

	// Adapters enumerates the physical accelerators in a stable order.
	Adapters() ([]Adapter, error)

	// Destroy releases the backend. Devices opened from it must be
	// destroyed first.
	Destroy()
}

// Adapter is a physical accelerator.
type Adapter interface {
	Info() AdapterInfo
	QueueFamilies() []QueueFamilyInfo

	// SupportsPresent reports whether family can present to s.
	SupportsPresent(family int, s Surface) bool

	// SurfaceCapabilities queries what swapchains on s may look like.
	SurfaceCapabilities(s Surface) (SurfaceCapabilities, error)

	// Open creates a logical device with one queue from desc.Family.
	Open(desc DeviceDesc) (Device, error)
}

// Device creates resources and owns the queue it was opened with.
type Device interface {
	Queue() Queue

	NewBuffer(desc BufferDesc) (Buffer, error)
	NewImage(desc ImageDesc) (Image, error)
	NewShaderModule(code []byte) (ShaderModule, error)
	NewRenderPass(desc RenderPassDesc) (RenderPass, error)
	NewFramebuffer(rp RenderPass, attachments []Image, extent Extent) (Framebuffer, error)
	NewGraphicsPipeline(desc *GraphicsPipelineDesc) (Pipeline, error)
	NewComputePipeline(desc *ComputePipelineDesc) (Pipeline, error)
	NewDescriptorSet(p Pipeline, set int, res []Resource) (DescriptorSet, error)
	NewCommandBuffer() (CommandBuffer, error)
	NewSemaphore() (Semaphore, error)
	NewFence() (Fence, error)
	NewSwapchain(desc SwapchainDesc) (Swapchain, error)

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	Destroyer
}

// Destroyer is the interface that wraps the Destroy method. Objects
// implementing it may hold memory outside the Go heap.
type Destroyer interface {
	Destroy()
}

// Buffer is linear device memory.
type Buffer interface {
	Size() int64

	// Bytes returns the host mapping of a host-visible buffer, or nil.
	// The slice stays valid until Destroy.
	Bytes() []byte

	Destroyer
}

type Image interface {
	Extent() Extent
	Format() Format
	Destroyer
}

type ShaderModule interface {
	Destroyer
}

type RenderPass interface {
	Destroyer
}

type Framebuffer interface {
	Extent() Extent
	Destroyer
}

type Pipeline interface {
	Destroyer
}

type DescriptorSet interface {
	Destroyer
}

// CommandBuffer records commands for later submission. A recorded
// buffer may be submitted repeatedly, including while a previous
// submission of it is still executing.
//
// Recording is split into render passes and outside-pass work:
//
//  1. Begin
//  2. BeginRenderPass, SetViewport, BindGraphicsPipeline,
//     BindVertexBuffer, Draw, EndRenderPass
//  3. BindComputePipeline, BindDescriptorSet, Dispatch, CopyImageToBuffer
//  4. End
//
// Steps 2 and 3 may repeat in any order. Implementations do not validate
// ordering; the caller is responsible for a legal sequence.
type CommandBuffer interface {
	Begin() error
	BeginRenderPass(rp RenderPass, fb Framebuffer, clear []ClearValue)
	SetViewport(vp Viewport)
	BindGraphicsPipeline(p Pipeline)
	BindVertexBuffer(b Buffer, offset int64)
	Draw(vertexCount, instanceCount, firstVertex int)
	EndRenderPass()
	BindComputePipeline(p Pipeline)
	BindDescriptorSet(p Pipeline, set int, ds DescriptorSet)
	Dispatch(x, y, z int)
	CopyImageToBuffer(img Image, buf Buffer)
	End() error
	Destroyer
}

// Semaphore orders work between submissions and presentation on the
// device. A signalled semaphore is consumed by exactly one wait.
type Semaphore interface {
	Destroyer
}

// Fence lets the host observe completion of a submission.
type Fence interface {
	// Wait blocks up to timeout; a negative timeout waits forever.
	// It returns ErrTimeout if the fence is still unsignalled, and the
	// device error if the guarded submission faulted.
	Wait(timeout time.Duration) error

	// Status reports completion without blocking.
	Status() (signaled bool, err error)

	Destroyer
}

type SubmitInfo struct {
	Commands []CommandBuffer
	Wait     []Semaphore
	Signal   []Semaphore
	// Fence, when non-nil, is signalled after the commands complete.
	Fence Fence
}

type PresentInfo struct {
	Swapchain Swapchain
	Index     int
	Wait      []Semaphore
}

// Queue is an ordered submission channel.
type Queue interface {
	Family() int
	Submit(info SubmitInfo) error
	Present(info PresentInfo) error
	WaitIdle() error
}

// Surface is a presentable target owned by a window collaborator.
type Surface interface {
	Destroyer
}

type Swapchain interface {
	Images() []Image
	Format() Format
	Extent() Extent

	// Acquire blocks up to timeout for a free image and returns its
	// index. signal, when non-nil, is signalled once the image is ready
	// to be rendered to. Returns ErrSurfaceLost if the surface died.
	Acquire(timeout time.Duration, signal Semaphore) (int, error)

	Destroyer
}
