package hal

import (
	"fmt"
	"strings"
)

// Capability is a bit set describing what a queue family can execute.
type Capability uint32

const (
	CapGraphics Capability = 1 << iota
	CapCompute
	CapTransfer
	CapPresent
)

// Has reports whether every bit of o is present in c.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, n := range []struct {
		bit  Capability
		name string
	}{
		{CapGraphics, "graphics"},
		{CapCompute, "compute"},
		{CapTransfer, "transfer"},
		{CapPresent, "present"},
	} {
		if c&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Format is a pixel or vertex attribute format.
type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatR32Uint
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatD32Float
)

var formatInfo = map[Format]struct {
	name       string
	size       int
	components int
}{
	FormatRGBA8Unorm:  {"rgba8unorm", 4, 4},
	FormatRGBA8Srgb:   {"rgba8srgb", 4, 4},
	FormatBGRA8Unorm:  {"bgra8unorm", 4, 4},
	FormatBGRA8Srgb:   {"bgra8srgb", 4, 4},
	FormatR32Uint:     {"r32uint", 4, 1},
	FormatR32Float:    {"r32float", 4, 1},
	FormatRG32Float:   {"rg32float", 8, 2},
	FormatRGB32Float:  {"rgb32float", 12, 3},
	FormatRGBA32Float: {"rgba32float", 16, 4},
	FormatD32Float:    {"d32float", 4, 1},
}

// BytesPerPixel returns the size in bytes of one texel or attribute of f,
// or zero for FormatUndefined.
func (f Format) BytesPerPixel() int {
	return formatInfo[f].size
}

// Components returns the number of channels f carries.
func (f Format) Components() int {
	return formatInfo[f].components
}

// IsBGRA reports whether f stores blue in the first byte.
func (f Format) IsBGRA() bool {
	return f == FormatBGRA8Unorm || f == FormatBGRA8Srgb
}

func (f Format) String() string {
	if i, ok := formatInfo[f]; ok {
		return i.name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat maps a format name as printed by Format.String back to a Format.
func ParseFormat(s string) (Format, bool) {
	for f, i := range formatInfo {
		if i.name == strings.ToLower(s) {
			return f, true
		}
	}
	return FormatUndefined, false
}

type BufferUsage uint32

const (
	BufferVertex BufferUsage = 1 << iota
	BufferStorage
	BufferUniform
	BufferTransferSrc
	BufferTransferDst
)

func (u BufferUsage) Has(o BufferUsage) bool { return u&o == o }

type ImageUsage uint32

const (
	ImageColorAttachment ImageUsage = 1 << iota
	ImageStorage
	ImageTransferSrc
	ImageSampled
)

func (u ImageUsage) Has(o ImageUsage) bool { return u&o == o }

type Extent struct {
	Width, Height, Depth int
}

// Extent2D returns a single-layer extent.
func Extent2D(w, h int) Extent {
	return Extent{Width: w, Height: h, Depth: 1}
}

// Texels returns width*height*depth, treating a zero depth as one.
func (e Extent) Texels() int {
	d := e.Depth
	if d == 0 {
		d = 1
	}
	return e.Width * e.Height * d
}

func (e Extent) String() string {
	if e.Depth > 1 {
		return fmt.Sprintf("%dx%dx%d", e.Width, e.Height, e.Depth)
	}
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

type BufferDesc struct {
	Size        int64
	Usage       BufferUsage
	HostVisible bool
}

type ImageDesc struct {
	Extent Extent
	Format Format
	Usage  ImageUsage
	// Family is the queue family that owns the image.
	Family int
}

type LoadOp int

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// Layout is the layout an attachment is left in after its render pass.
type Layout int

const (
	LayoutTransferSrc Layout = iota
	LayoutPresent
	LayoutShaderRead
)

type AttachmentDesc struct {
	Format      Format
	Load        LoadOp
	Store       StoreOp
	FinalLayout Layout
}

type SubpassDesc struct {
	// Color lists attachment indices written by the subpass, in
	// fragment output location order.
	Color []int
}

type RenderPassDesc struct {
	Attachments []AttachmentDesc
	Subpasses   []SubpassDesc
}

// ClearValue is an RGBA clear color in normalized floats.
type ClearValue [4]float32

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

type DescriptorType int

const (
	DescStorageBuffer DescriptorType = iota
	DescUniformBuffer
	DescStorageImage
)

func (t DescriptorType) String() string {
	switch t {
	case DescStorageBuffer:
		return "storage-buffer"
	case DescUniformBuffer:
		return "uniform-buffer"
	case DescStorageImage:
		return "storage-image"
	}
	return fmt.Sprintf("descriptor(%d)", int(t))
}

// DescriptorDecl is one binding a shader declares inside a descriptor set.
type DescriptorDecl struct {
	Set     int
	Binding int
	Type    DescriptorType
}

// Resource is one resource bound at a descriptor binding. Exactly one of
// Buffer and Image is set.
type Resource struct {
	Binding int
	Buffer  Buffer
	Image   Image
}

type VertexAttribute struct {
	Location int
	Format   Format
	Offset   int
}

type VertexLayout struct {
	Stride     int
	Attributes []VertexAttribute
}

type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
)

type PolygonMode int

const (
	PolygonFill PolygonMode = iota
	PolygonLine
)

type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

type FrontFace int

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

// StageDesc selects an entry point in a compiled module.
type StageDesc struct {
	Module ShaderModule
	Entry  string
}

type GraphicsPipelineDesc struct {
	Vertex      StageDesc
	Fragment    StageDesc
	VertexInput VertexLayout
	Topology    Topology
	PolygonMode PolygonMode
	CullMode    CullMode
	FrontFace   FrontFace
	// Viewport is used when DynamicViewport is false.
	Viewport        Viewport
	DynamicViewport bool
	Blend           bool
	DepthTest       bool
	Descriptors     []DescriptorDecl
	RenderPass      RenderPass
	Subpass         int
}

type ComputePipelineDesc struct {
	Compute       StageDesc
	Descriptors   []DescriptorDecl
	WorkgroupSize [3]int
}

type PresentMode int

const (
	PresentFifo PresentMode = iota
	PresentMailbox
	PresentImmediate
	PresentFifoRelaxed
)

func (p PresentMode) String() string {
	switch p {
	case PresentFifo:
		return "fifo"
	case PresentMailbox:
		return "mailbox"
	case PresentImmediate:
		return "immediate"
	case PresentFifoRelaxed:
		return "fifo-relaxed"
	}
	return fmt.Sprintf("present(%d)", int(p))
}

// ParsePresentMode maps a present mode name back to a PresentMode.
func ParsePresentMode(s string) (PresentMode, bool) {
	for _, p := range []PresentMode{PresentFifo, PresentMailbox, PresentImmediate, PresentFifoRelaxed} {
		if p.String() == strings.ToLower(s) {
			return p, true
		}
	}
	return PresentFifo, false
}

type CompositeAlpha int

const (
	CompositeOpaque CompositeAlpha = iota
	CompositePreMultiplied
	CompositePostMultiplied
	CompositeInherit
)

type SurfaceCapabilities struct {
	// CurrentExtent is zero when the surface lets the swapchain choose.
	CurrentExtent  Extent
	MinImageCount  int
	MaxImageCount  int
	Formats        []Format
	PresentModes   []PresentMode
	CompositeAlpha []CompositeAlpha
}

type SwapchainDesc struct {
	Surface        Surface
	Family         int
	Format         Format
	Extent         Extent
	ImageCount     int
	PresentMode    PresentMode
	CompositeAlpha CompositeAlpha
}

type DeviceDesc struct {
	Family     int
	Priority   float32
	Extensions []string
}

type AdapterInfo struct {
	Name       string
	Kind       string
	Extensions []string
	// HeapSize is the device-local memory budget, zero when unknown.
	HeapSize int64
}

type QueueFamilyInfo struct {
	Index int
	Count int
	Caps  Capability
}

func (q QueueFamilyInfo) String() string {
	return fmt.Sprintf("{ Index: %d Count: %d Caps: %s }", q.Index, q.Count, q.Caps)
}
