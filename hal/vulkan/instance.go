// Package vulkan implements hal on top of the system Vulkan loader
// through github.com/vulkan-go/vulkan.
//
// Every buffer lives in host-visible, host-coherent memory and stays
// mapped for its lifetime. Images are device-local with optimal tiling.
// Each descriptor set gets its own small pool.
package vulkan

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkq/hal"
)

const (
	validationLayer    = "VK_LAYER_KHRONOS_validation"
	debugReportExt     = "VK_EXT_debug_report"
	surfaceExt         = "VK_KHR_surface"
	swapchainDeviceExt = "VK_KHR_swapchain"
)

func init() {
	hal.Register("vulkan", func() (hal.Backend, error) {
		return New()
	})
}

var (
	loaderMu sync.Mutex
	loaded   bool
)

// initLoader resolves vk entry points once per process. A nil proc
// uses the platform's default loader.
func initLoader(proc unsafe.Pointer) error {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	if loaded {
		return nil
	}
	if proc != nil {
		vk.SetGetInstanceProcAddr(proc)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return errors.Mark(errors.Wrap(err, "vulkan: locate loader"), hal.ErrBackendNotAvailable)
	}
	if err := vk.Init(); err != nil {
		return errors.Mark(errors.Wrap(err, "vulkan: init"), hal.ErrBackendNotAvailable)
	}
	loaded = true
	return nil
}

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) vk() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// Options describe the instance New creates.
type Options struct {
	AppName    string
	APIVersion Version
	// InstanceExtensions are required; New fails if one is missing.
	InstanceExtensions []string
	// Validation enables the Khronos validation layer and routes its
	// reports to the backend logger, when both are installed.
	Validation bool
	// ProcAddr is vkGetInstanceProcAddr as handed out by a windowing
	// library. Nil uses the default loader.
	ProcAddr unsafe.Pointer
}

type Option func(*Options)

func WithAppName(name string) Option {
	return func(o *Options) { o.AppName = name }
}

// WithInstanceExtensions adds instance extensions, typically the ones a
// window system needs for surfaces.
func WithInstanceExtensions(exts ...string) Option {
	return func(o *Options) { o.InstanceExtensions = append(o.InstanceExtensions, exts...) }
}

func WithValidation() Option {
	return func(o *Options) { o.Validation = true }
}

func WithProcAddr(p unsafe.Pointer) Option {
	return func(o *Options) { o.ProcAddr = p }
}

// SupportedLayers returns the instance layers the loader knows about.
func SupportedLayers() ([]string, error) {
	if err := initLoader(nil); err != nil {
		return nil, err
	}
	var n uint32
	if err := check(vk.EnumerateInstanceLayerProperties(&n, nil), "enumerate layers"); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, n)
	if err := check(vk.EnumerateInstanceLayerProperties(&n, props), "enumerate layers"); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions returns the instance extensions the loader offers.
func SupportedExtensions() ([]string, error) {
	if err := initLoader(nil); err != nil {
		return nil, err
	}
	var n uint32
	if err := check(vk.EnumerateInstanceExtensionProperties("", &n, nil), "enumerate instance extensions"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := check(vk.EnumerateInstanceExtensionProperties("", &n, props), "enumerate instance extensions"); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names, nil
}

// Backend owns one vk.Instance.
type Backend struct {
	opts     Options
	instance vk.Instance
	debug    vk.DebugReportCallback
	hasDebug bool
	log      atomic.Pointer[slog.Logger]

	adaptersOnce sync.Once
	adapters     []*Adapter
	adaptersErr  error
}

// New loads the Vulkan loader and creates an instance. It fails with
// hal.ErrBackendNotAvailable when no loader or ICD is installed.
func New(opts ...Option) (*Backend, error) {
	o := Options{AppName: "vkq", APIVersion: Version{Major: 1}}
	for _, fn := range opts {
		fn(&o)
	}
	if err := initLoader(o.ProcAddr); err != nil {
		return nil, err
	}

	b := &Backend{opts: o}
	b.log.Store(slog.New(discard{}))

	available, err := SupportedExtensions()
	if err != nil {
		return nil, errors.Mark(err, hal.ErrBackendNotAvailable)
	}
	exts := slices.Clone(o.InstanceExtensions)
	for _, e := range exts {
		if !slices.Contains(available, e) {
			return nil, errors.Wrapf(hal.ErrMissingExtension, "instance extension %s", e)
		}
	}
	// Surfaces need VK_KHR_surface even without a window system
	// extension, so enable it whenever the loader has it.
	if slices.Contains(available, surfaceExt) && !slices.Contains(exts, surfaceExt) {
		exts = append(exts, surfaceExt)
	}
	var layers []string
	if o.Validation {
		if l, err := SupportedLayers(); err == nil && slices.Contains(l, validationLayer) {
			layers = append(layers, validationLayer)
		}
		if slices.Contains(available, debugReportExt) {
			exts = append(exts, debugReportExt)
		}
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         o.APIVersion.vk(),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   safeString(o.AppName),
		PEngineName:        safeString("vkq"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: safeStrings(exts),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}
	if err := check(vk.CreateInstance(&createInfo, nil, &b.instance), "create instance"); err != nil {
		return nil, errors.Mark(err, hal.ErrBackendNotAvailable)
	}
	vk.InitInstance(b.instance)

	if slices.Contains(exts, debugReportExt) {
		b.installDebugCallback()
	}
	return b, nil
}

func (b *Backend) Name() string { return "vulkan" }

// Instance exposes the native instance, for window systems that create
// surfaces themselves.
func (b *Backend) Instance() vk.Instance { return b.instance }

// SetLogger routes backend diagnostics, including validation reports,
// to l.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discard{})
	}
	b.log.Store(l)
}

func (b *Backend) logger() *slog.Logger { return b.log.Load() }

func (b *Backend) installDebugCallback() {
	err := check(vk.CreateDebugReportCallback(b.instance, &vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: b.debugReport,
	}, nil, &b.debug), "create debug report callback")
	if err != nil {
		b.logger().Warn("vulkan: validation output unavailable", "err", err)
		return
	}
	b.hasDebug = true
}

func (b *Backend) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	level := slog.LevelDebug
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		level = slog.LevelError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		level = slog.LevelWarn
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		level = slog.LevelInfo
	}
	b.logger().Log(context.Background(), level, "vulkan: "+pMessage, "layer", pLayerPrefix, "code", messageCode)
	return vk.Bool32(vk.False)
}

func (b *Backend) Adapters() ([]hal.Adapter, error) {
	b.adaptersOnce.Do(func() {
		b.adapters, b.adaptersErr = b.physicalDevices()
	})
	if b.adaptersErr != nil {
		return nil, b.adaptersErr
	}
	ret := make([]hal.Adapter, len(b.adapters))
	for i, a := range b.adapters {
		ret[i] = a
	}
	return ret, nil
}

func (b *Backend) physicalDevices() ([]*Adapter, error) {
	var n uint32
	if err := check(vk.EnumeratePhysicalDevices(b.instance, &n, nil), "enumerate physical devices"); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	devices := make([]vk.PhysicalDevice, n)
	if err := check(vk.EnumeratePhysicalDevices(b.instance, &n, devices), "enumerate physical devices"); err != nil {
		return nil, err
	}
	ret := make([]*Adapter, 0, n)
	for _, pd := range devices[:n] {
		a, err := newAdapter(b, pd)
		if err != nil {
			return nil, err
		}
		ret = append(ret, a)
	}
	return ret, nil
}

// NewSurface wraps a window surface. create receives the vk.Instance and
// returns the native VkSurfaceKHR handle, which is what
// glfw.Window.CreateWindowSurface does.
func (b *Backend) NewSurface(create func(instance any) (uintptr, error)) (*Surface, error) {
	ptr, err := create(b.instance)
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: create window surface")
	}
	return &Surface{backend: b, vk: vk.SurfaceFromPointer(ptr)}, nil
}

// Destroy destroys the instance. Devices and surfaces must be gone.
func (b *Backend) Destroy() {
	if b.instance == nil {
		return
	}
	if b.hasDebug {
		vk.DestroyDebugReportCallback(b.instance, b.debug, nil)
		b.hasDebug = false
	}
	vk.DestroyInstance(b.instance, nil)
	b.instance = nil
}

type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discard) WithGroup(string) slog.Handler           { return d }
