// Package soft is a CPU implementation of hal. Each queue executes its
// submissions in order on a dedicated goroutine; draws go through a
// scanline-free edge-function rasterizer and dispatches fan workgroups
// out over an errgroup.
//
// Shader modules are not machine code: a module blob names a Module of
// Go kernels registered with RegisterModule (see ModuleBlob).
package soft

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/celer/vkq/hal"
)

// DefaultHeapSize is the device-local budget of an adapter created
// without an explicit HeapSize.
const DefaultHeapSize = 512 << 20

// AdapterKind is reported in hal.AdapterInfo.Kind by every soft adapter.
const AdapterKind = "cpu"

func init() {
	hal.Register("soft", func() (hal.Backend, error) {
		return New(), nil
	})
}

// AdapterConfig describes one simulated accelerator.
type AdapterConfig struct {
	Name       string
	Families   []hal.QueueFamilyInfo
	Extensions []string
	HeapSize   int64
}

// DefaultAdapter is a single accelerator with one universal queue family.
func DefaultAdapter() AdapterConfig {
	return AdapterConfig{
		Name: "vkq software rasterizer",
		Families: []hal.QueueFamilyInfo{
			{Index: 0, Count: 1, Caps: hal.CapGraphics | hal.CapCompute | hal.CapTransfer | hal.CapPresent},
		},
		Extensions: []string{"VK_KHR_swapchain"},
		HeapSize:   DefaultHeapSize,
	}
}

type Option func(*Backend)

// WithAdapters replaces the default adapter list.
func WithAdapters(cfgs ...AdapterConfig) Option {
	return func(b *Backend) {
		b.configs = cfgs
	}
}

// WithModules registers kernel modules visible only to this backend.
func WithModules(mods ...*Module) Option {
	return func(b *Backend) {
		for _, m := range mods {
			b.modules[m.Name] = m
		}
	}
}

// WithWorkers bounds the number of goroutines used by one dispatch or
// draw. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(b *Backend) {
		b.workers = n
	}
}

type Backend struct {
	configs  []AdapterConfig
	adapters []*Adapter
	modules  map[string]*Module
	workers  int
	log      atomic.Pointer[slog.Logger]
}

// New creates a software backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		configs: []AdapterConfig{DefaultAdapter()},
		modules: make(map[string]*Module),
	}
	b.log.Store(slog.New(discard{}))
	for _, o := range opts {
		o(b)
	}
	for i, c := range b.configs {
		if c.HeapSize == 0 {
			c.HeapSize = DefaultHeapSize
		}
		b.adapters = append(b.adapters, newAdapter(b, i, c))
	}
	return b
}

func (b *Backend) Name() string { return "soft" }

func (b *Backend) Adapters() ([]hal.Adapter, error) {
	ret := make([]hal.Adapter, len(b.adapters))
	for i, a := range b.adapters {
		ret[i] = a
	}
	return ret, nil
}

func (b *Backend) Destroy() {}

// SetLogger routes backend diagnostics to l.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discard{})
	}
	b.log.Store(l)
}

func (b *Backend) logger() *slog.Logger { return b.log.Load() }

func (b *Backend) module(name string) (*Module, bool) {
	if m, ok := b.modules[name]; ok {
		return m, true
	}
	return lookupModule(name)
}

type discard struct{}

func (discard) Enabled(context.Context, slog.Level) bool  { return false }
func (discard) Handle(context.Context, slog.Record) error { return nil }
func (d discard) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discard) WithGroup(string) slog.Handler           { return d }
