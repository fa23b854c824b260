package soft

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/internal/suballoc"
)

type Adapter struct {
	backend *Backend
	index   int
	cfg     AdapterConfig
	heap    *suballoc.Heap
}

func newAdapter(b *Backend, index int, cfg AdapterConfig) *Adapter {
	return &Adapter{
		backend: b,
		index:   index,
		cfg:     cfg,
		heap:    &suballoc.Heap{Size: uint64(cfg.HeapSize)},
	}
}

func (a *Adapter) Info() hal.AdapterInfo {
	return hal.AdapterInfo{
		Name:       a.cfg.Name,
		Kind:       AdapterKind,
		Extensions: slices.Clone(a.cfg.Extensions),
		HeapSize:   a.cfg.HeapSize,
	}
}

func (a *Adapter) QueueFamilies() []hal.QueueFamilyInfo {
	return slices.Clone(a.cfg.Families)
}

func (a *Adapter) family(i int) (hal.QueueFamilyInfo, bool) {
	for _, f := range a.cfg.Families {
		if f.Index == i {
			return f, true
		}
	}
	return hal.QueueFamilyInfo{}, false
}

func (a *Adapter) SupportsPresent(family int, s hal.Surface) bool {
	f, ok := a.family(family)
	if !ok || !f.Caps.Has(hal.CapPresent) {
		return false
	}
	_, ok = s.(*Surface)
	return ok
}

func (a *Adapter) SurfaceCapabilities(s hal.Surface) (hal.SurfaceCapabilities, error) {
	ss, ok := s.(*Surface)
	if !ok {
		return hal.SurfaceCapabilities{}, errors.Wrapf(hal.ErrUnsupported, "surface %T does not belong to the soft backend", s)
	}
	if ss.Lost() {
		return hal.SurfaceCapabilities{}, errors.WithStack(hal.ErrSurfaceLost)
	}
	return ss.capabilities(), nil
}

func (a *Adapter) Open(desc hal.DeviceDesc) (hal.Device, error) {
	if _, ok := a.family(desc.Family); !ok {
		return nil, errors.Newf("soft: adapter %q has no queue family %d", a.cfg.Name, desc.Family)
	}
	if desc.Priority < 0 || desc.Priority > 1 {
		return nil, errors.Newf("soft: queue priority %v outside [0,1]", desc.Priority)
	}
	for _, ext := range desc.Extensions {
		if !slices.Contains(a.cfg.Extensions, ext) {
			return nil, errors.Wrapf(hal.ErrMissingExtension, "%s on %q", ext, a.cfg.Name)
		}
	}
	d := newDevice(a, desc)
	a.backend.logger().Debug("soft: device opened", "adapter", a.cfg.Name, "family", desc.Family)
	return d, nil
}
