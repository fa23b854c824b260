package vkq

import (
	"fmt"

	"github.com/celer/vkq/hal"
)

// Adapter is one physical accelerator reported by a backend.
type Adapter struct {
	Index int
	info  hal.AdapterInfo
	hal   hal.Adapter
}

// Adapters enumerates the accelerators of b in backend order.
func Adapters(b hal.Backend) ([]*Adapter, error) {
	has, err := b.Adapters()
	if err != nil {
		return nil, err
	}
	ret := make([]*Adapter, len(has))
	for i, a := range has {
		ret[i] = &Adapter{Index: i, info: a.Info(), hal: a}
	}
	return ret, nil
}

func (a *Adapter) Name() string          { return a.info.Name }
func (a *Adapter) Info() hal.AdapterInfo { return a.info }
func (a *Adapter) HAL() hal.Adapter      { return a.hal }

func (a *Adapter) String() string {
	return fmt.Sprintf("%s (%s)", a.info.Name, a.info.Kind)
}

func (a *Adapter) QueueFamilies() QueueFamilySlice {
	fams := a.hal.QueueFamilies()
	ret := make(QueueFamilySlice, len(fams))
	for i, f := range fams {
		ret[i] = &QueueFamily{Index: f.Index, Count: f.Count, Caps: f.Caps, Adapter: a}
	}
	return ret
}

type QueueFamily struct {
	Index   int
	Count   int
	Caps    hal.Capability
	Adapter *Adapter
}

func (q *QueueFamily) Supports(c hal.Capability) bool { return q.Caps.Has(c) }
func (q *QueueFamily) IsCompute() bool                { return q.Caps.Has(hal.CapCompute) }
func (q *QueueFamily) IsGraphics() bool               { return q.Caps.Has(hal.CapGraphics) }
func (q *QueueFamily) IsTransfer() bool               { return q.Caps.Has(hal.CapTransfer) }

func (q *QueueFamily) SupportsPresent(s hal.Surface) bool {
	return q.Adapter.hal.SupportsPresent(q.Index, s)
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Count: %d Compute: %v Graphics: %v Transfer: %v }",
		q.Index, q.Count, q.IsCompute(), q.IsGraphics(), q.IsTransfer())
}

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make(QueueFamilySlice, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

// FilterCaps keeps families whose capability set contains c.
func (ql QueueFamilySlice) FilterCaps(c hal.Capability) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.Supports(c)
	})
}

func (ql QueueFamilySlice) FilterCompute() QueueFamilySlice {
	return ql.FilterCaps(hal.CapCompute)
}

func (ql QueueFamilySlice) FilterGraphics() QueueFamilySlice {
	return ql.FilterCaps(hal.CapGraphics)
}

func (ql QueueFamilySlice) FilterTransfer() QueueFamilySlice {
	return ql.FilterCaps(hal.CapTransfer)
}

func (ql QueueFamilySlice) FilterPresent(s hal.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.SupportsPresent(s)
	})
}

func (ql QueueFamilySlice) FilterGraphicsAndPresent(s hal.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsGraphics() && q.SupportsPresent(s)
	})
}
