package vkq

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	units "github.com/docker/go-units"

	"github.com/celer/vkq/hal"
)

// SwapchainExtension is requested whenever a device must present.
const SwapchainExtension = "VK_KHR_swapchain"

// DefaultQueuePriority is the relative scheduling weight of the queue.
const DefaultQueuePriority = 0.5

// SelectionPolicy controls ResolveDevice. The zero value selects the
// first adapter with a graphics-capable queue family.
type SelectionPolicy struct {
	// Required is the capability set the queue family must contain.
	// Zero means hal.CapGraphics.
	Required hal.Capability
	// Surface, when set, also requires presentation support to it and
	// enables SwapchainExtension.
	Surface hal.Surface
	// Extensions are device extensions that must be enabled.
	Extensions []string
	// Priority is the queue priority in [0,1]. Zero means
	// DefaultQueuePriority.
	Priority float32
	// Accept further restricts candidate families. Candidates are
	// still visited in enumeration order.
	Accept func(*QueueFamily) bool
	// Verbose logs the adapter enumeration at Info level.
	Verbose bool
}

func (p SelectionPolicy) required() hal.Capability {
	if p.Required == 0 {
		return hal.CapGraphics
	}
	return p.Required
}

func (p SelectionPolicy) priority() float32 {
	if p.Priority == 0 {
		return DefaultQueuePriority
	}
	return p.Priority
}

func (p SelectionPolicy) extensions() []string {
	exts := slices.Clone(p.Extensions)
	if p.Surface != nil && !slices.Contains(exts, SwapchainExtension) {
		exts = append(exts, SwapchainExtension)
	}
	return exts
}

// ResolveDevice picks the first adapter of b exposing a queue family
// that satisfies policy, and opens a device with one queue on it.
func ResolveDevice(b hal.Backend, policy SelectionPolicy) (_ *Device, _ *Queue, err error) {
	trackBackend(b)
	defer func() {
		if err != nil {
			untrackBackend(b)
		}
	}()
	adapters, err := Adapters(b)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrapf(err, "resolve: enumerate %s adapters", b.Name()), ErrNoDeviceFound)
	}
	if len(adapters) == 0 {
		return nil, nil, errors.Wrapf(ErrNoDeviceFound, "resolve: backend %s", b.Name())
	}
	if policy.Verbose {
		logAdapters(Logger(), adapters)
	}

	required := policy.required()
	for _, a := range adapters {
		fams := a.QueueFamilies().FilterCaps(required)
		if policy.Surface != nil {
			fams = fams.FilterPresent(policy.Surface)
		}
		if policy.Accept != nil {
			fams = fams.Filter(policy.Accept)
		}
		if len(fams) == 0 {
			continue
		}
		return openDevice(b, a, fams[0], policy)
	}
	return nil, nil, errors.Wrapf(ErrNoSuitableQueueFamily,
		"resolve: none of %d adapters has a %s queue family", len(adapters), required)
}

func openDevice(b hal.Backend, a *Adapter, qf *QueueFamily, policy SelectionPolicy) (*Device, *Queue, error) {
	exts := policy.extensions()
	hd, err := a.hal.Open(hal.DeviceDesc{
		Family:     qf.Index,
		Priority:   policy.priority(),
		Extensions: exts,
	})
	if err != nil {
		return nil, nil, errors.Mark(
			errors.Wrapf(err, "resolve: open %q family %d", a.Name(), qf.Index),
			ErrDeviceCreationFailed)
	}
	d := newDevice(a, qf, hd)
	d.backend = b
	Logger().Info("vkq: device selected",
		slog.String("adapter", a.Name()),
		slog.Int("family", qf.Index),
		slog.String("caps", qf.Caps.String()),
		slog.Any("extensions", exts))
	return d, d.queue, nil
}

func logAdapters(l *slog.Logger, adapters []*Adapter) {
	for _, a := range adapters {
		l.Info("vkq: adapter", slog.Int("index", a.Index), slog.String("name", a.Name()), slog.String("kind", a.info.Kind))
		for _, qf := range a.QueueFamilies() {
			l.Info("vkq: queue family",
				slog.Int("adapter", a.Index),
				slog.Int("index", qf.Index),
				slog.Int("queues", qf.Count),
				slog.String("caps", qf.Caps.String()))
		}
	}
}

// DescribeAdapters writes a human-readable listing of every adapter of b
// and its queue families.
func DescribeAdapters(w io.Writer, b hal.Backend) error {
	adapters, err := Adapters(b)
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		_, err = fmt.Fprintf(w, "no adapters on backend %s\n", b.Name())
		return err
	}
	var sb strings.Builder
	for _, a := range adapters {
		fmt.Fprintf(&sb, "\n%s\n", a)
		fmt.Fprintf(&sb, "-----------------------------\n")
		fmt.Fprintf(&sb, "\n\tQueue Families\n")
		for _, qf := range a.QueueFamilies() {
			fmt.Fprintf(&sb, "\t\t%s\n", qf)
		}
		if a.info.HeapSize > 0 {
			fmt.Fprintf(&sb, "\n\tDevice heap\n\t\t%s\n", units.BytesSize(float64(a.info.HeapSize)))
		}
		if len(a.info.Extensions) > 0 {
			fmt.Fprintf(&sb, "\n\tSupported Extensions\n")
			for _, e := range a.info.Extensions {
				fmt.Fprintf(&sb, "\t\t%s\n", e)
			}
		}
	}
	_, err = io.WriteString(w, sb.String())
	return err
}
