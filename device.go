package vkq

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// Device is a logical connection to one accelerator with a single
// queue. It owns every resource created from it.
type Device struct {
	adapter *Adapter
	family  *QueueFamily
	hal     hal.Device
	queue   *Queue
	// backend is set on devices opened by ResolveDevice.
	backend hal.Backend

	mu        sync.Mutex
	live      map[resourceKind]map[*resource]struct{}
	destroyed bool
}

func newDevice(a *Adapter, qf *QueueFamily, hd hal.Device) *Device {
	d := &Device{
		adapter: a,
		family:  qf,
		hal:     hd,
		live:    make(map[resourceKind]map[*resource]struct{}),
	}
	d.queue = &Queue{dev: d, family: qf, hal: hd.Queue()}
	return d
}

func (d *Device) Adapter() *Adapter    { return d.adapter }
func (d *Device) Queue() *Queue        { return d.queue }
func (d *Device) Family() *QueueFamily { return d.family }
func (d *Device) HAL() hal.Device      { return d.hal }
func (d *Device) String() string {
	return fmt.Sprintf("{ Adapter: %s Family: %s }", d.adapter, d.family)
}
func (d *Device) register(r *resource)   { d.track(r, true) }
func (d *Device) unregister(r *resource) { d.track(r, false) }

func (d *Device) track(r *resource, add bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.live[r.kind]
	if add {
		if set == nil {
			set = make(map[*resource]struct{})
			d.live[r.kind] = set
		}
		set[r] = struct{}{}
		return
	}
	delete(set, r)
}

// Live returns the number of resources of every kind still alive.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.live {
		n += len(s)
	}
	return n
}

func (d *Device) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return errors.Wrap(ErrResourceDestroyed, "device")
	}
	return nil
}

// WaitIdle blocks until the queue has drained and retires every
// outstanding submission.
func (d *Device) WaitIdle() error {
	return d.queue.WaitIdle()
}

// Destroy waits for the device to go idle and then tears down every
// resource still alive, dependents first, before closing the device.
func (d *Device) Destroy() error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	err := d.queue.WaitIdle()
	for _, k := range teardownOrder {
		d.mu.Lock()
		rs := make([]*resource, 0, len(d.live[k]))
		for r := range d.live[k] {
			rs = append(rs, r)
		}
		d.mu.Unlock()
		for _, r := range rs {
			r.teardown()
		}
	}

	d.mu.Lock()
	d.destroyed = true
	b := d.backend
	d.backend = nil
	d.mu.Unlock()
	d.hal.Destroy()
	if b != nil {
		untrackBackend(b)
	}
	Logger().Info("vkq: device destroyed", "adapter", d.adapter.Name())
	return err
}
