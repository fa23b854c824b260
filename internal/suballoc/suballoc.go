// Package suballoc carves aligned ranges out of a fixed-size heap. The
// software backend accounts every buffer and image against one Heap per
// adapter so that exhausting device memory fails like a driver would.
package suballoc

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrExhausted is returned when no free range can hold a request.
var ErrExhausted = errors.New("suballoc: heap exhausted")

type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// Heap is a first-fit allocator over [0, Size). Live allocations are
// kept sorted by offset. Safe for concurrent use.
type Heap struct {
	Size uint64

	mu     sync.Mutex
	allocs []*Allocation
	used   uint64
}

func alignUp(a, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return a - m + align
}

// Allocate reserves size bytes starting at a multiple of align.
func (h *Heap) Allocate(size, align uint64) (*Allocation, error) {
	if size == 0 {
		size = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	at := -1
	var off uint64
	var prevEnd uint64
	for i, a := range h.allocs {
		l := alignUp(prevEnd, align)
		if l <= a.Offset && a.Offset-l >= size {
			at, off = i, l
			break
		}
		prevEnd = a.Offset + a.Size
	}
	if at == -1 {
		l := alignUp(prevEnd, align)
		if l > h.Size || h.Size-l < size {
			return nil, errors.Wrapf(ErrExhausted, "request %d bytes, %d of %d in use", size, h.used, h.Size)
		}
		at, off = len(h.allocs), l
	}

	na := &Allocation{Offset: off, Size: size}
	h.allocs = append(h.allocs, nil)
	copy(h.allocs[at+1:], h.allocs[at:])
	h.allocs[at] = na
	h.used += size
	return na, nil
}

// Free returns a to the heap. Freeing an allocation twice is a no-op.
func (h *Heap) Free(a *Allocation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.allocs {
		if c == a {
			h.allocs = append(h.allocs[:i], h.allocs[i+1:]...)
			h.used -= a.Size
			return
		}
	}
}

// Used returns the number of bytes currently allocated.
func (h *Heap) Used() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

func (h *Heap) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("%v", h.allocs)
}
