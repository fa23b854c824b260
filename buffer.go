package vkq

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

type BufferDesc struct {
	Label       string
	Usage       hal.BufferUsage
	HostVisible bool
	Size        int64
}

// Buffer is linear device memory. Host access goes through Read and
// Write, which refuse to touch a buffer an unretired submission uses.
type Buffer struct {
	resource
	hal  hal.Buffer
	desc BufferDesc
}

// CreateBuffer allocates a zero-initialized buffer.
func CreateBuffer(d *Device, desc BufferDesc) (*Buffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if desc.Size <= 0 {
		return nil, errors.Wrapf(ErrResourceAllocationFailed, "create buffer %q: size %d", desc.Label, desc.Size)
	}
	hb, err := d.hal.NewBuffer(hal.BufferDesc{Size: desc.Size, Usage: desc.Usage, HostVisible: desc.HostVisible})
	if err != nil {
		return nil, errors.Wrapf(classify(err, ErrResourceAllocationFailed), "create buffer %q (%d bytes)", desc.Label, desc.Size)
	}
	if m := hb.Bytes(); m != nil {
		clear(m)
	}
	b := &Buffer{hal: hb, desc: desc}
	b.init(d, kindBuffer, desc.Label, hb.Destroy)
	Logger().Debug("vkq: buffer created", "label", desc.Label, "size", desc.Size, "host_visible", desc.HostVisible)
	return b, nil
}

// CreateBufferFrom allocates a host-visible buffer sized to hold exactly
// elems and copies them in. T must not contain pointers.
func CreateBufferFrom[T any](d *Device, label string, usage hal.BufferUsage, elems []T) (*Buffer, error) {
	if len(elems) == 0 {
		return nil, errors.Wrapf(ErrResourceAllocationFailed, "create buffer %q: no elements", label)
	}
	src := asBytes(elems)
	b, err := CreateBuffer(d, BufferDesc{Label: label, Usage: usage, HostVisible: true, Size: int64(len(src))})
	if err != nil {
		return nil, err
	}
	copy(b.hal.Bytes(), src)
	return b, nil
}

func asBytes[T any](elems []T) []byte {
	if len(elems) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&elems[0])), len(elems)*int(unsafe.Sizeof(zero)))
}

func (b *Buffer) Size() int64            { return b.desc.Size }
func (b *Buffer) Usage() hal.BufferUsage { return b.desc.Usage }
func (b *Buffer) HostVisible() bool      { return b.desc.HostVisible }
func (b *Buffer) Label() string          { return b.desc.Label }
func (b *Buffer) HAL() hal.Buffer        { return b.hal }

// Undefined reports whether a faulted submission wrote the buffer, or
// copied undefined contents into it, since it was last fully rewritten.
func (b *Buffer) Undefined() bool { return b.undefined.Load() }

func (b *Buffer) hostAccess(op string) error {
	if err := b.alive(); err != nil {
		return errors.Wrap(err, op)
	}
	if !b.desc.HostVisible {
		return errors.Newf("%s %s: buffer is not host visible", op, &b.resource)
	}
	if b.busy() {
		return errors.Wrapf(ErrResourceBusy, "%s %s", op, &b.resource)
	}
	return nil
}

// Write copies data into the buffer at offset. A write covering the
// whole buffer clears the undefined state left by a faulted submission.
func (b *Buffer) Write(offset int64, data []byte) error {
	if err := b.hostAccess("write"); err != nil {
		return err
	}
	if offset < 0 || offset+int64(len(data)) > b.desc.Size {
		return errors.Newf("write %s: range [%d,%d) outside %d bytes", &b.resource, offset, offset+int64(len(data)), b.desc.Size)
	}
	copy(b.hal.Bytes()[offset:], data)
	if offset == 0 && int64(len(data)) == b.desc.Size {
		b.undefined.Store(false)
	}
	return nil
}

// Read returns a copy of the buffer contents.
func (b *Buffer) Read() ([]byte, error) {
	if err := b.hostAccess("read"); err != nil {
		return nil, err
	}
	if b.undefined.Load() {
		return nil, errors.Wrapf(ErrSubmissionFaulted, "read %s: contents undefined after a faulted submission", &b.resource)
	}
	out := make([]byte, b.desc.Size)
	copy(out, b.hal.Bytes())
	return out, nil
}

// ReadElements reads the buffer as a slice of T. Trailing bytes that do
// not fill a whole element are dropped.
func ReadElements[T any](b *Buffer) ([]T, error) {
	data, err := b.Read()
	if err != nil {
		return nil, err
	}
	var zero T
	n := len(data) / int(unsafe.Sizeof(zero))
	out := make([]T, n)
	copy(asBytes(out), data)
	return out, nil
}

// WriteElements writes elems at element index first.
func WriteElements[T any](b *Buffer, first int, elems []T) error {
	var zero T
	return b.Write(int64(first)*int64(unsafe.Sizeof(zero)), asBytes(elems))
}

// Destroy frees the buffer. It fails with ErrResourceBusy while a
// submission referencing it is unretired.
func (b *Buffer) Destroy() error {
	return b.destroy()
}
