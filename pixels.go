package vkq

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// PackRGBA converts tightly packed 8-bit pixels of format to RGBA8 in
// place and returns them. Other formats are rejected.
func PackRGBA(format hal.Format, pixels []byte) ([]byte, error) {
	if len(pixels)%4 != 0 {
		return nil, errors.Newf("pack rgba: %d bytes is not whole pixels", len(pixels))
	}
	switch format {
	case hal.FormatRGBA8Unorm, hal.FormatRGBA8Srgb:
	case hal.FormatBGRA8Unorm, hal.FormatBGRA8Srgb:
		for i := 0; i+3 < len(pixels); i += 4 {
			pixels[i], pixels[i+2] = pixels[i+2], pixels[i]
		}
	default:
		return nil, errors.Newf("pack rgba: cannot convert %s", format)
	}
	return pixels, nil
}

// ReadbackImage records, submits and waits for a copy of img into a new
// host-visible buffer, and returns the contents as packed RGBA8. It
// waits on after first when given. Contents left undefined by a faulted
// submission fail with ErrSubmissionFaulted.
func ReadbackImage(img *Image, after *Future) ([]byte, error) {
	d := img.dev
	buf, err := CreateBuffer(d, BufferDesc{
		Label:       "readback",
		Usage:       hal.BufferTransferDst,
		HostVisible: true,
		Size:        img.ByteSize(),
	})
	if err != nil {
		return nil, err
	}
	defer buf.destroyWhenIdle()

	cl, err := Record(d, img.family, CopyImageToBuffer{Image: img, Buffer: buf})
	if err != nil {
		return nil, err
	}
	defer cl.Release()
	f, err := d.queue.Submit(cl, after)
	if err != nil {
		return nil, err
	}
	if err := f.Wait(Forever); err != nil {
		return nil, err
	}
	if img.undefined.Load() {
		return nil, errors.Wrapf(ErrSubmissionFaulted, "read back %s: contents undefined after a faulted submission", &img.resource)
	}
	data, err := buf.Read()
	if err != nil {
		return nil, err
	}
	return PackRGBA(img.desc.Format, data)
}
