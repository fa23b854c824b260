package vkq_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq"
	"github.com/celer/vkq/hal"
	"github.com/celer/vkq/hal/soft"
)

func smallHeap(size int64) soft.Option {
	a := soft.DefaultAdapter()
	a.HeapSize = size
	return soft.WithAdapters(a)
}

func TestCreateBufferIsZeroed(t *testing.T) {
	d, _ := open(t, nil)
	b, err := vkq.CreateBuffer(d, vkq.BufferDesc{Label: "zeros", Usage: hal.BufferStorage, HostVisible: true, Size: 64})
	require.NoError(t, err)
	data, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 64), data)
	assert.Equal(t, int64(64), b.Size())
	assert.True(t, b.HostVisible())
	assert.Equal(t, "zeros", b.Label())
}

func TestBufferAllocationFailures(t *testing.T) {
	d, _ := open(t, nil, smallHeap(1024))

	_, err := vkq.CreateBuffer(d, vkq.BufferDesc{Size: 0})
	assert.True(t, errors.Is(err, vkq.ErrResourceAllocationFailed), "%v", err)
	_, err = vkq.CreateBufferFrom[uint32](d, "empty", hal.BufferStorage, nil)
	assert.True(t, errors.Is(err, vkq.ErrResourceAllocationFailed), "%v", err)

	_, err = vkq.CreateBuffer(d, vkq.BufferDesc{Size: 4096})
	assert.True(t, errors.Is(err, vkq.ErrResourceAllocationFailed), "%v", err)

	a, err := vkq.CreateBuffer(d, vkq.BufferDesc{Size: 512})
	require.NoError(t, err)
	b, err := vkq.CreateBuffer(d, vkq.BufferDesc{Size: 512})
	require.NoError(t, err)
	_, err = vkq.CreateBuffer(d, vkq.BufferDesc{Size: 1})
	assert.True(t, errors.Is(err, vkq.ErrResourceAllocationFailed), "heap is full: %v", err)

	// Freed memory is reusable.
	require.NoError(t, a.Destroy())
	_, err = vkq.CreateBuffer(d, vkq.BufferDesc{Size: 256})
	assert.NoError(t, err)
	require.NoError(t, b.Destroy())
}

func TestImageAllocationFailures(t *testing.T) {
	d, _ := open(t, nil, smallHeap(1024))
	for _, desc := range []vkq.ImageDesc{
		{Extent: hal.Extent2D(0, 4), Format: hal.FormatRGBA8Unorm},
		{Extent: hal.Extent2D(4, 4), Format: hal.FormatUndefined},
		{Extent: hal.Extent2D(64, 64), Format: hal.FormatRGBA8Unorm},
	} {
		_, err := vkq.CreateImage(d, desc, nil)
		assert.True(t, errors.Is(err, vkq.ErrResourceAllocationFailed), "%s %s: %v", desc.Extent, desc.Format, err)
	}
	img, err := vkq.CreateImage(d, vkq.ImageDesc{Extent: hal.Extent2D(8, 8), Format: hal.FormatRGBA8Unorm}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(256), img.ByteSize())
	assert.Equal(t, 1, img.Extent().Depth)
}

func TestCreateImageOnForeignFamily(t *testing.T) {
	d, _ := open(t, nil)
	adapters, err := vkq.Adapters(twoAdapters())
	require.NoError(t, err)
	foreign := adapters[1].QueueFamilies()[0]
	_, err = vkq.CreateImage(d, vkq.ImageDesc{Extent: hal.Extent2D(4, 4), Format: hal.FormatRGBA8Unorm}, foreign)
	assert.True(t, errors.Is(err, vkq.ErrResourceAllocationFailed), "%v", err)
}

func TestHostAccessRanges(t *testing.T) {
	d, _ := open(t, nil)
	b, err := vkq.CreateBufferFrom(d, "ints", hal.BufferStorage, []uint32{1, 2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, vkq.WriteElements(b, 2, []uint32{30, 40}))
	out, err := vkq.ReadElements[uint32](b)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 30, 40}, out)

	assert.Error(t, vkq.WriteElements(b, 3, []uint32{5, 6}))
	assert.Error(t, b.Write(-1, []byte{0}))
	assert.Error(t, b.Write(16, []byte{0}))

	// Trailing bytes that do not fill an element are dropped.
	triples, err := vkq.ReadElements[[3]uint32](b)
	require.NoError(t, err)
	assert.Equal(t, [][3]uint32{{1, 2, 30}}, triples)

	local, err := vkq.CreateBuffer(d, vkq.BufferDesc{Usage: hal.BufferStorage, Size: 16})
	require.NoError(t, err)
	_, err = local.Read()
	assert.Error(t, err, "device-local buffers have no host mapping")
	assert.Error(t, local.Write(0, le32(1)))
}

func TestDestroyIsFinal(t *testing.T) {
	d, _ := open(t, nil)
	live := d.Live()
	b, err := vkq.CreateBuffer(d, vkq.BufferDesc{Size: 16, HostVisible: true})
	require.NoError(t, err)
	assert.Equal(t, live+1, d.Live())
	require.NoError(t, b.Destroy())
	assert.Equal(t, live, d.Live())

	assert.NoError(t, b.Destroy(), "destroying twice is a no-op")
	assert.True(t, errors.Is(b.Write(0, le32(1)), vkq.ErrResourceDestroyed))
}
