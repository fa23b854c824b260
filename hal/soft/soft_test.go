package soft

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq/hal"
)

func openDefault(t *testing.T) *Device {
	t.Helper()
	adapters, err := New().Adapters()
	require.NoError(t, err)
	hd, err := adapters[0].Open(hal.DeviceDesc{Family: 0, Priority: 1})
	require.NoError(t, err)
	d := hd.(*Device)
	t.Cleanup(d.Destroy)
	return d
}

func TestEncodeTexel(t *testing.T) {
	red := [4]float32{1, 0, 0, 1}
	for _, tc := range []struct {
		format hal.Format
		want   []byte
	}{
		{hal.FormatRGBA8Unorm, []byte{255, 0, 0, 255}},
		{hal.FormatBGRA8Unorm, []byte{0, 0, 255, 255}},
		{hal.FormatRGBA8Srgb, []byte{255, 0, 0, 255}},
		{hal.FormatBGRA8Srgb, []byte{0, 0, 255, 255}},
	} {
		dst := make([]byte, 4)
		encodeTexel(tc.format, dst, red)
		assert.Equal(t, tc.want, dst, "%s", tc.format)
	}

	// Out of range values saturate.
	dst := make([]byte, 4)
	encodeTexel(hal.FormatRGBA8Unorm, dst, [4]float32{-1, 2, 0.5, 1})
	assert.Equal(t, []byte{0, 255, 128, 255}, dst)

	f := make([]byte, 8)
	encodeTexel(hal.FormatRG32Float, f, [4]float32{0.25, -3})
	assert.Equal(t, [4]float32{0.25, -3}, decodeTexel(hal.FormatRG32Float, f))
}

func TestSRGBRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 0.001, 0.2, 0.5, 0.9, 1} {
		dst := make([]byte, 4)
		encodeTexel(hal.FormatRGBA8Srgb, dst, [4]float32{v, v, v, 1})
		got := decodeTexel(hal.FormatRGBA8Srgb, dst)
		assert.InDelta(t, v, got[0], 0.01, "%v", v)
	}
	// Mid grey is brighter once encoded.
	dst := make([]byte, 4)
	encodeTexel(hal.FormatRGBA8Srgb, dst, [4]float32{0.5, 0.5, 0.5, 1})
	assert.Equal(t, byte(188), dst[0])
}

func TestFillClipsToExtent(t *testing.T) {
	img := &Image{desc: hal.ImageDesc{Extent: hal.Extent2D(4, 3), Format: hal.FormatRGBA8Unorm}, data: make([]byte, 4*3*4)}
	fill(img, hal.Extent2D(2, 2), hal.ClearValue{0, 1, 0, 1})
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			px := img.data[(y*4+x)*4:][:4]
			if x < 2 && y < 2 {
				assert.Equal(t, []byte{0, 255, 0, 255}, px, "(%d,%d)", x, y)
			} else {
				assert.Equal(t, []byte{0, 0, 0, 0}, px, "(%d,%d)", x, y)
			}
		}
	}
}

func TestParallelCoversRange(t *testing.T) {
	for _, tc := range []struct{ n, workers int }{{1, 4}, {7, 2}, {1000, 3}, {64, 0}} {
		seen := make([]atomic.Int32, tc.n)
		err := parallel(tc.n, tc.workers, func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				seen[i].Add(1)
			}
			return nil
		})
		require.NoError(t, err)
		for i := range seen {
			require.Equal(t, int32(1), seen[i].Load(), "n=%d index %d", tc.n, i)
		}
	}
	assert.NoError(t, parallel(0, 4, func(int, int) error { panic("never called") }))
}

func TestParallelPanicIsDeviceLost(t *testing.T) {
	err := parallel(16, 4, func(lo, _ int) error {
		if lo == 0 {
			panic("out of bounds")
		}
		return nil
	})
	assert.True(t, errors.Is(err, hal.ErrDeviceLost), "%v", err)
	assert.ErrorContains(t, err, "out of bounds")
}

func TestFenceWait(t *testing.T) {
	f := newFence()
	assert.True(t, errors.Is(f.Wait(0), hal.ErrTimeout))
	assert.True(t, errors.Is(f.Wait(time.Millisecond), hal.ErrTimeout))
	done, err := f.Status()
	assert.False(t, done)
	assert.NoError(t, err)

	boom := errors.New("boom")
	f.signal(boom)
	f.signal(nil)
	assert.Equal(t, boom, f.Wait(-1))
	done, err = f.Status()
	assert.True(t, done)
	assert.Equal(t, boom, err)
}

func TestQueuePropagatesUpstreamFault(t *testing.T) {
	d := openDefault(t)
	q := d.Queue()

	upstream := newSemaphore()
	downstream := newSemaphore()
	f := newFence()
	require.NoError(t, q.Submit(hal.SubmitInfo{
		Wait:   []hal.Semaphore{upstream},
		Signal: []hal.Semaphore{downstream},
		Fence:  f,
	}))
	assert.True(t, errors.Is(f.Wait(0), hal.ErrTimeout), "the batch waits for its semaphore")

	fault := errors.Mark(errors.New("upstream fault"), hal.ErrDeviceLost)
	upstream.signal(fault)
	assert.True(t, errors.Is(f.Wait(-1), hal.ErrDeviceLost))
	assert.True(t, errors.Is(<-downstream.ch, hal.ErrDeviceLost))

	// Later batches are unaffected.
	ok := newFence()
	require.NoError(t, q.Submit(hal.SubmitInfo{Fence: ok}))
	assert.NoError(t, ok.Wait(-1))
}

func TestDestroyAbandonsWaitingWork(t *testing.T) {
	d := openDefault(t)
	never := newSemaphore()
	f := newFence()
	require.NoError(t, d.Queue().Submit(hal.SubmitInfo{Wait: []hal.Semaphore{never}, Fence: f}))
	d.Destroy()
	assert.True(t, errors.Is(f.Wait(-1), hal.ErrDeviceLost))
	assert.NoError(t, d.WaitIdle(), "a stopped queue does not block")
}

func TestOpenChecks(t *testing.T) {
	adapters, err := New().Adapters()
	require.NoError(t, err)
	a := adapters[0]
	_, err = a.Open(hal.DeviceDesc{Family: 3})
	assert.Error(t, err)
	_, err = a.Open(hal.DeviceDesc{Priority: -0.5})
	assert.Error(t, err)
	_, err = a.Open(hal.DeviceDesc{Extensions: []string{"VK_EXT_nothing"}})
	assert.True(t, errors.Is(err, hal.ErrMissingExtension), "%v", err)
}

func TestHeapAccounting(t *testing.T) {
	cfg := DefaultAdapter()
	cfg.HeapSize = 1 << 10
	adapters, err := New(WithAdapters(cfg)).Adapters()
	require.NoError(t, err)
	hd, err := adapters[0].Open(hal.DeviceDesc{})
	require.NoError(t, err)
	defer hd.Destroy()

	b, err := hd.NewBuffer(hal.BufferDesc{Size: 1000})
	require.NoError(t, err)
	_, err = hd.NewBuffer(hal.BufferDesc{Size: 100})
	assert.True(t, errors.Is(err, hal.ErrOutOfMemory), "%v", err)
	assert.Nil(t, b.Bytes(), "device-local buffers are not mapped")
	b.Destroy()
	b.Destroy()
	_, err = hd.NewBuffer(hal.BufferDesc{Size: 100, HostVisible: true})
	assert.NoError(t, err)
}

func TestSurfaceAcquire(t *testing.T) {
	d := openDefault(t)
	s := NewSurface(SurfaceConfig{Extent: hal.Extent2D(2, 2), MinImageCount: 1, MaxImageCount: 1})
	hs, err := d.NewSwapchain(hal.SwapchainDesc{
		Surface:     s,
		Format:      hal.FormatRGBA8Unorm,
		Extent:      hal.Extent2D(2, 2),
		ImageCount:  1,
		PresentMode: hal.PresentFifo,
	})
	require.NoError(t, err)
	sc := hs.(*Swapchain)

	sem := newSemaphore()
	i, err := sc.Acquire(-1, sem)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.NoError(t, <-sem.ch, "acquire signals its semaphore")

	_, err = sc.Acquire(0, nil)
	assert.True(t, errors.Is(err, hal.ErrTimeout))

	var frames []Frame
	s.cfg.OnPresent = func(f Frame) { frames = append(frames, f) }
	sc.images[0].data[0] = 7
	sc.present(0, nil)
	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].Seq)
	assert.Equal(t, byte(7), frames[0].Pixels[0])

	// A faulted frame is recycled without being shown.
	_, err = sc.Acquire(-1, nil)
	require.NoError(t, err)
	sc.present(0, errors.New("fault"))
	assert.Len(t, frames, 1)
	assert.Equal(t, 1, s.Presents())

	// Losing the surface wakes a blocked acquire.
	_, err = sc.Acquire(-1, nil)
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() {
		_, err := sc.Acquire(-1, nil)
		errc <- err
	}()
	time.Sleep(5 * time.Millisecond)
	s.Lose()
	assert.True(t, errors.Is(<-errc, hal.ErrSurfaceLost))
	assert.Equal(t, 5, s.Acquires())

	_, err = d.NewSwapchain(hal.SwapchainDesc{Surface: s, Format: hal.FormatRGBA8Unorm, Extent: hal.Extent2D(2, 2), ImageCount: 1})
	assert.True(t, errors.Is(err, hal.ErrSurfaceLost))
}
