package vkq_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkq"
)

func sequence(n int) []uint32 {
	s := make([]uint32, n)
	for i := range s {
		s[i] = uint32(i)
	}
	return s
}

func TestSubmitRoundTrip(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "increment", sequence(65536))

	f, err := q.Submit(job.list, nil)
	require.NoError(t, err)
	require.NoError(t, f.Wait(vkq.Forever))
	st, err := f.Status()
	require.NoError(t, err)
	assert.Equal(t, vkq.FutureSignaled, st)

	out, err := vkq.ReadElements[uint32](job.buf)
	require.NoError(t, err)
	for i, v := range out {
		if !assert.Equal(t, uint32(i+1), v, "element %d", i) {
			break
		}
	}
	assert.Zero(t, q.Outstanding())
}

func TestResubmitRunsAgain(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "increment", sequence(256))

	var last *vkq.Future
	for i := 0; i < 3; i++ {
		f, err := q.Submit(job.list, last)
		require.NoError(t, err)
		last = f
	}
	require.NoError(t, last.Wait(vkq.Forever))
	out, err := vkq.ReadElements[uint32](job.buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), out[0])
	assert.Equal(t, uint32(255+3), out[255])

	// The list is untouched by submission and runs again after a host
	// rewrite.
	require.NoError(t, vkq.WriteElements(job.buf, 0, sequence(256)))
	f, err := q.Submit(job.list, nil)
	require.NoError(t, err)
	require.NoError(t, f.Wait(vkq.Forever))
	out, err = vkq.ReadElements[uint32](job.buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), out[0])
}

func TestWaitZeroOnPendingTimesOut(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "gated", sequence(4))

	f, err := q.Submit(job.list, nil)
	require.NoError(t, err)
	err = f.Wait(0)
	assert.True(t, errors.Is(err, vkq.ErrTimeout), "%v", err)
	err = f.Wait(10 * time.Millisecond)
	assert.True(t, errors.Is(err, vkq.ErrTimeout), "%v", err)
	st, err := f.Status()
	require.NoError(t, err)
	assert.Equal(t, vkq.FuturePending, st)

	close(k.gate)
	require.NoError(t, f.Wait(vkq.Forever))
	st, _ = f.Status()
	assert.Equal(t, vkq.FutureSignaled, st)
}

func TestWaitContext(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "gated", sequence(1))
	f, err := q.Submit(job.list, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = f.WaitContext(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "%v", err)

	close(k.gate)
	require.NoError(t, f.WaitContext(context.Background()))
}

func TestBusyResourcesRefuseHostAccess(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "gated", sequence(8))
	f, err := q.Submit(job.list, nil)
	require.NoError(t, err)

	_, err = job.buf.Read()
	assert.True(t, errors.Is(err, vkq.ErrResourceBusy), "%v", err)
	assert.True(t, errors.Is(job.buf.Write(0, le32(1)), vkq.ErrResourceBusy))
	assert.True(t, errors.Is(job.buf.Destroy(), vkq.ErrResourceBusy))
	assert.True(t, errors.Is(job.list.Destroy(), vkq.ErrResourceBusy))
	assert.True(t, errors.Is(job.pipe.Destroy(), vkq.ErrResourceBusy))

	close(k.gate)
	require.NoError(t, f.Wait(vkq.Forever))
	require.NoError(t, job.list.Destroy())
	require.NoError(t, job.set.Destroy())
	require.NoError(t, job.pipe.Destroy())
	require.NoError(t, job.buf.Destroy())

	_, err = q.Submit(job.list, nil)
	assert.True(t, errors.Is(err, vkq.ErrResourceDestroyed), "%v", err)
	_, err = job.buf.Read()
	assert.True(t, errors.Is(err, vkq.ErrResourceDestroyed), "%v", err)
}

func TestFinishedWorkIsReapedBeforeReportingBusy(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "increment", sequence(8))
	_, err := q.Submit(job.list, nil)
	require.NoError(t, err)
	// Nobody waits on the future; draining the device is enough.
	require.NoError(t, d.WaitIdle())
	_, err = job.buf.Read()
	assert.NoError(t, err)
}

func TestReleaseDefersDestruction(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "gated", sequence(2))
	f, err := q.Submit(job.list, nil)
	require.NoError(t, err)
	live := d.Live()
	job.list.Release()
	assert.Equal(t, live, d.Live())

	close(k.gate)
	require.NoError(t, f.Wait(vkq.Forever))
	assert.Equal(t, live-1, d.Live())
}

func TestFaultPropagatesAndLeavesWritesUndefined(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	m := k.load(t, d)
	bad := newKernelJob(t, d, m, "fault", sequence(16))
	good := newKernelJob(t, d, m, "increment", sequence(16))

	f1, err := q.Submit(bad.list, nil)
	require.NoError(t, err)
	f2, err := f1.ThenExecute(good.list)
	require.NoError(t, err)
	done, err := f2.ThenSignalFence()
	require.NoError(t, err)

	err = done.Wait(vkq.Forever)
	assert.True(t, errors.Is(err, vkq.ErrSubmissionFaulted), "%v", err)
	for _, f := range []*vkq.Future{f1, f2, done} {
		st, err := f.Status()
		assert.Equal(t, vkq.FutureFaulted, st)
		assert.True(t, errors.Is(err, vkq.ErrSubmissionFaulted))
	}

	assert.True(t, bad.buf.Undefined())
	_, err = bad.buf.Read()
	assert.True(t, errors.Is(err, vkq.ErrSubmissionFaulted), "%v", err)
	// The chained list was never run, and its buffer is undefined too.
	assert.True(t, good.buf.Undefined())

	// A full host write makes the contents defined again.
	require.NoError(t, vkq.WriteElements(bad.buf, 0, sequence(16)))
	assert.False(t, bad.buf.Undefined())
	out, err := vkq.ReadElements[uint32](bad.buf)
	require.NoError(t, err)
	assert.Equal(t, sequence(16), out)

	// The queue keeps working.
	f, err := q.Submit(good.list, nil)
	require.NoError(t, err)
	require.NoError(t, f.Wait(vkq.Forever))
}

func TestFutureHasOneSuccessor(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	m := k.load(t, d)
	a := newKernelJob(t, d, m, "gated", sequence(1))
	b := newKernelJob(t, d, m, "increment", sequence(1))

	f, err := q.Submit(a.list, nil)
	require.NoError(t, err)
	_, err = f.ThenExecute(b.list)
	require.NoError(t, err)
	_, err = f.ThenExecute(b.list)
	assert.True(t, errors.Is(err, vkq.ErrInvalidRecordingState), "%v", err)

	// Waiting on the consumed future still works.
	close(k.gate)
	require.NoError(t, f.Wait(vkq.Forever))
	require.NoError(t, q.WaitIdle())
}

func TestSignalFenceCoversEarlierWork(t *testing.T) {
	k := newKernels()
	d, q := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "increment", sequence(32))
	first, err := q.Submit(job.list, nil)
	require.NoError(t, err)
	fence, err := q.SignalFence()
	require.NoError(t, err)
	require.NoError(t, fence.Wait(vkq.Forever))
	// first has a fence of its own; it completes with the queue.
	require.NoError(t, first.Wait(0))
}

func TestDeviceDestroyTearsDownLiveResources(t *testing.T) {
	k := newKernels()
	d, _ := open(t, k)
	job := newKernelJob(t, d, k.load(t, d), "increment", sequence(4))
	assert.Equal(t, 5, d.Live())
	require.NoError(t, d.Destroy())
	assert.Zero(t, d.Live())

	_, err := vkq.CreateBuffer(d, vkq.BufferDesc{Size: 4})
	assert.True(t, errors.Is(err, vkq.ErrResourceDestroyed), "%v", err)
	assert.NoError(t, job.buf.Destroy())
}
