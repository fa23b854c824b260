package vkq

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// Queue submits command lists and presents swapchain images. It tracks
// every unretired submission so resources they reference stay alive.
type Queue struct {
	dev    *Device
	family *QueueFamily
	hal    hal.Queue

	mu          sync.Mutex
	outstanding []*Future
}

func (q *Queue) Device() *Device      { return q.dev }
func (q *Queue) Family() *QueueFamily { return q.family }
func (q *Queue) String() string       { return q.family.String() }

// Outstanding returns the number of unretired futures.
func (q *Queue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.outstanding)
}

// waitOnLocked turns the GPU-side signal of f into a wait for a new
// operation. A retired future needs no wait. The signal of a pending
// future can be waited on by one successor only.
func (q *Queue) waitOnLocked(f *Future) ([]hal.Semaphore, error) {
	if f == nil || f.retired || f.sem == nil {
		return nil, nil
	}
	if f.queue != q {
		return nil, errors.Wrapf(ErrInvalidRecordingState, "%s future belongs to another queue", f.kind)
	}
	if f.semTaken {
		return nil, errors.Wrapf(ErrInvalidRecordingState, "%s future already has a successor", f.kind)
	}
	f.semTaken = true
	return []hal.Semaphore{f.sem}, nil
}

func (q *Queue) newSemaphore() (hal.Semaphore, error) {
	s, err := q.dev.hal.NewSemaphore()
	return s, errors.Wrap(classify(err, ErrResourceAllocationFailed), "create semaphore")
}

func (q *Queue) newFence() (hal.Fence, error) {
	f, err := q.dev.hal.NewFence()
	return f, errors.Wrap(classify(err, ErrResourceAllocationFailed), "create fence")
}

// Submit hands cl to the device, to start once waitOn's work has been
// scheduled. The returned future signals when cl has finished.
func (q *Queue) Submit(cl *CommandList, waitOn *Future) (*Future, error) {
	if err := q.dev.checkOpen(); err != nil {
		return nil, err
	}
	if cl == nil {
		return nil, errors.Wrap(ErrInvalidRecordingState, "submit: no command list")
	}
	if cl.family.Adapter != q.family.Adapter || cl.family.Index != q.family.Index {
		return nil, errors.Wrapf(ErrInvalidRecordingState,
			"submit: list recorded for family %d, queue is family %d", cl.family.Index, q.family.Index)
	}
	if err := cl.alive(); err != nil {
		return nil, errors.Wrap(err, "submit")
	}
	for _, r := range cl.refs {
		if err := r.alive(); err != nil {
			return nil, errors.Wrap(err, "submit")
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	waits, err := q.waitOnLocked(waitOn)
	if err != nil {
		return nil, errors.Wrap(err, "submit")
	}
	undo := func() {
		if len(waits) > 0 {
			waitOn.semTaken = false
		}
	}
	sem, err := q.newSemaphore()
	if err != nil {
		undo()
		return nil, err
	}
	fence, err := q.newFence()
	if err != nil {
		sem.Destroy()
		undo()
		return nil, err
	}
	err = q.hal.Submit(hal.SubmitInfo{
		Commands: []hal.CommandBuffer{cl.hal},
		Wait:     waits,
		Signal:   []hal.Semaphore{sem},
		Fence:    fence,
	})
	if err != nil {
		sem.Destroy()
		fence.Destroy()
		undo()
		return nil, errors.Wrap(classify(err, ErrSubmissionFaulted), "submit")
	}

	f := &Future{
		queue:    q,
		kind:     "submit",
		prev:     waitOn,
		sem:      sem,
		fence:    fence,
		refs:     append([]*resource{&cl.resource}, cl.refs...),
		writes:   cl.writes,
		effects:  cl.effects,
		waitSems: waits,
	}
	retain(f.refs)
	q.outstanding = append(q.outstanding, f)
	Logger().Debug("vkq: submitted", "ops", cl.ops, "chained", waitOn != nil)
	return f, nil
}

// Present queues image index of sc for display once after has been
// scheduled. The image must have been acquired and not yet presented.
func (q *Queue) Present(sc *Swapchain, index int, after *Future) (*Future, error) {
	if err := q.dev.checkOpen(); err != nil {
		return nil, err
	}
	if err := sc.alive(); err != nil {
		return nil, errors.Wrap(err, "present")
	}
	if index < 0 || index >= len(sc.images) {
		return nil, errors.Wrapf(ErrInvalidRecordingState, "present: image %d of %d", index, len(sc.images))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !sc.takeAcquired(index) {
		return nil, errors.Wrapf(ErrInvalidRecordingState, "present: image %d was not acquired", index)
	}
	waits, err := q.waitOnLocked(after)
	if err != nil {
		sc.setAcquired(index)
		return nil, errors.Wrap(err, "present")
	}
	err = q.hal.Present(hal.PresentInfo{Swapchain: sc.hal, Index: index, Wait: waits})
	if err != nil {
		if len(waits) > 0 {
			after.semTaken = false
		}
		return nil, errors.Wrapf(classify(err, ErrSubmissionFaulted), "present image %d", index)
	}
	img := &sc.images[index].resource
	f := &Future{
		queue:    q,
		kind:     "present",
		prev:     after,
		refs:     []*resource{&sc.resource, img},
		waitSems: waits,
	}
	retain(f.refs)
	q.outstanding = append(q.outstanding, f)
	return f, nil
}

// SignalFence returns a future that completes once every operation
// submitted to the queue so far has completed.
func (q *Queue) SignalFence() (*Future, error) {
	return q.signalAfter(nil)
}

func (q *Queue) signalAfter(after *Future) (*Future, error) {
	if err := q.dev.checkOpen(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	waits, err := q.waitOnLocked(after)
	if err != nil {
		return nil, errors.Wrap(err, "signal fence")
	}
	fence, err := q.flushLocked(waits)
	if err != nil {
		if len(waits) > 0 {
			after.semTaken = false
		}
		return nil, err
	}
	f := &Future{queue: q, kind: "fence", prev: after, fence: fence, waitSems: waits}
	q.outstanding = append(q.outstanding, f)
	return f, nil
}

// flushLocked submits an empty batch that waits on waits and signals a
// new fence.
func (q *Queue) flushLocked(waits []hal.Semaphore) (hal.Fence, error) {
	fence, err := q.newFence()
	if err != nil {
		return nil, err
	}
	if err := q.hal.Submit(hal.SubmitInfo{Wait: waits, Fence: fence}); err != nil {
		fence.Destroy()
		return nil, errors.Wrap(classify(err, ErrSubmissionFaulted), "flush")
	}
	return fence, nil
}

// reap retires every submission whose fence has signalled, without
// blocking.
func (q *Queue) reap() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, f := range slices.Clone(q.outstanding) {
		if f.retired || f.fence == nil {
			continue
		}
		if done, _ := f.fence.Status(); done {
			q.retireLocked(f)
		}
	}
}

// WaitIdle blocks until the device has drained the queue and retires
// every outstanding future.
func (q *Queue) WaitIdle() error {
	err := q.hal.WaitIdle()
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.outstanding) > 0 {
		q.retireLocked(q.outstanding[len(q.outstanding)-1])
	}
	return errors.Wrap(classify(err, ErrSubmissionFaulted), "wait idle")
}

func (q *Queue) forget(f *Future) {
	if i := slices.Index(q.outstanding, f); i >= 0 {
		q.outstanding = slices.Delete(q.outstanding, i, i+1)
	}
}
