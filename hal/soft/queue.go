package soft

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// semaphore carries the outcome of the submission that signalled it, so
// a fault upstream faults every batch that waits on it.
type semaphore struct {
	ch chan error
}

func newSemaphore() *semaphore {
	return &semaphore{ch: make(chan error, 1)}
}

func (s *semaphore) signal(err error) {
	select {
	case s.ch <- err:
	default:
	}
}

func (*semaphore) Destroy() {}

type fence struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFence() *fence {
	return &fence{done: make(chan struct{})}
}

func (f *fence) signal(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *fence) Wait(timeout time.Duration) error {
	switch {
	case timeout < 0:
		<-f.done
		return f.err
	case timeout == 0:
		select {
		case <-f.done:
			return f.err
		default:
			return errors.WithStack(hal.ErrTimeout)
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.done:
		return f.err
	case <-t.C:
		return errors.WithStack(hal.ErrTimeout)
	}
}

func (f *fence) Status() (bool, error) {
	select {
	case <-f.done:
		return true, f.err
	default:
		return false, nil
	}
}

func (*fence) Destroy() {}

type job struct {
	wait    []*semaphore
	signal  []*semaphore
	fence   *fence
	cmds    []*CommandBuffer
	present *Swapchain
	index   int
}

// Queue executes jobs in submission order on one goroutine.
type Queue struct {
	dev    *Device
	family int

	mu       sync.Mutex
	jobs     []job
	wake     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newQueue(d *Device, family int) *Queue {
	q := &Queue{
		dev:    d,
		family: family,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Family() int { return q.family }

func (q *Queue) enqueue(j job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func semaphores(in []hal.Semaphore) []*semaphore {
	out := make([]*semaphore, len(in))
	for i, s := range in {
		out[i] = s.(*semaphore)
	}
	return out
}

func (q *Queue) Submit(info hal.SubmitInfo) error {
	j := job{wait: semaphores(info.Wait), signal: semaphores(info.Signal)}
	if info.Fence != nil {
		j.fence = info.Fence.(*fence)
	}
	for _, c := range info.Commands {
		cb := c.(*CommandBuffer)
		if cb.recording {
			return errors.New("soft: submit of a command buffer that is still recording")
		}
		j.cmds = append(j.cmds, cb)
	}
	q.enqueue(j)
	return nil
}

func (q *Queue) Present(info hal.PresentInfo) error {
	sc := info.Swapchain.(*Swapchain)
	if sc.surface.Lost() {
		return errors.WithStack(hal.ErrSurfaceLost)
	}
	q.enqueue(job{wait: semaphores(info.Wait), present: sc, index: info.Index})
	return nil
}

func (q *Queue) WaitIdle() error {
	f := newFence()
	q.enqueue(job{fence: f})
	select {
	case <-f.done:
	case <-q.done:
	}
	return nil
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.quit:
				return
			}
		}
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		if !q.exec(j) {
			return
		}
	}
}

// exec runs one job and reports false if the queue was stopped while
// the job was waiting.
func (q *Queue) exec(j job) bool {
	var err error
	for _, s := range j.wait {
		select {
		case e := <-s.ch:
			if e != nil && err == nil {
				err = e
			}
		case <-q.quit:
			q.abandon(j)
			return false
		}
	}
	switch {
	case j.present != nil:
		j.present.present(j.index, err)
	case err == nil:
		for _, cb := range j.cmds {
			if e := cb.execute(); e != nil {
				if !errors.Is(e, hal.ErrDeviceLost) {
					e = errors.Mark(e, hal.ErrDeviceLost)
				}
				err = e
				break
			}
		}
	}
	if err != nil {
		q.dev.adapter.backend.logger().Warn("soft: submission faulted", "family", q.family, "err", err)
	}
	for _, s := range j.signal {
		s.signal(err)
	}
	if j.fence != nil {
		j.fence.signal(err)
	}
	return true
}

func (q *Queue) abandon(j job) {
	err := errors.Mark(errors.New("soft: device destroyed with work pending"), hal.ErrDeviceLost)
	if j.fence != nil {
		j.fence.signal(err)
	}
	for _, s := range j.signal {
		s.signal(err)
	}
}

// stop terminates the executor and faults every job still queued.
func (q *Queue) stop() {
	q.stopOnce.Do(func() {
		close(q.quit)
		<-q.done
		q.mu.Lock()
		pending := q.jobs
		q.jobs = nil
		q.mu.Unlock()
		for _, j := range pending {
			q.abandon(j)
		}
	})
}
