package vkq

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

type FutureState int

const (
	FuturePending FutureState = iota
	FutureSignaled
	FutureFaulted
)

func (s FutureState) String() string {
	switch s {
	case FutureSignaled:
		return "signaled"
	case FutureFaulted:
		return "faulted"
	}
	return "pending"
}

// Forever is the Wait timeout that never expires.
const Forever time.Duration = -1

// pollInterval bounds how long WaitContext goes without checking its
// context.
const pollInterval = 5 * time.Millisecond

// Future is a one-shot completion token for work handed to a queue.
// Futures chain: each successor starts once its predecessor's work has
// been scheduled, and completing a future completes its predecessors.
type Future struct {
	queue *Queue
	kind  string
	prev  *Future

	// sem is signalled on the device when the work finishes. At most one
	// successor waits on it.
	sem      hal.Semaphore
	semTaken bool
	fence    hal.Fence

	refs    []*resource
	writes  []*resource
	effects []effect
	// waitSems are predecessor signals this future consumed.
	waitSems []hal.Semaphore

	state   FutureState
	err     error
	retired bool
}

func (f *Future) Queue() *Queue { return f.queue }

// Prev returns the future this one was chained after, or nil.
func (f *Future) Prev() *Future { return f.prev }

func (f *Future) String() string {
	s, _ := f.peek()
	return f.kind + " future (" + s.String() + ")"
}

func (f *Future) peek() (FutureState, error) {
	f.queue.mu.Lock()
	defer f.queue.mu.Unlock()
	return f.state, f.err
}

// Status reports the state without blocking. A future with no fence of
// its own stays pending until a successor completes or it is waited on.
func (f *Future) Status() (FutureState, error) {
	q := f.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if f.retired {
		return f.state, f.err
	}
	if f.fence == nil {
		return FuturePending, nil
	}
	if done, _ := f.fence.Status(); !done {
		return FuturePending, nil
	}
	q.retireLocked(f)
	return f.state, f.err
}

// Wait blocks until the future completes or timeout passes. Forever
// never times out; zero only checks. A pending future past its timeout
// fails with ErrTimeout and stays pending. Work that faulted fails with
// ErrSubmissionFaulted.
func (f *Future) Wait(timeout time.Duration) error {
	q := f.queue
	q.mu.Lock()
	if f.retired {
		q.mu.Unlock()
		return f.err
	}
	if f.fence == nil {
		// Waiting needs a fence. If a successor already waits on the
		// signal, queue order alone puts the fence behind it.
		var waits []hal.Semaphore
		if f.sem != nil && !f.semTaken {
			waits = []hal.Semaphore{f.sem}
		}
		fence, err := q.flushLocked(waits)
		if err != nil {
			q.mu.Unlock()
			return errors.Wrapf(err, "wait %s", f.kind)
		}
		f.fence = fence
		if len(waits) > 0 {
			f.semTaken = true
			f.waitSems = append(f.waitSems, waits...)
		}
	}
	fence := f.fence
	q.mu.Unlock()

	if err := fence.Wait(timeout); errors.Is(err, hal.ErrTimeout) {
		return errors.Wrapf(ErrTimeout, "wait %s after %s", f.kind, timeout)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !f.retired {
		q.retireLocked(f)
	}
	return f.err
}

// WaitContext is Wait bounded by ctx instead of a duration.
func (f *Future) WaitContext(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "wait %s", f.kind)
		}
		err := f.Wait(pollInterval)
		if !errors.Is(err, ErrTimeout) {
			return err
		}
	}
}

// ThenExecute submits cl to run after f.
func (f *Future) ThenExecute(cl *CommandList) (*Future, error) {
	return f.queue.Submit(cl, f)
}

// ThenPresent presents image index of sc after f.
func (f *Future) ThenPresent(sc *Swapchain, index int) (*Future, error) {
	return f.queue.Present(sc, index, f)
}

// ThenSignalFence returns a future with a fence of its own that
// completes after f. Waiting on it completes the whole chain.
func (f *Future) ThenSignalFence() (*Future, error) {
	return f.queue.signalAfter(f)
}

// retireLocked completes f and its unretired predecessors, oldest first.
// f's work must have finished. Each future inherits the fault of its
// predecessor.
func (q *Queue) retireLocked(f *Future) {
	chain := []*Future{f}
	for p := f.prev; p != nil && !p.retired; p = p.prev {
		if p.fence != nil {
			if done, _ := p.fence.Status(); !done {
				break
			}
		}
		chain = append(chain, p)
	}

	var upstream error
	if last := chain[len(chain)-1]; last.prev != nil && last.prev.retired {
		upstream = last.prev.err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		err := upstream
		if n.fence != nil {
			if _, e := n.fence.Status(); e != nil {
				err = e
			}
		}
		n.retire(err)
		upstream = n.err
	}
}

func (f *Future) retire(err error) {
	if f.retired {
		return
	}
	f.retired = true
	if err != nil {
		f.state = FutureFaulted
		if !errors.Is(err, ErrSubmissionFaulted) {
			err = errors.Mark(errors.Wrapf(err, "%s faulted", f.kind), ErrSubmissionFaulted)
		}
		f.err = err
		for _, r := range f.writes {
			r.undefined.Store(true)
		}
		Logger().Warn("vkq: submission faulted", "kind", f.kind, "err", err)
	} else {
		f.state = FutureSignaled
		settle(f.effects)
	}
	unretain(f.refs)
	if f.fence != nil {
		f.fence.Destroy()
	}
	if f.sem != nil && !f.semTaken {
		f.sem.Destroy()
	}
	for _, s := range f.waitSems {
		s.Destroy()
	}
	f.queue.forget(f)
}
