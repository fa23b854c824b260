package vkq

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

// Window is the part of a window the present loop needs.
type Window interface {
	// CloseRequested reports whether the user asked to close the window.
	// The loop polls it once per presented frame.
	CloseRequested() bool
}

type StopReason int

const (
	StopError StopReason = iota
	StopCloseRequested
	StopSurfaceLost
	StopCanceled
	StopFrameLimit
)

func (r StopReason) String() string {
	return [...]string{"error", "close requested", "surface lost", "canceled", "frame limit"}[r]
}

// PresentLoop acquires swapchain images, renders into them and presents
// them until the window asks to close or the surface goes away.
type PresentLoop struct {
	Queue     *Queue
	Swapchain *Swapchain
	Window    Window

	// Setup is called once with the swapchain images and returns one
	// framebuffer per image.
	Setup func(images []*Image, extent hal.Extent) ([]*Framebuffer, error)
	// Frame returns the command list rendering into fb. The loop does not
	// take ownership of the list.
	Frame func(index int, fb *Framebuffer) (*CommandList, error)

	// AcquireTimeout bounds each acquire; zero waits forever. A timed out
	// acquire is retried.
	AcquireTimeout time.Duration
	// MaxFrames stops the loop after that many frames when positive.
	MaxFrames int

	frames int
}

// Frames returns the number of frames presented by the last Run.
func (l *PresentLoop) Frames() int { return l.frames }

// Run drives the loop. Losing the surface ends the loop without an
// error. Work still in flight is waited for before Run returns.
func (l *PresentLoop) Run(ctx context.Context) (reason StopReason, err error) {
	if l.Queue == nil || l.Swapchain == nil || l.Window == nil || l.Setup == nil || l.Frame == nil {
		return StopError, errors.New("present loop: queue, swapchain, window, setup and frame are all required")
	}
	sc := l.Swapchain
	images := sc.Images()
	fbs, err := l.Setup(images, sc.Extent())
	if err != nil {
		return StopError, errors.Wrap(err, "present loop setup")
	}
	if len(fbs) != len(images) {
		return StopError, errors.Newf("present loop setup: %d framebuffers for %d images", len(fbs), len(images))
	}
	timeout := l.AcquireTimeout
	if timeout == 0 {
		timeout = Forever
	}

	l.frames = 0
	inflight := make([]*Future, len(images))
	defer func() {
		for _, f := range inflight {
			if f == nil {
				continue
			}
			if werr := f.Wait(Forever); werr != nil && err == nil && reason != StopSurfaceLost {
				reason, err = StopError, werr
			}
		}
		Logger().Info("vkq: present loop stopped", "reason", reason.String(), "frames", l.frames)
	}()

	for {
		if ctx.Err() != nil {
			return StopCanceled, nil
		}
		idx, acquired, err := sc.AcquireNextImage(timeout)
		switch {
		case errors.Is(err, ErrSurfaceLost):
			return StopSurfaceLost, nil
		case errors.Is(err, ErrTimeout):
			continue
		case err != nil:
			return StopError, err
		}

		// The image is free again, but the previous frame drawn into it
		// may still hold its framebuffer.
		if prev := inflight[idx]; prev != nil {
			inflight[idx] = nil
			if err := prev.Wait(Forever); err != nil {
				inflight[idx] = giveBack(sc, idx, acquired)
				return StopError, errors.Wrapf(err, "frame on image %d", idx)
			}
		}

		cl, err := l.Frame(idx, fbs[idx])
		if err != nil {
			inflight[idx] = giveBack(sc, idx, acquired)
			return StopError, errors.Wrapf(err, "frame on image %d", idx)
		}
		submitted, err := acquired.ThenExecute(cl)
		if err != nil {
			inflight[idx] = giveBack(sc, idx, acquired)
			return StopError, err
		}
		presented, err := submitted.ThenPresent(sc, idx)
		if errors.Is(err, ErrSurfaceLost) {
			inflight[idx] = submitted
			return StopSurfaceLost, nil
		} else if err != nil {
			inflight[idx] = submitted
			return StopError, err
		}
		if inflight[idx], err = presented.ThenSignalFence(); err != nil {
			return StopError, err
		}
		l.frames++

		if l.Window.CloseRequested() {
			return StopCloseRequested, nil
		}
		if l.MaxFrames > 0 && l.frames >= l.MaxFrames {
			return StopFrameLimit, nil
		}
	}
}

// giveBack presents an acquired image that was never rendered so the
// swapchain can hand it out again. The returned future is waited on
// before Run returns.
func giveBack(sc *Swapchain, idx int, acquired *Future) *Future {
	presented, err := acquired.ThenPresent(sc, idx)
	if err != nil {
		Logger().Warn("vkq: acquired image not returned", "image", idx, "err", err)
		return acquired
	}
	return presented
}
