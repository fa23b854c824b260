// Package window provides the presentation targets the present loop
// polls: a GLFW window whose surface the vulkan backend renders to, and
// a headless stand-in that asks to close after a fixed number of frames.
//
// GLFW must be driven from the main OS thread. Programs using Open lock
// it in an init function and call Init before anything else.
package window

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// ErrNoVulkan is returned by Open when GLFW finds no Vulkan loader.
var ErrNoVulkan = errors.New("window: vulkan is not supported by glfw")

// Init initializes GLFW. Call it on the main thread.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "window: init glfw")
	}
	return nil
}

// Terminate releases GLFW. Every window must be destroyed first.
func Terminate() { glfw.Terminate() }

// VulkanSupported reports whether GLFW found a Vulkan loader.
func VulkanSupported() bool { return glfw.VulkanSupported() }

// ProcAddr returns vkGetInstanceProcAddr as resolved by GLFW, for
// vulkan.WithProcAddr.
func ProcAddr() unsafe.Pointer { return glfw.GetVulkanGetInstanceProcAddress() }

type Options struct {
	Title     string
	Width     int
	Height    int
	Resizable bool
}

// Window is a GLFW window without a client API, for Vulkan surfaces.
// Escape or the close button request closing.
type Window struct {
	w *glfw.Window
}

// Open creates a window. Init must have succeeded.
func Open(opts Options) (*Window, error) {
	if !glfw.VulkanSupported() {
		return nil, ErrNoVulkan
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	if opts.Resizable {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Resizable, glfw.False)
	}
	w, err := glfw.CreateWindow(opts.Width, opts.Height, opts.Title, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "window: create %dx%d", opts.Width, opts.Height)
	}
	w.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})
	return &Window{w: w}, nil
}

// CloseRequested processes pending events and reports whether the user
// asked to close the window.
func (w *Window) CloseRequested() bool {
	glfw.PollEvents()
	return w.w.ShouldClose()
}

func (w *Window) RequestClose() { w.w.SetShouldClose(true) }

// RequiredExtensions lists the instance extensions surfaces need.
func (w *Window) RequiredExtensions() []string {
	return w.w.GetRequiredInstanceExtensions()
}

// CreateSurface creates a VkSurfaceKHR for instance, which must be a
// vk.Instance. It matches the callback vulkan.Backend.NewSurface takes.
func (w *Window) CreateSurface(instance any) (uintptr, error) {
	return w.w.CreateWindowSurface(instance, nil)
}

// FramebufferSize is the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) {
	return w.w.GetFramebufferSize()
}

func (w *Window) Destroy() { w.w.Destroy() }

// Headless requests closing once it has been polled Frames times. A
// zero Frames never requests closing.
type Headless struct {
	Frames int
	polls  atomic.Int64
}

func (h *Headless) CloseRequested() bool {
	n := h.polls.Add(1)
	return h.Frames > 0 && n >= int64(h.Frames)
}

// Polls counts CloseRequested calls.
func (h *Headless) Polls() int { return int(h.polls.Load()) }
