package vkq

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/celer/vkq/hal"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

// backends counts the open devices and resolves in progress per backend.
var (
	backendsMu sync.Mutex
	backends   = make(map[hal.Backend]int)
)

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures logging for vkq and the backends it has resolved
// devices on. By default nothing is logged; nil restores that.
//
// Levels:
//   - Debug: resource creation and per-submission diagnostics
//   - Info: lifecycle events (adapter selected, swapchain created)
//   - Warn: non-fatal problems such as failed releases
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)

	backendsMu.Lock()
	bs := make([]hal.Backend, 0, len(backends))
	for b := range backends {
		bs = append(bs, b)
	}
	backendsMu.Unlock()
	for _, b := range bs {
		propagateLogger(b, l)
	}
}

// Logger returns the logger in use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(b hal.Backend, l *slog.Logger) {
	if s, ok := b.(loggerSetter); ok {
		s.SetLogger(l)
	}
}

// trackBackend remembers b so later SetLogger calls reach it, until
// the matching untrackBackend.
func trackBackend(b hal.Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if backends[b]++; backends[b] == 1 {
		propagateLogger(b, Logger())
	}
}

func untrackBackend(b hal.Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if n := backends[b]; n > 1 {
		backends[b] = n - 1
		return
	}
	delete(backends, b)
}
