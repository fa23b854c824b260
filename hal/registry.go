package hal

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Factory creates a backend instance. It fails when the driver is not
// usable on this machine (no loader, no display).
type Factory func() (Backend, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default: hardware first, software fallback.
	priority = []string{"vulkan", "soft"}
)

// Register makes a backend factory available under name. It is usually
// called from the init function of a backend package; a second
// registration under the same name replaces the first.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Unregister removes a backend. Useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open instantiates the backend registered under name.
func Open(name string) (Backend, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrBackendNotAvailable, "backend %q is not registered", name)
	}
	b, err := f()
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open backend %q", name), ErrBackendNotAvailable)
	}
	return b, nil
}

// Default opens the first backend in priority order that initializes,
// then any other registered backend.
func Default() (Backend, error) {
	tried := make(map[string]bool)
	var errs error
	for _, n := range append(append([]string{}, priority...), Available()...) {
		if tried[n] || !registered(n) {
			continue
		}
		tried[n] = true
		b, err := Open(n)
		if err == nil {
			return b, nil
		}
		errs = errors.CombineErrors(errs, err)
	}
	if errs == nil {
		errs = ErrBackendNotAvailable
	}
	return nil, errs
}

func registered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}
