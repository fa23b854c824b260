package hal

import "github.com/cockroachdb/errors"

// Errors reported by backends. Implementations wrap or mark their native
// results with these so the core can classify them with errors.Is.
var (
	ErrBackendNotAvailable = errors.New("hal: backend not available")
	ErrTimeout             = errors.New("hal: timeout")
	ErrOutOfMemory         = errors.New("hal: out of memory")
	ErrDeviceLost          = errors.New("hal: device lost")
	ErrSurfaceLost         = errors.New("hal: surface lost")
	ErrUnsupported         = errors.New("hal: unsupported")
	ErrMissingExtension    = errors.New("hal: missing extension")
)
