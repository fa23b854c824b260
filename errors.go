package vkq

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkq/hal"
)

var (
	ErrNoDeviceFound            = errors.New("vkq: no device found")
	ErrNoSuitableQueueFamily    = errors.New("vkq: no suitable queue family")
	ErrDeviceCreationFailed     = errors.New("vkq: device creation failed")
	ErrResourceAllocationFailed = errors.New("vkq: resource allocation failed")
	ErrDescriptorLayoutMismatch = errors.New("vkq: descriptor layout mismatch")
	ErrPipelineIncompatible     = errors.New("vkq: pipeline incompatible")
	ErrInvalidRecordingState    = errors.New("vkq: invalid recording state")
	ErrSubmissionFaulted        = errors.New("vkq: submission faulted")
	ErrSurfaceLost              = errors.New("vkq: surface lost")
	ErrTimeout                  = errors.New("vkq: timeout")

	// ErrResourceBusy is returned for host access to, or destruction of,
	// a resource that an unretired submission still references.
	ErrResourceBusy = errors.New("vkq: resource in use by the device")
	// ErrResourceDestroyed is returned when a destroyed resource is used.
	ErrResourceDestroyed = errors.New("vkq: resource destroyed")
)

// classify marks a backend error with the core sentinel it corresponds
// to, keeping the backend's own message and chain.
func classify(err error, fallback error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrTimeout):
		return errors.Mark(err, ErrTimeout)
	case errors.Is(err, hal.ErrSurfaceLost):
		return errors.Mark(err, ErrSurfaceLost)
	case errors.Is(err, hal.ErrOutOfMemory):
		return errors.Mark(err, ErrResourceAllocationFailed)
	case errors.Is(err, hal.ErrDeviceLost):
		return errors.Mark(err, ErrSubmissionFaulted)
	}
	if fallback != nil {
		return errors.Mark(err, fallback)
	}
	return err
}
