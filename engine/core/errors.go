package core

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceExhausted is returned when a fixed-capacity table or arena is full.
	// It signals a content-sizing error and must not be retried.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrArenaExhausted is the mesh arena flavour of ErrResourceExhausted.
	ErrArenaExhausted = fmt.Errorf("mesh arena exhausted: %w", ErrResourceExhausted)
	// ErrOutOfDeviceMemory is returned when a device allocation fails.
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	// ErrAccelerationBuildFailure is returned when a BLAS or TLAS build fails.
	ErrAccelerationBuildFailure = errors.New("acceleration structure build failure")
	// ErrAccelerationUnsupported is returned by devices that cannot build acceleration structures.
	ErrAccelerationUnsupported = fmt.Errorf("acceleration structures not supported by device: %w", ErrAccelerationBuildFailure)
	ErrInvalidHandle           = errors.New("invalid resource handle")
	ErrInvalidSlot             = errors.New("invalid bindless slot")
	ErrUnknown                 = errors.New("unknown")
)
