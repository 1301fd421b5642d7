package gpu

import "errors"

// Device errors.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("gpu: no GPU adapter available")

	// ErrNilDevice is returned when a nil device is passed.
	ErrNilDevice = errors.New("gpu: device is nil")

	// ErrDeviceLost is returned when the device fails while executing work.
	ErrDeviceLost = errors.New("gpu: device lost")

	// ErrDeviceDestroyed is returned when using a destroyed device.
	ErrDeviceDestroyed = errors.New("gpu: device has been destroyed")

	// ErrShaderCompilation is returned when kernel source fails to compile.
	ErrShaderCompilation = errors.New("gpu: shader compilation failed")

	// ErrValidation is returned for commands that do not match the resources
	// they reference.
	ErrValidation = errors.New("gpu: validation error")

	// ErrForeignResource is returned when a resource created by one device is
	// handed to another.
	ErrForeignResource = errors.New("gpu: resource belongs to a different device")

	// ErrFenceTimeout is returned when submitted work did not finish in time.
	ErrFenceTimeout = errors.New("gpu: timed out waiting for device")
)
