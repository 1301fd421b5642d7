package levenshtein

import (
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/Milo4uk/levenshtein-distance/internal/gpu"
	"github.com/Milo4uk/levenshtein-distance/internal/kernel"
)

// Backend selects the device a session runs on.
type Backend = gpu.Backend

// Backends.
const (
	// BackendAuto uses a Vulkan adapter when one is available and the
	// software device otherwise.
	BackendAuto = gpu.BackendAuto
	// BackendVulkan requires a Vulkan adapter.
	BackendVulkan = gpu.BackendVulkan
	// BackendSoftware runs the kernel on the host.
	BackendSoftware = gpu.BackendSoftware
)

// ParseBackend parses "auto", "vulkan" (or "gpu") and "software" (or "cpu").
func ParseBackend(s string) (Backend, error) {
	return gpu.ParseBackend(s)
}

// Padding and workgroup limits.
const (
	DefaultPadding       = kernel.DefaultPadding
	MaxPadding           = kernel.MaxPadding
	DefaultWorkgroupSize = kernel.DefaultWorkgroupSize
)

// Session defaults.
const (
	DefaultFenceTimeout = 30 * time.Second
	DefaultPollInterval = time.Millisecond
)

// SessionOption configures a Session during creation.
//
// Example:
//
//	s, err := levenshtein.NewSession(4096,
//	    levenshtein.WithPadding(32),
//	    levenshtein.WithBackend(levenshtein.BackendVulkan),
//	)
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	backend       Backend
	padding       int
	workgroupSize int
	workers       int
	fenceTimeout  time.Duration
	pollInterval  time.Duration
	provider      gpucontext.DeviceProvider

	// wrapDevice lets tests interpose on the device.
	wrapDevice func(gpu.Device) gpu.Device
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		backend:       BackendAuto,
		padding:       DefaultPadding,
		workgroupSize: DefaultWorkgroupSize,
		fenceTimeout:  DefaultFenceTimeout,
		pollInterval:  DefaultPollInterval,
	}
}

// WithBackend selects the device backend. Default BackendAuto.
func WithBackend(b Backend) SessionOption {
	return func(o *sessionOptions) {
		o.backend = b
	}
}

// WithPadding sets the padding bound P: the longest word, in runes, the
// session accepts. Must be in 1..MaxPadding. Default 64.
func WithPadding(p int) SessionOption {
	return func(o *sessionOptions) {
		o.padding = p
	}
}

// WithWorkgroupSize sets the number of lanes per workgroup. Default 64.
func WithWorkgroupSize(n int) SessionOption {
	return func(o *sessionOptions) {
		o.workgroupSize = n
	}
}

// WithWorkers sets the worker count of the software device. Zero means
// GOMAXPROCS.
func WithWorkers(n int) SessionOption {
	return func(o *sessionOptions) {
		o.workers = n
	}
}

// WithFenceTimeout bounds how long Compute waits for the device. A call
// that times out fails with ErrTransferFailed. Zero waits forever.
func WithFenceTimeout(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		o.fenceTimeout = d
	}
}

// WithPollInterval sets how long each readiness poll waits on the device
// before the calling goroutine yields.
func WithPollInterval(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithDeviceProvider runs the session on a device shared by p, such as a
// gogpu application's. The provider must also expose its HAL device and
// queue (HalDevice() and HalQueue()). The session never destroys a shared
// device.
func WithDeviceProvider(p gpucontext.DeviceProvider) SessionOption {
	return func(o *sessionOptions) {
		o.provider = p
	}
}
