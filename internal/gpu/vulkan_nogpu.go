//go:build nogpu

package gpu

// OpenVulkan is unavailable in nogpu builds.
func OpenVulkan() (Device, error) {
	return nil, ErrNoGPU
}

// FromProvider is unavailable in nogpu builds.
func FromProvider(any) (Device, error) {
	return nil, ErrNoGPU
}
