package levenshtein

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/Milo4uk/levenshtein-distance/internal/codec"
	"github.com/Milo4uk/levenshtein-distance/internal/gpu"
	"github.com/Milo4uk/levenshtein-distance/internal/kernel"
)

// DeviceInfo describes the device behind a session.
type DeviceInfo = gpu.AdapterInfo

// Session owns a device and the resources to run the distance kernel on it:
// the compiled pipeline and four buffers sized for its capacity (input
// codes, output distances, kernel parameters and a host-readable staging
// copy of the output).
//
// Setup is expensive; create a session once and reuse it. Compute calls are
// serialized, so a session may be shared between goroutines, but only one
// batch is in flight at a time.
type Session struct {
	mu sync.Mutex

	id   uuid.UUID
	opts sessionOptions

	device   gpu.Device
	pipeline gpu.Pipeline

	input   *gpu.Buffer // capacity × padding codes
	output  *gpu.Buffer // capacity² distances
	params  *gpu.Buffer // kernel.Params
	staging *gpu.Buffer // MapRead copy of output

	capacity int

	// pending is a submission abandoned by a timed-out transfer. It is
	// released once it completes.
	pending gpu.Submission

	invalid error // cause of the last failed transfer, nil when usable
	closed  bool
}

var _ Engine = (*Session)(nil)

// NewSession acquires a device, compiles the distance kernel and allocates
// buffers for batches of up to capacity words.
//
// It fails with ErrDeviceUnavailable when no device matching the options can
// be opened and with ErrPipelineCompilationFailed when the kernel does not
// compile. Everything acquired before the failure is released.
func NewSession(capacity int, opts ...SessionOption) (*Session, error) {
	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1, got %d", ErrCapacityExceeded, capacity)
	}
	if err := kernel.ValidatePadding(o.padding); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPadding, err)
	}
	if err := kernel.ValidateWorkgroupSize(o.workgroupSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipelineCompilationFailed, err)
	}

	s := &Session{
		id:       uuid.New(),
		opts:     o,
		capacity: capacity,
	}

	device, err := openDevice(&o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if o.wrapDevice != nil {
		device = o.wrapDevice(device)
	}
	s.device = device

	if err := s.createPipeline(); err != nil {
		s.destroyPartialInit()
		return nil, fmt.Errorf("%w: %w", ErrPipelineCompilationFailed, err)
	}
	if err := s.createBuffers(); err != nil {
		s.destroyPartialInit()
		return nil, fmt.Errorf("%w: allocate buffers: %w", ErrDeviceUnavailable, err)
	}

	slogger().Info("levenshtein: session created",
		"session", s.id,
		"device", s.device.Info().String(),
		"capacity", capacity,
		"padding", o.padding,
		"workgroup_size", o.workgroupSize)
	return s, nil
}

// openDevice picks the device named by the options. BackendAuto falls back
// to the software device when no Vulkan adapter can be opened.
func openDevice(o *sessionOptions) (gpu.Device, error) {
	if o.provider != nil {
		d, err := gpu.FromProvider(o.provider)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	switch o.backend {
	case BackendSoftware:
		return gpu.NewSoftwareDevice(o.workers), nil
	case BackendVulkan:
		d, err := gpu.OpenVulkan()
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		d, err := gpu.OpenVulkan()
		if err == nil {
			return d, nil
		}
		slogger().Warn("levenshtein: vulkan unavailable, using software device", "err", err)
		return gpu.NewSoftwareDevice(o.workers), nil
	}
}

func (s *Session) createPipeline() error {
	src, err := kernel.Source(s.opts.padding, s.opts.workgroupSize)
	if err != nil {
		return err
	}

	decl := kernel.Bindings()
	layout := make([]gpu.BindingLayout, len(decl))
	for i, b := range decl {
		layout[i] = gpu.BindingLayout{Binding: b.Index, Type: bindingType(b.Kind)}
	}

	s.pipeline, err = s.device.CreateComputePipeline(&gpu.PipelineDescriptor{
		Label:         "levenshtein",
		WGSL:          src,
		EntryPoint:    kernel.EntryPoint,
		Bindings:      layout,
		WorkgroupSize: uint32(s.opts.workgroupSize), //nolint:gosec // validated
		Host:          kernel.Invoke,
	})
	return err
}

func bindingType(k kernel.BindingKind) gpu.BindingType {
	switch k {
	case kernel.ReadOnlyStorage:
		return gpu.BindingReadOnlyStorage
	case kernel.Uniform:
		return gpu.BindingUniform
	default:
		return gpu.BindingStorage
	}
}

func (s *Session) createBuffers() error {
	capacity := uint64(s.capacity)     //nolint:gosec // positive
	padding := uint64(s.opts.padding) //nolint:gosec // validated
	outputSize := capacity * capacity * 4

	var err error
	if s.input, err = gpu.CreateBuffer(s.device, &gpu.BufferDescriptor{
		Label: "levenshtein_words",
		Size:  capacity * padding * 4,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return err
	}
	if s.output, err = gpu.CreateBuffer(s.device, &gpu.BufferDescriptor{
		Label: "levenshtein_distances",
		Size:  outputSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	}); err != nil {
		return err
	}
	if s.params, err = gpu.CreateBuffer(s.device, &gpu.BufferDescriptor{
		Label: "levenshtein_params",
		Size:  kernel.ParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return err
	}
	if s.staging, err = gpu.CreateBuffer(s.device, &gpu.BufferDescriptor{
		Label: "levenshtein_staging",
		Size:  outputSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return err
	}

	slogger().Debug("levenshtein: buffers allocated",
		"session", s.id,
		"input_bytes", s.input.Size(),
		"output_bytes", outputSize,
		"staging_bytes", s.staging.Size())
	return nil
}

// destroyPartialInit releases whatever NewSession managed to create.
func (s *Session) destroyPartialInit() {
	s.releaseResources()
}

func (s *Session) releaseResources() {
	for _, b := range []*gpu.Buffer{s.staging, s.params, s.output, s.input} {
		if b != nil {
			b.Destroy()
		}
	}
	s.staging, s.params, s.output, s.input = nil, nil, nil, nil

	if s.pending != nil {
		if done, _ := s.device.Poll(s.pending, s.opts.fenceTimeout); done {
			s.device.Release(s.pending)
		}
		s.pending = nil
	}
	if s.pipeline != nil {
		s.device.DestroyComputePipeline(s.pipeline)
		s.pipeline = nil
	}
	if s.device != nil {
		s.device.Destroy()
		s.device = nil
	}
}

// ID returns the session's unique identifier, used in log records.
func (s *Session) ID() uuid.UUID { return s.id }

// Capacity returns the largest batch the session accepts.
func (s *Session) Capacity() int { return s.capacity }

// Padding returns the padding bound: the longest word, in runes.
func (s *Session) Padding() int { return s.opts.padding }

// Device describes the device the session runs on.
func (s *Session) Device() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return DeviceInfo{}
	}
	return s.device.Info()
}

// EnsureCapacity reports whether a batch of n words fits the session.
// Sessions do not grow; a larger batch needs a new session.
func (s *Session) EnsureCapacity(n int) error {
	if n > s.capacity {
		return fmt.Errorf("%w: %d words, capacity %d", ErrCapacityExceeded, n, s.capacity)
	}
	return nil
}

// Compute returns the distance matrix for words.
//
// Input is validated before the device is touched: a batch over capacity
// fails with ErrCapacityExceeded and an over-long word with ErrWordTooLong,
// and the session stays usable. Device failures return ErrTransferFailed
// and leave the session invalid until Revalidate succeeds.
func (s *Session) Compute(words []string) (Matrix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return Matrix{}, err
	}
	if len(words) == 0 {
		return Matrix{}, nil
	}
	if err := s.EnsureCapacity(len(words)); err != nil {
		return Matrix{}, err
	}
	codes, err := codec.Encode(words, s.opts.padding)
	if err != nil {
		return Matrix{}, fmt.Errorf("%w: %w", ErrWordTooLong, err)
	}

	m, err := s.transfer(codes, len(words))
	if err != nil {
		s.invalid = err
		slogger().Warn("levenshtein: transfer failed, session invalidated",
			"session", s.id, "words", len(words), "err", err)
		return Matrix{}, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return m, nil
}

// Revalidate makes an invalid session usable again. It waits for any work
// abandoned by a timed-out transfer, resets the staging buffer and runs a
// probe batch whose result is checked against the CPU path. A valid session
// is left untouched.
func (s *Session) Revalidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.invalid == nil {
		return nil
	}

	if s.pending != nil {
		done, err := s.device.Poll(s.pending, s.opts.fenceTimeout)
		if err == nil && !done {
			return fmt.Errorf("%w: previous submission still running", ErrSessionInvalid)
		}
		s.device.Release(s.pending)
		s.pending = nil
	}
	if err := s.staging.Unmap(); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}

	probe := []string{"a", ""}
	if s.capacity < len(probe) {
		probe = probe[:s.capacity]
	}
	codes, err := codec.Encode(probe, s.opts.padding)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}
	got, err := s.transfer(codes, len(probe))
	if err != nil {
		s.invalid = err
		return fmt.Errorf("%w: probe: %w", ErrSessionInvalid, err)
	}
	if want := ComputeCPU(probe); !got.Equal(want) {
		return fmt.Errorf("%w: probe returned %v, want %v", ErrSessionInvalid, got.Values, want.Values)
	}

	slogger().Info("levenshtein: session revalidated", "session", s.id, "cause", s.invalid)
	s.invalid = nil
	return nil
}

func (s *Session) usable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.invalid != nil {
		return fmt.Errorf("%w: %w", ErrSessionInvalid, s.invalid)
	}
	return nil
}

// Close releases the session's resources. A shared device is left alive.
// Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.releaseResources()
	slogger().Info("levenshtein: session closed", "session", s.id)
	return nil
}

// isTimeout reports whether err came from a transfer that gave up waiting.
func isTimeout(err error) bool {
	return errors.Is(err, gpu.ErrFenceTimeout)
}
