package gpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
)

// Buffer errors.
var (
	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")

	// ErrInvalidBufferSize is returned when buffer size is invalid.
	ErrInvalidBufferSize = errors.New("gpu: invalid buffer size")

	// ErrBufferAlreadyMapped is returned when attempting to map an already mapped buffer.
	ErrBufferAlreadyMapped = errors.New("gpu: buffer is already mapped or mapping is pending")

	// ErrBufferNotMapped is returned when attempting to access unmapped buffer data.
	ErrBufferNotMapped = errors.New("gpu: buffer is not mapped")

	// ErrBufferMapPending is returned when accessing a buffer with pending map operation.
	ErrBufferMapPending = errors.New("gpu: buffer mapping is pending")

	// ErrInvalidMapMode is returned when mapping with an invalid mode.
	ErrInvalidMapMode = errors.New("gpu: invalid map mode")

	// ErrInvalidMapRange is returned when the map range is out of bounds.
	ErrInvalidMapRange = errors.New("gpu: map range out of bounds")

	// ErrMapUsageMismatch is returned when mapping mode doesn't match buffer usage.
	ErrMapUsageMismatch = errors.New("gpu: map mode does not match buffer usage flags")

	// ErrCallbackNil is returned when MapAsync is called with nil callback.
	ErrCallbackNil = errors.New("gpu: map callback is nil")
)

// BufferMapState represents the mapping state of a buffer.
type BufferMapState int

const (
	// BufferMapStateUnmapped means the buffer is not mapped.
	BufferMapStateUnmapped BufferMapState = iota
	// BufferMapStatePending means a map operation is pending.
	BufferMapStatePending
	// BufferMapStateMapped means the buffer is mapped.
	BufferMapStateMapped
)

// String returns the string representation of BufferMapState.
func (s BufferMapState) String() string {
	switch s {
	case BufferMapStateUnmapped:
		return "Unmapped"
	case BufferMapStatePending:
		return "Pending"
	case BufferMapStateMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// BufferMapAsyncStatus represents the result of an async map operation.
type BufferMapAsyncStatus int

const (
	// BufferMapAsyncStatusSuccess indicates mapping completed successfully.
	BufferMapAsyncStatusSuccess BufferMapAsyncStatus = iota
	// BufferMapAsyncStatusValidationError indicates a validation error.
	BufferMapAsyncStatusValidationError
	// BufferMapAsyncStatusUnknown indicates an unknown error.
	BufferMapAsyncStatusUnknown
	// BufferMapAsyncStatusDeviceLost indicates the device was lost.
	BufferMapAsyncStatusDeviceLost
	// BufferMapAsyncStatusDestroyedBeforeCallback indicates buffer was destroyed.
	BufferMapAsyncStatusDestroyedBeforeCallback
	// BufferMapAsyncStatusUnmappedBeforeCallback indicates buffer was unmapped.
	BufferMapAsyncStatusUnmappedBeforeCallback
	// BufferMapAsyncStatusMappingAlreadyPending indicates another map is pending.
	BufferMapAsyncStatusMappingAlreadyPending
)

// String returns the string representation of BufferMapAsyncStatus.
func (s BufferMapAsyncStatus) String() string {
	switch s {
	case BufferMapAsyncStatusSuccess:
		return "Success"
	case BufferMapAsyncStatusValidationError:
		return "ValidationError"
	case BufferMapAsyncStatusUnknown:
		return "Unknown"
	case BufferMapAsyncStatusDeviceLost:
		return "DeviceLost"
	case BufferMapAsyncStatusDestroyedBeforeCallback:
		return "DestroyedBeforeCallback"
	case BufferMapAsyncStatusUnmappedBeforeCallback:
		return "UnmappedBeforeCallback"
	case BufferMapAsyncStatusMappingAlreadyPending:
		return "MappingAlreadyPending"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Buffer is a device buffer with WebGPU-style asynchronous mapping.
//
// A map request does not complete until the submission tracked with
// TrackSubmission has finished on the device, so a mapped staging buffer
// always reflects the commands that wrote it.
//
// Thread Safety:
// Buffer is safe for concurrent access. The mapping callback is invoked
// from the goroutine that calls PollMapAsync, without the lock held.
//
// Lifecycle:
//  1. Create via CreateBuffer()
//  2. TrackSubmission() after submitting work that writes the buffer
//  3. MapAsync() to request host access
//  4. PollMapAsync() until it returns true
//  5. GetMappedRange(), then Unmap()
//  6. Destroy() when the buffer is no longer needed
type Buffer struct {
	mu sync.RWMutex

	raw    RawBuffer
	device Device

	// descriptor holds the buffer configuration (immutable after creation).
	descriptor BufferDescriptor

	mapState    BufferMapState
	mapOffset   uint64
	mapSize     uint64
	mappedData  []byte
	mapCallback func(BufferMapAsyncStatus)
	mapErr      error

	// inflight is the last submission that writes this buffer.
	inflight Submission

	destroyed bool
}

// CreateBuffer allocates a buffer on device. The size is rounded up to the
// 4-byte copy alignment.
func CreateBuffer(device Device, desc *BufferDescriptor) (*Buffer, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if desc == nil {
		return nil, fmt.Errorf("buffer descriptor is nil")
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: size is 0", ErrInvalidBufferSize)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("buffer usage is empty")
	}

	const copyBufferAlignment uint64 = 4
	resolved := *desc
	resolved.Size = (desc.Size + copyBufferAlignment - 1) &^ (copyBufferAlignment - 1)

	raw, err := device.CreateBuffer(&resolved)
	if err != nil {
		return nil, fmt.Errorf("buffer creation failed: %w", err)
	}
	slogger().Debug("gpu: buffer created", "label", resolved.Label, "bytes", resolved.Size)

	return &Buffer{
		raw:        raw,
		device:     device,
		descriptor: resolved,
		mapState:   BufferMapStateUnmapped,
	}, nil
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string {
	return b.descriptor.Label
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.descriptor.Size
}

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage {
	return b.descriptor.Usage
}

// MapState returns the current mapping state.
func (b *Buffer) MapState() BufferMapState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mapState
}

// MapErr returns the device error behind the last failed mapping, if any.
func (b *Buffer) MapErr() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mapErr
}

// IsDestroyed returns true if the buffer has been destroyed.
func (b *Buffer) IsDestroyed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.destroyed
}

// Raw returns the underlying device buffer, or nil once destroyed.
func (b *Buffer) Raw() RawBuffer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return nil
	}
	return b.raw
}

// Write queues a host-to-device copy into the buffer.
func (b *Buffer) Write(offset uint64, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return ErrBufferDestroyed
	}
	if b.mapState != BufferMapStateUnmapped {
		return ErrBufferAlreadyMapped
	}
	if offset+uint64(len(data)) > b.descriptor.Size {
		return fmt.Errorf("%w: write of %d bytes at %d exceeds %d", ErrInvalidBufferSize, len(data), offset, b.descriptor.Size)
	}
	return b.device.WriteBuffer(b.raw, offset, data)
}

// TrackSubmission records sub as the pending writer of this buffer.
// A subsequent mapping completes only after sub does.
func (b *Buffer) TrackSubmission(sub Submission) {
	b.mu.Lock()
	b.inflight = sub
	b.mu.Unlock()
}

// MapAsync initiates an async map operation.
//
// After MapAsync returns successfully, the map state is Pending. Call
// PollMapAsync until it returns true; the callback runs exactly once with
// the outcome. Validation failures invoke the callback immediately and are
// also returned.
func (b *Buffer) MapAsync(mode gputypes.MapMode, offset, size uint64, callback func(BufferMapAsyncStatus)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return ErrBufferDestroyed
	}
	if b.mapState != BufferMapStateUnmapped {
		if callback != nil {
			callback(BufferMapAsyncStatusMappingAlreadyPending)
		}
		return ErrBufferAlreadyMapped
	}
	if callback == nil {
		return ErrCallbackNil
	}

	// Only read mappings exist here; uploads go through Write.
	if mode != gputypes.MapModeRead {
		callback(BufferMapAsyncStatusValidationError)
		return ErrInvalidMapMode
	}
	if !b.descriptor.Usage.Contains(gputypes.BufferUsageMapRead) {
		callback(BufferMapAsyncStatusValidationError)
		return fmt.Errorf("%w: buffer does not have MapRead usage", ErrMapUsageMismatch)
	}
	if offset > b.descriptor.Size || offset+size > b.descriptor.Size {
		callback(BufferMapAsyncStatusValidationError)
		return fmt.Errorf("%w: offset %d + size %d > buffer size %d", ErrInvalidMapRange, offset, size, b.descriptor.Size)
	}

	// WebGPU requires 8-byte alignment for map offsets.
	const mapAlignment uint64 = 8
	if offset%mapAlignment != 0 {
		callback(BufferMapAsyncStatusValidationError)
		return fmt.Errorf("%w: offset %d must be %d-byte aligned", ErrInvalidMapRange, offset, mapAlignment)
	}

	b.mapState = BufferMapStatePending
	b.mapOffset = offset
	b.mapSize = size
	b.mapCallback = callback
	b.mapErr = nil
	return nil
}

// PollMapAsync advances a pending mapping. It waits up to timeout for the
// tracked submission, then copies the range to host memory.
//
// Returns true once the mapping is complete (success or failure) or when
// nothing is pending, false if the device is still busy.
func (b *Buffer) PollMapAsync(timeout time.Duration) bool {
	b.mu.Lock()
	if b.mapState != BufferMapStatePending {
		b.mu.Unlock()
		return true
	}
	sub, device, raw := b.inflight, b.device, b.raw
	offset, size := b.mapOffset, b.mapSize
	b.mu.Unlock()

	if sub != nil {
		done, err := device.Poll(sub, timeout)
		if err != nil {
			b.finishMap(nil, BufferMapAsyncStatusDeviceLost, err)
			return true
		}
		if !done {
			return false
		}
	}

	data := make([]byte, size)
	if err := device.ReadBuffer(raw, offset, data); err != nil {
		b.finishMap(nil, BufferMapAsyncStatusUnknown, err)
		return true
	}
	b.finishMap(data, BufferMapAsyncStatusSuccess, nil)
	return true
}

// finishMap completes a pending mapping and runs its callback.
func (b *Buffer) finishMap(data []byte, status BufferMapAsyncStatus, cause error) {
	b.mu.Lock()
	if b.mapState != BufferMapStatePending {
		// Unmapped or destroyed while polling; the callback already ran.
		b.mu.Unlock()
		return
	}
	if status == BufferMapAsyncStatusSuccess {
		b.mapState = BufferMapStateMapped
		b.mappedData = data
		b.inflight = nil
	} else {
		b.mapState = BufferMapStateUnmapped
		b.mapErr = cause
	}
	callback := b.mapCallback
	b.mapCallback = nil
	b.mu.Unlock()

	if callback != nil {
		callback(status)
	}
}

// GetMappedRange returns the mapped bytes in [offset, offset+size).
// Offsets are relative to the buffer, not the mapped region. The slice is
// only valid until Unmap.
func (b *Buffer) GetMappedRange(offset, size uint64) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return nil, ErrBufferDestroyed
	}
	if b.mapState == BufferMapStatePending {
		return nil, ErrBufferMapPending
	}
	if b.mapState != BufferMapStateMapped {
		return nil, ErrBufferNotMapped
	}
	if offset < b.mapOffset {
		return nil, fmt.Errorf("%w: offset %d is before mapped region start %d",
			ErrInvalidMapRange, offset, b.mapOffset)
	}
	if offset+size > b.mapOffset+b.mapSize {
		return nil, fmt.Errorf("%w: offset %d + size %d exceeds mapped region end %d",
			ErrInvalidMapRange, offset, size, b.mapOffset+b.mapSize)
	}

	rel := offset - b.mapOffset
	return b.mappedData[rel : rel+size], nil
}

// Unmap releases host access. A pending mapping is cancelled and its
// callback receives BufferMapAsyncStatusUnmappedBeforeCallback.
// Unmapping an unmapped buffer is a no-op.
func (b *Buffer) Unmap() error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return ErrBufferDestroyed
	}

	var callback func(BufferMapAsyncStatus)
	if b.mapState == BufferMapStatePending {
		callback = b.mapCallback
	}
	b.mapState = BufferMapStateUnmapped
	b.mappedData = nil
	b.mapCallback = nil
	b.mu.Unlock()

	if callback != nil {
		callback(BufferMapAsyncStatusUnmappedBeforeCallback)
	}
	return nil
}

// Destroy releases the buffer. A pending mapping's callback receives
// BufferMapAsyncStatusDestroyedBeforeCallback.
//
// This method is idempotent - calling it multiple times is safe.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	device, raw := b.device, b.raw
	callback := b.mapCallback
	wasMapping := b.mapState == BufferMapStatePending
	b.raw = nil
	b.mappedData = nil
	b.mapCallback = nil
	b.inflight = nil
	b.mapState = BufferMapStateUnmapped
	b.mu.Unlock()

	if wasMapping && callback != nil {
		callback(BufferMapAsyncStatusDestroyedBeforeCallback)
	}
	if device != nil && raw != nil {
		device.DestroyBuffer(raw)
	}
}
