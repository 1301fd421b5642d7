// Package gpu is the device layer under a compute session: a narrow Device
// interface with a Vulkan implementation on gogpu/wgpu/hal and a software
// implementation that runs the host rendition of a kernel on a worker pool.
package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
)

// Backend identifies a device implementation.
type Backend int

const (
	// BackendAuto tries Vulkan and falls back to software.
	BackendAuto Backend = iota
	// BackendVulkan requires a Vulkan adapter.
	BackendVulkan
	// BackendSoftware runs kernels on the host.
	BackendSoftware
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendVulkan:
		return "vulkan"
	case BackendSoftware:
		return "software"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend parses a backend name as printed by Backend.String.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "auto":
		return BackendAuto, nil
	case "vulkan", "gpu":
		return BackendVulkan, nil
	case "software", "cpu":
		return BackendSoftware, nil
	default:
		return BackendAuto, fmt.Errorf("gpu: unknown backend %q", s)
	}
}

// AdapterInfo describes the adapter behind a Device.
type AdapterInfo struct {
	Name       string
	Backend    Backend
	DeviceType string
	Shared     bool // device is owned by someone else
}

// String returns a one-line summary.
func (i AdapterInfo) String() string {
	s := fmt.Sprintf("%s (%s, %s)", i.Name, i.Backend, i.DeviceType)
	if i.Shared {
		s += " [shared]"
	}
	return s
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// RawBuffer is a device-owned memory region.
type RawBuffer interface {
	Label() string
	Size() uint64
}

// BindingType is how a kernel accesses a binding.
type BindingType int

const (
	// BindingReadOnlyStorage is a storage buffer the kernel only reads.
	BindingReadOnlyStorage BindingType = iota
	// BindingStorage is a read-write storage buffer.
	BindingStorage
	// BindingUniform is a uniform buffer.
	BindingUniform
)

// BindingLayout is one entry of a pipeline's bind group layout (group 0).
type BindingLayout struct {
	Binding uint32
	Type    BindingType
}

// HostKernel is the host rendition of a kernel. It is called once per lane
// with the global invocation index and the bound buffers as uint32 views,
// indexed by binding number.
type HostKernel func(id uint32, bindings [][]uint32)

// PipelineDescriptor describes a compute pipeline.
type PipelineDescriptor struct {
	Label      string
	WGSL       string
	EntryPoint string

	// Bindings is the bind group layout, derived from the kernel's declared
	// resources.
	Bindings []BindingLayout

	// WorkgroupSize must match the @workgroup_size of the WGSL source.
	WorkgroupSize uint32

	// Host runs the kernel on devices without a shader compiler.
	Host HostKernel
}

// Pipeline is a compiled compute pipeline.
type Pipeline interface {
	Label() string
}

// BindEntry binds a buffer to a binding slot for one dispatch.
type BindEntry struct {
	Binding uint32
	Buffer  RawBuffer
}

// Command is one recorded device command.
type Command interface {
	commandName() string
}

// DispatchCommand runs a pipeline over WorkgroupsX workgroups.
type DispatchCommand struct {
	Pipeline    Pipeline
	Entries     []BindEntry
	WorkgroupsX uint32
}

func (DispatchCommand) commandName() string { return "dispatch" }

// CopyCommand copies Size bytes from the start of Src to the start of Dst.
type CopyCommand struct {
	Src  RawBuffer
	Dst  RawBuffer
	Size uint64
}

func (CopyCommand) commandName() string { return "copy" }

// CommandList is a sequence of commands submitted together.
type CommandList struct {
	Label    string
	Commands []Command
}

// Dispatch appends a dispatch command.
func (c *CommandList) Dispatch(p Pipeline, entries []BindEntry, workgroupsX uint32) {
	c.Commands = append(c.Commands, DispatchCommand{Pipeline: p, Entries: entries, WorkgroupsX: workgroupsX})
}

// CopyBufferToBuffer appends a copy command.
func (c *CommandList) CopyBufferToBuffer(src, dst RawBuffer, size uint64) {
	c.Commands = append(c.Commands, CopyCommand{Src: src, Dst: dst, Size: size})
}

// Submission identifies submitted work.
type Submission interface {
	Label() string
}

// Device is the slice of a compute device that a session needs.
//
// Queue operations (WriteBuffer, Submit, ReadBuffer) take effect in call
// order. A Device is not required to support concurrent submitters.
type Device interface {
	// Info describes the adapter.
	Info() AdapterInfo

	// CreateBuffer allocates a buffer. Contents start zeroed.
	CreateBuffer(desc *BufferDescriptor) (RawBuffer, error)
	DestroyBuffer(buf RawBuffer)

	// WriteBuffer copies data into buf at offset.
	WriteBuffer(buf RawBuffer, offset uint64, data []byte) error
	// ReadBuffer copies len(dst) bytes from buf at offset.
	ReadBuffer(buf RawBuffer, offset uint64, dst []byte) error

	// CreateComputePipeline compiles a kernel. Compilation failures wrap
	// ErrShaderCompilation.
	CreateComputePipeline(desc *PipelineDescriptor) (Pipeline, error)
	DestroyComputePipeline(p Pipeline)

	// Submit queues a command list and returns without waiting.
	Submit(cmds *CommandList) (Submission, error)
	// Poll waits up to timeout for sub to complete. A non-positive timeout
	// checks without waiting. Failures during execution wrap ErrDeviceLost.
	Poll(sub Submission, timeout time.Duration) (bool, error)
	// Release frees per-submission resources once sub is complete.
	Release(sub Submission)

	// Destroy releases the device. Shared devices are left alive.
	Destroy()
}
