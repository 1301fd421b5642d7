//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// HALDevice runs kernels on a GPU through gogpu/wgpu/hal.
//
// Each Submit records one command encoder, submits it with its own fence
// and returns; Poll waits on that fence. Bind groups, the command buffer
// and the fence live until Release.
type HALDevice struct {
	mu sync.Mutex

	instance hal.Instance // nil for shared devices
	device   hal.Device
	queue    hal.Queue
	info     AdapterInfo

	external  bool // device is owned by a provider; never destroyed here
	destroyed bool
}

var _ Device = (*HALDevice)(nil)

type halBuffer struct {
	owner *HALDevice
	raw   hal.Buffer
	label string
	size  uint64
}

func (b *halBuffer) Label() string { return b.label }
func (b *halBuffer) Size() uint64  { return b.size }

type halPipeline struct {
	owner    *HALDevice
	label    string
	module   hal.ShaderModule
	bgLayout hal.BindGroupLayout
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

func (p *halPipeline) Label() string { return p.label }

type halSubmission struct {
	label      string
	fence      hal.Fence
	cmdBuf     hal.CommandBuffer
	bindGroups []hal.BindGroup
	done       bool
}

func (s *halSubmission) Label() string { return s.label }

// OpenVulkan opens the first discrete or integrated Vulkan adapter, or the
// first adapter of any kind. Returns an error wrapping ErrNoGPU when the
// backend or an adapter is missing.
func OpenVulkan() (*HALDevice, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNoGPU, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters found", ErrNoGPU)
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %w", ErrNoGPU, err)
	}

	d := &HALDevice{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		info: AdapterInfo{
			Name:       selected.Info.Name,
			Backend:    BackendVulkan,
			DeviceType: deviceTypeName(selected.Info.DeviceType),
		},
	}
	slogger().Info("gpu: vulkan adapter selected", "adapter", d.info.Name, "type", d.info.DeviceType)
	return d, nil
}

// FromHAL wraps a device and queue owned by someone else. Destroy leaves
// them alive.
func FromHAL(device hal.Device, queue hal.Queue, name string) (*HALDevice, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	return &HALDevice{
		device:   device,
		queue:    queue,
		external: true,
		info: AdapterInfo{
			Name:       name,
			Backend:    BackendVulkan,
			DeviceType: "external",
			Shared:     true,
		},
	}, nil
}

// FromProvider wraps the device of a provider that exposes HAL handles via
// HalDevice() any and HalQueue() any, as gogpu's device providers do.
func FromProvider(provider any) (*HALDevice, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoGPU)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNoGPU)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNoGPU)
	}
	return FromHAL(device, queue, "provider")
}

func deviceTypeName(t gputypes.DeviceType) string {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return "discrete"
	case gputypes.DeviceTypeIntegratedGPU:
		return "integrated"
	default:
		return "other"
	}
}

// Info describes the adapter.
func (d *HALDevice) Info() AdapterInfo { return d.info }

// CreateBuffer allocates a device buffer.
func (d *HALDevice) CreateBuffer(desc *BufferDescriptor) (RawBuffer, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	return &halBuffer{owner: d, raw: raw, label: desc.Label, size: desc.Size}, nil
}

// DestroyBuffer releases a buffer.
func (d *HALDevice) DestroyBuffer(buf RawBuffer) {
	if b, ok := buf.(*halBuffer); ok && b.owner == d && b.raw != nil {
		d.device.DestroyBuffer(b.raw)
		b.raw = nil
	}
}

// WriteBuffer queues a host-to-device copy.
func (d *HALDevice) WriteBuffer(buf RawBuffer, offset uint64, data []byte) error {
	b, err := d.buffer(buf)
	if err != nil {
		return err
	}
	d.queue.WriteBuffer(b.raw, offset, data)
	return nil
}

// ReadBuffer copies a host-readable buffer into dst.
func (d *HALDevice) ReadBuffer(buf RawBuffer, offset uint64, dst []byte) error {
	b, err := d.buffer(buf)
	if err != nil {
		return err
	}
	if err := d.queue.ReadBuffer(b.raw, offset, dst); err != nil {
		return fmt.Errorf("read %q: %w", b.label, err)
	}
	return nil
}

// CreateComputePipeline compiles the WGSL source to SPIR-V with naga and
// builds the bind group layout from the descriptor's bindings.
func (d *HALDevice) CreateComputePipeline(desc *PipelineDescriptor) (Pipeline, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	spirv, err := compileSPIRV(desc.WGSL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrShaderCompilation, desc.Label, err)
	}

	p := &halPipeline{owner: d, label: desc.Label}
	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create shader module %s: %w", ErrShaderCompilation, desc.Label, err)
	}

	p.bgLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_bgl",
		Entries: layoutEntries(desc.Bindings),
	})
	if err != nil {
		d.destroyPipeline(p)
		return nil, fmt.Errorf("create bind group layout %s: %w", desc.Label, err)
	}

	p.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{p.bgLayout},
	})
	if err != nil {
		d.destroyPipeline(p)
		return nil, fmt.Errorf("create pipeline layout %s: %w", desc.Label, err)
	}

	p.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		d.destroyPipeline(p)
		return nil, fmt.Errorf("%w: create compute pipeline %s: %w", ErrShaderCompilation, desc.Label, err)
	}

	slogger().Debug("gpu: pipeline created",
		"label", desc.Label,
		"bindings", len(desc.Bindings),
		"spirv_words", len(spirv))
	return p, nil
}

// DestroyComputePipeline releases a pipeline and its layouts.
func (d *HALDevice) DestroyComputePipeline(p Pipeline) {
	if hp, ok := p.(*halPipeline); ok && hp.owner == d {
		d.destroyPipeline(hp)
	}
}

func (d *HALDevice) destroyPipeline(p *halPipeline) {
	if p.pipeline != nil {
		d.device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		d.device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.bgLayout != nil {
		d.device.DestroyBindGroupLayout(p.bgLayout)
		p.bgLayout = nil
	}
	if p.module != nil {
		d.device.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// Submit records cmds into one command buffer and submits it with a fence.
func (d *HALDevice) Submit(cmds *CommandList) (Submission, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if cmds == nil {
		return nil, fmt.Errorf("%w: nil command list", ErrValidation)
	}

	sub := &halSubmission{label: cmds.Label}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: cmds.Label})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(cmds.Label); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	for i, c := range cmds.Commands {
		if err := d.encode(encoder, sub, c); err != nil {
			encoder.DiscardEncoding()
			d.Release(sub)
			return nil, fmt.Errorf("command %d (%s): %w", i, c.commandName(), err)
		}
	}

	sub.cmdBuf, err = encoder.EndEncoding()
	if err != nil {
		d.Release(sub)
		return nil, fmt.Errorf("end encoding: %w", err)
	}

	sub.fence, err = d.device.CreateFence()
	if err != nil {
		d.Release(sub)
		return nil, fmt.Errorf("create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{sub.cmdBuf}, sub.fence, 1); err != nil {
		d.Release(sub)
		return nil, fmt.Errorf("%w: submit: %w", ErrDeviceLost, err)
	}
	return sub, nil
}

func (d *HALDevice) encode(encoder hal.CommandEncoder, sub *halSubmission, c Command) error {
	switch cmd := c.(type) {
	case DispatchCommand:
		p, ok := cmd.Pipeline.(*halPipeline)
		if !ok || p.owner != d {
			return ErrForeignResource
		}
		entries := make([]gputypes.BindGroupEntry, 0, len(cmd.Entries))
		for _, e := range cmd.Entries {
			b, err := d.buffer(e.Buffer)
			if err != nil {
				return fmt.Errorf("binding %d: %w", e.Binding, err)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: 0, Size: b.size},
			})
		}
		bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   p.label + "_bg",
			Layout:  p.bgLayout,
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create bind group: %w", err)
		}
		sub.bindGroups = append(sub.bindGroups, bg)

		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.label})
		pass.SetPipeline(p.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(cmd.WorkgroupsX, 1, 1)
		pass.End()

		slogger().Debug("gpu: dispatch recorded", "pipeline", p.label, "workgroups", cmd.WorkgroupsX)
	case CopyCommand:
		src, err := d.buffer(cmd.Src)
		if err != nil {
			return err
		}
		dst, err := d.buffer(cmd.Dst)
		if err != nil {
			return err
		}
		encoder.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: cmd.Size},
		})
	default:
		return fmt.Errorf("%w: unknown command %T", ErrValidation, c)
	}
	return nil
}

// Poll waits up to timeout on the submission's fence.
func (d *HALDevice) Poll(sub Submission, timeout time.Duration) (bool, error) {
	s, ok := sub.(*halSubmission)
	if !ok || s.fence == nil {
		return false, ErrForeignResource
	}
	if s.done {
		return true, nil
	}
	if timeout < 0 {
		timeout = 0
	}
	ok, err := d.device.Wait(s.fence, 1, timeout)
	if err != nil {
		return false, fmt.Errorf("%w: wait for %s: %w", ErrDeviceLost, s.label, err)
	}
	s.done = ok
	return ok, nil
}

// Release destroys the submission's fence, command buffer and bind groups.
func (d *HALDevice) Release(sub Submission) {
	s, ok := sub.(*halSubmission)
	if !ok {
		return
	}
	if s.fence != nil {
		d.device.DestroyFence(s.fence)
		s.fence = nil
	}
	if s.cmdBuf != nil {
		d.device.FreeCommandBuffer(s.cmdBuf)
		s.cmdBuf = nil
	}
	for _, bg := range s.bindGroups {
		d.device.DestroyBindGroup(bg)
	}
	s.bindGroups = nil
}

// Destroy releases the device and instance unless they are shared.
func (d *HALDevice) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	if d.external {
		return
	}
	if d.device != nil {
		d.device.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
	}
}

func (d *HALDevice) checkAlive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return ErrDeviceDestroyed
	}
	return nil
}

func (d *HALDevice) buffer(buf RawBuffer) (*halBuffer, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	b, ok := buf.(*halBuffer)
	if !ok || b.owner != d {
		return nil, ErrForeignResource
	}
	if b.raw == nil {
		return nil, ErrBufferDestroyed
	}
	return b, nil
}

func layoutEntries(bindings []BindingLayout) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, len(bindings))
	for i, b := range bindings {
		var t gputypes.BufferBindingType
		switch b.Type {
		case BindingReadOnlyStorage:
			t = gputypes.BufferBindingTypeReadOnlyStorage
		case BindingStorage:
			t = gputypes.BufferBindingTypeStorage
		case BindingUniform:
			t = gputypes.BufferBindingTypeUniform
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    b.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: t},
		}
	}
	return entries
}

// compileSPIRV compiles WGSL to SPIR-V words. SPIR-V is little-endian
// 32-bit words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
