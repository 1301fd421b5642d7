package gpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Milo4uk/levenshtein-distance/internal/parallel"
)

// SoftwareDevice executes kernels on the host. Buffers live in host memory
// as uint32 words, dispatches run the pipeline's HostKernel once per lane on
// a worker pool, and every submission completes asynchronously on its own
// goroutine, strictly after the previous one.
//
// It is the device of last resort when no adapter is available and the
// reference device in tests.
type SoftwareDevice struct {
	mu        sync.Mutex
	pool      *parallel.WorkerPool
	last      *softSubmission
	destroyed bool
	nextID    atomic.Uint64
}

var _ Device = (*SoftwareDevice)(nil)

// NewSoftwareDevice creates a software device with the given number of
// workers (0 means GOMAXPROCS).
func NewSoftwareDevice(workers int) *SoftwareDevice {
	d := &SoftwareDevice{pool: parallel.NewWorkerPool(workers)}
	slogger().Info("gpu: software device created", "workers", d.pool.Workers())
	return d
}

type softBuffer struct {
	owner *SoftwareDevice
	label string
	words []uint32
}

func (b *softBuffer) Label() string { return b.label }
func (b *softBuffer) Size() uint64  { return uint64(len(b.words)) * 4 }

type softPipeline struct {
	owner    *SoftwareDevice
	label    string
	bindings []BindingLayout
	wgSize   uint32
	host     HostKernel
}

func (p *softPipeline) Label() string { return p.label }

type softSubmission struct {
	label string
	done  chan struct{}
	err   error
}

func (s *softSubmission) Label() string { return s.label }

// Info describes the software adapter.
func (d *SoftwareDevice) Info() AdapterInfo {
	return AdapterInfo{
		Name:       fmt.Sprintf("software (%d workers)", d.pool.Workers()),
		Backend:    BackendSoftware,
		DeviceType: "cpu",
	}
}

// CreateBuffer allocates a zeroed host buffer. Sizes must be a multiple of 4.
func (d *SoftwareDevice) CreateBuffer(desc *BufferDescriptor) (RawBuffer, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if desc.Size == 0 || desc.Size%4 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, desc.Size)
	}
	return &softBuffer{owner: d, label: desc.Label, words: make([]uint32, desc.Size/4)}, nil
}

// DestroyBuffer drops the buffer's memory.
func (d *SoftwareDevice) DestroyBuffer(buf RawBuffer) {
	if b, ok := buf.(*softBuffer); ok && b.owner == d {
		d.waitIdle()
		b.words = nil
	}
}

// WriteBuffer copies data into buf once earlier submissions have finished.
func (d *SoftwareDevice) WriteBuffer(buf RawBuffer, offset uint64, data []byte) error {
	b, err := d.buffer(buf)
	if err != nil {
		return err
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("%w: unaligned write (offset %d, %d bytes)", ErrValidation, offset, len(data))
	}
	if offset+uint64(len(data)) > b.Size() {
		return fmt.Errorf("%w: write of %d bytes at %d exceeds %s (%d bytes)", ErrValidation, len(data), offset, b.label, b.Size())
	}
	d.waitIdle()
	base := offset / 4
	for i := 0; i < len(data)/4; i++ {
		b.words[base+uint64(i)] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return nil
}

// ReadBuffer copies from buf once earlier submissions have finished.
func (d *SoftwareDevice) ReadBuffer(buf RawBuffer, offset uint64, dst []byte) error {
	b, err := d.buffer(buf)
	if err != nil {
		return err
	}
	if offset%4 != 0 || len(dst)%4 != 0 {
		return fmt.Errorf("%w: unaligned read (offset %d, %d bytes)", ErrValidation, offset, len(dst))
	}
	if offset+uint64(len(dst)) > b.Size() {
		return fmt.Errorf("%w: read of %d bytes at %d exceeds %s (%d bytes)", ErrValidation, len(dst), offset, b.label, b.Size())
	}
	d.waitIdle()
	base := offset / 4
	for i := 0; i < len(dst)/4; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], b.words[base+uint64(i)])
	}
	return nil
}

// CreateComputePipeline wraps the descriptor's HostKernel. The WGSL source
// is not used.
func (d *SoftwareDevice) CreateComputePipeline(desc *PipelineDescriptor) (Pipeline, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if desc.Host == nil {
		return nil, fmt.Errorf("%w: pipeline %q has no host kernel", ErrShaderCompilation, desc.Label)
	}
	if desc.WorkgroupSize == 0 {
		return nil, fmt.Errorf("%w: pipeline %q has workgroup size 0", ErrShaderCompilation, desc.Label)
	}
	bindings := make([]BindingLayout, len(desc.Bindings))
	copy(bindings, desc.Bindings)
	return &softPipeline{
		owner:    d,
		label:    desc.Label,
		bindings: bindings,
		wgSize:   desc.WorkgroupSize,
		host:     desc.Host,
	}, nil
}

// DestroyComputePipeline is a no-op; host pipelines hold no resources.
func (d *SoftwareDevice) DestroyComputePipeline(Pipeline) {}

// Submit validates the command list and runs it on a new goroutine after
// the previous submission completes.
func (d *SoftwareDevice) Submit(cmds *CommandList) (Submission, error) {
	if cmds == nil {
		return nil, fmt.Errorf("%w: nil command list", ErrValidation)
	}
	for i, c := range cmds.Commands {
		if err := d.validate(c); err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, c.commandName(), err)
		}
	}

	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil, ErrDeviceDestroyed
	}
	sub := &softSubmission{
		label: fmt.Sprintf("%s#%d", cmds.Label, d.nextID.Add(1)),
		done:  make(chan struct{}),
	}
	prev := d.last
	d.last = sub
	d.mu.Unlock()

	commands := append([]Command(nil), cmds.Commands...)
	go func() {
		defer close(sub.done)
		if prev != nil {
			<-prev.done
		}
		sub.err = d.execute(commands)
	}()
	return sub, nil
}

// Poll waits up to timeout for sub.
func (d *SoftwareDevice) Poll(sub Submission, timeout time.Duration) (bool, error) {
	s, ok := sub.(*softSubmission)
	if !ok {
		return false, ErrForeignResource
	}
	if timeout <= 0 {
		select {
		case <-s.done:
			return true, s.err
		default:
			return false, nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true, s.err
	case <-timer.C:
		return false, nil
	}
}

// Release is a no-op; submissions hold no device resources.
func (d *SoftwareDevice) Release(Submission) {}

// Destroy waits for in-flight work and stops the worker pool.
func (d *SoftwareDevice) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	last := d.last
	d.mu.Unlock()

	if last != nil {
		<-last.done
	}
	d.pool.Close()
}

func (d *SoftwareDevice) checkAlive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return ErrDeviceDestroyed
	}
	return nil
}

func (d *SoftwareDevice) buffer(buf RawBuffer) (*softBuffer, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	b, ok := buf.(*softBuffer)
	if !ok || b.owner != d {
		return nil, ErrForeignResource
	}
	if b.words == nil {
		return nil, ErrBufferDestroyed
	}
	return b, nil
}

// waitIdle blocks until every submitted command list has run.
func (d *SoftwareDevice) waitIdle() {
	d.mu.Lock()
	last := d.last
	d.mu.Unlock()
	if last != nil {
		<-last.done
	}
}

func (d *SoftwareDevice) validate(c Command) error {
	switch cmd := c.(type) {
	case DispatchCommand:
		p, ok := cmd.Pipeline.(*softPipeline)
		if !ok || p.owner != d {
			return ErrForeignResource
		}
		for _, want := range p.bindings {
			if findEntry(cmd.Entries, want.Binding) == nil {
				return fmt.Errorf("%w: binding %d of %q is not bound", ErrValidation, want.Binding, p.label)
			}
		}
		for _, e := range cmd.Entries {
			if _, err := d.buffer(e.Buffer); err != nil {
				return fmt.Errorf("binding %d: %w", e.Binding, err)
			}
		}
	case CopyCommand:
		src, err := d.buffer(cmd.Src)
		if err != nil {
			return err
		}
		dst, err := d.buffer(cmd.Dst)
		if err != nil {
			return err
		}
		if cmd.Size%4 != 0 || cmd.Size > src.Size() || cmd.Size > dst.Size() {
			return fmt.Errorf("%w: copy of %d bytes from %s to %s", ErrValidation, cmd.Size, src.label, dst.label)
		}
	default:
		return fmt.Errorf("%w: unknown command %T", ErrValidation, c)
	}
	return nil
}

func (d *SoftwareDevice) execute(commands []Command) error {
	for _, c := range commands {
		switch cmd := c.(type) {
		case DispatchCommand:
			if err := d.dispatch(cmd); err != nil {
				return err
			}
		case CopyCommand:
			src, dst := cmd.Src.(*softBuffer), cmd.Dst.(*softBuffer)
			copy(dst.words, src.words[:cmd.Size/4])
		}
	}
	return nil
}

func (d *SoftwareDevice) dispatch(cmd DispatchCommand) error {
	p := cmd.Pipeline.(*softPipeline)

	views := make([][]uint32, maxBinding(cmd.Entries)+1)
	for _, e := range cmd.Entries {
		views[e.Binding] = e.Buffer.(*softBuffer).words
	}

	wg := p.wgSize
	err := d.pool.Run(int(cmd.WorkgroupsX), func(group int) {
		base := uint32(group) * wg //nolint:gosec // group < WorkgroupsX
		for lane := uint32(0); lane < wg; lane++ {
			p.host(base+lane, views)
		}
	})
	if err != nil {
		slogger().Warn("gpu: software dispatch failed", "pipeline", p.label, "err", err)
		return fmt.Errorf("%w: %s: %w", ErrDeviceLost, p.label, err)
	}
	slogger().Debug("gpu: software dispatch complete",
		"pipeline", p.label,
		"workgroups", cmd.WorkgroupsX,
		"lanes", cmd.WorkgroupsX*wg)
	return nil
}

func findEntry(entries []BindEntry, binding uint32) *BindEntry {
	for i := range entries {
		if entries[i].Binding == binding {
			return &entries[i]
		}
	}
	return nil
}

func maxBinding(entries []BindEntry) uint32 {
	var m uint32
	for _, e := range entries {
		if e.Binding > m {
			m = e.Binding
		}
	}
	return m
}
