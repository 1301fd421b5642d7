package gpu

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// doubleKernel writes 2*in[id] to out[id] for every lane below len(in).
func doubleKernel(id uint32, bindings [][]uint32) {
	in, out := bindings[0], bindings[1]
	if int(id) >= len(in) {
		return
	}
	out[id] = in[id] * 2
}

func newDoublePipeline(t *testing.T, d Device, wg uint32) Pipeline {
	t.Helper()
	p, err := d.CreateComputePipeline(&PipelineDescriptor{
		Label:      "double",
		EntryPoint: "main",
		Bindings: []BindingLayout{
			{Binding: 0, Type: BindingReadOnlyStorage},
			{Binding: 1, Type: BindingStorage},
		},
		WorkgroupSize: wg,
		Host:          doubleKernel,
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline: %v", err)
	}
	return p
}

func words(vals ...uint32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func mustBuffer(t *testing.T, d Device, label string, size uint64) RawBuffer {
	t.Helper()
	b, err := d.CreateBuffer(&BufferDescriptor{Label: label, Size: size})
	if err != nil {
		t.Fatalf("CreateBuffer(%s): %v", label, err)
	}
	return b
}

func TestSoftwareDevice_DispatchAndCopy(t *testing.T) {
	d := NewSoftwareDevice(2)
	defer d.Destroy()

	p := newDoublePipeline(t, d, 4)
	in := mustBuffer(t, d, "in", 24)
	out := mustBuffer(t, d, "out", 24)
	staging := mustBuffer(t, d, "staging", 24)

	if err := d.WriteBuffer(in, 0, words(1, 2, 3, 4, 5, 6)); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}

	cmds := &CommandList{Label: "test"}
	cmds.Dispatch(p, []BindEntry{{Binding: 0, Buffer: in}, {Binding: 1, Buffer: out}}, 2)
	cmds.CopyBufferToBuffer(out, staging, 24)

	sub, err := d.Submit(cmds)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done, err := d.Poll(sub, time.Second)
	if err != nil || !done {
		t.Fatalf("Poll = %v, %v; want true, nil", done, err)
	}
	d.Release(sub)

	got := make([]byte, 24)
	if err := d.ReadBuffer(staging, 0, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	want := words(2, 4, 6, 8, 10, 12)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("staging = %v, want %v", got, want)
		}
	}
}

func TestSoftwareDevice_SubmissionsRunInOrder(t *testing.T) {
	d := NewSoftwareDevice(2)
	defer d.Destroy()

	p := newDoublePipeline(t, d, 1)
	a := mustBuffer(t, d, "a", 4)
	b := mustBuffer(t, d, "b", 4)
	if err := d.WriteBuffer(a, 0, words(3)); err != nil {
		t.Fatal(err)
	}

	// a -> b, then b -> a: a must end up as 12.
	first := &CommandList{Label: "first"}
	first.Dispatch(p, []BindEntry{{Binding: 0, Buffer: a}, {Binding: 1, Buffer: b}}, 1)
	second := &CommandList{Label: "second"}
	second.Dispatch(p, []BindEntry{{Binding: 0, Buffer: b}, {Binding: 1, Buffer: a}}, 1)

	if _, err := d.Submit(first); err != nil {
		t.Fatal(err)
	}
	sub, err := d.Submit(second)
	if err != nil {
		t.Fatal(err)
	}
	if done, err := d.Poll(sub, time.Second); !done || err != nil {
		t.Fatalf("Poll = %v, %v", done, err)
	}

	got := make([]byte, 4)
	if err := d.ReadBuffer(a, 0, got); err != nil {
		t.Fatal(err)
	}
	if v := binary.LittleEndian.Uint32(got); v != 12 {
		t.Errorf("a = %d, want 12", v)
	}
}

func TestSoftwareDevice_Validation(t *testing.T) {
	d := NewSoftwareDevice(1)
	defer d.Destroy()
	other := NewSoftwareDevice(1)
	defer other.Destroy()

	p := newDoublePipeline(t, d, 1)
	in := mustBuffer(t, d, "in", 16)
	out := mustBuffer(t, d, "out", 16)
	foreign := mustBuffer(t, other, "foreign", 16)
	small := mustBuffer(t, d, "small", 4)

	tests := []struct {
		name  string
		build func(c *CommandList)
		want  error
	}{
		{
			name: "missing binding",
			build: func(c *CommandList) {
				c.Dispatch(p, []BindEntry{{Binding: 0, Buffer: in}}, 1)
			},
			want: ErrValidation,
		},
		{
			name: "foreign buffer",
			build: func(c *CommandList) {
				c.Dispatch(p, []BindEntry{{Binding: 0, Buffer: in}, {Binding: 1, Buffer: foreign}}, 1)
			},
			want: ErrForeignResource,
		},
		{
			name: "copy larger than destination",
			build: func(c *CommandList) {
				c.CopyBufferToBuffer(out, small, 16)
			},
			want: ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &CommandList{Label: tt.name}
			tt.build(c)
			_, err := d.Submit(c)
			if !errors.Is(err, tt.want) {
				t.Errorf("Submit error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSoftwareDevice_PipelineRequiresHostKernel(t *testing.T) {
	d := NewSoftwareDevice(1)
	defer d.Destroy()

	_, err := d.CreateComputePipeline(&PipelineDescriptor{Label: "empty", WorkgroupSize: 1})
	if !errors.Is(err, ErrShaderCompilation) {
		t.Errorf("error = %v, want ErrShaderCompilation", err)
	}
	_, err = d.CreateComputePipeline(&PipelineDescriptor{Label: "zero", Host: doubleKernel})
	if !errors.Is(err, ErrShaderCompilation) {
		t.Errorf("error = %v, want ErrShaderCompilation", err)
	}
}

func TestSoftwareDevice_KernelPanicIsDeviceLost(t *testing.T) {
	d := NewSoftwareDevice(2)
	defer d.Destroy()

	p, err := d.CreateComputePipeline(&PipelineDescriptor{
		Label:         "panics",
		Bindings:      []BindingLayout{{Binding: 0, Type: BindingStorage}},
		WorkgroupSize: 1,
		Host:          func(uint32, [][]uint32) { panic("boom") },
	})
	if err != nil {
		t.Fatal(err)
	}
	buf := mustBuffer(t, d, "buf", 4)
	c := &CommandList{Label: "panics"}
	c.Dispatch(p, []BindEntry{{Binding: 0, Buffer: buf}}, 1)

	sub, err := d.Submit(c)
	if err != nil {
		t.Fatal(err)
	}
	done, err := d.Poll(sub, time.Second)
	if !done {
		t.Fatal("submission did not complete")
	}
	if !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Poll error = %v, want ErrDeviceLost", err)
	}
}

func TestSoftwareDevice_PollTimeout(t *testing.T) {
	d := NewSoftwareDevice(1)
	defer d.Destroy()

	release := make(chan struct{})
	p, err := d.CreateComputePipeline(&PipelineDescriptor{
		Label:         "blocking",
		Bindings:      []BindingLayout{{Binding: 0, Type: BindingStorage}},
		WorkgroupSize: 1,
		Host:          func(uint32, [][]uint32) { <-release },
	})
	if err != nil {
		t.Fatal(err)
	}
	buf := mustBuffer(t, d, "buf", 4)
	c := &CommandList{Label: "blocking"}
	c.Dispatch(p, []BindEntry{{Binding: 0, Buffer: buf}}, 1)

	sub, err := d.Submit(c)
	if err != nil {
		t.Fatal(err)
	}
	if done, _ := d.Poll(sub, 0); done {
		t.Error("Poll(0) reported completion while kernel is blocked")
	}
	if done, _ := d.Poll(sub, 10*time.Millisecond); done {
		t.Error("Poll(10ms) reported completion while kernel is blocked")
	}
	close(release)
	if done, err := d.Poll(sub, time.Second); !done || err != nil {
		t.Errorf("Poll after release = %v, %v", done, err)
	}
}

func TestSoftwareDevice_Destroyed(t *testing.T) {
	d := NewSoftwareDevice(1)
	buf := mustBuffer(t, d, "buf", 4)
	d.Destroy()
	d.Destroy() // idempotent

	if _, err := d.CreateBuffer(&BufferDescriptor{Label: "late", Size: 4}); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("CreateBuffer error = %v, want ErrDeviceDestroyed", err)
	}
	if err := d.WriteBuffer(buf, 0, words(1)); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("WriteBuffer error = %v, want ErrDeviceDestroyed", err)
	}
	if _, err := d.Submit(&CommandList{Label: "late"}); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("Submit error = %v, want ErrDeviceDestroyed", err)
	}
}

func TestSoftwareDevice_BufferBounds(t *testing.T) {
	d := NewSoftwareDevice(1)
	defer d.Destroy()

	if _, err := d.CreateBuffer(&BufferDescriptor{Label: "odd", Size: 6}); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("CreateBuffer(6) error = %v, want ErrInvalidBufferSize", err)
	}
	buf := mustBuffer(t, d, "buf", 8)
	if err := d.WriteBuffer(buf, 4, words(1, 2)); !errors.Is(err, ErrValidation) {
		t.Errorf("overflowing write error = %v, want ErrValidation", err)
	}
	if err := d.ReadBuffer(buf, 2, make([]byte, 4)); !errors.Is(err, ErrValidation) {
		t.Errorf("unaligned read error = %v, want ErrValidation", err)
	}
	d.DestroyBuffer(buf)
	if err := d.ReadBuffer(buf, 0, make([]byte, 4)); !errors.Is(err, ErrBufferDestroyed) {
		t.Errorf("read after destroy error = %v, want ErrBufferDestroyed", err)
	}
}

func TestSoftwareDevice_Info(t *testing.T) {
	d := NewSoftwareDevice(3)
	defer d.Destroy()

	info := d.Info()
	if info.Backend != BackendSoftware {
		t.Errorf("Backend = %v, want software", info.Backend)
	}
	if info.Shared {
		t.Error("software device reported as shared")
	}
	if info.Name == "" {
		t.Error("empty adapter name")
	}
}
