// Package kernel holds the pairwise distance kernel in its two renditions:
// the WGSL compute shader run by a GPU device, and Invoke, the same
// recurrence in Go run lane by lane by the software device.
//
// Both renditions read the same bindings and must produce identical output.
package kernel

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

//go:embed shaders/levenshtein.wgsl
var shaderTemplate string

// EntryPoint is the compute entry point in the WGSL source.
const EntryPoint = "main_cs"

// Padding limits. Host lanes keep their rolling rows in arrays sized for
// MaxPadding, so larger bounds are rejected up front.
const (
	DefaultPadding = 64
	MaxPadding     = 256
)

// Workgroup limits.
const (
	DefaultWorkgroupSize = 64
	MaxWorkgroupSize     = 256
)

// Binding indices in group 0.
const (
	BindingInput  uint32 = 0
	BindingOutput uint32 = 1
	BindingParams uint32 = 2
)

// ParamsSize is the size in bytes of the Params uniform.
const ParamsSize = 16

// Kernel errors.
var (
	ErrInvalidPadding       = errors.New("kernel: padding out of range")
	ErrInvalidWorkgroupSize = errors.New("kernel: workgroup size out of range")
)

// BindingKind is how the kernel accesses a binding.
type BindingKind int

const (
	// ReadOnlyStorage is a storage buffer the kernel only reads.
	ReadOnlyStorage BindingKind = iota
	// Storage is a storage buffer the kernel writes.
	Storage
	// Uniform is a uniform buffer.
	Uniform
)

// String returns the WGSL-ish name of the binding kind.
func (k BindingKind) String() string {
	switch k {
	case ReadOnlyStorage:
		return "storage,read"
	case Storage:
		return "storage,read_write"
	case Uniform:
		return "uniform"
	default:
		return fmt.Sprintf("BindingKind(%d)", int(k))
	}
}

// Binding describes one resource the kernel declares.
type Binding struct {
	Index uint32
	Kind  BindingKind
	Label string
}

// Bindings returns the resources declared by the kernel, in binding order.
// Devices derive their bind group layout from this list.
func Bindings() []Binding {
	return []Binding{
		{Index: BindingInput, Kind: ReadOnlyStorage, Label: "words"},
		{Index: BindingOutput, Kind: Storage, Label: "distances"},
		{Index: BindingParams, Kind: Uniform, Label: "params"},
	}
}

// Params is the uniform block passed at BindingParams.
type Params struct {
	Count   uint32 // words in the batch
	Padding uint32 // codes per word
}

// Words returns the uniform block as it is laid out in device memory.
func (p Params) Words() []uint32 {
	return []uint32{p.Count, p.Padding, 0, 0}
}

// ValidatePadding reports whether p can be used as a padding bound.
func ValidatePadding(p int) error {
	if p < 1 || p > MaxPadding {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidPadding, p, MaxPadding)
	}
	return nil
}

// ValidateWorkgroupSize reports whether n can be used as a workgroup size.
func ValidateWorkgroupSize(n int) error {
	if n < 1 || n > MaxWorkgroupSize {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidWorkgroupSize, n, MaxWorkgroupSize)
	}
	return nil
}

// Source returns the WGSL source specialized for a padding bound and
// workgroup size. Both values are baked in as constants because WGSL
// function-scope arrays need a constant length.
func Source(padding, workgroupSize int) (string, error) {
	if err := ValidatePadding(padding); err != nil {
		return "", err
	}
	if err := ValidateWorkgroupSize(workgroupSize); err != nil {
		return "", err
	}
	r := strings.NewReplacer(
		"{{PADDING}}", strconv.Itoa(padding),
		"{{ROW}}", strconv.Itoa(padding+1),
		"{{WORKGROUP_SIZE}}", strconv.Itoa(workgroupSize),
	)
	return r.Replace(shaderTemplate), nil
}

// Workgroups returns how many workgroups cover n invocations.
func Workgroups(n, workgroupSize int) uint32 {
	if n <= 0 {
		return 0
	}
	return uint32((n + workgroupSize - 1) / workgroupSize) //nolint:gosec // bounded by session capacity
}
