package kernel

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/agnivade/levenshtein"
	"github.com/gogpu/naga"

	"github.com/Milo4uk/levenshtein-distance/internal/codec"
)

// runBatch executes every lane of a batch on host memory, with extra idle
// lanes to mimic a rounded-up dispatch.
func runBatch(t *testing.T, words []string, padding int) []uint32 {
	t.Helper()
	codes, err := codec.Encode(words, padding)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n := uint32(len(words))
	out := make([]uint32, n*n)
	params := Params{Count: n, Padding: uint32(padding)}.Words()
	bindings := [][]uint32{codes, out, params}
	for id := uint32(0); id < n+DefaultWorkgroupSize; id++ {
		Invoke(id, bindings)
	}
	return out
}

func TestInvokeScenarios(t *testing.T) {
	tests := []struct {
		name  string
		words []string
		want  []uint32
	}{
		{"kitten_sitting", []string{"kitten", "sitting"}, []uint32{0, 3, 3, 0}},
		{"empty", []string{"", "test"}, []uint32{0, 4, 4, 0}},
		{"three", []string{"kitten", "kill", "bananas"}, []uint32{0, 4, 7, 4, 0, 7, 7, 7, 0}},
		{"prefix_shift", []string{"a", "ba"}, []uint32{0, 1, 1, 0}},
		{"both_empty", []string{"", ""}, []uint32{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runBatch(t, tt.words, DefaultPadding)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("out[%d] = %d, want %d (full %v)", i, got[i], tt.want[i], got)
				}
			}
		})
	}
}

// A padding bound equal to the longest word leaves no padding at all for
// that word; tiny bounds exercise the row capture at the last row.
func TestInvokeTightPadding(t *testing.T) {
	words := []string{"a", "ba", "ab", ""}
	got := runBatch(t, words, 2)
	for i, a := range words {
		for j, b := range words {
			want := uint32(levenshtein.ComputeDistance(a, b))
			if got[i*len(words)+j] != want {
				t.Errorf("d(%q,%q) = %d, want %d", a, b, got[i*len(words)+j], want)
			}
		}
	}
}

func TestInvokeMatchesOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcé日\x00")
	words := make([]string, 24)
	for i := range words {
		var sb strings.Builder
		for k := rng.Intn(17); k > 0; k-- {
			sb.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		words[i] = sb.String()
	}

	got := runBatch(t, words, 16)
	for i, a := range words {
		for j, b := range words {
			want := uint32(levenshtein.ComputeDistance(a, b))
			if got[i*len(words)+j] != want {
				t.Fatalf("d(%q,%q) = %d, want %d", a, b, got[i*len(words)+j], want)
			}
		}
	}
}

func TestInvokeIgnoresOutOfRangeLanes(t *testing.T) {
	out := []uint32{99}
	bindings := [][]uint32{{'a' + 1}, out, Params{Count: 1, Padding: 1}.Words()}
	Invoke(5, bindings)
	if out[0] != 99 {
		t.Errorf("lane 5 wrote output: %v", out)
	}
}

func TestSourceSpecialization(t *testing.T) {
	src, err := Source(32, 128)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	for _, want := range []string{"const PADDING: u32 = 32u;", "array<u32, 33>", "@workgroup_size(128)", "fn " + EntryPoint} {
		if !strings.Contains(src, want) {
			t.Errorf("source missing %q", want)
		}
	}
	if strings.Contains(src, "{{") {
		t.Error("source has unreplaced placeholders")
	}
}

func TestSourceRejectsBadParameters(t *testing.T) {
	if _, err := Source(0, 64); err == nil {
		t.Error("padding 0 accepted")
	}
	if _, err := Source(MaxPadding+1, 64); err == nil {
		t.Error("padding above MaxPadding accepted")
	}
	if _, err := Source(8, 0); err == nil {
		t.Error("workgroup size 0 accepted")
	}
}

func TestWorkgroups(t *testing.T) {
	tests := []struct{ n, wg int; want uint32 }{
		{0, 64, 0}, {1, 64, 1}, {64, 64, 1}, {65, 64, 2}, {200, 64, 4},
	}
	for _, tt := range tests {
		if got := Workgroups(tt.n, tt.wg); got != tt.want {
			t.Errorf("Workgroups(%d, %d) = %d, want %d", tt.n, tt.wg, got, tt.want)
		}
	}
}

func TestBindingsContract(t *testing.T) {
	b := Bindings()
	if len(b) != 3 {
		t.Fatalf("len(Bindings()) = %d, want 3", len(b))
	}
	if b[0].Index != 0 || b[0].Kind != ReadOnlyStorage {
		t.Errorf("binding 0 = %+v, want read-only storage", b[0])
	}
	if b[1].Index != 1 || b[1].Kind != Storage {
		t.Errorf("binding 1 = %+v, want storage", b[1])
	}
	if b[2].Index != 2 || b[2].Kind != Uniform {
		t.Errorf("binding 2 = %+v, want uniform", b[2])
	}
}

// TestShaderCompilation checks that the specialized WGSL compiles to SPIR-V.
func TestShaderCompilation(t *testing.T) {
	src, err := Source(DefaultPadding, DefaultWorkgroupSize)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	spirv, err := naga.Compile(src)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
		t.Fatalf("failed to compile levenshtein shader: %v", err)
	}
	if len(spirv) < 4 {
		t.Fatal("SPIR-V too short")
	}
	magic := uint32(spirv[0]) | uint32(spirv[1])<<8 | uint32(spirv[2])<<16 | uint32(spirv[3])<<24
	if magic != 0x07230203 {
		t.Errorf("invalid SPIR-V magic: 0x%08X, want 0x07230203", magic)
	}
	t.Logf("levenshtein shader compiled to %d bytes of SPIR-V", len(spirv))
}
