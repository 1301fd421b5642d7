// Package levenshtein computes pairwise Levenshtein distance matrices.
//
// # Overview
//
// A batch of N words produces an N×N row-major [Matrix] whose cell (i, j) is
// the edit distance between word i and word j. Insertions, deletions and
// substitutions all cost 1. Two paths compute the same matrix bit for bit:
//
//   - [ComputeCPU] runs the classic two-row dynamic program sequentially and
//     is the reference every other path is checked against.
//   - [Session] runs the recurrence as a compute kernel, one invocation per
//     word, on a Vulkan device via gogpu/wgpu or on the host-side software
//     device.
//
// # Quick Start
//
//	import "github.com/Milo4uk/levenshtein-distance"
//
//	// CPU reference
//	m := levenshtein.ComputeCPU([]string{"kitten", "sitting"})
//	fmt.Println(m.At(0, 1)) // 3
//
//	// Device path: set up once, reuse for many batches
//	s, err := levenshtein.NewSession(1024)
//	if err != nil {
//	    // no device: fall back to ComputeCPU
//	}
//	defer s.Close()
//	m, err = s.Compute([]string{"kitten", "sitting"})
//
// # Padding
//
// Words are encoded as fixed-width rows of P codes (the padding bound, 64 by
// default, see [WithPadding]). A word longer than P runes is rejected with
// [ErrWordTooLong] before any device work; it is never truncated. Character
// codes are shifted by one so the padding value 0 never collides with a real
// character, NUL included.
//
// # Sessions
//
// A session owns its device, compiled pipeline and buffers for its whole
// lifetime. Capacity is fixed at construction; [ErrCapacityExceeded] means a
// larger session is needed. Calls on one session are serialized. A failed
// transfer leaves the session invalid until [Session.Revalidate] succeeds.
//
// Falling back to the CPU path when no device is available is left to the
// caller; the levenshtein command does this by default.
//
// # Logging
//
// The package is silent by default. See [SetLogger].
package levenshtein
