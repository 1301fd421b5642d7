package levenshtein

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Engine computes a distance matrix for a batch.
type Engine interface {
	Compute(words []string) (Matrix, error)
}

// CPUEngine is the sequential reference engine. It never fails.
type CPUEngine struct{}

var _ Engine = CPUEngine{}

// Compute returns ComputeCPU(words).
func (CPUEngine) Compute(words []string) (Matrix, error) {
	return ComputeCPU(words), nil
}

// Distance returns the Levenshtein distance between a and b, counted in
// runes, using two rolling rows of len(b)+1 cells.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}
			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// ComputeCPU returns the full matrix for words, visiting every ordered pair
// including i == j and both halves of the symmetric matrix.
func ComputeCPU(words []string) Matrix {
	m := NewMatrix(len(words))
	for i := range words {
		computeRow(m, words, i)
	}
	return m
}

// ComputeCPUConcurrent is ComputeCPU with rows spread over at most limit
// goroutines (GOMAXPROCS when limit <= 0). The result is identical to
// ComputeCPU. It stops early and returns ctx.Err() if ctx is cancelled.
func ComputeCPUConcurrent(ctx context.Context, words []string, limit int) (Matrix, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	m := NewMatrix(len(words))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range words {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			computeRow(m, words, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}

func computeRow(m Matrix, words []string, i int) {
	row := m.Row(i)
	for j := range words {
		row[j] = uint32(Distance(words[i], words[j])) //nolint:gosec // distance <= max word length
	}
}
