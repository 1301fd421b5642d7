package levenshtein

import "slices"

// Matrix is an N×N row-major distance matrix. Values[i*N+j] is the distance
// between word i and word j of the batch that produced it.
type Matrix struct {
	N      int
	Values []uint32
}

// NewMatrix returns a zeroed n×n matrix.
func NewMatrix(n int) Matrix {
	return Matrix{N: n, Values: make([]uint32, n*n)}
}

// At returns the distance between words i and j.
func (m Matrix) At(i, j int) uint32 {
	return m.Values[i*m.N+j]
}

// Row returns the distances from word i to every word. The slice aliases
// the matrix.
func (m Matrix) Row(i int) []uint32 {
	return m.Values[i*m.N : (i+1)*m.N]
}

// Equal reports whether both matrices have the same size and values.
func (m Matrix) Equal(o Matrix) bool {
	return m.N == o.N && slices.Equal(m.Values, o.Values)
}

// Pair is one entry of the upper triangle.
type Pair struct {
	I, J     int
	A, B     string
	Distance uint32
}

// Pairs returns the (word_a, word_b, distance) triples for i < j in row
// order. words must be the batch the matrix was computed from.
func (m Matrix) Pairs(words []string) []Pair {
	if m.N < 2 {
		return nil
	}
	out := make([]Pair, 0, m.N*(m.N-1)/2)
	for i := 0; i < m.N; i++ {
		for j := i + 1; j < m.N; j++ {
			out = append(out, Pair{I: i, J: j, A: words[i], B: words[j], Distance: m.At(i, j)})
		}
	}
	return out
}
