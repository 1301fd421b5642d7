package kernel

// Invoke runs one kernel lane on host memory. bindings is indexed by binding
// number and holds the buffers as uint32 views, exactly as the shader sees
// them. Lanes with id >= Params.Count do nothing, mirroring the shader's
// bounds check for the rounded-up dispatch.
func Invoke(id uint32, bindings [][]uint32) {
	params := bindings[BindingParams]
	n, padding := params[0], params[1]
	if id >= n {
		return
	}
	words := bindings[BindingInput]
	out := bindings[BindingOutput]

	a := words[id*padding : (id+1)*padding]
	for j := uint32(0); j < n; j++ {
		out[id*n+j] = pairDistance(a, words[j*padding:(j+1)*padding], padding)
	}
}

// pairDistance walks the full padding x padding table with two stack rows
// and returns the cell for the real word lengths.
func pairDistance(a, b []uint32, padding uint32) uint32 {
	var prev, curr [MaxPadding + 1]uint32
	for k := uint32(0); k <= padding; k++ {
		prev[k] = k
	}

	lenA, lenB := wordLength(a, padding), wordLength(b, padding)
	result := lenB

	for x := uint32(0); x < padding; x++ {
		curr[0] = x + 1
		ca := a[x]
		for y := uint32(0); y < padding; y++ {
			cost := selectU32(1, 0, ca == b[y])
			curr[y+1] = min(curr[y]+1, prev[y+1]+1, prev[y]+cost)
		}
		result = selectU32(result, curr[lenB], x+1 == lenA)
		prev = curr
	}
	return result
}

func wordLength(w []uint32, padding uint32) uint32 {
	var n uint32
	for k := uint32(0); k < padding; k++ {
		n += selectU32(0, 1, w[k] != 0)
	}
	return n
}

// selectU32 has WGSL select semantics: f when cond is false, t otherwise.
func selectU32(f, t uint32, cond bool) uint32 {
	if cond {
		return t
	}
	return f
}
