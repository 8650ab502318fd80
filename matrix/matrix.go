// Package matrix provides small dense-matrix helpers shared by the process
// model, the filter and the smoother.
package matrix

import (
	"gonum.org/v1/gonum/mat"
)

// SymFromDense returns the symmetric matrix obtained by averaging m with
// its transpose. It panics if m is not square.
func SymFromDense(m mat.Matrix) *mat.SymDense {
	rows, cols := m.Dims()
	if rows != cols {
		panic("matrix: non-square matrix")
	}

	s := mat.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := i; j < rows; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}

// DiagBlock returns the n diagonal entries of the square sub-block of m
// starting at offset off.
func DiagBlock(m mat.Matrix, off, n int) []float64 {
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = m.At(off+i, off+i)
	}

	return d
}
