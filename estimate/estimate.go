// Package estimate provides the state estimate type retained per step by
// the forward filter and the backward smoother.
package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Base is a mean/covariance state estimate. Forward and smoothed histories
// are separately owned slices of Base, so neither pass mutates the other.
type Base struct {
	// val is the estimated state mean
	val *mat.VecDense
	// cov is the estimated state covariance
	cov *mat.SymDense
}

// NewBaseWithCov returns a new estimate given the state mean and covariance.
// It returns error if their dimensions disagree.
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	rv, _ := val.Dims()
	rc := cov.SymmetricDim()

	if rv != rc {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", rv, rc, rc)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Val returns the estimated state mean.
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns the estimated state covariance.
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// ValAt returns entry i of the state mean.
func (b *Base) ValAt(i int) float64 {
	return b.val.AtVec(i)
}

// CovAt returns entry (i, j) of the state covariance.
func (b *Base) CovAt(i, j int) float64 {
	return b.cov.At(i, j)
}
