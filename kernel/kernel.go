// Package kernel implements the spatial correlation kernel coupling the
// latent processes of all angles.
package kernel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matern32 is the Matern-3/2 correlation kernel over angular separation.
// Its value is 1 at zero separation and decreases monotonically with
// increasing separation.
type Matern32 struct {
	// lambda is sqrt(3) divided by the angular length scale
	lambda float64
}

// NewMatern32 creates a new Matern32 kernel with the given angular length
// scale and returns it.
// It returns error if the length scale is not positive.
func NewMatern32(lscale float64) (*Matern32, error) {
	if lscale <= 0 {
		return nil, fmt.Errorf("invalid length scale: %f", lscale)
	}

	return &Matern32{
		lambda: math.Sqrt(3) / lscale,
	}, nil
}

// Corr returns the correlation between angles a and b.
func (k *Matern32) Corr(a, b float64) float64 {
	d := math.Abs(a-b) * k.lambda
	return (1 + d) * math.Exp(-d)
}

// CorrMatrix returns the correlation matrix over all pairs of the given
// angles.
func (k *Matern32) CorrMatrix(angles []float64) *mat.SymDense {
	n := len(angles)
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c.SetSym(i, j, k.Corr(angles[i], angles[j]))
		}
	}

	return c
}
