// Package model builds the continuous-time process model of the radial
// surface and discretizes it exactly, per step, via the Van Loan
// matrix-exponential block technique.
//
// The state vector over n = nProbe + nInterp angles has length 3n+3:
// positions [0,n), velocities [n,2n), a latent mean-reverting process
// [2n,3n), then three global nuisance terms: a constant offset and two
// coupled linear-in-warped-time terms.
package model

import (
	"fmt"
	"math"

	"github.com/xxxboxer535/PDV-Reconstruction/kernel"
	"github.com/xxxboxer535/PDV-Reconstruction/matrix"
	"gonum.org/v1/gonum/mat"
)

// Config holds the process model hyperparameters.
type Config struct {
	// ProbeAngles and InterpAngles define the angle set, probes first.
	ProbeAngles  []float64
	InterpAngles []float64
	// EarlyRate and LateRate bound the time-varying mean-reversion rate
	// of the latent process.
	EarlyRate float64
	LateRate  float64
	// HalfLife is the half-life of the decay from EarlyRate to LateRate.
	HalfLife float64
	// LengthScale is the angular length scale of the correlation kernel.
	LengthScale float64
	// SpatialVar scales the spatial process-noise covariance.
	SpatialVar float64
}

// Model is the continuous-time process model. It is immutable after
// construction and safe to share across sequential fits.
type Model struct {
	angles     []float64
	n          int
	dim        int
	earlyRate  float64
	lateRate   float64
	halfLife   float64
	spatialVar float64
	corr       *mat.SymDense
}

// New creates a new Model from c and returns it.
// It returns error if the angle set is empty or any hyperparameter is
// invalid.
func New(c Config) (*Model, error) {
	n := len(c.ProbeAngles) + len(c.InterpAngles)
	if n == 0 {
		return nil, fmt.Errorf("empty angle set")
	}
	if c.EarlyRate <= 0 || c.LateRate <= 0 {
		return nil, fmt.Errorf("invalid mean-reversion rates: %f, %f", c.EarlyRate, c.LateRate)
	}
	if c.HalfLife <= 0 {
		return nil, fmt.Errorf("invalid decay half-life: %f", c.HalfLife)
	}
	if c.SpatialVar < 0 {
		return nil, fmt.Errorf("invalid spatial variance: %f", c.SpatialVar)
	}

	k, err := kernel.NewMatern32(c.LengthScale)
	if err != nil {
		return nil, err
	}

	angles := make([]float64, 0, n)
	angles = append(angles, c.ProbeAngles...)
	angles = append(angles, c.InterpAngles...)

	return &Model{
		angles:     angles,
		n:          n,
		dim:        3*n + 3,
		earlyRate:  c.EarlyRate,
		lateRate:   c.LateRate,
		halfLife:   c.HalfLife,
		spatialVar: c.SpatialVar,
		corr:       k.CorrMatrix(angles),
	}, nil
}

// Dim returns the state dimension 3n+3.
func (m *Model) Dim() int {
	return m.dim
}

// NumAngles returns the number of angles n.
func (m *Model) NumAngles() int {
	return m.n
}

// Angles returns the angle set, probes first.
func (m *Model) Angles() []float64 {
	return append([]float64(nil), m.angles...)
}

// SpatialVar returns the spatial variance hyperparameter.
func (m *Model) SpatialVar() float64 {
	return m.spatialVar
}

// Corr returns the correlation matrix over the angle set.
func (m *Model) Corr() *mat.SymDense {
	c := mat.NewSymDense(m.corr.SymmetricDim(), nil)
	c.CopySym(m.corr)

	return c
}

// Rate returns the latent mean-reversion rate at warped time t. The rate
// decays exponentially from EarlyRate towards LateRate with the configured
// half-life, modelling the transition from sharp early dynamics to smoother
// late dynamics.
func (m *Model) Rate(t float64) float64 {
	return m.lateRate + (m.earlyRate-m.lateRate)*math.Exp2(-t/m.halfLife)
}

// Discretize returns the exact discrete transition matrix A and process
// noise covariance Q for a step of size dt starting at warped time t.
//
// It forms the 2m x 2m block matrix [[L, Qc], [0, -L']] scaled by dt from
// the drift operator L and the continuous noise Qc, exponentiates it, and
// reads A off the top-left block and Q = (top-right block) * A'. The joint
// exponentiation keeps Q symmetric and consistent with A. Recomputed every
// step because the mean-reversion rate is time-varying.
func (m *Model) Discretize(t, dt float64) (*mat.Dense, *mat.SymDense) {
	n, dim := m.n, m.dim
	rate := m.Rate(t)

	l := mat.NewDense(dim, dim, nil)
	// the constant offset at 3n has zero drift
	lin1, lin2 := 3*n+1, 3*n+2
	for i := 0; i < n; i++ {
		// position driven by velocity and the two linear nuisance terms
		l.Set(i, n+i, 1.0)
		l.Set(i, lin1, 1.0)
		l.Set(i, lin2, 1.0)
		// velocity driven by the latent process
		l.Set(n+i, 2*n+i, 1.0)
		// latent process mean-reverts at the time-varying rate
		l.Set(2*n+i, 2*n+i, -rate)
	}
	// the first linear term grows at the rate of the second
	l.Set(lin1, lin2, 1.0)

	// noise enters through the latent block only; 4*rate^3 matches the
	// stationary variance of the driven process to the kernel
	qScale := m.spatialVar * 4.0 * rate * rate * rate

	blk := mat.NewDense(2*dim, 2*dim, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			blk.Set(i, j, l.At(i, j)*dt)
			blk.Set(dim+i, dim+j, -l.At(j, i)*dt)
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			blk.Set(2*n+i, dim+2*n+j, qScale*m.corr.At(i, j)*dt)
		}
	}

	var expM mat.Dense
	expM.Exp(blk)

	a := mat.DenseCopyOf(expM.Slice(0, dim, 0, dim))
	b := expM.Slice(0, dim, dim, 2*dim)

	var q mat.Dense
	q.Mul(b, a.T())

	return a, matrix.SymFromDense(&q)
}
