// Package rkf implements the robust forward Kalman filter of the surface
// reconstruction: a predict/update recursion with Winsorized residuals,
// hard outlier exclusion after an initial stabilization window,
// Cholesky-based solves and a running measurement log-likelihood.
package rkf

import (
	"errors"
	"fmt"
	"math"

	"github.com/xxxboxer535/PDV-Reconstruction/estimate"
	"github.com/xxxboxer535/PDV-Reconstruction/matrix"
	"github.com/xxxboxer535/PDV-Reconstruction/model"
	"gonum.org/v1/gonum/mat"
)

// ErrFactorization is returned when the innovation covariance cannot be
// Cholesky factored. The whole fit must be aborted, never retried, since
// covariance integrity is lost.
var ErrFactorization = errors.New("innovation covariance factorization failed")

const (
	// winsorBound clips standardized residuals to [-winsorBound, winsorBound]
	winsorBound = 3.0
	// stabilizeSteps is the number of early steps during which hard
	// rejection never triggers, letting the filter stabilize
	stabilizeSteps = 500
)

// rejectLogDensity is the fixed likelihood charge per hard-rejected row:
// the standard normal log density at the winsorizing bound.
var rejectLogDensity = -0.5*math.Log(2.0*math.Pi) - 0.5*winsorBound*winsorBound

// Config holds the filter hyperparameters.
type Config struct {
	// InitRadius is the surface radius before the disturbance arrives.
	InitRadius float64
	// PosVar and VelVar are the measurement noise variances of position
	// and velocity rows.
	PosVar float64
	VelVar float64
	// OffsetVar is the prior variance of the constant nuisance offset.
	OffsetVar float64
	// LinVar is the prior variance of each linear nuisance term.
	LinVar float64
	// ProbeOffsets are per-probe angular offsets in radians correcting
	// for a probe not lying exactly radially; fixed for the whole fit.
	ProbeOffsets []float64
}

// Observation is the gated set of finite probe readings at one warped
// step. Indices refer to positions within the angle set; entries not yet
// arrived are absent, not zero.
type Observation struct {
	PosIdx []int
	PosVal []float64
	VelIdx []int
	VelVal []float64
}

// RKF is the robust Kalman filter. It holds no per-run state, so it is
// reusable across sequential fits; a single run is not reentrant.
type RKF struct {
	m *model.Model
	c Config
}

// New creates a new RKF over the process model m and returns it.
// It returns error if the configuration is inconsistent with the model.
func New(m *model.Model, c Config) (*RKF, error) {
	if len(c.ProbeOffsets) == 0 || len(c.ProbeOffsets) > m.NumAngles() {
		return nil, fmt.Errorf("invalid probe offset count: %d for %d angles", len(c.ProbeOffsets), m.NumAngles())
	}
	for j, off := range c.ProbeOffsets {
		if math.Cos(off) == 0 {
			return nil, fmt.Errorf("probe %d offset %f is tangential", j, off)
		}
	}
	if c.PosVar < 0 || c.VelVar < 0 {
		return nil, fmt.Errorf("invalid measurement variances: %f, %f", c.PosVar, c.VelVar)
	}

	return &RKF{m: m, c: c}, nil
}

// Assemble builds per-step observation sets from the realigned probe
// series, rows indexed by warped step and columns by probe. Position rows
// are raw probe positions where finite; velocity rows are
// -rawVelocity/cos(angleOffset). Non-finite samples are absent.
func (f *RKF) Assemble(position, velocity *mat.Dense) ([]Observation, error) {
	steps, cols := position.Dims()
	vr, vc := velocity.Dims()
	if vr != steps || vc != cols {
		return nil, fmt.Errorf("position and velocity dimensions disagree: [%d x %d] != [%d x %d]", steps, cols, vr, vc)
	}
	if cols != len(f.c.ProbeOffsets) {
		return nil, fmt.Errorf("invalid probe count: %d != %d", cols, len(f.c.ProbeOffsets))
	}

	obs := make([]Observation, steps)
	for t := 0; t < steps; t++ {
		o := Observation{}
		for j := 0; j < cols; j++ {
			if p := position.At(t, j); !math.IsNaN(p) && !math.IsInf(p, 0) {
				o.PosIdx = append(o.PosIdx, j)
				o.PosVal = append(o.PosVal, p)
			}
			if v := velocity.At(t, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				o.VelIdx = append(o.VelIdx, j)
				o.VelVal = append(o.VelVal, -v/math.Cos(f.c.ProbeOffsets[j]))
			}
		}
		obs[t] = o
	}

	return obs, nil
}

// InitCond returns the initial state distribution: positions at the
// initial radius, velocity and latent covariance blocks built from the
// correlation kernel scaled by the spatial variance and its square, and
// fixed nuisance variances with zero initial cross-covariance between the
// two linear terms.
func (f *RKF) InitCond() (*estimate.Base, error) {
	x, p := f.initCond()
	return estimate.NewBaseWithCov(x, matrix.SymFromDense(p))
}

func (f *RKF) initCond() (*mat.VecDense, *mat.Dense) {
	n := f.m.NumAngles()
	x := mat.NewVecDense(f.m.Dim(), nil)
	for i := 0; i < n; i++ {
		x.SetVec(i, f.c.InitRadius)
	}

	p := mat.NewDense(f.m.Dim(), f.m.Dim(), nil)
	corr := f.m.Corr()
	sv := f.m.SpatialVar()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := corr.At(i, j)
			p.Set(n+i, n+j, sv*c)
			p.Set(2*n+i, 2*n+j, sv*sv*c)
		}
	}
	p.Set(3*n, 3*n, f.c.OffsetVar)
	p.Set(3*n+1, 3*n+1, f.c.LinVar)
	p.Set(3*n+2, 3*n+2, f.c.LinVar)

	return x, p
}

// Run executes the forward pass over the per-step observation sets and
// returns the filtered history together with the accumulated measurement
// log-likelihood. Step 0 uses the initial distribution directly as its
// prediction; steps without a finite observation keep the prediction as
// their posterior.
// It returns ErrFactorization if an innovation covariance cannot be
// factored, aborting the fit.
func (f *RKF) Run(obs []Observation, dt float64) ([]*estimate.Base, float64, error) {
	if len(obs) == 0 {
		return nil, 0, fmt.Errorf("empty observation history")
	}

	dim := f.m.Dim()
	x, p := f.initCond()
	hist := make([]*estimate.Base, len(obs))

	ll := 0.0
	for t := range obs {
		if t > 0 {
			a, q := f.m.Discretize(float64(t-1)*dt, dt)

			xNext := mat.NewVecDense(dim, nil)
			xNext.MulVec(a, x)

			var ap mat.Dense
			ap.Mul(a, p)
			pNext := mat.NewDense(dim, dim, nil)
			pNext.Mul(&ap, a.T())
			pNext.Add(pNext, q)

			x, p = xNext, pNext
		}

		var dll float64
		var err error
		x, p, dll, err = f.update(t, x, p, obs[t])
		if err != nil {
			return nil, 0, err
		}
		ll += dll

		e, err := estimate.NewBaseWithCov(x, matrix.SymFromDense(p))
		if err != nil {
			return nil, 0, err
		}
		hist[t] = e
	}

	return hist, ll, nil
}

// update corrects the predicted state (xp, pp) with the observation set o
// and returns the posterior together with the step's log-likelihood
// contribution.
func (f *RKF) update(t int, xp *mat.VecDense, pp *mat.Dense, o Observation) (*mat.VecDense, *mat.Dense, float64, error) {
	k := len(o.PosIdx) + len(o.VelIdx)
	if k == 0 {
		return xp, pp, 0.0, nil
	}

	h, y, rdiag := f.observe(o)
	resid, fm := innovation(h, y, rdiag, xp, pp)

	var chol mat.Cholesky
	if !chol.Factorize(matrix.SymFromDense(fm)) {
		return nil, nil, 0, fmt.Errorf("%w: %d rows at step %d", ErrFactorization, k, t)
	}

	// winsorize standardized residuals; past the stabilization window,
	// rows at or beyond the bound are excluded entirely
	keep := make([]int, 0, k)
	rw := make([]float64, 0, k)
	rejected := 0
	for i := 0; i < k; i++ {
		sd := math.Sqrt(fm.At(i, i))
		if t > stabilizeSteps && math.Abs(resid.AtVec(i)/sd) >= winsorBound {
			rejected++
			continue
		}
		rw = append(rw, winsorize(resid.AtVec(i), sd))
		keep = append(keep, i)
	}

	// each rejected row is charged a constant outlier cost
	ll := float64(rejected) * rejectLogDensity
	if len(keep) == 0 {
		return xp, pp, ll, nil
	}

	if len(keep) < k {
		hr := mat.NewDense(len(keep), f.m.Dim(), nil)
		fr := mat.NewDense(len(keep), len(keep), nil)
		for a, i := range keep {
			hr.SetRow(a, h.RawRowView(i))
			for b, j := range keep {
				fr.Set(a, b, fm.At(i, j))
			}
		}
		h, fm = hr, fr

		if !chol.Factorize(matrix.SymFromDense(fm)) {
			return nil, nil, 0, fmt.Errorf("%w: %d surviving rows at step %d", ErrFactorization, len(keep), t)
		}
	}

	rwVec := mat.NewVecDense(len(keep), rw)

	// S = F^-1 * H * P'
	var hp mat.Dense
	hp.Mul(h, pp)
	var s mat.Dense
	if err := chol.SolveTo(&s, &hp); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrFactorization, err)
	}

	// x = x' + P'*H'*F^-1 * r_w
	var corr mat.VecDense
	corr.MulVec(s.T(), rwVec)
	xNew := mat.NewVecDense(xp.Len(), nil)
	xNew.AddVec(xp, &corr)

	// P = P' - P'*H'*F^-1*H*P'; direct form, not Joseph-stabilized, a
	// numerical-robustness risk to watch on long runs
	var red mat.Dense
	red.Mul(hp.T(), &s)
	pNew := mat.NewDense(xp.Len(), xp.Len(), nil)
	pNew.Sub(pp, &red)

	// Gaussian log density of the kept winsorized residual under F
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, rwVec); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrFactorization, err)
	}
	quad := mat.Dot(rwVec, &sol)
	ll += -0.5 * (float64(len(keep))*math.Log(2.0*math.Pi) + chol.LogDet() + quad)

	return xNew, pNew, ll, nil
}

// observe builds the observation operator, measurement vector and noise
// diagonal for one observation set. Every row also carries the
// constant-offset and first linear-term columns: all observations are
// confounded with the two global nuisance terms by construction.
func (f *RKF) observe(o Observation) (*mat.Dense, *mat.VecDense, []float64) {
	n := f.m.NumAngles()
	k := len(o.PosIdx) + len(o.VelIdx)

	h := mat.NewDense(k, f.m.Dim(), nil)
	y := mat.NewVecDense(k, nil)
	rdiag := make([]float64, k)

	row := 0
	for i, idx := range o.PosIdx {
		h.Set(row, idx, 1.0)
		h.Set(row, 3*n, 1.0)
		h.Set(row, 3*n+1, 1.0)
		y.SetVec(row, o.PosVal[i])
		rdiag[row] = f.c.PosVar
		row++
	}
	for i, idx := range o.VelIdx {
		h.Set(row, n+idx, 1.0)
		h.Set(row, 3*n, 1.0)
		h.Set(row, 3*n+1, 1.0)
		y.SetVec(row, o.VelVal[i])
		rdiag[row] = f.c.VelVar
		row++
	}

	return h, y, rdiag
}

// innovation returns the innovation vector y - H*x' and its covariance
// F = H*P'*H' + R.
func innovation(h *mat.Dense, y *mat.VecDense, rdiag []float64, xp *mat.VecDense, pp *mat.Dense) (*mat.VecDense, *mat.Dense) {
	k := y.Len()

	var hx mat.VecDense
	hx.MulVec(h, xp)
	resid := mat.NewVecDense(k, nil)
	resid.SubVec(y, &hx)

	var hp mat.Dense
	hp.Mul(h, pp)
	fm := mat.NewDense(k, k, nil)
	fm.Mul(&hp, h.T())
	for i := 0; i < k; i++ {
		fm.Set(i, i, fm.At(i, i)+rdiag[i])
	}

	return resid, fm
}

// winsorize clips the residual r to winsorBound standard deviations and
// rescales it back to residual units.
func winsorize(r, sd float64) float64 {
	s := r / sd
	if s > winsorBound {
		s = winsorBound
	} else if s < -winsorBound {
		s = -winsorBound
	}
	return s * sd
}
