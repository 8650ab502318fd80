// Package rts implements the Rauch-Tung-Striebel backward smoother over the
// forward-filtered history, producing state estimates conditioned on the
// entire observed record.
package rts

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"github.com/xxxboxer535/PDV-Reconstruction/estimate"
	mtx "github.com/xxxboxer535/PDV-Reconstruction/matrix"
	"github.com/xxxboxer535/PDV-Reconstruction/model"
	"gonum.org/v1/gonum/mat"
)

// eps regularizes the predicted covariance against near-singularity before
// inversion.
const eps = 1e-10

// Smooth runs the backward recursion over the forward-filtered history and
// returns the smoothed history as a separately owned slice; the filtered
// input is left untouched.
//
// At every step it recomputes (A, Q) with the same time-varying-rate
// schedule the forward pass used, so both passes discretize identically.
// The gain G = P(t)*A'*(P' + eps*I)^-1 uses a full inversion rather than a
// factorization solve since the resulting gain need not be symmetric.
// It returns error if the regularized predicted covariance cannot be
// inverted.
func Smooth(filtered []*estimate.Base, m *model.Model, dt float64) ([]*estimate.Base, error) {
	if len(filtered) == 0 {
		return nil, fmt.Errorf("empty filtered history")
	}

	dim := m.Dim()
	last := len(filtered) - 1

	sx := make([]*estimate.Base, len(filtered))
	e, err := estimate.NewBaseWithCov(filtered[last].Val(), filtered[last].Cov())
	if err != nil {
		return nil, err
	}
	sx[last] = e

	eye, err := matrix.NewDenseValIdentity(dim, eps)
	if err != nil {
		return nil, err
	}

	for t := last - 1; t >= 0; t-- {
		// the forward pass discretized the step t -> t+1 at warped time t
		a, q := m.Discretize(float64(t)*dt, dt)

		xf := filtered[t].Val()
		pf := filtered[t].Cov()

		// predicted mean and covariance of step t+1 from the filtered t
		xp := mat.NewVecDense(dim, nil)
		xp.MulVec(a, xf)

		pp := mat.NewDense(dim, dim, nil)
		pp.Mul(a, pf)
		pp.Mul(pp, a.T())
		pp.Add(pp, q)

		// G = Pf*A'*(Pp + eps*I)^-1
		reg := mat.NewDense(dim, dim, nil)
		reg.Add(pp, eye)
		pinv := &mat.Dense{}
		if err := pinv.Inverse(reg); err != nil {
			return nil, fmt.Errorf("predicted covariance inversion failed at step %d: %v", t, err)
		}
		g := &mat.Dense{}
		g.Mul(pf, a.T())
		g.Mul(g, pinv)

		// smoothed mean: xf + G*(xs(t+1) - xp)
		dx := mat.NewVecDense(dim, nil)
		dx.SubVec(sx[t+1].Val(), xp)
		gx := mat.NewVecDense(dim, nil)
		gx.MulVec(g, dx)
		xs := mat.NewVecDense(dim, nil)
		xs.AddVec(xf, gx)

		// smoothed covariance: Pf + G*(Ps(t+1) - Pp)*G'
		dp := &mat.Dense{}
		dp.Sub(sx[t+1].Cov(), pp)
		gp := &mat.Dense{}
		gp.Mul(g, dp)
		gp.Mul(gp, g.T())
		ps := &mat.Dense{}
		ps.Add(pf, gp)

		e, err = estimate.NewBaseWithCov(xs, mtx.SymFromDense(ps))
		if err != nil {
			return nil, err
		}
		sx[t] = e
	}

	return sx, nil
}
