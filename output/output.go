// Package output projects position and velocity estimates out of the
// smoothed state history and realigns every angle back onto the physical
// clock.
package output

import (
	"fmt"
	"math"

	"github.com/xxxboxer535/PDV-Reconstruction/estimate"
	"github.com/xxxboxer535/PDV-Reconstruction/matrix"
	"gonum.org/v1/gonum/mat"
)

// Profile holds per-angle, per-time estimates on the physical clock, rows
// indexed by angle and columns by time step.
type Profile struct {
	Position    *mat.Dense
	PositionVar *mat.Dense
	Velocity    *mat.Dense
	VelocityVar *mat.Dense
}

// Project extracts the position and velocity blocks of the smoothed
// history and unwarps each angle by its jump time. The velocity sign is
// inverted relative to the internal state convention. Steps before an
// angle's arrival carry the neutral prior: position at the initial radius,
// velocity zero, variance zero, since nothing is known to have happened
// yet.
// It returns error if the jump time count disagrees with n.
func Project(smoothed []*estimate.Base, n int, jumps []float64, initRadius float64) (*Profile, error) {
	if len(jumps) != n {
		return nil, fmt.Errorf("invalid jump time count: %d != %d", len(jumps), n)
	}
	steps := len(smoothed)
	if steps == 0 {
		return nil, fmt.Errorf("empty smoothed history")
	}

	// warped-frame series first
	wPos := mat.NewDense(n, steps, nil)
	wPosVar := mat.NewDense(n, steps, nil)
	wVel := mat.NewDense(n, steps, nil)
	wVelVar := mat.NewDense(n, steps, nil)
	for t, e := range smoothed {
		cov := e.Cov()
		posVar := matrix.DiagBlock(cov, 0, n)
		velVar := matrix.DiagBlock(cov, n, n)
		for i := 0; i < n; i++ {
			wPos.Set(i, t, e.ValAt(i))
			wVel.Set(i, t, -e.ValAt(n+i))
			wPosVar.Set(i, t, posVar[i])
			wVelVar.Set(i, t, velVar[i])
		}
	}

	p := &Profile{
		Position:    mat.NewDense(n, steps, nil),
		PositionVar: mat.NewDense(n, steps, nil),
		Velocity:    mat.NewDense(n, steps, nil),
		VelocityVar: mat.NewDense(n, steps, nil),
	}

	for i := 0; i < n; i++ {
		jump := int(math.Round(jumps[i]))
		for t := 0; t < steps; t++ {
			w := t - jump
			if w < 0 {
				p.Position.Set(i, t, initRadius)
				p.PositionVar.Set(i, t, 0.0)
				p.Velocity.Set(i, t, 0.0)
				p.VelocityVar.Set(i, t, 0.0)
				continue
			}
			if w >= steps {
				w = steps - 1
			}
			p.Position.Set(i, t, wPos.At(i, w))
			p.PositionVar.Set(i, t, wPosVar.At(i, w))
			p.Velocity.Set(i, t, wVel.At(i, w))
			p.VelocityVar.Set(i, t, wVelVar.At(i, w))
		}
	}

	return p, nil
}
