// Package sim synthesizes probe measurement records with known ground
// truth, for tests and examples, and renders reconstructed surface
// profiles.
package sim

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	pdv "github.com/xxxboxer535/PDV-Reconstruction"
	"github.com/xxxboxer535/PDV-Reconstruction/kernel"
	"github.com/xxxboxer535/PDV-Reconstruction/noise"
	"github.com/xxxboxer535/PDV-Reconstruction/rnd"
	"gonum.org/v1/gonum/mat"
)

// Params configures a synthetic shot.
type Params struct {
	// Steps is the number of time samples.
	Steps int
	// Dt is the step size.
	Dt float64
	// InitRadius is the surface radius before the disturbance arrives.
	InitRadius float64
	// ProbeAngles and ProbeOffsets describe the probes; offsets in radians.
	ProbeAngles  []float64
	ProbeOffsets []float64
	// ArrivalBase and ArrivalSlope place each probe's disturbance arrival
	// linearly in angle, in step units.
	ArrivalBase  float64
	ArrivalSlope float64
	// PeakSpeed is the peak inward surface speed of the pulse.
	PeakSpeed float64
	// RiseSteps is the rise time of the pulse, in steps.
	RiseSteps float64
	// PosNoise and VelNoise are measurement noise standard deviations.
	PosNoise float64
	VelNoise float64
	// JitterVar optionally adds a spatially correlated speed perturbation
	// with the given variance and angular length scale.
	JitterVar   float64
	LengthScale float64
	// Seed seeds all random sources.
	Seed uint64
}

// Truth is the noiseless record a synthetic shot was generated from.
type Truth struct {
	// Arrival is the per-probe disturbance arrival, in step units.
	Arrival []float64
	// Position and Velocity are the noiseless probe readings, rows
	// indexed by time step and columns by probe.
	Position *mat.Dense
	Velocity *mat.Dense
}

// NewShot synthesizes a shot: the surface sits at the initial radius until
// the disturbance arrives at each probe, then collapses inward under a
// rise-then-decay speed pulse. Probe readings follow the instrument
// convention: measured velocity is the inward surface speed projected onto
// the probe axis.
// It returns the noisy shot and its ground truth, or error if the
// parameters are inconsistent.
func NewShot(p Params) (*pdv.Shot, *Truth, error) {
	nProbe := len(p.ProbeAngles)
	if nProbe == 0 || len(p.ProbeOffsets) != nProbe {
		return nil, nil, fmt.Errorf("invalid probe configuration: %d angles, %d offsets", nProbe, len(p.ProbeOffsets))
	}
	if p.Steps <= 0 || p.Dt <= 0 {
		return nil, nil, fmt.Errorf("invalid time grid: %d steps, dt %f", p.Steps, p.Dt)
	}
	if p.RiseSteps <= 0 {
		return nil, nil, fmt.Errorf("invalid rise time: %f", p.RiseSteps)
	}
	if p.PosNoise <= 0 || p.VelNoise <= 0 {
		return nil, nil, fmt.Errorf("invalid noise levels: %f, %f", p.PosNoise, p.VelNoise)
	}

	truth := &Truth{
		Arrival:  make([]float64, nProbe),
		Position: mat.NewDense(p.Steps, nProbe, nil),
		Velocity: mat.NewDense(p.Steps, nProbe, nil),
	}

	// optional spatially correlated perturbation of the speed pulse
	var jitter *mat.Dense
	if p.JitterVar > 0 {
		k, err := kernel.NewMatern32(p.LengthScale)
		if err != nil {
			return nil, nil, err
		}
		corr := k.CorrMatrix(p.ProbeAngles)
		cov := mat.NewSymDense(nProbe, nil)
		for i := 0; i < nProbe; i++ {
			for j := i; j < nProbe; j++ {
				cov.SetSym(i, j, p.JitterVar*corr.At(i, j))
			}
		}
		jitter, err = rnd.WithCovN(cov, p.Steps, rand.New(rand.NewSource(p.Seed)))
		if err != nil {
			return nil, nil, err
		}
	}

	for j := 0; j < nProbe; j++ {
		arrival := p.ArrivalBase + p.ArrivalSlope*p.ProbeAngles[j]
		truth.Arrival[j] = arrival

		r := p.InitRadius
		for t := 0; t < p.Steps; t++ {
			tau := (float64(t) - arrival) * p.Dt
			speed := 0.0
			if tau >= 0 {
				speed = p.PeakSpeed * (tau / p.RiseSteps) * math.Exp(1.0-tau/p.RiseSteps)
				if jitter != nil {
					speed += jitter.At(j, t)
				}
				r -= speed * p.Dt
			}
			truth.Position.Set(t, j, r)
			truth.Velocity.Set(t, j, speed*math.Cos(p.ProbeOffsets[j]))
		}
	}

	shot, err := perturb(truth, p)
	if err != nil {
		return nil, nil, err
	}

	return shot, truth, nil
}

// perturb adds measurement noise to the ground truth readings.
func perturb(truth *Truth, p Params) (*pdv.Shot, error) {
	nProbe := len(p.ProbeAngles)

	posCov := mat.NewSymDense(nProbe, nil)
	velCov := mat.NewSymDense(nProbe, nil)
	for j := 0; j < nProbe; j++ {
		posCov.SetSym(j, j, p.PosNoise*p.PosNoise)
		velCov.SetSym(j, j, p.VelNoise*p.VelNoise)
	}

	zero := make([]float64, nProbe)
	posNoise, err := noise.NewGaussian(zero, posCov, p.Seed+1)
	if err != nil {
		return nil, err
	}
	velNoise, err := noise.NewGaussian(zero, velCov, p.Seed+2)
	if err != nil {
		return nil, err
	}

	shot := &pdv.Shot{
		Position: mat.NewDense(p.Steps, nProbe, nil),
		Velocity: mat.NewDense(p.Steps, nProbe, nil),
		Time:     make([]float64, p.Steps),
	}

	for t := 0; t < p.Steps; t++ {
		shot.Time[t] = float64(t) * p.Dt
		pn := posNoise.Sample()
		vn := velNoise.Sample()
		for j := 0; j < nProbe; j++ {
			shot.Position.Set(t, j, truth.Position.At(t, j)+pn.AtVec(j))
			shot.Velocity.Set(t, j, truth.Velocity.At(t, j)+vn.AtVec(j))
		}
	}

	return shot, nil
}
