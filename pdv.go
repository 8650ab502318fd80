// Package pdv reconstructs a time-varying radial surface profile from
// sparse, noisy photon-Doppler-velocimetry probe measurements. A fixed set
// of probes observes the surface at known angles; additional interpolation
// angles are inferred through spatial correlation only. The reconstruction
// runs a robust forward Kalman filter over a physically motivated
// continuous-time process model, followed by a Rauch-Tung-Striebel
// backward smoother, on a shared per-angle warped clock anchored at each
// angle's disturbance arrival.
package pdv

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sentinel is the log-likelihood reported for a fit that failed with a
// numerical breakdown. It is finite so hyperparameter searches can rank
// failed configurations below any real likelihood.
const Sentinel = -1e12

var (
	// ErrPrecondition is returned when input data violates a precondition
	// of the reconstruction, e.g. no rise-then-peak jump pattern exists.
	ErrPrecondition = errors.New("precondition violation")
	// ErrNumericalBreakdown is returned when a covariance factorization or
	// inversion fails. The fit is aborted, never retried.
	ErrNumericalBreakdown = errors.New("numerical breakdown")
)

// Config holds the named hyperparameters of a reconstruction.
type Config struct {
	// Steps is the number of discrete steps on the warped filtering clock.
	Steps int
	// Dt is the fixed step size.
	Dt float64
	// InitRadius is the surface radius before the disturbance arrives.
	InitRadius float64
	// ProbeAngles are the probe angles, ordered ascending.
	ProbeAngles []float64
	// ProbeOffsets are per-probe angular offsets in radians correcting for
	// a probe not lying exactly radially.
	ProbeOffsets []float64
	// InterpAngles are angles with no sensor, inferred via spatial
	// correlation with the probes.
	InterpAngles []float64
	// JumpThreshold is the velocity level whose first crossing marks the
	// disturbance arrival at a probe.
	JumpThreshold float64
	// EarlyRate and LateRate are the mean-reversion rates of the latent
	// process at the start of the shot and in the late-time limit.
	EarlyRate float64
	LateRate  float64
	// DecayHalfLife is the half-life of the exponential decay from
	// EarlyRate to LateRate, in warped-time units.
	DecayHalfLife float64
	// LengthScale is the angular length scale of the Matern-3/2 kernel.
	LengthScale float64
	// PosVar and VelVar are the measurement noise variances of position
	// and velocity readings.
	PosVar float64
	VelVar float64
	// SpatialVar scales the spatial process-noise covariance.
	SpatialVar float64
	// OffsetVar is the prior variance of the constant nuisance offset.
	OffsetVar float64
	// LinVar is the prior variance of each of the two coupled
	// linear-in-warped-time nuisance terms.
	LinVar float64
}

// Validate checks the configuration for consistency.
// It returns error if any dimension or hyperparameter is invalid.
func (c *Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("invalid step count: %d", c.Steps)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("invalid step size: %f", c.Dt)
	}
	if len(c.ProbeAngles) == 0 {
		return fmt.Errorf("no probe angles given")
	}
	if len(c.ProbeOffsets) != len(c.ProbeAngles) {
		return fmt.Errorf("invalid probe offset count: %d != %d", len(c.ProbeOffsets), len(c.ProbeAngles))
	}
	if c.EarlyRate <= 0 || c.LateRate <= 0 {
		return fmt.Errorf("invalid mean-reversion rates: %f, %f", c.EarlyRate, c.LateRate)
	}
	if c.DecayHalfLife <= 0 {
		return fmt.Errorf("invalid decay half-life: %f", c.DecayHalfLife)
	}
	if c.LengthScale <= 0 {
		return fmt.Errorf("invalid angular length scale: %f", c.LengthScale)
	}
	if c.PosVar < 0 || c.VelVar < 0 {
		return fmt.Errorf("invalid measurement variances: %f, %f", c.PosVar, c.VelVar)
	}
	if c.SpatialVar < 0 {
		return fmt.Errorf("invalid spatial variance: %f", c.SpatialVar)
	}
	if c.OffsetVar < 0 || c.LinVar < 0 {
		return fmt.Errorf("invalid nuisance variances: %f, %f", c.OffsetVar, c.LinVar)
	}
	return nil
}

// Angles returns all angles of the reconstruction: probe angles first,
// interpolation angles after, in configuration order.
func (c *Config) Angles() []float64 {
	angles := make([]float64, 0, len(c.ProbeAngles)+len(c.InterpAngles))
	angles = append(angles, c.ProbeAngles...)
	angles = append(angles, c.InterpAngles...)
	return angles
}

// Shot is the raw measurement record of one experiment.
type Shot struct {
	// Position holds raw probe position readings, rows indexed by time
	// step and columns by probe. Missing samples are NaN.
	Position *mat.Dense
	// Velocity holds raw probe velocity readings in the same layout.
	Velocity *mat.Dense
	// Time is the physical time grid.
	Time []float64
}

// Result is the outcome of one fit.
type Result struct {
	// LogLikelihood is the accumulated measurement log-likelihood, or
	// Sentinel if the fit failed with a numerical breakdown.
	LogLikelihood float64
	// Position and Velocity hold smoothed means on the physical clock,
	// rows indexed by angle (probes first, then interpolation angles) and
	// columns by time step. PositionVar and VelocityVar hold the matching
	// variances.
	Position    *mat.Dense
	PositionVar *mat.Dense
	Velocity    *mat.Dense
	VelocityVar *mat.Dense
	// WarpedPosition and WarpedVelocity are the realigned per-probe
	// observation series consumed by the filter, rows indexed by warped
	// step and columns by probe.
	WarpedPosition *mat.Dense
	WarpedVelocity *mat.Dense
	// JumpTimes holds the disturbance arrival time of every angle, in
	// step units: detected for probes, interpolated for the rest.
	JumpTimes []float64
}
