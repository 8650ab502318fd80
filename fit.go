package pdv

import (
	"fmt"

	"github.com/xxxboxer535/PDV-Reconstruction/kalman/rkf"
	"github.com/xxxboxer535/PDV-Reconstruction/model"
	"github.com/xxxboxer535/PDV-Reconstruction/output"
	"github.com/xxxboxer535/PDV-Reconstruction/smooth/rts"
	"github.com/xxxboxer535/PDV-Reconstruction/warp"
)

// Reconstructor runs the full reconstruction pipeline: time warp, robust
// forward filter, backward smoother and output projection. It holds no
// per-run state, so it is reusable across repeated, non-overlapping fits;
// a single fit is not reentrant.
type Reconstructor struct {
	cfg Config
	mdl *model.Model
	flt *rkf.RKF
}

// NewReconstructor creates a new Reconstructor from cfg and returns it.
// It returns error if the configuration is invalid.
func NewReconstructor(cfg Config) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mdl, err := model.New(model.Config{
		ProbeAngles:  cfg.ProbeAngles,
		InterpAngles: cfg.InterpAngles,
		EarlyRate:    cfg.EarlyRate,
		LateRate:     cfg.LateRate,
		HalfLife:     cfg.DecayHalfLife,
		LengthScale:  cfg.LengthScale,
		SpatialVar:   cfg.SpatialVar,
	})
	if err != nil {
		return nil, err
	}

	flt, err := rkf.New(mdl, rkf.Config{
		InitRadius:   cfg.InitRadius,
		PosVar:       cfg.PosVar,
		VelVar:       cfg.VelVar,
		OffsetVar:    cfg.OffsetVar,
		LinVar:       cfg.LinVar,
		ProbeOffsets: cfg.ProbeOffsets,
	})
	if err != nil {
		return nil, err
	}

	return &Reconstructor{
		cfg: cfg,
		mdl: mdl,
		flt: flt,
	}, nil
}

// Fit reconstructs the surface profile from the shot record.
//
// On success the result carries the smoothed per-angle histories and the
// accumulated log-likelihood. On failure it returns a non-nil result whose
// log-likelihood is Sentinel together with an error matching either
// ErrPrecondition or ErrNumericalBreakdown, so a hyperparameter search can
// reject the configuration without inspecting the error chain.
func (r *Reconstructor) Fit(shot *Shot) (*Result, error) {
	if shot == nil || shot.Position == nil || shot.Velocity == nil {
		return nil, fmt.Errorf("invalid shot record")
	}
	rows, cols := shot.Velocity.Dims()
	if rows < r.cfg.Steps {
		return nil, fmt.Errorf("shot too short: %d < %d steps", rows, r.cfg.Steps)
	}
	if cols != len(r.cfg.ProbeAngles) {
		return nil, fmt.Errorf("invalid probe count: %d != %d", cols, len(r.cfg.ProbeAngles))
	}

	// anchor every probe's clock at its disturbance arrival
	w, err := warp.New(r.cfg.ProbeAngles, shot.Velocity, r.cfg.JumpThreshold)
	if err != nil {
		return &Result{LogLikelihood: Sentinel}, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	wPos := w.Realign(shot.Position)
	wVel := w.Realign(shot.Velocity)

	obs, err := r.flt.Assemble(wPos, wVel)
	if err != nil {
		return nil, err
	}
	if len(obs) > r.cfg.Steps {
		obs = obs[:r.cfg.Steps]
	}

	filtered, ll, err := r.flt.Run(obs, r.cfg.Dt)
	if err != nil {
		return &Result{LogLikelihood: Sentinel}, fmt.Errorf("%w: %v", ErrNumericalBreakdown, err)
	}

	smoothed, err := rts.Smooth(filtered, r.mdl, r.cfg.Dt)
	if err != nil {
		return &Result{LogLikelihood: Sentinel}, fmt.Errorf("%w: %v", ErrNumericalBreakdown, err)
	}

	// jump times for every angle: detected for probes, interpolated or
	// extrapolated for the rest
	angles := r.mdl.Angles()
	jumps := make([]float64, len(angles))
	copy(jumps, w.Jumps())
	for i := len(r.cfg.ProbeAngles); i < len(angles); i++ {
		jumps[i] = w.At(angles[i])
	}

	profile, err := output.Project(smoothed, r.mdl.NumAngles(), jumps, r.cfg.InitRadius)
	if err != nil {
		return nil, err
	}

	return &Result{
		LogLikelihood:  ll,
		Position:       profile.Position,
		PositionVar:    profile.PositionVar,
		Velocity:       profile.Velocity,
		VelocityVar:    profile.VelocityVar,
		WarpedPosition: wPos,
		WarpedVelocity: wVel,
		JumpTimes:      jumps,
	}, nil
}
