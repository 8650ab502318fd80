// Package warp aligns sparse, asynchronously arriving probe series onto a
// shared filtering clock. Each probe's disturbance arrival ("jump") is
// detected from its velocity series; arrival times of unmeasured angles are
// derived by interpolation and extrapolation over the probe angles.
package warp

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrNoJump is returned when a velocity series exhibits no rise-then-peak
// pattern, so no arrival time can be established.
var ErrNoJump = errors.New("no rise-then-peak jump pattern")

// Detect returns the jump index of the velocity series v: the index where
// the velocity magnitude first exceeds threshold, advanced to the following
// local peak, i.e. the first sample where the next forward difference turns
// negative.
// It returns ErrNoJump if the series has no threshold crossing followed by
// a peak.
func Detect(v []float64, threshold float64) (int, error) {
	i := -1
	for k, val := range v {
		if !math.IsNaN(val) && math.Abs(val) > threshold {
			i = k
			break
		}
	}
	if i < 0 {
		return 0, fmt.Errorf("%w: no sample above threshold %f", ErrNoJump, threshold)
	}

	// advance to the local peak following the crossing
	for ; i+1 < len(v); i++ {
		if math.IsNaN(v[i+1]) {
			return 0, fmt.Errorf("%w: series interrupted before peak", ErrNoJump)
		}
		if v[i+1]-v[i] < 0 {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: no peak after threshold crossing", ErrNoJump)
}

// Warp holds per-probe jump times and derives arrival times for arbitrary
// angles. It is immutable after construction.
type Warp struct {
	// angles are the probe angles in input order
	angles []float64
	// jumps are per-probe jump indices in input order; NaN for probes
	// whose series carries no data
	jumps []float64
	// nodes are the detected (angle, jump) pairs sorted by angle
	nodes []node
}

type node struct {
	angle float64
	jump  float64
}

// New detects the jump of every probe from the velocity series and returns
// a new Warp. velocity rows are indexed by time step, columns by probe.
// Probes whose series carries no finite sample are skipped; their jump time
// comes from interpolation over the detected probes.
// It returns error if probe and column counts disagree, or if any probe
// with data violates the rise-then-peak precondition, or if no probe at all
// yields a jump.
func New(probeAngles []float64, velocity *mat.Dense, threshold float64) (*Warp, error) {
	steps, cols := velocity.Dims()
	if cols != len(probeAngles) {
		return nil, fmt.Errorf("invalid velocity dimensions: [%d x %d] for %d probes", steps, cols, len(probeAngles))
	}

	w := &Warp{
		angles: append([]float64(nil), probeAngles...),
		jumps:  make([]float64, cols),
	}

	series := make([]float64, steps)
	for j := 0; j < cols; j++ {
		mat.Col(series, j, velocity)
		if allNaN(series) {
			w.jumps[j] = math.NaN()
			continue
		}

		jump, err := Detect(series, threshold)
		if err != nil {
			return nil, fmt.Errorf("probe %d (angle %f): %w", j, probeAngles[j], err)
		}
		w.jumps[j] = float64(jump)
		w.nodes = append(w.nodes, node{angle: probeAngles[j], jump: float64(jump)})
	}

	if len(w.nodes) == 0 {
		return nil, fmt.Errorf("%w: no probe carries data", ErrNoJump)
	}
	sort.Slice(w.nodes, func(i, k int) bool { return w.nodes[i].angle < w.nodes[k].angle })

	return w, nil
}

// Jumps returns the per-probe jump times in input order; probes without
// data carry their interpolated jump time.
func (w *Warp) Jumps() []float64 {
	jumps := make([]float64, len(w.jumps))
	for j, jump := range w.jumps {
		if math.IsNaN(jump) {
			jump = w.At(w.angles[j])
		}
		jumps[j] = jump
	}

	return jumps
}

// At returns the jump time of an arbitrary angle: linear interpolation
// between the two bracketing probes inside the probe range, linear
// extrapolation using the slope between the extreme probe and its
// second-nearest neighbour outside of it.
func (w *Warp) At(angle float64) float64 {
	nodes := w.nodes
	if len(nodes) == 1 {
		return nodes[0].jump
	}

	k := 0
	switch {
	case angle <= nodes[0].angle:
		k = 0
	case angle >= nodes[len(nodes)-1].angle:
		k = len(nodes) - 2
	default:
		for nodes[k+1].angle < angle {
			k++
		}
	}

	slope := (nodes[k+1].jump - nodes[k].jump) / (nodes[k+1].angle - nodes[k].angle)
	return nodes[k].jump + slope*(angle-nodes[k].angle)
}

// Realign shifts every probe column of series onto the warped clock so
// warped index 0 coincides with that probe's jump. Warped samples with no
// raw counterpart are NaN, never zero. Columns of probes without data stay
// all NaN.
func (w *Warp) Realign(series *mat.Dense) *mat.Dense {
	steps, cols := series.Dims()
	warped := mat.NewDense(steps, cols, nil)

	for j := 0; j < cols; j++ {
		if math.IsNaN(w.jumps[j]) {
			for t := 0; t < steps; t++ {
				warped.Set(t, j, math.NaN())
			}
			continue
		}

		jump := int(w.jumps[j])
		for t := 0; t < steps; t++ {
			if t+jump < steps {
				warped.Set(t, j, series.At(t+jump, j))
			} else {
				warped.Set(t, j, math.NaN())
			}
		}
	}

	return warped
}

func allNaN(v []float64) bool {
	for _, val := range v {
		if !math.IsNaN(val) {
			return false
		}
	}
	return true
}
