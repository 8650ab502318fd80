package warp

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// pulse writes a rise-then-decay velocity pulse starting at index jump.
func pulse(steps, jump int, peak float64) []float64 {
	v := make([]float64, steps)
	for t := jump; t < steps; t++ {
		tau := float64(t - jump)
		v[t] = peak * (tau / 5.0) * math.Exp(1.0-tau/5.0)
	}
	return v
}

func TestDetect(t *testing.T) {
	assert := assert.New(t)

	v := pulse(100, 20, 10.0)
	jump, err := Detect(v, 1.0)
	assert.NoError(err)
	// the pulse peaks 5 samples after onset
	assert.Equal(25, jump)

	// crossing threshold right at the peak still resolves the peak
	jump, err = Detect(v, 9.9)
	assert.NoError(err)
	assert.Equal(25, jump)

	// no crossing at all
	_, err = Detect(v, 100.0)
	assert.Error(err)
	assert.True(errors.Is(err, ErrNoJump))

	// monotone rise with no peak
	ramp := make([]float64, 50)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	_, err = Detect(ramp, 1.0)
	assert.Error(err)
	assert.True(errors.Is(err, ErrNoJump))

	// series interrupted by NaN before the peak
	broken := pulse(100, 20, 10.0)
	broken[23] = math.NaN()
	_, err = Detect(broken, 1.0)
	assert.Error(err)
}

func newTestWarp(t *testing.T, angles []float64, jumps []int) *Warp {
	steps := 200
	velocity := mat.NewDense(steps, len(angles), nil)
	for j, jump := range jumps {
		velocity.SetCol(j, pulse(steps, jump, 10.0))
	}

	w, err := New(angles, velocity, 1.0)
	assert.NoError(t, err)
	assert.NotNil(t, w)

	return w
}

func TestAt(t *testing.T) {
	assert := assert.New(t)

	// detected jumps land on the pulse peaks, 5 steps past onset
	w := newTestWarp(t, []float64{-10.0, 10.0}, []int{2, 4})
	jumps := w.Jumps()
	assert.InDelta(2.0+5.0, jumps[0], 1e-12)
	assert.InDelta(4.0+5.0, jumps[1], 1e-12)

	// interpolation is linear and monotonic between bracketing probes
	assert.InDelta(3.0+5.0, w.At(0.0), 1e-12)
	prev := w.At(-10.0)
	for a := -9.0; a <= 10.0; a += 1.0 {
		cur := w.At(a)
		assert.True(cur >= prev, "jump time not monotonic at angle %f", a)
		prev = cur
	}

	// extrapolation uses the slope of the extreme pair
	assert.InDelta(1.0+5.0, w.At(-20.0), 1e-12)
	assert.InDelta(5.0+5.0, w.At(20.0), 1e-12)

	// exact at the probe angles themselves
	assert.InDelta(jumps[0], w.At(-10.0), 1e-12)
	assert.InDelta(jumps[1], w.At(10.0), 1e-12)
}

func TestNewSkipsEmptyProbes(t *testing.T) {
	assert := assert.New(t)

	steps := 200
	angles := []float64{-10.0, 0.0, 10.0}
	velocity := mat.NewDense(steps, 3, nil)
	velocity.SetCol(0, pulse(steps, 10, 10.0))
	velocity.SetCol(2, pulse(steps, 30, 10.0))
	nan := make([]float64, steps)
	for i := range nan {
		nan[i] = math.NaN()
	}
	velocity.SetCol(1, nan)

	w, err := New(angles, velocity, 1.0)
	assert.NoError(err)

	// the empty probe's jump comes from its neighbours
	jumps := w.Jumps()
	assert.InDelta((jumps[0]+jumps[2])/2.0, jumps[1], 1e-12)

	// and its realigned column stays missing
	warped := w.Realign(velocity)
	for t := 0; t < steps; t++ {
		assert.True(math.IsNaN(warped.At(t, 1)))
	}
}

func TestRealign(t *testing.T) {
	assert := assert.New(t)

	steps := 200
	angles := []float64{-10.0, 10.0}
	velocity := mat.NewDense(steps, 2, nil)
	velocity.SetCol(0, pulse(steps, 10, 10.0))
	velocity.SetCol(1, pulse(steps, 40, 10.0))

	w, err := New(angles, velocity, 1.0)
	assert.NoError(err)

	series := mat.NewDense(steps, 2, nil)
	for t := 0; t < steps; t++ {
		series.Set(t, 0, float64(t))
		series.Set(t, 1, float64(t))
	}

	warped := w.Realign(series)
	jumps := w.Jumps()
	for j := 0; j < 2; j++ {
		jump := int(jumps[j])
		// warped index 0 coincides with the jump
		assert.Equal(float64(jump), warped.At(0, j))
		// samples past the raw series end are missing, not zero
		assert.True(math.IsNaN(warped.At(steps-1, j)))
		for t := 0; t+jump < steps; t++ {
			assert.Equal(float64(t+jump), warped.At(t, j))
		}
	}
}
