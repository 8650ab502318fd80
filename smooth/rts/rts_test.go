package rts

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xxxboxer535/PDV-Reconstruction/kalman/rkf"
	"github.com/xxxboxer535/PDV-Reconstruction/model"
	"gonum.org/v1/gonum/mat"
)

var (
	mdl *model.Model
	flt *rkf.RKF
)

func setup() {
	mdl, _ = model.New(model.Config{
		ProbeAngles:  []float64{-10.0, 10.0},
		InterpAngles: []float64{0.0},
		EarlyRate:    2.0,
		LateRate:     0.2,
		HalfLife:     50.0,
		LengthScale:  15.0,
		SpatialVar:   0.5,
	})

	flt, _ = rkf.New(mdl, rkf.Config{
		InitRadius:   50.0,
		PosVar:       0.01,
		VelVar:       0.04,
		OffsetVar:    1.0,
		LinVar:       1.0,
		ProbeOffsets: []float64{0.0, 0.0},
	})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestSmooth(t *testing.T) {
	assert := assert.New(t)

	steps := 30
	obs := make([]rkf.Observation, steps)
	for i := 0; i < steps; i++ {
		obs[i] = rkf.Observation{
			PosIdx: []int{0, 1},
			PosVal: []float64{50.0, 50.0},
			VelIdx: []int{0, 1},
			VelVal: []float64{0.0, 0.0},
		}
	}

	filtered, _, err := flt.Run(obs, 1.0)
	assert.NoError(err)

	smoothed, err := Smooth(filtered, mdl, 1.0)
	assert.NoError(err)
	assert.Len(smoothed, steps)

	// the terminal step is unchanged by smoothing
	assert.True(mat.EqualApprox(filtered[steps-1].Val(), smoothed[steps-1].Val(), 1e-12))
	assert.True(mat.EqualApprox(filtered[steps-1].Cov(), smoothed[steps-1].Cov(), 1e-12))

	// the filtered history is left untouched and the smoothed one is
	// separately owned
	for i := range filtered {
		assert.NotSame(filtered[i], smoothed[i])
	}

	// conditioning on the full record never inflates the state variances
	for i := 0; i < steps; i++ {
		fc, sc := filtered[i].Cov(), smoothed[i].Cov()
		for d := 0; d < mdl.Dim(); d++ {
			assert.True(sc.At(d, d) <= fc.At(d, d)+1e-9, "variance inflated at step %d dim %d", i, d)
			assert.True(sc.At(d, d) >= -1e-9)
		}
	}

	// empty history
	_, err = Smooth(nil, mdl, 1.0)
	assert.Error(err)
}
