package model

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var cfg Config

func setup() {
	cfg = Config{
		ProbeAngles:  []float64{-20.0, 0.0, 20.0},
		InterpAngles: []float64{-10.0, 10.0},
		EarlyRate:    2.0,
		LateRate:     0.2,
		HalfLife:     50.0,
		LengthScale:  15.0,
		SpatialVar:   0.5,
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	m, err := New(cfg)
	assert.NotNil(m)
	assert.NoError(err)
	assert.Equal(5, m.NumAngles())
	assert.Equal(18, m.Dim())

	c := cfg
	c.ProbeAngles, c.InterpAngles = nil, nil
	m, err = New(c)
	assert.Nil(m)
	assert.Error(err)

	c = cfg
	c.EarlyRate = -1.0
	m, err = New(c)
	assert.Nil(m)
	assert.Error(err)

	c = cfg
	c.HalfLife = 0.0
	m, err = New(c)
	assert.Nil(m)
	assert.Error(err)

	c = cfg
	c.LengthScale = 0.0
	m, err = New(c)
	assert.Nil(m)
	assert.Error(err)
}

func TestRate(t *testing.T) {
	assert := assert.New(t)

	m, err := New(cfg)
	assert.NoError(err)

	// starts at the early rate
	assert.InDelta(cfg.EarlyRate, m.Rate(0.0), 1e-12)
	// halfway to the late rate after one half-life
	assert.InDelta(cfg.LateRate+(cfg.EarlyRate-cfg.LateRate)/2.0, m.Rate(cfg.HalfLife), 1e-12)
	// approaches the late rate
	assert.InDelta(cfg.LateRate, m.Rate(100.0*cfg.HalfLife), 1e-9)
}

func TestDiscretizeSmallStepLimit(t *testing.T) {
	assert := assert.New(t)

	m, err := New(cfg)
	assert.NoError(err)

	dim := m.Dim()
	for _, dt := range []float64{1e-3, 1e-6} {
		a, q := m.Discretize(0.0, dt)

		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				eye := 0.0
				if i == j {
					eye = 1.0
				}
				// transition approaches identity as dt shrinks
				assert.InDelta(eye, a.At(i, j), 10.0*dt)
				// process noise approaches zero
				assert.InDelta(0.0, q.At(i, j), 100.0*dt)
			}
		}
	}
}

func TestDiscretizeNoiseCov(t *testing.T) {
	assert := assert.New(t)

	m, err := New(cfg)
	assert.NoError(err)

	for _, tm := range []float64{0.0, 25.0, 500.0} {
		_, q := m.Discretize(tm, 1.0)

		// symmetric by construction
		dim := m.Dim()
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				assert.Equal(q.At(i, j), q.At(j, i))
			}
		}

		// positive semi-definite within tolerance
		var es mat.EigenSym
		ok := es.Factorize(q, false)
		assert.True(ok)
		for _, v := range es.Values(nil) {
			assert.True(v >= -1e-9, "negative eigenvalue %g at time %f", v, tm)
		}
	}
}

func TestDiscretizeZeroSpatialVar(t *testing.T) {
	assert := assert.New(t)

	c := cfg
	c.SpatialVar = 0.0
	m, err := New(c)
	assert.NoError(err)

	_, q := m.Discretize(0.0, 1.0)
	dim := m.Dim()
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			assert.Equal(0.0, q.At(i, j))
		}
	}
}

func TestDriftCoupling(t *testing.T) {
	assert := assert.New(t)

	m, err := New(cfg)
	assert.NoError(err)

	n := m.NumAngles()
	dim := m.Dim()
	dt := 1e-6
	a, _ := m.Discretize(0.0, dt)

	// recover the drift operator from (A - I)/dt
	l := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			v := a.At(i, j)
			if i == j {
				v -= 1.0
			}
			l.Set(i, j, v/dt)
		}
	}

	for i := 0; i < n; i++ {
		// position driven by velocity and both linear nuisance terms
		assert.InDelta(1.0, l.At(i, n+i), 1e-5)
		assert.InDelta(1.0, l.At(i, 3*n+1), 1e-5)
		assert.InDelta(1.0, l.At(i, 3*n+2), 1e-5)
		// velocity driven by the latent process
		assert.InDelta(1.0, l.At(n+i, 2*n+i), 1e-5)
		// latent process mean-reverts at the early rate at t=0
		assert.InDelta(-cfg.EarlyRate, l.At(2*n+i, 2*n+i), 1e-4)
		// the constant offset does not drift
		assert.InDelta(0.0, l.At(3*n, 3*n), 1e-5)
	}
	// the linear terms are coupled
	assert.InDelta(1.0, l.At(3*n+1, 3*n+2), 1e-5)
}
