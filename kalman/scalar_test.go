package kalman

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScalar(t *testing.T, p0, q, r float64) *Scalar {
	t.Helper()
	s, err := NewScalar(Config{Name: "test", InitialVariance: p0, ProcessNoise: q, MeasurementNoise: r})
	require.NoError(t, err)
	return s
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"zero", Config{}, true},
		{"typical", Config{InitialVariance: 1, ProcessNoise: 1e-6, MeasurementNoise: 1e-3}, true},
		{"negative q", Config{ProcessNoise: -1}, false},
		{"negative r", Config{MeasurementNoise: -1e-9}, false},
		{"negative p0", Config{InitialVariance: -1}, false},
		{"nan r", Config{MeasurementNoise: math.NaN()}, false},
		{"inf q", Config{ProcessNoise: math.Inf(1)}, false},
		{"nan estimate", Config{InitialEstimate: math.NaN()}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestGainBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	values := []float64{0, 1e-300, 1e-12, 1e-6, 1e-3, 1, 1e3, 1e12, 1e300}
	for _, p := range values {
		for _, r := range values {
			k := Gain(p, r)
			assert.GreaterOrEqual(t, k, 0.0, "p=%g r=%g", p, r)
			assert.LessOrEqual(t, k, 1.0, "p=%g r=%g", p, r)
		}
	}
	for i := 0; i < 10000; i++ {
		p := math.Exp(rng.NormFloat64() * 10)
		r := math.Exp(rng.NormFloat64() * 10)
		k := Gain(p, r)
		if k < 0 || k > 1 {
			t.Fatalf("gain %g out of bounds for p=%g r=%g", k, p, r)
		}
	}
	assert.Equal(t, 0.0, Gain(0, 0))
	assert.Equal(t, 1.0, Gain(1, 0))
}

func TestPredictIntegratesControl(t *testing.T) {
	s := newTestScalar(t, 1, 0.01, 0.1)
	require.NoError(t, s.Predict(2, 0.5))
	assert.InDelta(t, 1.0, s.Estimate(), 1e-15)
	assert.InDelta(t, 1.01, s.Variance(), 1e-15)
}

func TestPredictIgnoresNonFiniteControl(t *testing.T) {
	for _, u := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		s := newTestScalar(t, 1, 0.01, 0.1)
		require.NoError(t, s.Predict(u, 0.5))
		assert.Equal(t, 0.0, s.Estimate(), "u=%g", u)
		assert.InDelta(t, 1.01, s.Variance(), 1e-15)

		x, err := s.Step(u, 1, 0.5)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(x), "u=%g", u)
	}
}

func TestPredictRejectsInvalidInterval(t *testing.T) {
	for _, dt := range []float64{0, -0.02, math.NaN(), math.Inf(1), math.Inf(-1)} {
		s := newTestScalar(t, 1, 0.01, 0.1)
		require.NoError(t, s.Predict(1, 0.1))
		x, p := s.Estimate(), s.Variance()

		err := s.Predict(1, dt)
		assert.ErrorIs(t, err, ErrInvalidInterval, "dt=%g", dt)
		_, err = s.Step(1, 5, dt)
		assert.ErrorIs(t, err, ErrInvalidInterval, "dt=%g", dt)

		assert.Equal(t, x, s.Estimate(), "estimate mutated for dt=%g", dt)
		assert.Equal(t, p, s.Variance(), "variance mutated for dt=%g", dt)
		assert.Equal(t, 1, s.Stats().Predictions)
	}
}

func TestCorrectNeverIncreasesVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		p0 := rng.Float64() * 10
		r := rng.Float64() * 10
		s := newTestScalar(t, p0, 0, r)
		before := s.Variance()
		s.Correct(rng.NormFloat64() * 100)
		assert.LessOrEqual(t, s.Variance(), before)
		assert.GreaterOrEqual(t, s.Variance(), 0.0)
	}
}

func TestCorrectBlendsByGain(t *testing.T) {
	s := newTestScalar(t, 1, 0, 1)
	require.True(t, s.Correct(10))
	assert.InDelta(t, 5.0, s.Estimate(), 1e-12)
	assert.InDelta(t, 0.5, s.Variance(), 1e-12)
	assert.InDelta(t, 0.5, s.LastGain(), 1e-12)
}

func TestCorrectZeroVarianceGuard(t *testing.T) {
	s := newTestScalar(t, 0, 0, 0)
	require.NoError(t, s.Predict(1, 0.1))

	applied := s.Correct(42)
	assert.False(t, applied)
	assert.InDelta(t, 0.1, s.Estimate(), 1e-15)
	assert.Equal(t, 0.0, s.Variance())
	assert.Equal(t, 0.0, s.LastGain())
	assert.Equal(t, 1, s.Stats().SkippedCorrections)
	assert.False(t, math.IsNaN(s.Estimate()))
}

func TestCorrectSkipsNonFiniteMeasurement(t *testing.T) {
	s := newTestScalar(t, 1, 0, 1)
	assert.False(t, s.Correct(math.NaN()))
	assert.False(t, s.Correct(math.Inf(-1)))
	assert.Equal(t, 0.0, s.Estimate())
	assert.Equal(t, 1.0, s.Variance())
}

func TestPerfectMeasurementWins(t *testing.T) {
	s := newTestScalar(t, 1, 0, 0)
	require.True(t, s.Correct(3))
	assert.Equal(t, 3.0, s.Estimate())
	assert.Equal(t, 0.0, s.Variance())
}

func TestScalarConvergesOnConstant(t *testing.T) {
	const (
		truth = 0.3
		sigma = 0.05
		dt    = 0.02
	)
	rng := rand.New(rand.NewSource(7))
	s := newTestScalar(t, 1, 1e-6, sigma*sigma)

	prev := math.Inf(1)
	for i := 0; i < 2000; i++ {
		_, err := s.Step(0, truth+sigma*rng.NormFloat64(), dt)
		require.NoError(t, err)
		// Steady state is approached from above: P+Q after correction never exceeds the previous P+Q
		assert.LessOrEqual(t, s.Variance(), prev+1e-18)
		prev = s.Variance()
	}
	assert.InDelta(t, truth, s.Estimate(), 0.02)

	stats := s.Stats()
	assert.Equal(t, 2000, stats.Corrections)
	assert.InDelta(t, 0, stats.InnovationMean, 0.05)
	assert.InDelta(t, sigma*sigma, stats.InnovationVariance, sigma*sigma)
}

func TestScalarReset(t *testing.T) {
	s, err := NewScalar(Config{InitialEstimate: 2, InitialVariance: 3, ProcessNoise: 0.1, MeasurementNoise: 0.2})
	require.NoError(t, err)
	_, err = s.Step(1, 5, 0.1)
	require.NoError(t, err)
	s.Reset()
	assert.Equal(t, 2.0, s.Estimate())
	assert.Equal(t, 3.0, s.Variance())
	assert.Equal(t, Stats{}, s.Stats())
}

func TestNewScalarRejectsBadConfig(t *testing.T) {
	_, err := NewScalar(Config{MeasurementNoise: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
