package sim

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/westphae/quaternion"

	"github.com/Duncans007/gait-analysis/gait"
)

const pi = math.Pi

func TestRotationGravity(t *testing.T) {
	phis := []float64{0, 0.1, -0.2, 0.5, 1, -1.2, 0.3, 0}
	thetas := []float64{0, 0, 0.1, -0.3, 0.5, 1.2, -0.8, pi / 3}
	for i := range phis {
		a := toSensor(rotation(phis[i], thetas[i]), [3]float64{0, 0, 1})
		assert.InDelta(t, -math.Sin(thetas[i]), a[0], 1e-12)
		assert.InDelta(t, math.Sin(phis[i])*math.Cos(thetas[i]), a[1], 1e-12)
		assert.InDelta(t, math.Cos(phis[i])*math.Cos(thetas[i]), a[2], 1e-12)

		roll, pitch, ok := gait.TiltAngles(a)
		require.True(t, ok)
		assert.InDelta(t, phis[i], roll, 1e-9)
		assert.InDelta(t, thetas[i], pitch, 1e-9)
	}
}

func TestRotationIsUnit(t *testing.T) {
	for _, phi := range []float64{-1, -0.1, 0, 0.4} {
		for _, theta := range []float64{-0.7, 0, 0.2, 1.1} {
			q := rotation(phi, theta)
			n := quaternion.Prod(q, q.Conj())
			assert.InDelta(t, 1, n.W, 1e-12)
			assert.InDelta(t, 0, n.X, 1e-12)
			assert.InDelta(t, 0, n.Y, 1e-12)
			assert.InDelta(t, 0, n.Z, 1e-12)

			// Walkway forward stays orthogonal to walkway up
			f := toSensor(q, [3]float64{1, 0, 0})
			u := toSensor(q, [3]float64{0, 0, 1})
			assert.InDelta(t, 0, f[0]*u[0]+f[1]*u[1]+f[2]*u[2], 1e-12)
		}
	}
}

func TestNewSituationSimChecksKnots(t *testing.T) {
	_, err := NewSituationSim([]float64{0}, []float64{0}, []float64{0}, []float64{0})
	assert.ErrorIs(t, err, gait.ErrChannelLength)
	_, err = NewSituationSim([]float64{0, 1}, []float64{0}, []float64{0, 0}, []float64{0, 0})
	assert.ErrorIs(t, err, gait.ErrChannelLength)
	_, err = NewSituationSim([]float64{0, 1, 1}, []float64{0, 0, 0}, []float64{0, 0, 0}, []float64{0, 0, 0})
	assert.ErrorIs(t, err, gait.ErrNonMonotonicTime)
}

func TestScenarioNames(t *testing.T) {
	for _, name := range Scenarios() {
		s, err := Scenario(name)
		require.NoError(t, err, name)
		assert.Less(t, s.BeginTime(), s.EndTime())
	}
	_, err := Scenario("fly")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestWalkInterpolate(t *testing.T) {
	s, err := Scenario("walk")
	require.NoError(t, err)

	x, err := s.Interpolate(5)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, x.Speed, 1e-12)
	assert.InDelta(t, 0.04, x.Pitch, 1e-12)
	assert.InDelta(t, 0.5*0.65*1, x.Position, 1e-12)

	x, err = s.Interpolate(16)
	require.NoError(t, err)
	assert.InDelta(t, 1.3+13, x.Position, 1e-9)
	// Whole number of strides, so the sway is back at zero
	assert.InDelta(t, 0.08, x.Pitch, 1e-9)
	assert.InDelta(t, 0, x.Roll, 1e-9)

	x, err = s.Interpolate(20)
	require.NoError(t, err)
	assert.InDelta(t, 1.3+13+1.3, x.Position, 1e-9)
	assert.Equal(t, 0.0, x.Speed)

	_, err = s.Interpolate(-0.1)
	assert.ErrorIs(t, err, ErrOutsideScenario)
	_, err = s.Measurement(20.1)
	assert.ErrorIs(t, err, ErrOutsideScenario)
}

func TestMeasurementAtRest(t *testing.T) {
	s, err := Scenario("stand")
	require.NoError(t, err)
	m, err := s.Measurement(3)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{0, 0, 0}, m.Gyro)
	assert.InDelta(t, -math.Sin(0.05), m.Accel[0], 1e-12)
	assert.InDelta(t, 0, m.Accel[1], 1e-12)
	assert.InDelta(t, math.Cos(0.05), m.Accel[2], 1e-12)
}

func TestMeasurementForwardAccel(t *testing.T) {
	s, err := Scenario("walk")
	require.NoError(t, err)
	m, err := s.Measurement(5)
	require.NoError(t, err)

	cfg := gait.DefaultVelocityConfig()
	cfg.AccelScale = gait.G
	v, err := gait.NewVelocityFuser(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, v.ForwardAccel(m.Accel, 0.04), 1e-9)
	assert.InDelta(t, 0.08/2, m.Gyro[1], 1e-12)
}

func TestMeasurementNoiseIsSeeded(t *testing.T) {
	mk := func() Sample {
		s, err := Scenario("stand")
		require.NoError(t, err)
		s.SetNoise(Noise{Gyro: 0.01, Accel: 0.01, Position: 0.01, GyroBias: [3]float64{0.1, 0, 0}, Seed: 3})
		m, err := s.Measurement(1)
		require.NoError(t, err)
		return m
	}
	a, b := mk(), mk()
	assert.Equal(t, a, b)
	assert.InDelta(t, 0.1, a.Gyro[0], 0.05)
}

func TestRecordingRoundTrip(t *testing.T) {
	s, err := Scenario("walk")
	require.NoError(t, err)
	s.SetNoise(Noise{Gyro: 0.01, Accel: 0.01, Seed: 1})
	rec, err := Record(s, 0.02)
	require.NoError(t, err)
	assert.Equal(t, 1001, rec.Len())

	var buf bytes.Buffer
	require.NoError(t, rec.WriteCSV(&buf))
	back, err := ReadRecording(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec.Names(), back.Names())
	for _, n := range rec.Names() {
		want, err := rec.Column(n)
		require.NoError(t, err)
		got, err := back.Column(n)
		require.NoError(t, err)
		assert.Equal(t, want, got, n)
	}

	ds, err := back.Dataset(DefaultColumns().Orientation()...)
	require.NoError(t, err)
	assert.Equal(t, gait.OrientationChannels, len(ds))
	assert.Equal(t, 1001, ds.Len())
}

func TestReadRecordingErrors(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"bad number":  "T,GX\n0,1\n0.02,x\n",
		"short row":   "T,GX\n0,1\n0.02\n",
		"dup columns": "T,T\n0,1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadRecording(strings.NewReader(in))
			assert.Error(t, err)
		})
	}

	rec, err := ReadRecording(strings.NewReader("T, GX\n0, 1\n0.02, 2\n"))
	require.NoError(t, err)
	_, err = rec.Dataset(DefaultColumns().Orientation()...)
	assert.ErrorIs(t, err, ErrMissingColumn)
	_, err = rec.Interpolate(0.01)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Error(t, rec.SetColumn("PITCH", []float64{1}))
	require.NoError(t, rec.SetColumn("PITCH", []float64{1, 2}))
	assert.Equal(t, []string{"T", "GX", "PITCH"}, rec.Names())
}

func TestRecordingRejectsRepeatedTime(t *testing.T) {
	rec := NewRecording(DefaultColumns().Raw()...)
	rec.Append(0, 0, 0, 0, 0, 0, 1, 0)
	rec.Append(0, 0, 0, 0, 0, 0, 1, 0)
	rec.Append(1, 0, 0, 0, 0, 0, 1, 2)

	_, err := rec.Measurement(0)
	assert.ErrorIs(t, err, gait.ErrNonMonotonicTime)
	_, err = rec.Interpolate(0)
	assert.ErrorIs(t, err, gait.ErrNonMonotonicTime)

	// The increasing segment still interpolates
	m, err := rec.Measurement(0.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Accel[2])
	assert.Equal(t, 1.0, m.Position)
}

func TestRecordingIsSituation(t *testing.T) {
	s, err := Scenario("lean")
	require.NoError(t, err)
	rec, err := Record(s, 0.01)
	require.NoError(t, err)

	var sit Situation = rec
	for _, tt := range []float64{0, 5.005, 9.5, 23.995} {
		want, err := s.Measurement(tt)
		require.NoError(t, err)
		got, err := sit.Measurement(tt)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			assert.InDelta(t, want.Accel[i], got.Accel[i], 1e-4, "t=%g", tt)
		}
		x, err := sit.Interpolate(tt)
		require.NoError(t, err)
		assert.Equal(t, tt, x.T)
	}
}

func TestEstimateLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewEstimateLogger(&buf, "T", "X")
	require.NoError(t, err)
	l.Log(0.5, 1.25)
	l.Log(1, -2)
	require.NoError(t, l.Err())
	assert.Equal(t, "T,X\n0.500000,1.250000\n1.000000,-2.000000\n", buf.String())

	l.Log(1)
	assert.Error(t, l.Err())
}

func TestCompare(t *testing.T) {
	e := Compare([]float64{0, 0, 0, 0}, []float64{1, -1, 1, 3, 100})
	assert.Equal(t, 4, e.N)
	assert.InDelta(t, 1, e.Bias, 1e-12)
	assert.InDelta(t, math.Sqrt(3), e.RMS, 1e-12)
	assert.Equal(t, 3.0, e.Max)
	assert.Equal(t, Errors{}, Compare(nil, nil))
}

func TestRunWalk(t *testing.T) {
	s, err := Scenario("walk")
	require.NoError(t, err)
	s.SetNoise(Noise{Gyro: 0.01, Accel: 0.01, Seed: 1})

	o, err := gait.NewOrientationFuser(gait.DefaultOrientationConfig())
	require.NoError(t, err)
	cfg := gait.DefaultVelocityConfig()
	cfg.AccelScale = gait.G
	v, err := gait.NewVelocityFuser(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	l, err := NewEstimateLogger(&buf, RunHeader()...)
	require.NoError(t, err)

	rep, err := Run(s, o, v, 0.02, l)
	require.NoError(t, err)
	assert.Equal(t, 1000, rep.Samples)
	assert.Less(t, rep.Roll.RMS, 0.005, rep.Roll.String())
	// Gait initiation and stopping accelerations corrupt the tilt reading
	assert.Less(t, rep.Pitch.RMS, 0.04, rep.Pitch.String())
	assert.Less(t, rep.Pitch.Max, 0.1, rep.Pitch.String())
	assert.Less(t, rep.Speed.RMS, 0.03, rep.Speed.String())
	assert.InDelta(t, 0, v.Velocity(), 0.02)
	assert.Equal(t, 1001, strings.Count(buf.String(), "\n"))
}

func TestRunLean(t *testing.T) {
	s, err := Scenario("lean")
	require.NoError(t, err)
	s.SetNoise(Noise{Gyro: 0.01, Accel: 0.01, Seed: 2})

	for name, est := range map[string]func() (gait.OrientationEstimator, error){
		"scalar": func() (gait.OrientationEstimator, error) {
			return gait.NewOrientationFuser(gait.DefaultOrientationConfig())
		},
		"bias": func() (gait.OrientationEstimator, error) { return gait.NewBiasFuser(gait.DefaultBiasConfig()) },
	} {
		t.Run(name, func(t *testing.T) {
			e, err := est()
			require.NoError(t, err)
			rep, err := Run(s, e, nil, 0.02, nil)
			require.NoError(t, err)
			assert.Less(t, rep.Roll.RMS, 0.005, rep.Roll.String())
			assert.Less(t, rep.Pitch.RMS, 0.005, rep.Pitch.String())
			assert.Equal(t, Errors{}, rep.Speed)
		})
	}
}
