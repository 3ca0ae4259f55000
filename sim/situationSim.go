package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/westphae/quaternion"

	"github.com/Duncans007/gait-analysis/gait"
)

// Noise describes the imperfections added to synthesized instruments.
type Noise struct {
	Gyro      float64    // Gaussian stdev, rad/s
	Accel     float64    // Gaussian stdev, G
	Position  float64    // Gaussian stdev, m
	GyroBias  [3]float64 // rad/s
	AccelBias [3]float64 // G
	Seed      int64
}

// SituationSim defines a trial by piecewise-linear interpolation of the
// lean angles and walking speed, with an optional sinusoidal trunk sway at
// the step frequency layered on top.
type SituationSim struct {
	t          []float64 // knot times, s
	phi, theta []float64 // lean, rad [roll right, pitch forward]
	u          []float64 // walking speed, m/s
	x          []float64 // position at each knot, m, integrated from u

	swayRoll, swayPitch float64 // sway amplitude, rad
	stepHz              float64

	noise Noise
	rng   *rand.Rand
}

// NewSituationSim returns a situation through the given knots. All slices
// must have the same length, at least two, with t strictly increasing.
func NewSituationSim(t, roll, pitch, speed []float64) (*SituationSim, error) {
	n := len(t)
	if n < 2 || len(roll) != n || len(pitch) != n || len(speed) != n {
		return nil, fmt.Errorf("%w: %d knots with %d roll, %d pitch, %d speed",
			gait.ErrChannelLength, n, len(roll), len(pitch), len(speed))
	}
	x := make([]float64, n)
	for i := 1; i < n; i++ {
		if !(t[i] > t[i-1]) {
			return nil, fmt.Errorf("%w: knot %d", gait.ErrNonMonotonicTime, i)
		}
		x[i] = x[i-1] + 0.5*(speed[i]+speed[i-1])*(t[i]-t[i-1])
	}
	s := &SituationSim{t: t, phi: roll, theta: pitch, u: speed, x: x}
	s.SetNoise(Noise{})
	return s, nil
}

// SetSway adds a trunk oscillation of the given amplitudes at stepHz while
// the subject is walking. Segments lasting a whole number of strides end
// with the sway back at zero.
func (s *SituationSim) SetSway(roll, pitch, stepHz float64) {
	s.swayRoll, s.swayPitch, s.stepHz = roll, pitch, stepHz
}

// SetNoise sets the instrument imperfections and reseeds the generator.
func (s *SituationSim) SetNoise(n Noise) {
	s.noise = n
	s.rng = rand.New(rand.NewSource(n.Seed))
}

// BeginTime returns the time stamp when the simulation begins
func (s *SituationSim) BeginTime() float64 {
	return s.t[0]
}

// EndTime returns the time stamp when the simulation ends
func (s *SituationSim) EndTime() float64 {
	return s.t[len(s.t)-1]
}

// segment returns the knot index starting the segment holding t and the
// weight of that knot.
func (s *SituationSim) segment(t float64) (ix int, f float64, err error) {
	if t < s.t[0] || t > s.t[len(s.t)-1] || math.IsNaN(t) {
		return 0, 0, fmt.Errorf("%w: t=%g", ErrOutsideScenario, t)
	}
	if t > s.t[0] {
		ix = sort.SearchFloat64s(s.t, t) - 1
	}
	f = (s.t[ix+1] - t) / (s.t[ix+1] - s.t[ix])
	return ix, f, nil
}

// sway returns the oscillation and its rate. It only runs on segments where
// the subject walks at both ends and starts from zero at the segment start.
func (s *SituationSim) sway(t float64, ix int) (roll, pitch, rollDot, pitchDot float64) {
	if s.stepHz == 0 || s.u[ix] == 0 || s.u[ix+1] == 0 {
		return 0, 0, 0, 0
	}
	w := 2 * math.Pi * s.stepHz
	tt := t - s.t[ix]
	// Lateral sway repeats every stride, fore-aft every step
	sr, cr := math.Sincos(w / 2 * tt)
	sp, cp := math.Sincos(w * tt)
	return s.swayRoll * sr, s.swayPitch * sp, s.swayRoll * w / 2 * cr, s.swayPitch * w * cp
}

// Interpolate returns the true state at time t.
func (s *SituationSim) Interpolate(t float64) (Truth, error) {
	ix, f, err := s.segment(t)
	if err != nil {
		return Truth{}, err
	}
	ddt := s.t[ix+1] - s.t[ix]
	tt := t - s.t[ix]
	u := f*s.u[ix] + (1-f)*s.u[ix+1]
	acc := (s.u[ix+1] - s.u[ix]) / ddt
	sr, sp, _, _ := s.sway(t, ix)
	return Truth{
		T:        t,
		Roll:     f*s.phi[ix] + (1-f)*s.phi[ix+1] + sr,
		Pitch:    f*s.theta[ix] + (1-f)*s.theta[ix+1] + sp,
		Speed:    u,
		Position: s.x[ix] + s.u[ix]*tt + 0.5*acc*tt*tt,
	}, nil
}

// rotation returns the quaternion taking the walkway frame to the sensor
// frame for the given lean.
func rotation(roll, pitch float64) quaternion.Quaternion {
	qx := quaternion.Quaternion{W: math.Cos(roll / 2), X: math.Sin(roll / 2)}
	qy := quaternion.Quaternion{W: math.Cos(pitch / 2), Y: math.Sin(pitch / 2)}
	return quaternion.Prod(qy, qx)
}

// toSensor expresses a walkway-frame vector in the sensor frame.
func toSensor(q quaternion.Quaternion, v [3]float64) [3]float64 {
	r := quaternion.Prod(q.Conj(), quaternion.Quaternion{X: v[0], Y: v[1], Z: v[2]}, q)
	return [3]float64{r.X, r.Y, r.Z}
}

// Measurement returns the instrument readings at time t, with noise and
// bias applied.
func (s *SituationSim) Measurement(t float64) (Sample, error) {
	x, err := s.Interpolate(t)
	if err != nil {
		return Sample{}, err
	}
	ix, _, _ := s.segment(t)
	ddt := s.t[ix+1] - s.t[ix]
	phiDot := (s.phi[ix+1] - s.phi[ix]) / ddt
	thetaDot := (s.theta[ix+1] - s.theta[ix]) / ddt
	_, _, sr, sp := s.sway(t, ix)
	phiDot += sr
	thetaDot += sp
	acc := (s.u[ix+1] - s.u[ix]) / ddt

	// Body rates for zero heading change
	sphi, cphi := math.Sincos(x.Roll)
	h := [3]float64{phiDot, cphi * thetaDot, -sphi * thetaDot}

	// Specific force: walkway acceleration plus the reaction to gravity
	a := toSensor(rotation(x.Roll, x.Pitch), [3]float64{acc / gait.G, 0, 1})

	m := Sample{T: t, Position: x.Position + s.noise.Position*s.rng.NormFloat64()}
	for i := 0; i < 3; i++ {
		m.Gyro[i] = h[i] + s.noise.GyroBias[i] + s.noise.Gyro*s.rng.NormFloat64()
		m.Accel[i] = a[i] + s.noise.AccelBias[i] + s.noise.Accel*s.rng.NormFloat64()
	}
	return m, nil
}

// Record samples sit every dt seconds from its beginning to its end into a
// Recording with the default columns plus the truth.
func Record(sit Situation, dt float64) (*Recording, error) {
	if !(dt > 0) {
		return nil, fmt.Errorf("sim: record interval %g", dt)
	}
	c := DefaultColumns()
	rec := NewRecording(append(c.Raw(), ColRoll, ColPitch, ColSpeed)...)
	t0, t1 := sit.BeginTime(), sit.EndTime()
	for i := 0; ; i++ {
		t := t0 + float64(i)*dt
		if t > t1 {
			break
		}
		m, err := sit.Measurement(t)
		if err != nil {
			return nil, err
		}
		x, err := sit.Interpolate(t)
		if err != nil {
			return nil, err
		}
		rec.Append(t, m.Gyro[0], m.Gyro[1], m.Gyro[2], m.Accel[0], m.Accel[1], m.Accel[2], m.Position,
			x.Roll, x.Pitch, x.Speed)
	}
	return rec, nil
}

// Scenarios lists the names accepted by Scenario.
func Scenarios() []string {
	return []string{"stand", "walk", "lean"}
}

// Scenario returns a freshly built named situation.
func Scenario(name string) (*SituationSim, error) {
	switch name {
	case "stand":
		// Quiet standing with a slight forward lean
		return NewSituationSim(
			[]float64{0, 30},
			[]float64{0, 0},
			[]float64{0.05, 0.05},
			[]float64{0, 0})
	case "walk":
		// Calibration stance, gait initiation, steady walk, stop, stance
		s, err := NewSituationSim(
			[]float64{0, 4, 6, 16, 18, 20},
			[]float64{0, 0, 0, 0, 0, 0},
			[]float64{0, 0, 0.08, 0.08, 0, 0},
			[]float64{0, 0, 1.3, 1.3, 0, 0})
		if err != nil {
			return nil, err
		}
		s.SetSway(2*gait.Deg, 1.5*gait.Deg, 1.8)
		return s, nil
	case "lean":
		// Slow trunk tilts in both axes while standing
		return NewSituationSim(
			[]float64{0, 4, 8, 12, 16, 20, 24},
			[]float64{0, 0, 0.3, 0.3, -0.2, -0.2, 0},
			[]float64{0, 0, 0, 0.4, 0.4, -0.1, 0},
			[]float64{0, 0, 0, 0, 0, 0, 0})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}
