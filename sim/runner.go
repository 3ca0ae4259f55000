package sim

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Duncans007/gait-analysis/gait"
)

// Errors summarizes how far an estimate strayed from the truth.
type Errors struct {
	N    int
	Bias float64 // Mean of estimate minus truth
	RMS  float64
	Max  float64 // Largest absolute error
}

// Compare returns the error statistics of est against truth, over the
// common length of the two.
func Compare(truth, est []float64) Errors {
	n := len(truth)
	if len(est) < n {
		n = len(est)
	}
	if n == 0 {
		return Errors{}
	}
	d := make([]float64, n)
	floats.SubTo(d, est[:n], truth[:n])
	e := Errors{
		N:    n,
		Bias: stat.Mean(d, nil),
		RMS:  floats.Norm(d, 2) / math.Sqrt(float64(n)),
	}
	e.Max = math.Max(floats.Max(d), -floats.Min(d))
	return e
}

func (e Errors) String() string {
	return fmt.Sprintf("n=%d bias=%+.5f rms=%.5f max=%.5f", e.N, e.Bias, e.RMS, e.Max)
}

// Report is the outcome of Run.
type Report struct {
	Samples int
	Roll    Errors
	Pitch   Errors
	Speed   Errors // Zero unless a VelocityFuser took part
}

// Run steps through sit every dt seconds, feeding each measurement live to
// est and, if vel is not nil, to vel with the estimated pitch. Both must
// work in radians. The first instant only seeds the clock and position, as
// in batch replay. If l is not nil each step is logged as
// t, roll, est roll, pitch, est pitch, speed, est speed.
func Run(sit Situation, est gait.OrientationEstimator, vel *gait.VelocityFuser, dt float64, l *EstimateLogger) (Report, error) {
	if !(dt > 0) {
		return Report{}, fmt.Errorf("sim: run interval %g", dt)
	}
	var (
		rep                 Report
		trueRoll, truePitch []float64
		estRoll, estPitch   []float64
		trueSpeed, estSpeed []float64
	)
	t0 := sit.BeginTime()
	nextLog := t0

	m, err := sit.Measurement(t0)
	if err != nil {
		return rep, err
	}
	if vel != nil {
		vel.Seed(m.Position)
	}

	for i := 1; ; i++ {
		t := t0 + float64(i)*dt
		if t > sit.EndTime() {
			break
		}

		// Peek behind the curtain: the actual state, which the estimators don't know
		x, err := sit.Interpolate(t)
		if err != nil {
			return rep, fmt.Errorf("sim: interpolating at t=%g: %w", t, err)
		}
		if m, err = sit.Measurement(t); err != nil {
			return rep, fmt.Errorf("sim: measuring at t=%g: %w", t, err)
		}

		roll, pitch, err := est.Update(m.Gyro, m.Accel, dt)
		if err != nil {
			return rep, err
		}
		trueRoll, estRoll = append(trueRoll, x.Roll), append(estRoll, roll)
		truePitch, estPitch = append(truePitch, x.Pitch), append(estPitch, pitch)

		speed := math.NaN()
		if vel != nil {
			if speed, err = vel.Update(m.Accel, pitch, m.Position, dt); err != nil {
				return rep, err
			}
			trueSpeed, estSpeed = append(trueSpeed, x.Speed), append(estSpeed, speed)
		}
		if l != nil {
			l.Log(t, x.Roll, roll, x.Pitch, pitch, x.Speed, speed)
		}
		if t >= nextLog {
			log.WithFields(log.Fields{
				"t":     t,
				"roll":  roll,
				"pitch": pitch,
				"speed": speed,
			}).Debug("sim: step")
			nextLog += 1
		}
		rep.Samples++
	}

	rep.Roll = Compare(trueRoll, estRoll)
	rep.Pitch = Compare(truePitch, estPitch)
	rep.Speed = Compare(trueSpeed, estSpeed)
	if l != nil && l.Err() != nil {
		return rep, l.Err()
	}
	return rep, nil
}

// RunHeader is the EstimateLogger header matching the rows Run logs.
func RunHeader() []string {
	return []string{"T", "ROLL", "ROLL_EST", "PITCH", "PITCH_EST", "SPEED", "SPEED_EST"}
}
