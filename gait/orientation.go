package gait

import (
	"fmt"

	"github.com/Duncans007/gait-analysis/kalman"
)

// OrientationEstimator is implemented by the roll/pitch filters so that the
// batch driver can replay a dataset through any of them.
type OrientationEstimator interface {
	Update(gyro, accel [3]float64, dt float64) (roll, pitch float64, err error)
}

// OrientationFuser fuses gyro rates and accelerometer tilt into roll and
// pitch with two independent scalar Kalman filters. Roll is driven by the x
// gyro rate and pitch by the y gyro rate.
//
// An OrientationFuser belongs to one trial and one caller at a time.
type OrientationFuser struct {
	cfg   OrientationConfig
	roll  *kalman.Scalar
	pitch *kalman.Scalar
	diag  Diagnostics
}

// NewOrientationFuser returns a fuser with both filters at their initial state.
func NewOrientationFuser(cfg OrientationConfig) (*OrientationFuser, error) {
	if cfg.Roll.Name == "" {
		cfg.Roll.Name = "roll"
	}
	if cfg.Pitch.Name == "" {
		cfg.Pitch.Name = "pitch"
	}
	roll, err := kalman.NewScalar(cfg.Roll)
	if err != nil {
		return nil, fmt.Errorf("gait: roll filter: %w", err)
	}
	pitch, err := kalman.NewScalar(cfg.Pitch)
	if err != nil {
		return nil, fmt.Errorf("gait: pitch filter: %w", err)
	}
	return &OrientationFuser{cfg: cfg, roll: roll, pitch: pitch}, nil
}

// Update runs one predict/correct cycle on both axes and returns the new roll
// and pitch. gyro is in rad/s and dt in seconds. A zero accelerometer
// reading gives a prediction-only step; a non-finite gyro rate is not
// integrated. Either counts as degenerate. An invalid dt changes nothing.
func (f *OrientationFuser) Update(gyro, accel [3]float64, dt float64) (roll, pitch float64, err error) {
	if err = kalman.CheckInterval(dt); err != nil {
		f.diag.RejectedIntervals++
		return 0, 0, err
	}

	rollRate, pitchRate, ratesOK := gyroRates(gyro)
	rollTilt, pitchTilt, ok := TiltAngles(accel)

	if !ok {
		// Interval already checked, these cannot fail
		_ = f.roll.Predict(rollRate, dt)
		_ = f.pitch.Predict(pitchRate, dt)
		logDegenerate("orientation", "zero accelerometer vector", accel)
	} else {
		_, _ = f.roll.Step(rollRate, rollTilt, dt)
		_, _ = f.pitch.Step(pitchRate, pitchTilt, dt)
	}
	if !ratesOK {
		logDegenerate("orientation", "non-finite gyro rate", gyro)
	}
	if !ok || !ratesOK {
		f.diag.DegenerateMeasurements++
	}
	f.diag.Updates++

	roll, pitch = f.Angles()
	return roll, pitch, nil
}

// Angles returns the current roll and pitch estimates in the configured unit.
func (f *OrientationFuser) Angles() (roll, pitch float64) {
	roll, pitch = f.roll.Estimate(), f.pitch.Estimate()
	if f.cfg.Degrees {
		return roll / Deg, pitch / Deg
	}
	return roll, pitch
}

// Variances returns the error covariances of roll and pitch, in rad².
func (f *OrientationFuser) Variances() (roll, pitch float64) {
	return f.roll.Variance(), f.pitch.Variance()
}

// Filters exposes the per-axis scalar filters, read-only use intended.
func (f *OrientationFuser) Filters() (roll, pitch *kalman.Scalar) {
	return f.roll, f.pitch
}

// Diagnostics returns counts of processed and degenerate samples.
func (f *OrientationFuser) Diagnostics() Diagnostics {
	return f.diag
}

// Reset returns both filters to their construction state.
func (f *OrientationFuser) Reset() {
	f.roll.Reset()
	f.pitch.Reset()
	f.diag = Diagnostics{}
}

// AnalyzeDataset replays an orientation dataset through Update. See
// AnalyzeOrientation.
func (f *OrientationFuser) AnalyzeDataset(ds Dataset) (roll, pitch []float64, err error) {
	return AnalyzeOrientation(f, ds)
}
