package gait

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Dataset is an ordered set of equal-length channels sharing one sample
// clock. Channel 0 is always elapsed time in seconds; the rest follow the
// orientation or velocity layout.
type Dataset [][]float64

// Len returns the number of samples, zero for a dataset with no channels.
func (ds Dataset) Len() int {
	if len(ds) == 0 {
		return 0
	}
	return len(ds[0])
}

// Validate checks that ds has the given number of channels, all the same length.
func (ds Dataset) Validate(channels int) error {
	if len(ds) != channels {
		return fmt.Errorf("%w: have %d, want %d", ErrChannelCount, len(ds), channels)
	}
	n := ds.Len()
	for i, c := range ds {
		if len(c) != n {
			return fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d", ErrChannelLength, i, len(c), n)
		}
	}
	return nil
}

func (ds Dataset) vec(i, first int) [3]float64 {
	return [3]float64{ds[first][i], ds[first+1][i], ds[first+2][i]}
}

// interval returns the time step into sample i.
func (ds Dataset) interval(i int) (float64, error) {
	dt := ds[0][i] - ds[0][i-1]
	if !(dt > 0) {
		log.WithFields(log.Fields{
			"sample": i,
			"t0":     ds[0][i-1],
			"t1":     ds[0][i],
		}).Warn("gait: replay aborted")
		return 0, fmt.Errorf("%w: sample %d at t=%g follows t=%g", ErrNonMonotonicTime, i, ds[0][i], ds[0][i-1])
	}
	return dt, nil
}

// AnalyzeOrientation replays an orientation dataset through est, one Update
// per sample after the first, and returns the roll and pitch sequences.
// The first sample only sets the clock, so N samples give N-1 outputs.
//
// If the time channel fails to increase at sample i, replay stops and the
// outputs for samples 1 to i-1 are returned with ErrNonMonotonicTime. The
// estimator keeps whatever state it reached; it is not reset before or after.
func AnalyzeOrientation(est OrientationEstimator, ds Dataset) (roll, pitch []float64, err error) {
	if err = ds.Validate(OrientationChannels); err != nil {
		return nil, nil, err
	}
	n := ds.Len()
	if n < 2 {
		return []float64{}, []float64{}, nil
	}

	roll = make([]float64, 0, n-1)
	pitch = make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		dt, err := ds.interval(i)
		if err != nil {
			return roll, pitch, err
		}
		r, p, err := est.Update(ds.vec(i, OGyroX), ds.vec(i, OAccelX), dt)
		if err != nil {
			return roll, pitch, fmt.Errorf("gait: sample %d: %w", i, err)
		}
		roll = append(roll, r)
		pitch = append(pitch, p)
	}
	return roll, pitch, nil
}

// VelocityEstimator is implemented by VelocityFuser and by wrappers around
// it, so that the batch driver can replay through them.
type VelocityEstimator interface {
	Seed(position float64)
	Update(accel [3]float64, pitch, position, dt float64) (float64, error)
}

// AnalyzeVelocity replays a velocity dataset through f. The first sample
// seeds the clock and the previous position; otherwise the rules are those of
// AnalyzeOrientation.
func AnalyzeVelocity(f VelocityEstimator, ds Dataset) ([]float64, error) {
	if err := ds.Validate(VelocityChannels); err != nil {
		return nil, err
	}
	n := ds.Len()
	if n < 1 {
		return []float64{}, nil
	}
	f.Seed(ds[VPosition][0])

	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		dt, err := ds.interval(i)
		if err != nil {
			return out, err
		}
		v, err := f.Update(ds.vec(i, VAccelX), ds[VPitch][i], ds[VPosition][i], dt)
		if err != nil {
			return out, fmt.Errorf("gait: sample %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
