// Package kalman implements the linear Kalman recursions used by the gait
// estimators: a one-state Scalar filter with explicit gain computation and an
// n-state Linear filter for coupled models.
package kalman

import (
	"errors"
	"fmt"
	"math"
)

// IDecay is the exponential decay constant for innovation statistics.
const IDecay = 1 - 1.0/50

var (
	// ErrInvalidInterval is returned when a prediction is asked for with a
	// sample interval that is not a positive finite number of seconds.
	ErrInvalidInterval = errors.New("kalman: sample interval must be > 0")
	// ErrInvalidConfig is returned by constructors for negative or non-finite
	// noise and variance constants.
	ErrInvalidConfig = errors.New("kalman: invalid filter configuration")
	// ErrSingular is returned by Linear.Update when the innovation covariance
	// cannot be inverted.
	ErrSingular = errors.New("kalman: innovation covariance is singular")
	// ErrDimension is returned when matrix shapes do not agree.
	ErrDimension = errors.New("kalman: dimension mismatch")
)

// Config holds the construction constants of a Scalar filter.
type Config struct {
	Name             string  // Used only to label log lines
	InitialEstimate  float64 // Starting estimate
	InitialVariance  float64 // Starting error covariance, P0
	ProcessNoise     float64 // Q, added to the variance by every prediction
	MeasurementNoise float64 // R, variance of the direct observation
}

// Validate checks that all variances are finite and non-negative.
func (c Config) Validate() error {
	if math.IsNaN(c.InitialEstimate) || math.IsInf(c.InitialEstimate, 0) {
		return fmt.Errorf("%w: %s initial estimate %g", ErrInvalidConfig, c.label(), c.InitialEstimate)
	}
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"initial variance", c.InitialVariance},
		{"process noise", c.ProcessNoise},
		{"measurement noise", c.MeasurementNoise},
	} {
		if !(v.val >= 0) || math.IsInf(v.val, 0) {
			return fmt.Errorf("%w: %s %s %g", ErrInvalidConfig, c.label(), v.name, v.val)
		}
	}
	return nil
}

func (c Config) label() string {
	if c.Name == "" {
		return "filter"
	}
	return c.Name
}

// CheckInterval returns ErrInvalidInterval unless dt is a positive finite number.
func CheckInterval(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return fmt.Errorf("%w: got %g", ErrInvalidInterval, dt)
	}
	return nil
}

// Gain returns the Kalman gain p/(p+r) for a predicted variance p and
// measurement noise r. A zero denominator yields zero gain (no correction).
func Gain(p, r float64) float64 {
	s := p + r
	if s == 0 {
		return 0
	}
	return p / s
}
