package kalman

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// Scalar is a one-dimensional linear Kalman filter. The prediction is a
// first-order Euler integration of a control rate; the correction blends in a
// direct observation of the same quantity.
//
// A Scalar is not safe for concurrent use.
type Scalar struct {
	cfg Config

	estimate float64 // x
	variance float64 // P

	innovations     *EWStats
	lastInnovation  float64
	lastGain        float64
	predictions     int
	corrections     int
	skipCorrections int
}

// NewScalar returns a Scalar initialized from cfg.
func NewScalar(cfg Config) (*Scalar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scalar{cfg: cfg, innovations: NewEWStats(IDecay)}
	s.Reset()
	return s, nil
}

// Reset restores the filter to its construction state.
func (s *Scalar) Reset() {
	s.estimate = s.cfg.InitialEstimate
	s.variance = s.cfg.InitialVariance
	s.innovations.Reset()
	s.lastInnovation, s.lastGain = 0, 0
	s.predictions, s.corrections, s.skipCorrections = 0, 0, 0
}

// Predict integrates the control input u over dt seconds and grows the
// variance by the process noise. Nothing is changed if dt is invalid. A
// non-finite u is not integrated, but the variance still grows.
func (s *Scalar) Predict(u, dt float64) error {
	if err := CheckInterval(dt); err != nil {
		return err
	}
	if math.IsNaN(u) || math.IsInf(u, 0) {
		log.WithFields(log.Fields{
			"filter":  s.cfg.label(),
			"control": u,
		}).Debug("kalman: non-finite control ignored")
		u = 0
	}
	s.estimate += u * dt
	s.variance += s.cfg.ProcessNoise
	s.predictions++
	return nil
}

// Correct blends the measurement z into the estimate and reports whether a
// correction was applied. A non-finite measurement, or a zero combined
// variance, leaves the state untouched.
func (s *Scalar) Correct(z float64) bool {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		s.skip("non-finite measurement", z)
		return false
	}
	ss := s.variance + s.cfg.MeasurementNoise
	if ss == 0 {
		s.skip("zero innovation variance", z)
		return false
	}

	k := s.variance / ss
	y := z - s.estimate
	s.estimate += k * y
	s.variance *= 1 - k

	s.lastGain = k
	s.lastInnovation = y
	s.innovations.Add(y)
	s.corrections++

	if math.Abs(y) > 3*math.Sqrt(ss) {
		log.WithFields(log.Fields{
			"filter":     s.cfg.label(),
			"innovation": y,
			"sigma":      math.Sqrt(ss),
		}).Debug("kalman: large innovation")
	}
	return true
}

func (s *Scalar) skip(reason string, z float64) {
	s.lastGain = 0
	s.skipCorrections++
	log.WithFields(log.Fields{
		"filter":      s.cfg.label(),
		"reason":      reason,
		"measurement": z,
	}).Debug("kalman: correction skipped")
}

// Step runs Predict then Correct and returns the corrected estimate. The
// interval is checked before anything is mutated.
func (s *Scalar) Step(u, z, dt float64) (float64, error) {
	if err := s.Predict(u, dt); err != nil {
		return s.estimate, err
	}
	s.Correct(z)
	return s.estimate, nil
}

// Estimate returns the current best value of the state.
func (s *Scalar) Estimate() float64 {
	return s.estimate
}

// Variance returns the current error covariance.
func (s *Scalar) Variance() float64 {
	return s.variance
}

// Gain returns the gain that the next correction would apply.
func (s *Scalar) Gain() float64 {
	return Gain(s.variance, s.cfg.MeasurementNoise)
}

// LastGain returns the gain applied by the most recent correction attempt,
// zero if it was skipped.
func (s *Scalar) LastGain() float64 {
	return s.lastGain
}

// Config returns the construction constants.
func (s *Scalar) Config() Config {
	return s.cfg
}

// Stats summarizes the filter's history since the last Reset.
type Stats struct {
	Predictions        int
	Corrections        int
	SkippedCorrections int
	LastInnovation     float64
	InnovationWeight   float64 // Effective number of innovations in the averages
	InnovationMean     float64 // Exponentially weighted
	InnovationVariance float64 // Exponentially weighted
}

// Stats returns the filter's running statistics.
func (s *Scalar) Stats() Stats {
	return Stats{
		Predictions:        s.predictions,
		Corrections:        s.corrections,
		SkippedCorrections: s.skipCorrections,
		LastInnovation:     s.lastInnovation,
		InnovationWeight:   s.innovations.Weight(),
		InnovationMean:     s.innovations.Mean(),
		InnovationVariance: s.innovations.Variance(),
	}
}
