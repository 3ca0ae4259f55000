package gait

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/Duncans007/gait-analysis/kalman"
)

// VelocityFuser estimates walking speed. The prediction integrates the
// trunk's forward acceleration, the correction is the finite-difference
// velocity of the base of support position.
type VelocityFuser struct {
	cfg    VelocityConfig
	filter *kalman.Scalar
	diag   Diagnostics

	prevPosition float64
	seeded       bool
}

// NewVelocityFuser returns an unseeded VelocityFuser.
func NewVelocityFuser(cfg VelocityConfig) (*VelocityFuser, error) {
	if cfg.Filter.Name == "" {
		cfg.Filter.Name = "velocity"
	}
	if !(cfg.AccelScale > 0) || math.IsInf(cfg.AccelScale, 0) {
		return nil, fmt.Errorf("%w: acceleration scale %g", kalman.ErrInvalidConfig, cfg.AccelScale)
	}
	filter, err := kalman.NewScalar(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("gait: velocity filter: %w", err)
	}
	return &VelocityFuser{cfg: cfg, filter: filter}, nil
}

// Seed records the position the next Update differences against.
func (f *VelocityFuser) Seed(position float64) {
	if math.IsNaN(position) || math.IsInf(position, 0) {
		return
	}
	f.prevPosition = position
	f.seeded = true
}

// ForwardAccel rotates accel by pitch onto the direction of travel and
// scales it to distance/time². A reading of gravity alone gives zero.
func (f *VelocityFuser) ForwardAccel(accel [3]float64, pitch float64) float64 {
	if f.cfg.PitchDegrees {
		pitch *= Deg
	}
	sp, cp := math.Sincos(pitch)
	return (accel[0]*cp + accel[2]*sp) * f.cfg.AccelScale
}

// Update advances the velocity estimate by dt seconds and returns it.
//
// The first call on an unseeded fuser only predicts and remembers position.
// A non-finite position also gives a prediction-only step and is not
// remembered. An invalid dt is rejected before anything changes.
func (f *VelocityFuser) Update(accel [3]float64, pitch, position, dt float64) (float64, error) {
	if err := kalman.CheckInterval(dt); err != nil {
		f.diag.RejectedIntervals++
		return f.filter.Estimate(), err
	}

	u := f.ForwardAccel(accel, pitch)
	if math.IsNaN(u) || math.IsInf(u, 0) {
		u = 0
	}

	finite := !math.IsNaN(position) && !math.IsInf(position, 0)
	switch {
	case f.seeded && finite:
		_, _ = f.filter.Step(u, (position-f.prevPosition)/dt, dt)
	default:
		_ = f.filter.Predict(u, dt)
		f.diag.DegenerateMeasurements++
		reason := "no previous position"
		if !finite {
			reason = "non-finite position"
		}
		log.WithFields(log.Fields{
			"filter":   "velocity",
			"reason":   reason,
			"position": position,
		}).Debug("gait: prediction-only update")
	}
	f.Seed(position)
	f.diag.Updates++

	return f.filter.Estimate(), nil
}

// Velocity returns the current estimate.
func (f *VelocityFuser) Velocity() float64 {
	return f.filter.Estimate()
}

// Variance returns the current error covariance.
func (f *VelocityFuser) Variance() float64 {
	return f.filter.Variance()
}

// Filter exposes the underlying scalar filter, read-only use intended.
func (f *VelocityFuser) Filter() *kalman.Scalar {
	return f.filter
}

func (f *VelocityFuser) Diagnostics() Diagnostics {
	return f.diag
}

// Reset restores the filter and forgets the previous position.
func (f *VelocityFuser) Reset() {
	f.filter.Reset()
	f.diag = Diagnostics{}
	f.prevPosition, f.seeded = 0, false
}

// AnalyzeDataset replays a velocity dataset through Update. See AnalyzeVelocity.
func (f *VelocityFuser) AnalyzeDataset(ds Dataset) ([]float64, error) {
	return AnalyzeVelocity(f, ds)
}
