package gait

import (
	"fmt"

	"github.com/skelterjohn/go.matrix"
	log "github.com/sirupsen/logrus"

	"github.com/Duncans007/gait-analysis/kalman"
)

// State indices of a BiasFuser.
const (
	BRoll = iota
	BRollBias
	BPitch
	BPitchBias
	biasStates
)

// BiasConfig configures a BiasFuser.
type BiasConfig struct {
	InitialVariance  float64 // Diagonal of P0, all four states
	AngleNoise       float64 // Process noise on roll and pitch, rad² per step
	BiasNoise        float64 // Process noise on the gyro biases, (rad/s)² per step
	MeasurementNoise float64 // Accelerometer tilt noise, rad², both axes
	Degrees          bool
}

// DefaultBiasConfig returns the tuning matching DefaultOrientationConfig,
// with the biases given the same process noise as the angles.
func DefaultBiasConfig() BiasConfig {
	return BiasConfig{
		InitialVariance:  1,
		AngleNoise:       1e-6,
		BiasNoise:        1e-6,
		MeasurementNoise: 1e-3,
	}
}

// BiasFuser estimates roll, pitch and the x and y gyro biases together with
// a four-state linear Kalman filter. The state is
// [roll, roll bias, pitch, pitch bias] and the accelerometer tilt observes
// the two angles.
type BiasFuser struct {
	cfg  BiasConfig
	kf   *kalman.Linear
	h    *matrix.DenseMatrix
	diag Diagnostics
}

// NewBiasFuser returns a BiasFuser with zero angles and biases.
func NewBiasFuser(cfg BiasConfig) (*BiasFuser, error) {
	kf, err := kalman.NewLinear(
		make([]float64, biasStates),
		matrix.Diagonal([]float64{cfg.InitialVariance, cfg.InitialVariance, cfg.InitialVariance, cfg.InitialVariance}),
		matrix.Diagonal([]float64{cfg.AngleNoise, cfg.BiasNoise, cfg.AngleNoise, cfg.BiasNoise}),
		matrix.Diagonal([]float64{cfg.MeasurementNoise, cfg.MeasurementNoise}),
	)
	if err != nil {
		return nil, fmt.Errorf("gait: bias filter: %w", err)
	}
	return &BiasFuser{
		cfg: cfg,
		kf:  kf,
		h: matrix.MakeDenseMatrix([]float64{
			1, 0, 0, 0,
			0, 0, 1, 0,
		}, 2, 4),
	}, nil
}

func biasModel(dt float64) (a, b *matrix.DenseMatrix) {
	a = matrix.MakeDenseMatrix([]float64{
		1, -dt, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, -dt,
		0, 0, 0, 1,
	}, 4, 4)
	b = matrix.MakeDenseMatrix([]float64{
		dt, 0,
		0, 0,
		0, dt,
		0, 0,
	}, 4, 2)
	return a, b
}

// Update runs one predict/correct cycle and returns roll and pitch. It
// follows the same interval and degenerate-reading rules as
// OrientationFuser.Update.
func (f *BiasFuser) Update(gyro, accel [3]float64, dt float64) (roll, pitch float64, err error) {
	if err = kalman.CheckInterval(dt); err != nil {
		f.diag.RejectedIntervals++
		return 0, 0, err
	}

	a, b := biasModel(dt)
	rollRate, pitchRate, ratesOK := gyroRates(gyro)
	if err = f.kf.Predict(a, b, []float64{rollRate, pitchRate}); err != nil {
		return 0, 0, err
	}
	if !ratesOK {
		logDegenerate("bias", "non-finite gyro rate", gyro)
	}

	rollTilt, pitchTilt, ok := TiltAngles(accel)
	if ok {
		if err := f.kf.Update(f.h, []float64{rollTilt, pitchTilt}); err != nil {
			ok = false
			log.WithFields(log.Fields{
				"filter": "bias",
				"error":  err,
			}).Debug("gait: correction skipped")
		}
	} else {
		logDegenerate("bias", "zero accelerometer vector", accel)
	}
	if !ok || !ratesOK {
		f.diag.DegenerateMeasurements++
	}
	f.diag.Updates++

	roll, pitch = f.Angles()
	return roll, pitch, nil
}

// Angles returns the current roll and pitch in the configured unit.
func (f *BiasFuser) Angles() (roll, pitch float64) {
	x := f.kf.State()
	if f.cfg.Degrees {
		return x[BRoll] / Deg, x[BPitch] / Deg
	}
	return x[BRoll], x[BPitch]
}

// GyroBias returns the estimated x and y gyro biases in rad/s.
func (f *BiasFuser) GyroBias() (x, y float64) {
	s := f.kf.State()
	return s[BRollBias], s[BPitchBias]
}

// Variances returns the error covariances of roll and pitch, in rad².
func (f *BiasFuser) Variances() (roll, pitch float64) {
	return f.kf.Variance(BRoll), f.kf.Variance(BPitch)
}

func (f *BiasFuser) Diagnostics() Diagnostics {
	return f.diag
}

// Reset restores the initial state and covariance.
func (f *BiasFuser) Reset() {
	f.kf.Reset()
	f.diag = Diagnostics{}
}

// AnalyzeDataset replays an orientation dataset through Update.
func (f *BiasFuser) AnalyzeDataset(ds Dataset) (roll, pitch []float64, err error) {
	return AnalyzeOrientation(f, ds)
}
