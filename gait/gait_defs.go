// Package gait fuses inertial and base-of-support streams into the trunk
// orientation and walking speed estimates used for gait analysis.
//
// Sensor frame: 1 (x) is forward, 2 (y) is to the left, 3 (z) is up.
// Roll is rotation about x, pitch is rotation about y. Gyro rates are rad/s;
// accelerations are in any consistent unit (usually G).
package gait

import (
	"errors"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/Duncans007/gait-analysis/kalman"
)

const (
	Pi    = math.Pi
	Deg   = Pi / 180
	G     = 9.80665 // Standard gravity, m/s²
	Small = 1e-24   // Squared accelerometer norms below this are treated as no reading
)

var (
	// ErrNonMonotonicTime is returned by batch replay when the time channel
	// does not strictly increase.
	ErrNonMonotonicTime = errors.New("gait: time channel is not strictly increasing")
	// ErrChannelCount is returned when a dataset has the wrong number of channels.
	ErrChannelCount = errors.New("gait: wrong number of dataset channels")
	// ErrChannelLength is returned when dataset channels differ in length.
	ErrChannelLength = errors.New("gait: dataset channels differ in length")
)

// Channel layout of an orientation dataset:
// [time, gyro_x, gyro_y, gyro_z, accel_x, accel_y, accel_z].
const (
	OTime = iota
	OGyroX
	OGyroY
	OGyroZ
	OAccelX
	OAccelY
	OAccelZ
	OrientationChannels
)

// Channel layout of a velocity dataset:
// [time, accel_x, accel_y, accel_z, pitch, position].
const (
	VTime = iota
	VAccelX
	VAccelY
	VAccelZ
	VPitch
	VPosition
	VelocityChannels
)

// OrientationConfig configures an OrientationFuser.
type OrientationConfig struct {
	Roll    kalman.Config
	Pitch   kalman.Config
	Degrees bool // Return roll and pitch in degrees rather than radians
}

// DefaultOrientationConfig returns the tuning used for lower-back IMU trials.
// Both axes are configured identically.
func DefaultOrientationConfig() OrientationConfig {
	return OrientationConfig{
		Roll:  kalman.Config{Name: "roll", InitialVariance: 1, ProcessNoise: 1e-6, MeasurementNoise: 1e-3},
		Pitch: kalman.Config{Name: "pitch", InitialVariance: 1, ProcessNoise: 1e-6, MeasurementNoise: 1e-3},
	}
}

// VelocityConfig configures a VelocityFuser.
type VelocityConfig struct {
	Filter       kalman.Config
	AccelScale   float64 // Converts accelerometer units to distance/time², e.g. G for readings in G
	PitchDegrees bool    // Pitch inputs are in degrees rather than radians
}

// DefaultVelocityConfig returns a configuration taking accelerations already
// in distance/time² and pitch in radians.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		Filter:     kalman.Config{Name: "velocity", InitialVariance: 1, ProcessNoise: 1e-4, MeasurementNoise: 1e-3},
		AccelScale: 1,
	}
}

// Diagnostics counts how a fuser has handled its input so far.
type Diagnostics struct {
	Updates                int // Successful Update calls
	DegenerateMeasurements int // Updates that were prediction-only
	RejectedIntervals      int // Update calls refused for a bad sample interval
}

// TiltAngles returns the roll and pitch implied by an accelerometer reading
// that measures gravity only. ok is false for a zero or non-finite reading.
func TiltAngles(accel [3]float64) (roll, pitch float64, ok bool) {
	ax, ay, az := accel[0], accel[1], accel[2]
	// Hypot rather than squares so large readings don't overflow
	yz := math.Hypot(ay, az)
	n := math.Hypot(ax, yz)
	if !(n*n >= Small) || math.IsInf(n, 0) {
		return 0, 0, false
	}
	roll = math.Atan2(ay, az)
	pitch = math.Atan2(-ax, yz)
	return roll, pitch, true
}

// gyroRates returns the roll and pitch rates, x and y. A non-finite rate is
// replaced by zero so that it is not integrated, and ok is false.
func gyroRates(gyro [3]float64) (roll, pitch float64, ok bool) {
	roll, pitch, ok = gyro[0], gyro[1], true
	if math.IsNaN(roll) || math.IsInf(roll, 0) {
		roll, ok = 0, false
	}
	if math.IsNaN(pitch) || math.IsInf(pitch, 0) {
		pitch, ok = 0, false
	}
	return roll, pitch, ok
}

func logDegenerate(filter, reason string, v [3]float64) {
	log.WithFields(log.Fields{
		"filter": filter,
		"reason": reason,
		"input":  v,
	}).Debug("gait: prediction-only update")
}
