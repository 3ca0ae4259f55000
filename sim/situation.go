// Package sim synthesizes gait trials from a scripted trajectory and reads
// and writes recorded trials as CSV, so the estimators in package gait can be
// checked against a known truth.
package sim

import "errors"

var (
	// ErrOutsideScenario is returned for a time outside a situation's span.
	ErrOutsideScenario = errors.New("sim: requested time is outside of scenario")
	// ErrMissingColumn is returned when a recording lacks a requested column.
	ErrMissingColumn = errors.New("sim: recording has no such column")
	// ErrUnknownScenario is returned by Scenario for an unregistered name.
	ErrUnknownScenario = errors.New("sim: unknown scenario")
)

// Truth is the actual state of the subject at one instant.
type Truth struct {
	T        float64 // s
	Roll     float64 // rad, positive leaning right
	Pitch    float64 // rad, positive leaning forward
	Speed    float64 // m/s along the walkway
	Position float64 // m along the walkway
}

// Sample is what the instruments report at one instant.
type Sample struct {
	T        float64
	Gyro     [3]float64 // rad/s, sensor frame
	Accel    [3]float64 // G, sensor frame
	Position float64    // m, base of support
}

// Situation is a trial that can be queried for truth and for sensor output.
type Situation interface {
	BeginTime() float64
	EndTime() float64
	Interpolate(t float64) (Truth, error)
	Measurement(t float64) (Sample, error)
}
