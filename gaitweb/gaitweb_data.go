// Package gaitweb streams live gait estimates over websockets. A Room
// relays every message a client sends to all the other clients; a Publisher
// is the client an estimator uses to send.
package gaitweb

// Port is the default port of the gait data room.
const Port = 8000

// Path is where the room is served.
const Path = "/gaitweb"

// GaitData is one published sample.
type GaitData struct {
	T float64 // Sample time, s

	// Estimates
	Roll, Pitch float64 // rad, or ° if Degrees
	Speed       float64 // distance/time
	Degrees     bool

	// Estimate uncertainties
	DRoll, DPitch, DSpeed float64

	// Measurements
	G1, G2, G3 float64 // Gyro rates, sensor frame, rad/s
	A1, A2, A3 float64 // Accelerometer, sensor frame
	Position   float64 // Base of support

	Degenerate int // Prediction-only updates so far
}
