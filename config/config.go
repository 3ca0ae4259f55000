// Package config loads gaitkal settings from a YAML file over built-in
// defaults, then from GAITKAL_* environment variables.
//
// Example file:
//
//	log_level: debug
//	orientation:
//	  model: bias
//	  roll:  {process_noise: 1e-6, measurement_noise: 1e-3}
//	velocity:
//	  accel_scale: 9.80665
//	output:
//	  degrees: true
//	  rezero: true
//	publish: ws://localhost:8000/gaitweb
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Duncans007/gait-analysis/gait"
	"github.com/Duncans007/gait-analysis/kalman"
	"github.com/Duncans007/gait-analysis/sim"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Orientation models.
const (
	ModelScalar = "scalar" // Two independent scalar filters
	ModelBias   = "bias"   // Four-state filter estimating gyro bias
)

// Filter holds the constants of one scalar filter.
type Filter struct {
	InitialEstimate  float64 `yaml:"initial_estimate"`
	InitialVariance  float64 `yaml:"initial_variance"`
	ProcessNoise     float64 `yaml:"process_noise"`
	MeasurementNoise float64 `yaml:"measurement_noise"`
}

// Orientation configures the roll/pitch estimator.
type Orientation struct {
	Model     string  `yaml:"model"`
	Roll      Filter  `yaml:"roll"`
	Pitch     Filter  `yaml:"pitch"`
	BiasNoise float64 `yaml:"bias_noise"` // Bias model only
}

// Velocity configures the walking speed estimator.
type Velocity struct {
	Filter       `yaml:",inline"`
	AccelScale   float64 `yaml:"accel_scale"`
	PitchDegrees bool    `yaml:"pitch_degrees"` // Pitch column is in degrees
}

// Output configures how estimates are written.
type Output struct {
	Degrees    bool `yaml:"degrees"`
	Rezero     bool `yaml:"rezero"`
	RezeroFrom int  `yaml:"rezero_from"`
	RezeroTo   int  `yaml:"rezero_to"`
}

// Simulation configures synthesized trials.
type Simulation struct {
	Scenario      string     `yaml:"scenario"`
	Interval      float64    `yaml:"interval"` // s
	GyroNoise     float64    `yaml:"gyro_noise"`
	AccelNoise    float64    `yaml:"accel_noise"`
	PositionNoise float64    `yaml:"position_noise"`
	GyroBias      [3]float64 `yaml:"gyro_bias"`
	AccelBias     [3]float64 `yaml:"accel_bias"`
	Seed          int64      `yaml:"seed"`
}

// Config is the complete gaitkal configuration.
type Config struct {
	LogLevel    string      `yaml:"log_level"`
	Orientation Orientation `yaml:"orientation"`
	Velocity    Velocity    `yaml:"velocity"`
	Columns     sim.Columns `yaml:"columns"`
	Output      Output      `yaml:"output"`
	Simulation  Simulation  `yaml:"simulation"`
	Publish     string      `yaml:"publish"` // Websocket room URL, empty for none
}

func fromKalman(c kalman.Config) Filter {
	return Filter{
		InitialEstimate:  c.InitialEstimate,
		InitialVariance:  c.InitialVariance,
		ProcessNoise:     c.ProcessNoise,
		MeasurementNoise: c.MeasurementNoise,
	}
}

func (f Filter) kalman(name string) kalman.Config {
	return kalman.Config{
		Name:             name,
		InitialEstimate:  f.InitialEstimate,
		InitialVariance:  f.InitialVariance,
		ProcessNoise:     f.ProcessNoise,
		MeasurementNoise: f.MeasurementNoise,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	oc := gait.DefaultOrientationConfig()
	vc := gait.DefaultVelocityConfig()
	w := gait.DefaultRezeroWindow()
	return &Config{
		LogLevel: "info",
		Orientation: Orientation{
			Model:     ModelScalar,
			Roll:      fromKalman(oc.Roll),
			Pitch:     fromKalman(oc.Pitch),
			BiasNoise: gait.DefaultBiasConfig().BiasNoise,
		},
		Velocity: Velocity{
			Filter:     fromKalman(vc.Filter),
			AccelScale: vc.AccelScale,
		},
		Columns: sim.DefaultColumns(),
		Output: Output{
			RezeroFrom: w.From,
			RezeroTo:   w.To,
		},
		Simulation: Simulation{
			Scenario: "walk",
			Interval: 0.02,
		},
	}
}

// Load returns the defaults overlaid by the YAML file at path, if path is
// not empty, and then by the environment. The result is validated.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		log.WithField("path", path).Debug("config: loaded file")
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides settings from GAITKAL_LOG_LEVEL, GAITKAL_PUBLISH and
// GAITKAL_MODEL.
func (c *Config) ApplyEnv() {
	c.LogLevel = getEnv("GAITKAL_LOG_LEVEL", c.LogLevel)
	c.Publish = getEnv("GAITKAL_PUBLISH", c.Publish)
	c.Orientation.Model = getEnv("GAITKAL_MODEL", c.Orientation.Model)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	switch c.Orientation.Model {
	case ModelScalar, ModelBias:
	default:
		return fmt.Errorf("%w: orientation model %q", ErrInvalid, c.Orientation.Model)
	}
	for name, f := range map[string]Filter{
		"orientation.roll":  c.Orientation.Roll,
		"orientation.pitch": c.Orientation.Pitch,
		"velocity":          c.Velocity.Filter,
	} {
		if err := f.kalman(name).Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if !(c.Orientation.BiasNoise >= 0) || math.IsInf(c.Orientation.BiasNoise, 0) {
		return fmt.Errorf("%w: bias_noise %g", ErrInvalid, c.Orientation.BiasNoise)
	}
	if !(c.Velocity.AccelScale > 0) || math.IsInf(c.Velocity.AccelScale, 0) {
		return fmt.Errorf("%w: accel_scale %g", ErrInvalid, c.Velocity.AccelScale)
	}
	if c.Output.Rezero && c.Output.RezeroFrom >= c.Output.RezeroTo {
		return fmt.Errorf("%w: rezero window [%d, %d)", ErrInvalid, c.Output.RezeroFrom, c.Output.RezeroTo)
	}
	if !(c.Simulation.Interval > 0) {
		return fmt.Errorf("%w: simulation interval %g", ErrInvalid, c.Simulation.Interval)
	}
	if c.Publish != "" {
		u, err := url.Parse(c.Publish)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("%w: publish url %q", ErrInvalid, c.Publish)
		}
	}
	return nil
}

// Level returns the parsed log level, info if it does not parse.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}

// OrientationConfig returns the scalar orientation fuser settings.
func (c *Config) OrientationConfig() gait.OrientationConfig {
	return gait.OrientationConfig{
		Roll:    c.Orientation.Roll.kalman("roll"),
		Pitch:   c.Orientation.Pitch.kalman("pitch"),
		Degrees: c.Output.Degrees,
	}
}

// BiasConfig returns the bias model settings. The angle constants are taken
// from the roll filter.
func (c *Config) BiasConfig() gait.BiasConfig {
	return gait.BiasConfig{
		InitialVariance:  c.Orientation.Roll.InitialVariance,
		AngleNoise:       c.Orientation.Roll.ProcessNoise,
		BiasNoise:        c.Orientation.BiasNoise,
		MeasurementNoise: c.Orientation.Roll.MeasurementNoise,
		Degrees:          c.Output.Degrees,
	}
}

// VelocityConfig returns the velocity fuser settings.
func (c *Config) VelocityConfig() gait.VelocityConfig {
	return gait.VelocityConfig{
		Filter:       c.Velocity.kalman("velocity"),
		AccelScale:   c.Velocity.AccelScale,
		PitchDegrees: c.Velocity.PitchDegrees,
	}
}

// RezeroWindow returns the calibration window for Output.Rezero.
func (c *Config) RezeroWindow() gait.Window {
	return gait.Window{From: c.Output.RezeroFrom, To: c.Output.RezeroTo}
}

// Noise returns the simulated instrument imperfections.
func (c *Config) Noise() sim.Noise {
	s := c.Simulation
	return sim.Noise{
		Gyro:      s.GyroNoise,
		Accel:     s.AccelNoise,
		Position:  s.PositionNoise,
		GyroBias:  s.GyroBias,
		AccelBias: s.AccelBias,
		Seed:      s.Seed,
	}
}

// String returns a one-line summary for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Model: %s, Roll R: %g, Pitch R: %g, Velocity R: %g, Degrees: %v, Rezero: %v, Publish: %q}",
		c.Orientation.Model, c.Orientation.Roll.MeasurementNoise, c.Orientation.Pitch.MeasurementNoise,
		c.Velocity.MeasurementNoise, c.Output.Degrees, c.Output.Rezero, c.Publish)
}
