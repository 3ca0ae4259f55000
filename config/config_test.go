package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Duncans007/gait-analysis/gait"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gait.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultMatchesFusers(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, gait.DefaultOrientationConfig(), c.OrientationConfig())
	assert.Equal(t, gait.DefaultVelocityConfig(), c.VelocityConfig())
	assert.Equal(t, gait.DefaultBiasConfig(), c.BiasConfig())
	assert.Equal(t, gait.DefaultRezeroWindow(), c.RezeroWindow())
	assert.Equal(t, log.InfoLevel, c.Level())
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
orientation:
  model: bias
  pitch:
    measurement_noise: 0.01
velocity:
  accel_scale: 9.80665
  process_noise: 0.001
  pitch_degrees: true
columns:
  time: time_s
output:
  degrees: true
  rezero: true
  rezero_from: 50
  rezero_to: 150
simulation:
  gyro_bias: [0.01, 0, -0.01]
  seed: 7
publish: ws://localhost:8000/gaitweb
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, log.DebugLevel, c.Level())
	assert.Equal(t, ModelBias, c.Orientation.Model)
	assert.Equal(t, 0.01, c.OrientationConfig().Pitch.MeasurementNoise)
	// Untouched fields keep their defaults
	assert.Equal(t, 1e-6, c.OrientationConfig().Pitch.ProcessNoise)
	assert.Equal(t, 1e-3, c.OrientationConfig().Roll.MeasurementNoise)
	assert.Equal(t, 1.0, c.VelocityConfig().Filter.InitialVariance)

	assert.Equal(t, gait.G, c.VelocityConfig().AccelScale)
	assert.Equal(t, 1e-3, c.VelocityConfig().Filter.ProcessNoise)
	assert.True(t, c.VelocityConfig().PitchDegrees)
	assert.Equal(t, "time_s", c.Columns.Time)
	assert.Equal(t, "GX", c.Columns.GyroX)
	assert.True(t, c.OrientationConfig().Degrees)
	assert.True(t, c.BiasConfig().Degrees)
	assert.Equal(t, gait.Window{From: 50, To: 150}, c.RezeroWindow())
	assert.Equal(t, [3]float64{0.01, 0, -0.01}, c.Noise().GyroBias)
	assert.Equal(t, int64(7), c.Noise().Seed)
	assert.Equal(t, "ws://localhost:8000/gaitweb", c.Publish)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "orientation: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "orientation:\n  model: ukf\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModelScalar, c.Orientation.Model)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GAITKAL_LOG_LEVEL", "warn")
	t.Setenv("GAITKAL_MODEL", "bias")
	t.Setenv("GAITKAL_PUBLISH", "ws://example:8000/gaitweb")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, log.WarnLevel, c.Level())
	assert.Equal(t, ModelBias, c.Orientation.Model)
	assert.Equal(t, "ws://example:8000/gaitweb", c.Publish)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"log level":        func(c *Config) { c.LogLevel = "loud" },
		"model":            func(c *Config) { c.Orientation.Model = "ekf" },
		"negative r":       func(c *Config) { c.Orientation.Roll.MeasurementNoise = -1 },
		"negative q":       func(c *Config) { c.Velocity.ProcessNoise = -1 },
		"bias noise":       func(c *Config) { c.Orientation.BiasNoise = -1 },
		"accel scale":      func(c *Config) { c.Velocity.AccelScale = 0 },
		"rezero window":    func(c *Config) { c.Output.Rezero, c.Output.RezeroFrom, c.Output.RezeroTo = true, 5, 5 },
		"sim interval":     func(c *Config) { c.Simulation.Interval = 0 },
		"publish scheme":   func(c *Config) { c.Publish = "http://localhost:8000/gaitweb" },
		"publish unparsed": func(c *Config) { c.Publish = "ws://[::1" },
	}
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mod(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestString(t *testing.T) {
	s := Default().String()
	assert.Contains(t, s, "Model: scalar")
	assert.Contains(t, s, "Roll R: 0.001")
}
