package main

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/Duncans007/gait-analysis/config"
	"github.com/Duncans007/gait-analysis/gait"
	"github.com/Duncans007/gait-analysis/gaitweb"
	"github.com/Duncans007/gait-analysis/sim"
)

// orientationEstimator is satisfied by both orientation models.
type orientationEstimator interface {
	gait.OrientationEstimator
	Variances() (roll, pitch float64)
	Diagnostics() gait.Diagnostics
}

// newOrientationEstimator builds the configured model. degrees overrides
// the output unit so that pitch can be fed to the velocity fuser in radians.
func newOrientationEstimator(cfg *config.Config, degrees bool) (orientationEstimator, error) {
	switch cfg.Orientation.Model {
	case config.ModelScalar:
		c := cfg.OrientationConfig()
		c.Degrees = degrees
		return gait.NewOrientationFuser(c)
	case config.ModelBias:
		c := cfg.BiasConfig()
		c.Degrees = degrees
		return gait.NewBiasFuser(c)
	}
	return nil, fmt.Errorf("%w: orientation model %q", config.ErrInvalid, cfg.Orientation.Model)
}

// orientationPublisher passes every estimate on to a gait room.
type orientationPublisher struct {
	orientationEstimator
	p       *gaitweb.Publisher
	t       float64
	degrees bool
}

func (o *orientationPublisher) Update(gyro, accel [3]float64, dt float64) (roll, pitch float64, err error) {
	roll, pitch, err = o.orientationEstimator.Update(gyro, accel, dt)
	if err != nil {
		return roll, pitch, err
	}
	o.t += dt
	vr, vp := o.Variances()
	d := &gaitweb.GaitData{
		T:          o.t,
		Roll:       roll,
		Pitch:      pitch,
		Degrees:    o.degrees,
		DRoll:      stdev(vr, o.degrees),
		DPitch:     stdev(vp, o.degrees),
		Degenerate: o.Diagnostics().DegenerateMeasurements,
	}
	d.G1, d.G2, d.G3 = gyro[0], gyro[1], gyro[2]
	d.A1, d.A2, d.A3 = accel[0], accel[1], accel[2]
	if err := o.p.Send(d); err != nil {
		log.WithError(err).Debug("gaitkal: estimate not published")
	}
	return roll, pitch, nil
}

// velocityPublisher passes every speed estimate on to a gait room.
type velocityPublisher struct {
	*gait.VelocityFuser
	p *gaitweb.Publisher
	t float64
}

func (v *velocityPublisher) Update(accel [3]float64, pitch, position, dt float64) (float64, error) {
	speed, err := v.VelocityFuser.Update(accel, pitch, position, dt)
	if err != nil {
		return speed, err
	}
	v.t += dt
	d := &gaitweb.GaitData{
		T:          v.t,
		Pitch:      pitch,
		Speed:      speed,
		DSpeed:     math.Sqrt(v.Variance()),
		Position:   position,
		Degenerate: v.Diagnostics().DegenerateMeasurements,
	}
	d.A1, d.A2, d.A3 = accel[0], accel[1], accel[2]
	if err := v.p.Send(d); err != nil {
		log.WithError(err).Debug("gaitkal: estimate not published")
	}
	return speed, nil
}

func stdev(variance float64, degrees bool) float64 {
	s := math.Sqrt(variance)
	if degrees {
		return s / gait.Deg
	}
	return s
}

// estimateOrientation replays rec through the configured orientation model
// and returns a recording of time, roll and pitch, one row per sample after
// the first. If replay stops early the rows estimated so far are returned
// along with the error.
func estimateOrientation(cfg *config.Config, rec *sim.Recording, p *gaitweb.Publisher) (*sim.Recording, error) {
	ds, err := rec.Dataset(cfg.Columns.Orientation()...)
	if err != nil {
		return nil, err
	}
	est, err := newOrientationEstimator(cfg, cfg.Output.Degrees)
	if err != nil {
		return nil, err
	}
	var e gait.OrientationEstimator = est
	if p != nil && ds.Len() > 0 {
		e = &orientationPublisher{orientationEstimator: est, p: p, t: ds[gait.OTime][0], degrees: cfg.Output.Degrees}
	}

	roll, pitch, err := gait.AnalyzeOrientation(e, ds)
	if roll == nil {
		return nil, err
	}
	if cfg.Output.Rezero {
		roll = gait.Rezero(roll, cfg.RezeroWindow())
		pitch = gait.Rezero(pitch, cfg.RezeroWindow())
	}

	out := sim.NewRecording(cfg.Columns.Time, sim.ColRoll, sim.ColPitch)
	for i := range roll {
		out.Append(ds[gait.OTime][i+1], roll[i], pitch[i])
	}
	d := est.Diagnostics()
	log.WithFields(log.Fields{
		"model":      cfg.Orientation.Model,
		"samples":    ds.Len(),
		"updates":    d.Updates,
		"degenerate": d.DegenerateMeasurements,
	}).Info("gaitkal: orientation estimated")
	return out, err
}

// pitchColumn estimates pitch for every sample of rec, in the unit the
// velocity fuser is configured for. The first sample, which only seeds the
// filter, takes its tilt angle.
func pitchColumn(cfg *config.Config, rec *sim.Recording) ([]float64, error) {
	ds, err := rec.Dataset(cfg.Columns.Orientation()...)
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return []float64{}, nil
	}
	degrees := cfg.Velocity.PitchDegrees
	est, err := newOrientationEstimator(cfg, degrees)
	if err != nil {
		return nil, err
	}
	_, pitch, err := gait.AnalyzeOrientation(est, ds)
	if err != nil {
		return nil, fmt.Errorf("estimating pitch: %w", err)
	}
	_, p0, _ := gait.TiltAngles([3]float64{ds[gait.OAccelX][0], ds[gait.OAccelY][0], ds[gait.OAccelZ][0]})
	if degrees {
		p0 /= gait.Deg
	}
	return append([]float64{p0}, pitch...), nil
}

// estimateVelocity replays rec through a velocity fuser and returns a
// recording of time and speed. A trial without a pitch column has its pitch
// estimated first.
func estimateVelocity(cfg *config.Config, rec *sim.Recording, p *gaitweb.Publisher) (*sim.Recording, error) {
	if _, err := rec.Column(cfg.Columns.Pitch); errors.Is(err, sim.ErrMissingColumn) {
		pitch, err := pitchColumn(cfg, rec)
		if err != nil {
			return nil, err
		}
		if err := rec.SetColumn(cfg.Columns.Pitch, pitch); err != nil {
			return nil, err
		}
		log.WithField("model", cfg.Orientation.Model).Info("gaitkal: estimated pitch for velocity")
	}

	ds, err := rec.Dataset(cfg.Columns.Velocity()...)
	if err != nil {
		return nil, err
	}
	v, err := gait.NewVelocityFuser(cfg.VelocityConfig())
	if err != nil {
		return nil, err
	}
	var e gait.VelocityEstimator = v
	if p != nil && ds.Len() > 0 {
		e = &velocityPublisher{VelocityFuser: v, p: p, t: ds[gait.VTime][0]}
	}

	speed, err := gait.AnalyzeVelocity(e, ds)
	if speed == nil {
		return nil, err
	}
	out := sim.NewRecording(cfg.Columns.Time, sim.ColSpeed)
	for i := range speed {
		out.Append(ds[gait.VTime][i+1], speed[i])
	}
	d := v.Diagnostics()
	log.WithFields(log.Fields{
		"samples":    ds.Len(),
		"updates":    d.Updates,
		"degenerate": d.DegenerateMeasurements,
	}).Info("gaitkal: velocity estimated")
	return out, err
}

// scoreSimulation runs the configured estimators live over the configured
// scenario and reports their errors against the truth.
func scoreSimulation(cfg *config.Config, l *sim.EstimateLogger) (sim.Report, error) {
	s, err := sim.Scenario(cfg.Simulation.Scenario)
	if err != nil {
		return sim.Report{}, err
	}
	s.SetNoise(cfg.Noise())

	est, err := newOrientationEstimator(cfg, false)
	if err != nil {
		return sim.Report{}, err
	}
	vc := cfg.VelocityConfig()
	// Simulated accelerometers read in G and Run feeds pitch in radians
	vc.AccelScale = gait.G
	vc.PitchDegrees = false
	v, err := gait.NewVelocityFuser(vc)
	if err != nil {
		return sim.Report{}, err
	}
	return sim.Run(s, est, v, cfg.Simulation.Interval, l)
}
