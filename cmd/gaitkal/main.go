// Command gaitkal estimates trunk lean and walking speed from recorded or
// simulated inertial gait trials.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Duncans007/gait-analysis/config"
	"github.com/Duncans007/gait-analysis/gaitweb"
	"github.com/Duncans007/gait-analysis/sim"
)

var (
	version   = "0.3.0"
	commit    = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gaitkal",
		Short: "Kalman estimates of trunk lean and walking speed",
		Long: `gaitkal fuses gyroscope, accelerometer and base-of-support position
channels into roll, pitch and forward walking speed estimates.

Trials are CSV files with a header row; column names are configurable.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("publish", "", "Websocket room to publish estimates to, e.g. "+gaitweb.DefaultURL())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gaitkal v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	orientationCmd := &cobra.Command{
		Use:   "orientation",
		Short: "Estimate roll and pitch from a trial",
		RunE:  runOrientation,
	}
	orientationCmd.Flags().String("in", "", "Input trial CSV (required)")
	orientationCmd.Flags().String("out", "", "Output CSV, stdout if empty")
	orientationCmd.Flags().String("model", "", "Orientation model (scalar, bias)")
	orientationCmd.Flags().Bool("degrees", false, "Report angles in degrees")
	orientationCmd.Flags().Bool("rezero", false, "Subtract the mean over the calibration window")
	orientationCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(orientationCmd)

	velocityCmd := &cobra.Command{
		Use:   "velocity",
		Short: "Estimate forward walking speed from a trial",
		Long: `Estimate forward walking speed. If the trial has no pitch column,
pitch is first estimated with the configured orientation model.`,
		RunE: runVelocity,
	}
	velocityCmd.Flags().String("in", "", "Input trial CSV (required)")
	velocityCmd.Flags().String("out", "", "Output CSV, stdout if empty")
	velocityCmd.Flags().String("model", "", "Orientation model for estimating pitch (scalar, bias)")
	velocityCmd.Flags().Bool("pitch-degrees", false, "The pitch column is in degrees")
	velocityCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(velocityCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Synthesize a trial and optionally score the estimators on it",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().String("scenario", "", fmt.Sprintf("Scenario %v", sim.Scenarios()))
	simulateCmd.Flags().String("out", "", "Write the synthesized trial to this CSV")
	simulateCmd.Flags().String("log", "", "Write per-step truth and estimates to this CSV")
	simulateCmd.Flags().Int64("seed", 0, "Noise seed")
	simulateCmd.Flags().Float64("gyro-noise", 0, "Gyro noise stdev, rad/s")
	simulateCmd.Flags().Float64("accel-noise", 0, "Accelerometer noise stdev, G")
	simulateCmd.Flags().Bool("report", true, "Run the estimators and report their errors")
	rootCmd.AddCommand(simulateCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket room that relays published estimates",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", fmt.Sprintf(":%d", gaitweb.Port), "Listen address")
	rootCmd.AddCommand(serveCmd)

	return rootCmd
}

// loadConfig reads the configuration and applies the flags that override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		cfg.LogLevel = s
	}
	if s, _ := cmd.Flags().GetString("publish"); s != "" {
		cfg.Publish = s
	}
	if f := cmd.Flags().Lookup("model"); f != nil && f.Changed {
		cfg.Orientation.Model = f.Value.String()
	}
	if f := cmd.Flags().Lookup("degrees"); f != nil && f.Changed {
		cfg.Output.Degrees, _ = cmd.Flags().GetBool("degrees")
	}
	if f := cmd.Flags().Lookup("rezero"); f != nil && f.Changed {
		cfg.Output.Rezero, _ = cmd.Flags().GetBool("rezero")
	}
	if f := cmd.Flags().Lookup("pitch-degrees"); f != nil && f.Changed {
		cfg.Velocity.PitchDegrees, _ = cmd.Flags().GetBool("pitch-degrees")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.SetLevel(cfg.Level())
	log.Debugf("gaitkal: %s", cfg)
	return cfg, nil
}

// writeOutput writes rec as CSV to the named file, or to the command's
// output if fn is empty.
func writeOutput(cmd *cobra.Command, fn string, rec *sim.Recording) error {
	if fn == "" {
		return rec.WriteCSV(cmd.OutOrStdout())
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := rec.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dialPublisher(cfg *config.Config) *gaitweb.Publisher {
	if cfg.Publish == "" {
		return nil
	}
	p, err := gaitweb.NewPublisher(cfg.Publish)
	if err != nil {
		log.WithError(err).Warn("gaitkal: not publishing")
		return nil
	}
	return p
}

func runOrientation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	in, _ := cmd.Flags().GetString("in")
	rec, err := sim.LoadRecording(in)
	if err != nil {
		return err
	}
	p := dialPublisher(cfg)
	if p != nil {
		defer p.Close()
	}

	out, err := estimateOrientation(cfg, rec, p)
	if out == nil {
		return err
	}
	if err != nil {
		// Keep what was estimated before the bad sample
		log.WithError(err).Error("gaitkal: orientation replay stopped early")
	}

	fn, _ := cmd.Flags().GetString("out")
	if werr := writeOutput(cmd, fn, out); werr != nil {
		return werr
	}
	return err
}

func runVelocity(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	in, _ := cmd.Flags().GetString("in")
	rec, err := sim.LoadRecording(in)
	if err != nil {
		return err
	}
	p := dialPublisher(cfg)
	if p != nil {
		defer p.Close()
	}

	out, err := estimateVelocity(cfg, rec, p)
	if out == nil {
		return err
	}
	if err != nil {
		log.WithError(err).Error("gaitkal: velocity replay stopped early")
	}

	fn, _ := cmd.Flags().GetString("out")
	if werr := writeOutput(cmd, fn, out); werr != nil {
		return werr
	}
	return err
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if s, _ := flags.GetString("scenario"); s != "" {
		cfg.Simulation.Scenario = s
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("gyro-noise") {
		cfg.Simulation.GyroNoise, _ = flags.GetFloat64("gyro-noise")
	}
	if flags.Changed("accel-noise") {
		cfg.Simulation.AccelNoise, _ = flags.GetFloat64("accel-noise")
	}

	var (
		outFn, _  = flags.GetString("out")
		logFn, _  = flags.GetString("log")
		report, _ = flags.GetBool("report")
	)

	if outFn != "" {
		if err := writeSimulation(cfg, outFn); err != nil {
			return err
		}
	}
	if !report {
		return nil
	}

	var l *sim.EstimateLogger
	if logFn != "" {
		f, err := os.Create(logFn)
		if err != nil {
			return err
		}
		defer f.Close()
		if l, err = sim.NewEstimateLogger(f, sim.RunHeader()...); err != nil {
			return err
		}
	}
	rep, err := scoreSimulation(cfg, l)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "scenario %s, model %s, %d samples\n", cfg.Simulation.Scenario, cfg.Orientation.Model, rep.Samples)
	fmt.Fprintf(w, "roll  %s\n", rep.Roll)
	fmt.Fprintf(w, "pitch %s\n", rep.Pitch)
	fmt.Fprintf(w, "speed %s\n", rep.Speed)
	return nil
}

func writeSimulation(cfg *config.Config, fn string) error {
	s, err := sim.Scenario(cfg.Simulation.Scenario)
	if err != nil {
		return err
	}
	s.SetNoise(cfg.Noise())
	rec, err := sim.Record(s, cfg.Simulation.Interval)
	if err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := rec.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	log.WithFields(log.Fields{"file": fn, "rows": rec.Len()}).Info("gaitkal: wrote simulated trial")
	return f.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	room := gaitweb.NewRoom()
	go room.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle(gaitweb.Path, room)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"addr": addr, "path": gaitweb.Path}).Info("gaitkal: serving gait room")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("gaitkal: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
