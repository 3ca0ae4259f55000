package sim

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/Duncans007/gait-analysis/gait"
)

// Column names written by Record and expected by default when reading.
const (
	ColTime     = "T"
	ColGyroX    = "GX"
	ColGyroY    = "GY"
	ColGyroZ    = "GZ"
	ColAccelX   = "AX"
	ColAccelY   = "AY"
	ColAccelZ   = "AZ"
	ColPitch    = "PITCH"
	ColPosition = "POS"
	ColRoll     = "ROLL"
	ColSpeed    = "SPEED"
)

// Columns names the CSV columns holding each channel.
type Columns struct {
	Time     string `yaml:"time"`
	GyroX    string `yaml:"gyro_x"`
	GyroY    string `yaml:"gyro_y"`
	GyroZ    string `yaml:"gyro_z"`
	AccelX   string `yaml:"accel_x"`
	AccelY   string `yaml:"accel_y"`
	AccelZ   string `yaml:"accel_z"`
	Pitch    string `yaml:"pitch"`
	Position string `yaml:"position"`
}

// DefaultColumns returns the names Record writes.
func DefaultColumns() Columns {
	return Columns{
		Time:  ColTime,
		GyroX: ColGyroX, GyroY: ColGyroY, GyroZ: ColGyroZ,
		AccelX: ColAccelX, AccelY: ColAccelY, AccelZ: ColAccelZ,
		Pitch:    ColPitch,
		Position: ColPosition,
	}
}

// Raw returns the instrument columns, without pitch which is estimated.
func (c Columns) Raw() []string {
	return []string{c.Time, c.GyroX, c.GyroY, c.GyroZ, c.AccelX, c.AccelY, c.AccelZ, c.Position}
}

// Orientation returns the columns of an orientation dataset, in order.
func (c Columns) Orientation() []string {
	return []string{c.Time, c.GyroX, c.GyroY, c.GyroZ, c.AccelX, c.AccelY, c.AccelZ}
}

// Velocity returns the columns of a velocity dataset, in order.
func (c Columns) Velocity() []string {
	return []string{c.Time, c.AccelX, c.AccelY, c.AccelZ, c.Pitch, c.Position}
}

// Recording is a trial held as named, equal-length columns. The first
// column is time. A Recording is also a Situation, interpolating between
// its rows, so a recorded trial can be resampled or replayed.
type Recording struct {
	names []string
	cols  map[string][]float64
}

// NewRecording returns an empty recording with the given columns.
func NewRecording(names ...string) *Recording {
	r := &Recording{names: append([]string(nil), names...), cols: make(map[string][]float64, len(names))}
	for _, n := range names {
		r.cols[n] = nil
	}
	return r
}

// Names returns the column names in file order.
func (r *Recording) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of rows.
func (r *Recording) Len() int {
	if len(r.names) == 0 {
		return 0
	}
	return len(r.cols[r.names[0]])
}

// Append adds a row, one value per column in order.
func (r *Recording) Append(v ...float64) {
	for i, n := range r.names {
		if i < len(v) {
			r.cols[n] = append(r.cols[n], v[i])
		} else {
			r.cols[n] = append(r.cols[n], math.NaN())
		}
	}
}

// Column returns the named column.
func (r *Recording) Column(name string) ([]float64, error) {
	c, ok := r.cols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	return c, nil
}

// SetColumn adds or replaces a column. It must have Len entries.
func (r *Recording) SetColumn(name string, v []float64) error {
	if len(r.names) > 0 && len(v) != r.Len() {
		return fmt.Errorf("%w: %q has %d rows, recording has %d", gait.ErrChannelLength, name, len(v), r.Len())
	}
	if _, ok := r.cols[name]; !ok {
		r.names = append(r.names, name)
	}
	r.cols[name] = v
	return nil
}

// Dataset assembles the named columns, in order, into a gait.Dataset.
// The columns are shared, not copied.
func (r *Recording) Dataset(names ...string) (gait.Dataset, error) {
	ds := make(gait.Dataset, len(names))
	for i, n := range names {
		c, err := r.Column(n)
		if err != nil {
			return nil, err
		}
		ds[i] = c
	}
	return ds, ds.Validate(len(names))
}

// ReadRecording reads a CSV trial with a header row. Every field must parse
// as a number; the first bad field fails the whole read.
func ReadRecording(rd io.Reader) (*Recording, error) {
	r := csv.NewReader(bufio.NewReader(rd))
	r.TrimLeadingSpace = true

	// Read header line
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("sim: reading header: %w", err)
	}
	rec := NewRecording(header...)
	if len(rec.cols) != len(header) {
		return nil, fmt.Errorf("sim: duplicate column in header %v", header)
	}

	row := make([]float64, len(header))
	for line := 2; ; line++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Includes rows with the wrong field count
			return nil, fmt.Errorf("sim: line %d: %w", line, err)
		}
		for i, k := range fields {
			if row[i], err = strconv.ParseFloat(k, 64); err != nil {
				return nil, fmt.Errorf("sim: line %d column %q: %w", line, header[i], err)
			}
		}
		rec.Append(row...)
	}
	log.WithFields(log.Fields{
		"columns": len(header),
		"rows":    rec.Len(),
	}).Debug("sim: read recording")
	return rec, nil
}

// LoadRecording reads a CSV trial from a file.
func LoadRecording(fn string) (*Recording, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := ReadRecording(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return rec, nil
}

// WriteCSV writes the recording with a header row.
func (r *Recording) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.names); err != nil {
		return err
	}
	fields := make([]string, len(r.names))
	for i := 0; i < r.Len(); i++ {
		for j, n := range r.names {
			fields[j] = strconv.FormatFloat(r.cols[n][i], 'g', -1, 64)
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BeginTime returns the time stamp when the records begin
func (r *Recording) BeginTime() float64 {
	if r.Len() == 0 {
		return 0
	}
	return r.cols[r.names[0]][0]
}

// EndTime returns the time stamp of the last record
func (r *Recording) EndTime() float64 {
	if r.Len() == 0 {
		return 0
	}
	t := r.cols[r.names[0]]
	return t[len(t)-1]
}

func (r *Recording) segment(t float64) (ix int, f float64, err error) {
	ts := r.cols[r.names[0]]
	if len(ts) < 2 || t < ts[0] || t > ts[len(ts)-1] || math.IsNaN(t) {
		return 0, 0, fmt.Errorf("%w: t=%g", ErrOutsideScenario, t)
	}
	if t > ts[0] {
		ix = sort.SearchFloat64s(ts, t) - 1
	}
	if !(ts[ix] <= t && t <= ts[ix+1] && ts[ix] < ts[ix+1]) {
		return 0, 0, fmt.Errorf("%w: row %d at t=%g follows t=%g", gait.ErrNonMonotonicTime, ix+1, ts[ix+1], ts[ix])
	}
	f = (ts[ix+1] - t) / (ts[ix+1] - ts[ix])
	return ix, f, nil
}

func (r *Recording) at(name string, ix int, f float64) (float64, error) {
	c, err := r.Column(name)
	if err != nil {
		return 0, err
	}
	return f*c[ix] + (1-f)*c[ix+1], nil
}

// Interpolate returns the truth columns at t. Only simulated recordings
// carry them; for a real trial this fails with ErrMissingColumn.
func (r *Recording) Interpolate(t float64) (Truth, error) {
	ix, f, err := r.segment(t)
	if err != nil {
		return Truth{}, err
	}
	x := Truth{T: t}
	for _, c := range []struct {
		name string
		v    *float64
	}{
		{ColRoll, &x.Roll}, {ColPitch, &x.Pitch}, {ColSpeed, &x.Speed}, {ColPosition, &x.Position},
	} {
		if *c.v, err = r.at(c.name, ix, f); err != nil {
			return Truth{}, err
		}
	}
	return x, nil
}

// Measurement linearly interpolates the default instrument columns at t.
func (r *Recording) Measurement(t float64) (Sample, error) {
	ix, f, err := r.segment(t)
	if err != nil {
		return Sample{}, err
	}
	m := Sample{T: t}
	for _, c := range []struct {
		name string
		v    *float64
	}{
		{ColGyroX, &m.Gyro[0]}, {ColGyroY, &m.Gyro[1]}, {ColGyroZ, &m.Gyro[2]},
		{ColAccelX, &m.Accel[0]}, {ColAccelY, &m.Accel[1]}, {ColAccelZ, &m.Accel[2]},
		{ColPosition, &m.Position},
	} {
		if *c.v, err = r.at(c.name, ix, f); err != nil {
			return Sample{}, err
		}
	}
	return m, nil
}
