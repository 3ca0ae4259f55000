package sim

import (
	"fmt"
	"io"
	"strings"
)

// EstimateLogger writes one CSV row of numbers per call, under a fixed
// header, for plotting estimates against truth.
type EstimateLogger struct {
	w   io.Writer
	h   []string
	fmt string
	err error
}

// NewEstimateLogger writes the header to w and returns a logger for rows of
// len(h) values.
func NewEstimateLogger(w io.Writer, h ...string) (*EstimateLogger, error) {
	l := &EstimateLogger{w: w, h: h}
	if _, err := fmt.Fprint(l.w, strings.Join(l.h, ","), "\n"); err != nil {
		return nil, err
	}
	s := strings.Repeat("%f,", len(l.h))
	l.fmt = s[:len(s)-1] + "\n"
	return l, nil
}

// Log writes one row. After the first write error every call is a no-op
// and Err reports it.
func (l *EstimateLogger) Log(v ...float64) {
	if l.err != nil {
		return
	}
	if len(v) != len(l.h) {
		l.err = fmt.Errorf("sim: logging %d values under %d columns", len(v), len(l.h))
		return
	}
	args := make([]interface{}, len(v))
	for i := range v {
		args[i] = v[i]
	}
	_, l.err = fmt.Fprintf(l.w, l.fmt, args...)
}

// Err returns the first error met while logging.
func (l *EstimateLogger) Err() error {
	return l.err
}
