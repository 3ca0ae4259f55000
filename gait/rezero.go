package gait

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Window selects samples [From, To) of an output series.
type Window struct {
	From, To int
}

// DefaultRezeroWindow covers seconds 2 to 4 of a 50 Hz trial, when the
// subject is standing still before walking.
func DefaultRezeroWindow() Window {
	return Window{From: 100, To: 200}
}

func (w Window) clamp(n int) Window {
	if w.From < 0 {
		w.From = 0
	}
	if w.To > n {
		w.To = n
	}
	return w
}

// Rezero returns a copy of series with the mean over w subtracted, so the
// calibration stance reads zero. The window is clamped to the series; if
// nothing is left the copy is returned unchanged.
func Rezero(series []float64, w Window) []float64 {
	out := append([]float64(nil), series...)
	w = w.clamp(len(series))
	if w.From >= w.To {
		return out
	}
	floats.AddConst(-stat.Mean(series[w.From:w.To], nil), out)
	return out
}
