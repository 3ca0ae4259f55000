package kalman

// EWStats tracks the exponentially weighted mean and variance of a series,
// each observation's weight shrinking by decay per later observation.
type EWStats struct {
	decay    float64
	weight   float64 // Effective number of observations
	mean     float64
	variance float64
}

// NewEWStats returns empty statistics with the given decay, in (0, 1).
func NewEWStats(decay float64) *EWStats {
	return &EWStats{decay: decay}
}

// Add folds x into the statistics. The first observation sets the mean.
func (s *EWStats) Add(x float64) {
	if s.weight == 0 {
		s.weight, s.mean, s.variance = 1, x, 0
		return
	}
	d := x - s.mean
	dm := (1 - s.decay) * d
	s.weight = 1 + s.decay*s.weight
	s.mean += dm
	s.variance = s.decay * (s.variance + dm*d)
}

// Weight is the effective number of observations, approaching 1/(1-decay).
func (s *EWStats) Weight() float64 { return s.weight }

func (s *EWStats) Mean() float64 { return s.mean }

func (s *EWStats) Variance() float64 { return s.variance }

// Reset forgets every observation.
func (s *EWStats) Reset() {
	s.weight, s.mean, s.variance = 0, 0, 0
}
