package sonar

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Ranging defaults.
const (
	DefaultSpeedOfSound       = 343.0 // m/s in air at ~20°C
	DefaultPeakHeightFraction = 0.1
)

// Ranger is the matched-filter detector. It correlates a recording against
// the reference probe and turns correlation peaks into round-trip ranges.
type Ranger struct {
	SpeedOfSound       float64           // m/s
	PeakHeightFraction float64           // peaks must exceed this fraction of the causal maximum
	Method             CorrelationMethod // how the correlation is computed
	MinRange           float64           // meters; ranges below are dropped, 0 disables
	MaxRange           float64           // meters; ranges above are dropped, 0 disables
}

// NewRanger returns a Ranger with the default speed of sound and peak
// threshold.
func NewRanger() *Ranger {
	return &Ranger{
		SpeedOfSound:       DefaultSpeedOfSound,
		PeakHeightFraction: DefaultPeakHeightFraction,
	}
}

// Validate checks the ranger settings.
func (r *Ranger) Validate() error {
	if !(r.SpeedOfSound > 0) || math.IsInf(r.SpeedOfSound, 0) {
		return invalidf("speed of sound must be > 0, got %g", r.SpeedOfSound)
	}
	if r.PeakHeightFraction < 0 || r.PeakHeightFraction > 1 || math.IsNaN(r.PeakHeightFraction) {
		return invalidf("peak height fraction must be within [0, 1], got %g", r.PeakHeightFraction)
	}
	if r.MinRange < 0 || r.MaxRange < 0 {
		return invalidf("range gate must be non-negative, got %g..%g", r.MinRange, r.MaxRange)
	}
	if r.MaxRange > 0 && r.MinRange > r.MaxRange {
		return invalidf("min range %g exceeds max range %g", r.MinRange, r.MaxRange)
	}
	return nil
}

// EstimateRanges correlates recording against reference and returns one
// range per detected echo, in ascending lag order. Only lag 0 and positive
// lags are searched. An empty result means no reflector was detected and is
// not an error.
func (r *Ranger) EstimateRanges(recording Recording, reference Signal, sampleRate int) ([]float64, error) {
	if reference.Len() == 0 {
		return nil, ErrEmptyInput
	}
	if sampleRate <= 0 {
		return nil, invalidf("sample rate must be > 0, got %d", sampleRate)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	ranges := []float64{}
	if len(recording) == 0 {
		return ranges, nil
	}

	full, err := CrossCorrelate(recording, reference.samples, r.Method)
	if err != nil {
		return nil, err
	}
	causal := CausalLags(full, reference.Len())
	if len(causal) == 0 {
		return ranges, nil
	}

	threshold := r.PeakHeightFraction * floats.Max(causal)
	for _, lag := range FindPeaks(causal, threshold) {
		d := LagToRange(lag, sampleRate, r.SpeedOfSound)
		if r.MinRange > 0 && d < r.MinRange {
			continue
		}
		if r.MaxRange > 0 && d > r.MaxRange {
			continue
		}
		ranges = append(ranges, d)
	}
	return ranges, nil
}

// EstimateRanges runs an ungated Ranger with the given speed of sound and
// peak threshold.
func EstimateRanges(recording Recording, reference Signal, sampleRate int, speedOfSound, peakHeightFraction float64) ([]float64, error) {
	r := &Ranger{SpeedOfSound: speedOfSound, PeakHeightFraction: peakHeightFraction}
	return r.EstimateRanges(recording, reference, sampleRate)
}

// LagToRange converts a round-trip lag in samples to a one-way distance.
func LagToRange(lag, sampleRate int, speedOfSound float64) float64 {
	return (float64(lag) / float64(sampleRate)) * speedOfSound / 2
}

// RangeResolution is the distance covered by one sample of round-trip lag.
func RangeResolution(sampleRate int, speedOfSound float64) float64 {
	return LagToRange(1, sampleRate, speedOfSound)
}
