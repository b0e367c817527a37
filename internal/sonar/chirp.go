package sonar

import "math"

// Default probe settings.
const (
	DefaultSampleRate    = 44100
	DefaultChirpDuration = 0.5
	DefaultStartFreq     = 20000.0
	DefaultEndFreq       = 20000.0
)

// ChirpParameters describes a linear frequency sweep from StartFreq to
// EndFreq over Duration. StartFreq == EndFreq yields a constant tone, whose
// periodic autocorrelation makes it a weak matched filter; prefer a real
// sweep for ranging.
type ChirpParameters struct {
	SampleRate int     `json:"sample_rate"` // Hz
	Duration   float64 `json:"duration"`    // seconds
	StartFreq  float64 `json:"start_freq"`  // Hz
	EndFreq    float64 `json:"end_freq"`    // Hz
}

// DefaultChirpParameters returns the constant 20 kHz tone used when nothing
// is configured.
func DefaultChirpParameters() ChirpParameters {
	return ChirpParameters{
		SampleRate: DefaultSampleRate,
		Duration:   DefaultChirpDuration,
		StartFreq:  DefaultStartFreq,
		EndFreq:    DefaultEndFreq,
	}
}

// NumSamples is round(SampleRate * Duration).
func (p ChirpParameters) NumSamples() int {
	return int(math.Round(float64(p.SampleRate) * p.Duration))
}

// Swept reports whether the probe actually sweeps.
func (p ChirpParameters) Swept() bool {
	return p.StartFreq != p.EndFreq
}

// Validate checks that the parameters produce at least two samples.
func (p ChirpParameters) Validate() error {
	if p.SampleRate <= 0 {
		return invalidf("sample rate must be > 0, got %d", p.SampleRate)
	}
	if !(p.Duration > 0) || math.IsInf(p.Duration, 0) {
		return invalidf("duration must be > 0, got %g", p.Duration)
	}
	if !isFinite(p.StartFreq) || !isFinite(p.EndFreq) {
		return invalidf("frequencies must be finite, got %g..%g", p.StartFreq, p.EndFreq)
	}
	if n := p.NumSamples(); n < 2 {
		return invalidf("chirp needs at least 2 samples, got %d", n)
	}
	return nil
}

// GenerateChirp synthesises the probe waveform.
//
// Sample times are evenly spaced over [0, Duration] including both ends and
// the instantaneous phase is
//
//	phase(t) = 2π * (f0*t + (f1-f0)*t²/(2*Duration))
//
// so a constant tone needs no special case. The output is sin(phase); the
// same waveform is played and used as the correlation reference.
func GenerateChirp(p ChirpParameters) (Signal, error) {
	if err := p.Validate(); err != nil {
		return Signal{}, err
	}

	n := p.NumSamples()
	out := make([]float64, n)
	step := p.Duration / float64(n-1)
	sweep := (p.EndFreq - p.StartFreq) / (2 * p.Duration)
	for i := range out {
		t := float64(i) * step
		phase := 2 * math.Pi * (p.StartFreq*t + sweep*t*t)
		out[i] = math.Sin(phase)
	}
	return Signal{samples: out, sampleRate: p.SampleRate}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
