package sonar

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateChirp_Length(t *testing.T) {
	tests := []struct {
		name string
		p    ChirpParameters
		want int
	}{
		{"defaults", DefaultChirpParameters(), 22050},
		{"ten samples", ChirpParameters{SampleRate: 1000, Duration: 0.01, StartFreq: 100, EndFreq: 100}, 10},
		{"rounds up", ChirpParameters{SampleRate: 1000, Duration: 0.0106, StartFreq: 100, EndFreq: 200}, 11},
		{"two samples", ChirpParameters{SampleRate: 100, Duration: 0.02, StartFreq: 10, EndFreq: 10}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := GenerateChirp(tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Len())
			assert.Equal(t, tt.p.SampleRate, sig.SampleRate())
		})
	}
}

func TestGenerateChirp_Deterministic(t *testing.T) {
	p := ChirpParameters{SampleRate: 8000, Duration: 0.05, StartFreq: 500, EndFreq: 3000}
	a, err := GenerateChirp(p)
	require.NoError(t, err)
	b, err := GenerateChirp(p)
	require.NoError(t, err)
	if diff := cmp.Diff(a.Samples(), b.Samples()); diff != "" {
		t.Errorf("chirp not deterministic (-first +second):\n%s", diff)
	}
}

func TestGenerateChirp_Phase(t *testing.T) {
	p := ChirpParameters{SampleRate: 1000, Duration: 0.01, StartFreq: 100, EndFreq: 300}
	sig, err := GenerateChirp(p)
	require.NoError(t, err)

	step := p.Duration / float64(sig.Len()-1)
	for i := 0; i < sig.Len(); i++ {
		tt := float64(i) * step
		want := math.Sin(2 * math.Pi * (p.StartFreq*tt + (p.EndFreq-p.StartFreq)*tt*tt/(2*p.Duration)))
		assert.InDelta(t, want, sig.At(i), 1e-12, "sample %d", i)
	}
	assert.Equal(t, 0.0, sig.At(0))
}

func TestGenerateChirp_ConstantTone(t *testing.T) {
	p := ChirpParameters{SampleRate: 1000, Duration: 0.01, StartFreq: 100, EndFreq: 100}
	require.False(t, p.Swept())
	sig, err := GenerateChirp(p)
	require.NoError(t, err)
	for i := 0; i < sig.Len(); i++ {
		assert.False(t, math.IsNaN(sig.At(i)))
	}
}

func TestGenerateChirp_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    ChirpParameters
	}{
		{"zero rate", ChirpParameters{SampleRate: 0, Duration: 0.5, StartFreq: 1, EndFreq: 1}},
		{"negative rate", ChirpParameters{SampleRate: -44100, Duration: 0.5}},
		{"zero duration", ChirpParameters{SampleRate: 44100, Duration: 0}},
		{"negative duration", ChirpParameters{SampleRate: 44100, Duration: -1}},
		{"nan duration", ChirpParameters{SampleRate: 44100, Duration: math.NaN()}},
		{"one sample", ChirpParameters{SampleRate: 1000, Duration: 0.001}},
		{"rounds to one", ChirpParameters{SampleRate: 1000, Duration: 0.0014}},
		{"infinite frequency", ChirpParameters{SampleRate: 1000, Duration: 0.1, StartFreq: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateChirp(tt.p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParameters), "got %v", err)
		})
	}
}

func TestSignal_Immutable(t *testing.T) {
	src := []float64{1, 2, 3}
	sig := NewSignal(src, 10)
	src[0] = 99
	assert.Equal(t, 1.0, sig.At(0))

	out := sig.Samples()
	out[1] = 99
	assert.Equal(t, 2.0, sig.At(1))
}
