package sonar

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// CorrelationMethod selects how the full cross-correlation is computed.
type CorrelationMethod int

const (
	// CorrelateAuto uses direct correlation for short inputs and FFT otherwise.
	CorrelateAuto CorrelationMethod = iota
	// CorrelateDirect is the O(N*M) time-domain sum.
	CorrelateDirect
	// CorrelateFFT multiplies spectra of the zero-padded inputs.
	CorrelateFFT
)

// directThreshold is the kernel length at or below which Auto stays in the
// time domain.
const directThreshold = 64

// fftFlushRatio bounds FFT round-off relative to ||a||*||b||.
const fftFlushRatio = 1e-9

func (m CorrelationMethod) String() string {
	switch m {
	case CorrelateDirect:
		return "direct"
	case CorrelateFFT:
		return "fft"
	default:
		return "auto"
	}
}

// ParseCorrelationMethod accepts "auto", "direct" or "fft". Empty means auto.
func ParseCorrelationMethod(s string) (CorrelationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CorrelateAuto, nil
	case "direct":
		return CorrelateDirect, nil
	case "fft":
		return CorrelateFFT, nil
	default:
		return CorrelateAuto, invalidf("unknown correlation method %q", s)
	}
}

// MarshalText encodes the method by name.
func (m CorrelationMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a method name.
func (m *CorrelationMethod) UnmarshalText(b []byte) error {
	v, err := ParseCorrelationMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// CrossCorrelate computes the full linear cross-correlation of a against b.
// The result has length len(a)+len(b)-1 and index k holds lag k-(len(b)-1):
//
//	c[k] = Σn a[n + k - (len(b)-1)] * b[n]
func CrossCorrelate(a, b []float64, method CorrelationMethod) ([]float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, ErrEmptyInput
	}

	switch method {
	case CorrelateDirect:
		return correlateDirect(a, b), nil
	case CorrelateFFT:
		return correlateFFT(a, b), nil
	default:
		if len(b) <= directThreshold || len(a) <= directThreshold {
			return correlateDirect(a, b), nil
		}
		return correlateFFT(a, b), nil
	}
}

// ZeroLagIndex is the index of lag 0 in a full correlation against a
// reference of length refLen.
func ZeroLagIndex(refLen int) int {
	return refLen - 1
}

// CausalLags drops the negative-lag prefix of a full correlation, so index k
// of the result is lag k. The anchor is refLen-1, not len(full)/2; the two
// only coincide when the recording is as long as the reference.
func CausalLags(full []float64, refLen int) []float64 {
	start := ZeroLagIndex(refLen)
	if start < 0 || start >= len(full) {
		return nil
	}
	return full[start:]
}

func correlateDirect(a, b []float64) []float64 {
	m := len(b)
	out := make([]float64, len(a)+m-1)
	for i, av := range a {
		if av == 0 {
			continue
		}
		for j, bv := range b {
			out[i-j+m-1] += av * bv
		}
	}
	return out
}

// correlateFFT convolves a with reversed b through gonum's real FFT.
func correlateFFT(a, b []float64) []float64 {
	n, m := len(a), len(b)
	outLen := n + m - 1
	size := nextPowerOf2(outLen)

	pa := make([]float64, size)
	copy(pa, a)
	pb := make([]float64, size)
	for j := range b {
		pb[j] = b[m-1-j]
	}

	fft := fourier.NewFFT(size)
	ca := fft.Coefficients(nil, pa)
	cb := fft.Coefficients(nil, pb)
	for i := range ca {
		ca[i] *= cb[i]
	}
	seq := fft.Sequence(nil, ca)

	out := seq[:outLen]
	floats.Scale(1/float64(size), out)

	tol := fftFlushRatio * floats.Norm(a, 2) * floats.Norm(b, 2)
	for i, v := range out {
		if math.Abs(v) <= tol {
			out[i] = 0
		}
	}
	return out
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

