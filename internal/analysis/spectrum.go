package analysis

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Spectrum is a one-sided amplitude spectrum.
type Spectrum struct {
	Freqs     []float64
	Amplitude []float64
}

// PowerSpectrum returns the one-sided amplitude spectrum of a uniformly sampled
// signal with its mean removed. Any length is accepted.
func PowerSpectrum(data []float64, dt float64) (*Spectrum, error) {
	n := len(data)
	if n < 2 {
		return nil, fmt.Errorf("spectrum needs at least 2 samples, got %d", n)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("sample spacing must be positive, got %g", dt)
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(n)

	centered := make([]float64, n)
	for i, v := range data {
		centered[i] = v - mean
	}

	coeffs := fft.FFTReal(centered)
	half := n/2 + 1
	s := &Spectrum{
		Freqs:     make([]float64, half),
		Amplitude: make([]float64, half),
	}
	for k := 0; k < half; k++ {
		s.Freqs[k] = float64(k) / (float64(n) * dt)
		amp := cmplx.Abs(coeffs[k]) / float64(n)
		if k > 0 && !(n%2 == 0 && k == n/2) {
			amp *= 2
		}
		s.Amplitude[k] = amp
	}
	return s, nil
}

// Dominant returns the frequency with the largest amplitude, ignoring DC.
func (s *Spectrum) Dominant() (float64, float64) {
	best, amp := 0.0, 0.0
	for k := 1; k < len(s.Freqs); k++ {
		if s.Amplitude[k] > amp {
			best, amp = s.Freqs[k], s.Amplitude[k]
		}
	}
	return best, amp
}
