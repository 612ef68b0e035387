package analysis

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/rflf/internal/dynamo"
)

// Spectrum is a one-sided amplitude spectrum.
type Spectrum struct {
	Frequencies []float64
	Power       []float64
}

// PowerSpectrum transforms uniformly sampled data. The mean is removed
// first so the zero bin does not dominate.
func PowerSpectrum(times, data []float64) (Spectrum, error) {
	n := len(data)
	if n < 2 || len(times) != n {
		return Spectrum{}, fmt.Errorf("%w: need matching times and data, got %d and %d", dynamo.ErrInvalidConfig, len(times), n)
	}
	dt := (times[n-1] - times[0]) / float64(n-1)
	if !(dt > 0) {
		return Spectrum{}, fmt.Errorf("%w: non-increasing sample times", dynamo.ErrInvalidConfig)
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
	spec := Spectrum{
		Frequencies: make([]float64, half),
		Power:       make([]float64, half),
	}
	for i := 0; i < half; i++ {
		spec.Frequencies[i] = float64(i) / (float64(n) * dt)
		spec.Power[i] = cmplx.Abs(coeffs[i])
	}
	return spec, nil
}

// Dominant returns the frequency of the largest non-zero bin.
func (s Spectrum) Dominant() float64 {
	best, peak := -1, 0.0
	for i := 1; i < len(s.Power); i++ {
		if s.Power[i] > peak {
			best, peak = i, s.Power[i]
		}
	}
	if best < 0 {
		return 0
	}
	return s.Frequencies[best]
}
